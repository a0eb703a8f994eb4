// Package setup bootstraps the application from configuration.
package setup

import (
	"context"
	"log"
	"time"

	"github.com/wardenlabs/warden/internal/database"
	"github.com/wardenlabs/warden/internal/punishment"
	"github.com/wardenlabs/warden/internal/redis"
	"github.com/wardenlabs/warden/internal/setup/config"
	"github.com/wardenlabs/warden/internal/setup/telemetry"
	"go.uber.org/zap"
)

// App bundles all core dependencies and services needed by the application.
// Each field represents a major subsystem that needs initialization and cleanup.
type App struct {
	Config       *config.Config          // Application configuration
	Logger       *zap.Logger             // Main application logger
	DBLogger     *zap.Logger             // Database-specific logger
	Store        database.Store          // Punishment storage backend
	RedisManager *redis.Manager          // Redis connection manager (nil when disabled)
	Broadcaster  *punishment.Broadcaster // Cross-node mute invalidation (nil when Redis disabled)
	Cache        *punishment.MuteCache   // In-process mute cache
	Manager      *punishment.Manager     // Punishment engine
	LogManager   *telemetry.Manager      // Log management system
	pprofServer  *pprofServer            // Debug HTTP server for pprof
}

// InitializeApp bootstraps all application dependencies in the correct order,
// ensuring each component has its required dependencies available. Background
// loops are wired but not started; callers that want continuous expiry start
// App.Cache and the Broadcaster listener themselves.
func InitializeApp(ctx context.Context, component string) (*App, error) {
	cfg, _, err := config.LoadConfig()
	if err != nil {
		return nil, err
	}

	// Logging system is initialized first to capture setup issues
	logManager := telemetry.NewManager(component, &cfg.Telemetry)

	logger, dbLogger, err := logManager.GetLoggers()
	if err != nil {
		return nil, err
	}

	store, err := database.Open(ctx, &cfg.Database, dbLogger, cfg.Database.AutoMigrate)
	if err != nil {
		return nil, err
	}

	cache := punishment.NewMuteCache(
		store, logger,
		time.Duration(cfg.Engine.SweepInterval)*time.Second,
		time.Duration(cfg.Engine.WarmTimeout)*time.Millisecond,
	)

	opts := make([]punishment.Option, 0, 2)
	if cfg.Engine.ActorFallback != "" {
		opts = append(opts, punishment.WithActorFallback(cfg.Engine.ActorFallback))
	}

	// Redis fan-out keeps sibling node caches coherent; single-node
	// deployments run without it.
	var (
		redisManager *redis.Manager
		broadcaster  *punishment.Broadcaster
	)

	if cfg.Redis.Enabled {
		redisManager = redis.NewManager(&cfg.Redis, logger)

		client, err := redisManager.GetClient(redis.EventsDBIndex)
		if err != nil {
			return nil, err
		}

		broadcaster = punishment.NewBroadcaster(client, logger)
		opts = append(opts, punishment.WithBroadcaster(broadcaster))
	}

	manager := punishment.NewManager(store, cache, logger, opts...)

	// Start pprof server if enabled
	var pprofSrv *pprofServer

	if cfg.Telemetry.EnablePprof {
		srv, err := startPprofServer(cfg.Telemetry.PprofPort, logger)
		if err != nil {
			logger.Error("Failed to start pprof server", zap.Error(err))
		} else {
			pprofSrv = srv

			logger.Warn("pprof debugging endpoint enabled - this should not be used in production!")
		}
	}

	logger.Info("Initialized application",
		zap.String("component", component),
		zap.String("instanceID", logManager.GetInstanceID()),
		zap.String("database", cfg.Database.Driver),
		zap.Bool("redis", cfg.Redis.Enabled))

	return &App{
		Config:       cfg,
		Logger:       logger,
		DBLogger:     dbLogger,
		Store:        store,
		RedisManager: redisManager,
		Broadcaster:  broadcaster,
		Cache:        cache,
		Manager:      manager,
		LogManager:   logManager,
		pprofServer:  pprofSrv,
	}, nil
}

// Cleanup ensures graceful shutdown of all components in reverse initialization order.
// Logs but does not fail on cleanup errors to ensure all components get cleanup attempts.
func (s *App) Cleanup(ctx context.Context) {
	// Shutdown pprof server if running
	if s.pprofServer != nil {
		if err := s.pprofServer.srv.Shutdown(ctx); err != nil {
			s.Logger.Error("Failed to shutdown pprof server", zap.Error(err))
		}

		s.pprofServer.listener.Close()
	}

	// The sweeper touches the store, so it stops first
	s.Cache.Stop()

	if err := s.Store.Close(); err != nil {
		log.Printf("Failed to close store: %v", err)
	}

	if s.RedisManager != nil {
		s.RedisManager.Close()
	}

	if err := s.LogManager.Stop(ctx); err != nil {
		log.Printf("Failed to flush telemetry: %v", err)
	}

	// Sync buffered logs before shutdown
	if err := s.Logger.Sync(); err != nil {
		log.Printf("Failed to sync logger: %v", err)
	}

	if err := s.DBLogger.Sync(); err != nil {
		log.Printf("Failed to sync DB logger: %v", err)
	}
}
