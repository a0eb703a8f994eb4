package commands

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
)

// DaemonCommands returns the commands that run maintenance work.
func DaemonCommands(deps *CLIDependencies) []*cli.Command {
	return []*cli.Command{
		{
			Name:   "sweep",
			Usage:  "Deactivate every punishment whose expiry has passed",
			Action: handleSweep(deps),
		},
		{
			Name:  "daemon",
			Usage: "Run the expiry sweeper until interrupted",
			Description: `Run the background sweeper loop that expires lapsed punishments
storewide. When Redis is enabled, the daemon also listens for mute
invalidations from sibling nodes.`,
			Action: handleDaemon(deps),
		},
	}
}

// handleSweep handles the one-shot 'sweep' command.
func handleSweep(deps *CLIDependencies) cli.ActionFunc {
	return func(ctx context.Context, _ *cli.Command) error {
		expired, err := deps.Store.ExpireDue(ctx, time.Now().UTC())
		if err != nil {
			return err
		}

		deps.Logger.Info("Expired lapsed punishments", zap.Int64("count", expired))

		return nil
	}
}

// handleDaemon handles the 'daemon' command.
func handleDaemon(deps *CLIDependencies) cli.ActionFunc {
	return func(ctx context.Context, _ *cli.Command) error {
		deps.Cache.Start()
		defer deps.Cache.Stop()

		listenCtx, cancel := context.WithCancel(ctx)
		defer cancel()

		if deps.Broadcaster != nil {
			go func() {
				err := deps.Broadcaster.Listen(listenCtx, deps.Cache)
				if err != nil && !errors.Is(err, context.Canceled) {
					deps.Logger.Error("Invalidation listener stopped", zap.Error(err))
				}
			}()
		}

		deps.Logger.Info("Daemon started. Waiting for interrupt signal to gracefully shutdown...")

		// Wait for interrupt signal to gracefully shut down the sweeper
		sc := make(chan os.Signal, 1)
		signal.Notify(sc, syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
		<-sc

		deps.Logger.Info("Daemon shutting down")

		return nil
	}
}
