package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/knadh/koanf/parsers/toml/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

var (
	ErrConfigFileNotFound    = errors.New("could not find config file in any config path")
	ErrConfigVersionMissing  = errors.New("config file is missing version field")
	ErrConfigVersionMismatch = errors.New("config file version mismatch")
	ErrUnknownDriver         = errors.New("unknown database driver")
)

// RepositoryVersion is the repository version tag for config file references.
const RepositoryVersion = "v0.4.0"

// CurrentConfigVersion is the config file version this build expects.
const CurrentConfigVersion = 1

// Supported database drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverMemory   = "memory"
)

// Config represents the entire application configuration.
type Config struct {
	// Version of the config file.
	Version   int       `koanf:"version"`
	Engine    Engine    `koanf:"engine"`
	Database  Database  `koanf:"database"`
	Redis     Redis     `koanf:"redis"`
	Telemetry Telemetry `koanf:"telemetry"`
}

// Engine contains punishment engine tuning.
type Engine struct {
	// Expiration sweep interval in seconds (0 uses the engine default).
	SweepInterval int `koanf:"sweep_interval"`
	// Cache warm budget per connect in milliseconds (0 uses the engine default).
	WarmTimeout int `koanf:"warm_timeout"`
	// Actor recorded when an issuance is unattributed.
	ActorFallback string `koanf:"actor_fallback"`
}

// Database selects and configures the storage backend.
type Database struct {
	// Backend driver (postgres, sqlite, memory).
	Driver string `koanf:"driver"`
	// Apply pending postgres migrations on startup.
	AutoMigrate bool       `koanf:"auto_migrate"`
	Postgres    PostgreSQL `koanf:"postgres"`
	SQLite      SQLite     `koanf:"sqlite"`
}

// Validate checks that the configured driver is supported.
func (d *Database) Validate() error {
	switch d.Driver {
	case DriverPostgres, DriverSQLite, DriverMemory:
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownDriver, d.Driver)
	}
}

// PostgreSQL contains database connection configuration.
type PostgreSQL struct {
	// Database hostname.
	Host string `koanf:"host"`
	// Database port.
	Port int `koanf:"port"`
	// Database username.
	User string `koanf:"user"`
	// Database password.
	Password string `koanf:"password"`
	// Database name.
	DBName string `koanf:"db_name"`
	// Maximum open connections.
	MaxOpenConns int `koanf:"max_open_conns"`
	// Maximum idle connections.
	MaxIdleConns int `koanf:"max_idle_conns"`
	// Connection lifetime in minutes.
	MaxLifetime int `koanf:"max_lifetime"`
	// Idle timeout in minutes.
	MaxIdleTime int `koanf:"max_idle_time"`
}

// SQLite contains embedded database configuration.
type SQLite struct {
	// Database file path.
	Path string `koanf:"path"`
	// Connection pool size.
	PoolSize int `koanf:"pool_size"`
}

// Redis contains Redis connection configuration for cross-node cache
// invalidation. Disabled means single-node operation.
type Redis struct {
	// Enable the invalidation fan-out.
	Enabled bool `koanf:"enabled"`
	// Redis hostname.
	Host string `koanf:"host"`
	// Redis port.
	Port int `koanf:"port"`
	// Redis username.
	Username string `koanf:"username"`
	// Redis password.
	Password string `koanf:"password"`
}

// Telemetry contains logging and tracing configuration.
type Telemetry struct {
	// Directory for session log files.
	LogDir string `koanf:"log_dir"`
	// Log level (debug, info, warn, error).
	LogLevel string `koanf:"log_level"`
	// Maximum log sessions to keep.
	MaxLogsToKeep int `koanf:"max_logs_to_keep"`
	// Maximum lines retained per log file.
	MaxLogLines int `koanf:"max_log_lines"`
	// Uptrace DSN; enables OpenTelemetry query tracing when set.
	UptraceDSN string `koanf:"uptrace_dsn"`
	// Enable the localhost pprof endpoint.
	EnablePprof bool `koanf:"enable_pprof"`
	// Port for the pprof endpoint.
	PprofPort int `koanf:"pprof_port"`
}

// LoadConfig loads the configuration from warden.toml.
// Returns the config along with the used config directory.
func LoadConfig() (*Config, string, error) {
	k := koanf.New(".")

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, "", fmt.Errorf("failed to get home directory: %w", err)
	}

	configPaths := []string{
		".warden",
		homeDir + "/.warden/config",
		"/etc/warden/config",
		"/app/config",
		"config",
		".",
	}

	var usedConfigPath string

	for _, path := range configPaths {
		configPath := fmt.Sprintf("%s/warden.toml", path)
		if err := k.Load(file.Provider(configPath), toml.Parser()); err == nil {
			usedConfigPath = path
			break
		}
	}

	if usedConfigPath == "" {
		return nil, "", fmt.Errorf("%w: warden.toml", ErrConfigFileNotFound)
	}

	var config Config
	if err := k.Unmarshal("", &config); err != nil {
		return nil, "", fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := checkConfigVersion(config.Version, CurrentConfigVersion); err != nil {
		return nil, "", err
	}

	if err := config.Database.Validate(); err != nil {
		return nil, "", err
	}

	return &config, usedConfigPath, nil
}

// checkConfigVersion checks if the config file version is correct.
func checkConfigVersion(current, expected int) error {
	if current == 0 {
		return fmt.Errorf("%w: warden.toml", ErrConfigVersionMissing)
	}

	if current != expected {
		return fmt.Errorf(
			"%w: warden.toml (got: %d, expected: %d)\n"+
				"Please update your config file from: https://github.com/wardenlabs/warden/tree/%s/config/warden.toml",
			ErrConfigVersionMismatch,
			current,
			expected,
			RepositoryVersion,
		)
	}

	return nil
}
