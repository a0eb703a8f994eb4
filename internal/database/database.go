// Package database defines the persistence contract for punishment records
// and dispatches to the interchangeable backends that implement it.
package database

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/wardenlabs/warden/internal/database/memory"
	"github.com/wardenlabs/warden/internal/database/postgres"
	"github.com/wardenlabs/warden/internal/database/sqlite"
	"github.com/wardenlabs/warden/internal/database/types"
	"github.com/wardenlabs/warden/internal/database/types/enum"
	"github.com/wardenlabs/warden/internal/setup/config"
	"go.uber.org/zap"
)

// Store is the persistence contract every storage backend implements.
//
// The active-record queries (FindActive, FindActiveIPBan, ListActiveIPBans)
// carry a documented side effect: when the matching record's expiry has
// already passed, the backend marks it EXPIRED before reporting absence.
// Callers therefore never observe a stale active record, whether or not a
// sweep has run.
type Store interface {
	// Save persists a new punishment record and returns the assigned ID.
	// The ID is also written back into the record. Single-statement: a
	// failed save never leaves a partial write behind.
	Save(ctx context.Context, record *types.Punishment) (int64, error)

	// ListBySubjectID returns the subject's full punishment history,
	// newest first.
	ListBySubjectID(ctx context.Context, subjectID uuid.UUID) ([]*types.Punishment, error)

	// ListBySubjectName returns the punishment history recorded under the
	// given display name, matched case- and accent-insensitively, newest
	// first.
	ListBySubjectName(ctx context.Context, name string) ([]*types.Punishment, error)

	// FindActive returns the newest active record of exactly the given
	// type for the subject, or nil when there is none.
	FindActive(ctx context.Context, subjectID uuid.UUID, punishmentType enum.PunishmentType) (*types.Punishment, error)

	// FindActiveIPBan returns the newest active IP ban recorded against
	// the given address, or nil when there is none.
	FindActiveIPBan(ctx context.Context, address string) (*types.Punishment, error)

	// ListActiveIPBans returns every active IP ban recorded against the
	// given address, newest first.
	ListActiveIPBans(ctx context.Context, address string) ([]*types.Punishment, error)

	// Deactivate marks the record inactive with the given reason and
	// source. Idempotent: deactivating an already-inactive record is a
	// no-op that preserves the original deactivation fields.
	Deactivate(ctx context.Context, id int64, reason enum.DeactivationReason, source string) error

	// ExpireDue marks every active record whose expiry is at or before
	// now as EXPIRED and returns how many records changed. This is the
	// storewide reconciliation used by the sweeper for subjects nothing
	// is currently reading.
	ExpireDue(ctx context.Context, now time.Time) (int64, error)

	// Close releases the backend's resources.
	Close() error
}

// Open constructs the storage backend selected by the configuration.
// autoMigrate applies pending schema migrations on connect where the
// backend supports them.
func Open(ctx context.Context, cfg *config.Database, logger *zap.Logger, autoMigrate bool) (Store, error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		return postgres.New(ctx, &cfg.Postgres, logger, autoMigrate)
	case config.DriverSQLite:
		return sqlite.New(ctx, cfg.SQLite.Path, cfg.SQLite.PoolSize, logger)
	case config.DriverMemory:
		return memory.New(logger), nil
	default:
		return nil, fmt.Errorf("%w: %q", config.ErrUnknownDriver, cfg.Driver)
	}
}
