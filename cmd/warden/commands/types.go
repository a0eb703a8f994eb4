package commands

import (
	"errors"

	"github.com/uptrace/bun/migrate"
	"github.com/wardenlabs/warden/internal/database"
	"github.com/wardenlabs/warden/internal/punishment"
	"go.uber.org/zap"
)

var (
	ErrArgsRequired    = errors.New("SUBJECT, NAME and REASON arguments required")
	ErrSubjectRequired = errors.New("SUBJECT argument required")
	ErrQueryRequired   = errors.New("QUERY argument required")
	ErrCheckArgs       = errors.New("SUBJECT, NAME and ADDRESS arguments required")
	ErrNameRequired    = errors.New("NAME argument required")
	ErrPostgresOnly    = errors.New("migrations require the postgres driver")
)

// CLIDependencies holds the common dependencies needed by CLI commands.
type CLIDependencies struct {
	Manager     *punishment.Manager
	Store       database.Store
	Cache       *punishment.MuteCache
	Broadcaster *punishment.Broadcaster
	Migrator    *migrate.Migrator // nil unless the postgres driver is active
	Logger      *zap.Logger
}
