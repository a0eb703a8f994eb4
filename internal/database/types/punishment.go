package types

import (
	"time"

	"github.com/google/uuid"
	"github.com/wardenlabs/warden/internal/database/types/enum"
)

// Punishment represents a single moderation action in a subject's history.
// Records are append-only: a punishment is deactivated exactly once and
// never mutated afterwards.
type Punishment struct {
	ID                 int64                   `bun:",pk,autoincrement"`  // Store-assigned, never reused
	SubjectID          uuid.UUID               `bun:",notnull,type:uuid"` // Stable identity of the punished user
	SubjectName        string                  `bun:",notnull"`           // Display name at issuance (history display only)
	SubjectNameFold    string                  `bun:",notnull"`           // Folded name for case-insensitive lookup
	Type               enum.PunishmentType     `bun:",notnull"`           // Kind of moderation action
	Reason             string                  `bun:",notnull,type:text"` // Why it was issued
	Actor              string                  `bun:",notnull"`           // Who issued it ("Console" if unattributed)
	IssuedAt           time.Time               `bun:",notnull"`           // When it was issued
	ExpiresAt          *time.Time              `bun:",nullzero"`          // When it lapses (null for permanent)
	Active             bool                    `bun:",notnull"`           // Whether it is currently in force
	IPAddress          string                  `bun:",nullzero"`          // Recorded address for IP bans, empty otherwise
	DeactivationReason enum.DeactivationReason `bun:",notnull"`           // Why it stopped being active
	DeactivationSource string                  `bun:",nullzero"`          // Who lifted it, empty otherwise
	DeactivatedAt      *time.Time              `bun:",nullzero"`          // When it stopped being active
}

// IsExpired checks if the punishment's expiry has passed.
func (p *Punishment) IsExpired() bool {
	return p.ExpiresAt != nil && time.Now().After(*p.ExpiresAt)
}

// IsPermanent checks if the punishment never expires on its own.
func (p *Punishment) IsPermanent() bool {
	return p.ExpiresAt == nil
}

// InForce checks if the punishment should currently be enforced. The active
// flag alone is not enough: expiry is detected lazily, so a record can
// still carry Active=true after its expiry has passed.
func (p *Punishment) InForce() bool {
	return p.Active && !p.IsExpired()
}
