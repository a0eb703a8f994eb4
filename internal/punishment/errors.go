package punishment

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/wardenlabs/warden/internal/database/types"
)

// ErrAlreadyIPBanned rejects ban issuance for subjects already covered by
// an active IP ban.
var ErrAlreadyIPBanned = errors.New("subject already has an active IP ban")

// ConflictError reports a business-rule rejection. The message is safe to
// show to operators verbatim.
type ConflictError struct {
	Existing *types.Punishment
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s (record %d)", ErrAlreadyIPBanned, e.Existing.ID)
}

func (e *ConflictError) Unwrap() error {
	return ErrAlreadyIPBanned
}

// NotFoundError reports a removal that found nothing active to remove.
type NotFoundError struct {
	SubjectID uuid.UUID
	Family    string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no active %s records for subject %s", e.Family, e.SubjectID)
}

// ValidationError rejects malformed input before any store access.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}
