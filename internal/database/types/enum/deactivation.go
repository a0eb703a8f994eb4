package enum

import (
	"database/sql/driver"
	"errors"
	"fmt"
)

// ErrUnknownDeactivationReason is returned when parsing an unrecognized deactivation reason name.
var ErrUnknownDeactivationReason = errors.New("unknown deactivation reason")

// DeactivationReason records why a punishment stopped being active.
type DeactivationReason int

const (
	// DeactivationReasonActive marks a punishment that is still in force.
	DeactivationReasonActive DeactivationReason = iota
	// DeactivationReasonExpired marks a punishment whose expiry passed.
	DeactivationReasonExpired
	// DeactivationReasonRemovedBySource marks a punishment lifted by an identified source.
	DeactivationReasonRemovedBySource
)

var deactivationReasonNames = map[DeactivationReason]string{
	DeactivationReasonActive:          "ACTIVE",
	DeactivationReasonExpired:         "EXPIRED",
	DeactivationReasonRemovedBySource: "REMOVED_BY_SOURCE",
}

var deactivationReasonValues = map[string]DeactivationReason{
	"ACTIVE":            DeactivationReasonActive,
	"EXPIRED":           DeactivationReasonExpired,
	"REMOVED_BY_SOURCE": DeactivationReasonRemovedBySource,
}

// String returns the canonical storage name of the reason.
func (r DeactivationReason) String() string {
	if name, ok := deactivationReasonNames[r]; ok {
		return name
	}

	return fmt.Sprintf("DeactivationReason(%d)", int(r))
}

// ParseDeactivationReason resolves a canonical storage name back to its reason.
func ParseDeactivationReason(s string) (DeactivationReason, error) {
	if r, ok := deactivationReasonValues[s]; ok {
		return r, nil
	}

	return 0, fmt.Errorf("%w: %q", ErrUnknownDeactivationReason, s)
}

// MarshalText implements encoding.TextMarshaler.
func (r DeactivationReason) MarshalText() ([]byte, error) {
	if name, ok := deactivationReasonNames[r]; ok {
		return []byte(name), nil
	}

	return nil, fmt.Errorf("%w: %d", ErrUnknownDeactivationReason, int(r))
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (r *DeactivationReason) UnmarshalText(text []byte) error {
	parsed, err := ParseDeactivationReason(string(text))
	if err != nil {
		return err
	}

	*r = parsed

	return nil
}

// Value implements driver.Valuer, storing the canonical name.
func (r DeactivationReason) Value() (driver.Value, error) {
	if name, ok := deactivationReasonNames[r]; ok {
		return name, nil
	}

	return nil, fmt.Errorf("%w: %d", ErrUnknownDeactivationReason, int(r))
}

// Scan implements sql.Scanner.
func (r *DeactivationReason) Scan(value any) error {
	switch v := value.(type) {
	case string:
		return r.UnmarshalText([]byte(v))
	case []byte:
		return r.UnmarshalText(v)
	default:
		return fmt.Errorf("%w: unsupported scan type %T", ErrUnknownDeactivationReason, value)
	}
}
