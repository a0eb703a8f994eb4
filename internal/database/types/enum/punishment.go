package enum

import (
	"database/sql/driver"
	"errors"
	"fmt"
)

// ErrUnknownPunishmentType is returned when parsing an unrecognized punishment type name.
var ErrUnknownPunishmentType = errors.New("unknown punishment type")

// PunishmentType represents the kind of moderation action applied to a subject.
type PunishmentType int

const (
	// PunishmentTypeBan permanently prevents a subject from connecting.
	PunishmentTypeBan PunishmentType = iota
	// PunishmentTypeTempBan prevents a subject from connecting until the expiry passes.
	PunishmentTypeTempBan
	// PunishmentTypeIPBan prevents connections by the subject and from the recorded address.
	PunishmentTypeIPBan
	// PunishmentTypeMute permanently blocks a subject from chatting.
	PunishmentTypeMute
	// PunishmentTypeTempMute blocks a subject from chatting until the expiry passes.
	PunishmentTypeTempMute
	// PunishmentTypeKick disconnects a subject once; recorded for history only.
	PunishmentTypeKick
)

var punishmentTypeNames = map[PunishmentType]string{
	PunishmentTypeBan:      "BAN",
	PunishmentTypeTempBan:  "TEMP_BAN",
	PunishmentTypeIPBan:    "IP_BAN",
	PunishmentTypeMute:     "MUTE",
	PunishmentTypeTempMute: "TEMP_MUTE",
	PunishmentTypeKick:     "KICK",
}

var punishmentTypeValues = map[string]PunishmentType{
	"BAN":       PunishmentTypeBan,
	"TEMP_BAN":  PunishmentTypeTempBan,
	"IP_BAN":    PunishmentTypeIPBan,
	"MUTE":      PunishmentTypeMute,
	"TEMP_MUTE": PunishmentTypeTempMute,
	"KICK":      PunishmentTypeKick,
}

// BanFamilyTypes returns the punishment types that prevent connection.
func BanFamilyTypes() []PunishmentType {
	return []PunishmentType{PunishmentTypeBan, PunishmentTypeTempBan, PunishmentTypeIPBan}
}

// MuteFamilyTypes returns the punishment types that block messaging.
func MuteFamilyTypes() []PunishmentType {
	return []PunishmentType{PunishmentTypeMute, PunishmentTypeTempMute}
}

// IsBanFamily reports whether the type prevents connection.
func (t PunishmentType) IsBanFamily() bool {
	return t == PunishmentTypeBan || t == PunishmentTypeTempBan || t == PunishmentTypeIPBan
}

// IsMuteFamily reports whether the type blocks messaging.
func (t PunishmentType) IsMuteFamily() bool {
	return t == PunishmentTypeMute || t == PunishmentTypeTempMute
}

// String returns the canonical storage name of the type.
func (t PunishmentType) String() string {
	if name, ok := punishmentTypeNames[t]; ok {
		return name
	}

	return fmt.Sprintf("PunishmentType(%d)", int(t))
}

// ParsePunishmentType resolves a canonical storage name back to its type.
func ParsePunishmentType(s string) (PunishmentType, error) {
	if t, ok := punishmentTypeValues[s]; ok {
		return t, nil
	}

	return 0, fmt.Errorf("%w: %q", ErrUnknownPunishmentType, s)
}

// MarshalText implements encoding.TextMarshaler.
func (t PunishmentType) MarshalText() ([]byte, error) {
	if name, ok := punishmentTypeNames[t]; ok {
		return []byte(name), nil
	}

	return nil, fmt.Errorf("%w: %d", ErrUnknownPunishmentType, int(t))
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *PunishmentType) UnmarshalText(text []byte) error {
	parsed, err := ParsePunishmentType(string(text))
	if err != nil {
		return err
	}

	*t = parsed

	return nil
}

// Value implements driver.Valuer, storing the canonical name.
func (t PunishmentType) Value() (driver.Value, error) {
	if name, ok := punishmentTypeNames[t]; ok {
		return name, nil
	}

	return nil, fmt.Errorf("%w: %d", ErrUnknownPunishmentType, int(t))
}

// Scan implements sql.Scanner.
func (t *PunishmentType) Scan(value any) error {
	switch v := value.(type) {
	case string:
		return t.UnmarshalText([]byte(v))
	case []byte:
		return t.UnmarshalText(v)
	default:
		return fmt.Errorf("%w: unsupported scan type %T", ErrUnknownPunishmentType, value)
	}
}
