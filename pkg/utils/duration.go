package utils

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrEmptyDuration is returned when an empty string is parsed as a duration.
	ErrEmptyDuration = errors.New("empty duration")
	// ErrInvalidDuration is returned when a duration string does not match <number><unit>.
	ErrInvalidDuration = errors.New("invalid duration format")
)

// durationUnits maps the accepted unit suffixes to their length.
// Months are fixed at 30 days and years at 365 days.
var durationUnits = map[string]time.Duration{
	"s":  time.Second,
	"m":  time.Minute,
	"h":  time.Hour,
	"d":  24 * time.Hour,
	"w":  7 * 24 * time.Hour,
	"mo": 30 * 24 * time.Hour,
	"y":  365 * 24 * time.Hour,
}

// ParseDuration parses a sanction duration of the form <number><unit>,
// where unit is one of s, m, h, d, w, mo, y (e.g. "30m", "2h", "3d", "1w",
// "4mo", "2y"). The number must be a positive integer.
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return 0, ErrEmptyDuration
	}

	// Split into the leading digits and the trailing unit
	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}

	if i == 0 || i == len(s) {
		return 0, fmt.Errorf("%w: %q", ErrInvalidDuration, s)
	}

	value, err := strconv.ParseInt(s[:i], 10, 64)
	if err != nil || value <= 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidDuration, s)
	}

	unit, ok := durationUnits[s[i:]]
	if !ok {
		return 0, fmt.Errorf("%w: unknown unit %q", ErrInvalidDuration, s[i:])
	}

	return time.Duration(value) * unit, nil
}

// FormatDuration renders a duration as a compact "2d 4h 12m" style string.
// Durations under a second render as "0s".
func FormatDuration(d time.Duration) string {
	if d < time.Second {
		return "0s"
	}

	days := d / (24 * time.Hour)
	d -= days * 24 * time.Hour
	hours := d / time.Hour
	d -= hours * time.Hour
	minutes := d / time.Minute
	d -= minutes * time.Minute
	seconds := d / time.Second

	parts := make([]string, 0, 4)
	if days > 0 {
		parts = append(parts, strconv.FormatInt(int64(days), 10)+"d")
	}

	if hours > 0 {
		parts = append(parts, strconv.FormatInt(int64(hours), 10)+"h")
	}

	if minutes > 0 {
		parts = append(parts, strconv.FormatInt(int64(minutes), 10)+"m")
	}

	if seconds > 0 && days == 0 {
		parts = append(parts, strconv.FormatInt(int64(seconds), 10)+"s")
	}

	return strings.Join(parts, " ")
}

// FormatRemaining renders the time left until expiresAt for user-facing
// messages. A nil expiry reads "permanent" and a past one reads "expired".
func FormatRemaining(expiresAt *time.Time) string {
	if expiresAt == nil {
		return "permanent"
	}

	remaining := time.Until(*expiresAt)
	if remaining <= 0 {
		return "expired"
	}

	return FormatDuration(remaining)
}
