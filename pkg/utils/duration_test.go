package utils_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wardenlabs/warden/pkg/utils"
)

func TestParseDuration(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		input string
		want  time.Duration
	}{
		{
			name:  "seconds",
			input: "45s",
			want:  45 * time.Second,
		},
		{
			name:  "minutes",
			input: "30m",
			want:  30 * time.Minute,
		},
		{
			name:  "hours",
			input: "2h",
			want:  2 * time.Hour,
		},
		{
			name:  "days",
			input: "3d",
			want:  72 * time.Hour,
		},
		{
			name:  "weeks",
			input: "1w",
			want:  7 * 24 * time.Hour,
		},
		{
			name:  "months",
			input: "4mo",
			want:  4 * 30 * 24 * time.Hour,
		},
		{
			name:  "years",
			input: "2y",
			want:  2 * 365 * 24 * time.Hour,
		},
		{
			name:  "uppercase unit",
			input: "10M",
			want:  10 * time.Minute,
		},
		{
			name:  "surrounding whitespace",
			input: "  5h  ",
			want:  5 * time.Hour,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := utils.ParseDuration(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseDurationInvalid(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		input   string
		wantErr error
	}{
		{
			name:    "empty string",
			input:   "",
			wantErr: utils.ErrEmptyDuration,
		},
		{
			name:    "only whitespace",
			input:   "   ",
			wantErr: utils.ErrEmptyDuration,
		},
		{
			name:    "missing unit",
			input:   "30",
			wantErr: utils.ErrInvalidDuration,
		},
		{
			name:    "missing number",
			input:   "d",
			wantErr: utils.ErrInvalidDuration,
		},
		{
			name:    "unknown unit",
			input:   "3q",
			wantErr: utils.ErrInvalidDuration,
		},
		{
			name:    "zero magnitude",
			input:   "0d",
			wantErr: utils.ErrInvalidDuration,
		},
		{
			name:    "negative magnitude",
			input:   "-5m",
			wantErr: utils.ErrInvalidDuration,
		},
		{
			name:    "decimal magnitude",
			input:   "1.5h",
			wantErr: utils.ErrInvalidDuration,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := utils.ParseDuration(tt.input)
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestFormatDuration(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		input time.Duration
		want  string
	}{
		{
			name:  "zero",
			input: 0,
			want:  "0s",
		},
		{
			name:  "sub-second",
			input: 500 * time.Millisecond,
			want:  "0s",
		},
		{
			name:  "seconds only",
			input: 42 * time.Second,
			want:  "42s",
		},
		{
			name:  "minutes and seconds",
			input: 12*time.Minute + 5*time.Second,
			want:  "12m 5s",
		},
		{
			name:  "hours and minutes",
			input: 4*time.Hour + 12*time.Minute,
			want:  "4h 12m",
		},
		{
			name:  "days hours minutes",
			input: 2*24*time.Hour + 4*time.Hour + 12*time.Minute,
			want:  "2d 4h 12m",
		},
		{
			name:  "seconds dropped once days appear",
			input: 24*time.Hour + 30*time.Second,
			want:  "1d",
		},
		{
			name:  "exact day",
			input: 24 * time.Hour,
			want:  "1d",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := utils.FormatDuration(tt.input)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFormatRemaining(t *testing.T) {
	t.Parallel()

	t.Run("nil expiry is permanent", func(t *testing.T) {
		t.Parallel()
		assert.Equal(t, "permanent", utils.FormatRemaining(nil))
	})

	t.Run("past expiry is expired", func(t *testing.T) {
		t.Parallel()
		past := time.Now().Add(-time.Minute)
		assert.Equal(t, "expired", utils.FormatRemaining(&past))
	})

	t.Run("future expiry renders remaining time", func(t *testing.T) {
		t.Parallel()
		future := time.Now().Add(2*time.Hour + 30*time.Minute)
		got := utils.FormatRemaining(&future)
		assert.Contains(t, got, "2h")
	})
}
