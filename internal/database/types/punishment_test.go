package types_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/wardenlabs/warden/internal/database/types"
	"github.com/wardenlabs/warden/internal/database/types/enum"
)

func TestPunishmentIsExpired(t *testing.T) {
	past := time.Now().Add(-time.Minute)
	future := time.Now().Add(time.Minute)

	p := &types.Punishment{Type: enum.PunishmentTypeTempBan, Active: true}
	if p.IsExpired() {
		t.Error("punishment without expiry reported expired")
	}

	p.ExpiresAt = &future
	if p.IsExpired() {
		t.Error("punishment with future expiry reported expired")
	}

	p.ExpiresAt = &past
	if !p.IsExpired() {
		t.Error("punishment with past expiry not reported expired")
	}
}

func TestPunishmentIsPermanent(t *testing.T) {
	expiry := time.Now().Add(time.Hour)

	p := &types.Punishment{Type: enum.PunishmentTypeBan, Active: true}
	if !p.IsPermanent() {
		t.Error("punishment without expiry not reported permanent")
	}

	p.ExpiresAt = &expiry
	if p.IsPermanent() {
		t.Error("punishment with expiry reported permanent")
	}
}

func TestPunishmentInForce(t *testing.T) {
	past := time.Now().Add(-time.Minute)
	future := time.Now().Add(time.Minute)

	tests := []struct {
		name      string
		active    bool
		expiresAt *time.Time
		want      bool
	}{
		{"active permanent", true, nil, true},
		{"active unexpired", true, &future, true},
		{"active but expired", true, &past, false},
		{"deactivated permanent", false, nil, false},
		{"deactivated unexpired", false, &future, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &types.Punishment{
				SubjectID: uuid.New(),
				Type:      enum.PunishmentTypeTempMute,
				Active:    tt.active,
				ExpiresAt: tt.expiresAt,
			}

			if got := p.InForce(); got != tt.want {
				t.Errorf("InForce() = %v, want %v", got, tt.want)
			}
		})
	}
}
