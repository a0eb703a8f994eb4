package punishment_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wardenlabs/warden/internal/database"
	"github.com/wardenlabs/warden/internal/database/memory"
	"github.com/wardenlabs/warden/internal/database/types"
	"github.com/wardenlabs/warden/internal/database/types/enum"
	"github.com/wardenlabs/warden/internal/punishment"
	"go.uber.org/zap"
)

// faultyStore fails FindActive to drive the gate's error path.
type faultyStore struct {
	database.Store
}

func (s *faultyStore) FindActive(context.Context, uuid.UUID, enum.PunishmentType) (*types.Punishment, error) {
	return nil, types.NewPersistenceError("find_active", errors.New("connection refused"))
}

// saveRecord writes a record straight to the store, bypassing the
// manager's conflict resolution so overlapping states can be staged.
func saveRecord(t *testing.T, store database.Store, record *types.Punishment) *types.Punishment {
	t.Helper()

	_, err := store.Save(t.Context(), record)
	require.NoError(t, err)

	return record
}

func activeRecord(subject uuid.UUID, name string, punishmentType enum.PunishmentType, issuedAgo time.Duration) *types.Punishment {
	return &types.Punishment{
		SubjectID:          subject,
		SubjectName:        name,
		Type:               punishmentType,
		Reason:             "gate test",
		Actor:              "Moderator",
		IssuedAt:           time.Now().UTC().Add(-issuedAgo),
		Active:             true,
		DeactivationReason: enum.DeactivationReasonActive,
	}
}

func TestGateEvaluatesInPriorityOrder(t *testing.T) {
	t.Parallel()

	manager, store := setupManager(t)
	ctx := t.Context()

	subject := uuid.New()
	address := "203.0.113.50"

	subjectIPBan := activeRecord(subject, "mora", enum.PunishmentTypeIPBan, 4*time.Hour)
	subjectIPBan.IPAddress = "10.0.0.1"
	saveRecord(t, store, subjectIPBan)

	addressIPBan := activeRecord(uuid.New(), "someone else", enum.PunishmentTypeIPBan, 3*time.Hour)
	addressIPBan.IPAddress = address
	saveRecord(t, store, addressIPBan)

	permBan := saveRecord(t, store, activeRecord(subject, "mora", enum.PunishmentTypeBan, 2*time.Hour))

	tempBan := activeRecord(subject, "mora", enum.PunishmentTypeTempBan, time.Hour)
	expiresAt := time.Now().UTC().Add(time.Hour)
	tempBan.ExpiresAt = &expiresAt
	saveRecord(t, store, tempBan)

	expect := []struct {
		winner *types.Punishment
		label  string
	}{
		{subjectIPBan, "subject IP ban outranks everything"},
		{addressIPBan, "address IP ban outranks plain bans"},
		{permBan, "permanent ban outranks temp ban"},
		{tempBan, "temp ban denies last"},
	}

	for _, step := range expect {
		decision, err := manager.CheckConnection(ctx, subject, "mora", address)
		require.NoError(t, err)
		assert.False(t, decision.Allowed)
		require.NotNil(t, decision.Punishment, step.label)
		assert.Equal(t, step.winner.ID, decision.Punishment.ID, step.label)

		require.NoError(t, store.Deactivate(ctx, step.winner.ID, enum.DeactivationReasonRemovedBySource, "Admin"))
	}

	decision, err := manager.CheckConnection(ctx, subject, "mora", address)
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
	assert.Nil(t, decision.Punishment)
}

func TestGateAllowsUnknownSubject(t *testing.T) {
	t.Parallel()

	manager, _ := setupManager(t)

	decision, err := manager.CheckConnection(t.Context(), uuid.New(), "fresh", "192.0.2.200")
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
	assert.Nil(t, decision.Punishment)
}

func TestGateFailsClosed(t *testing.T) {
	t.Parallel()

	backing := memory.New(zap.NewNop())
	t.Cleanup(func() { _ = backing.Close() })

	store := &faultyStore{Store: backing}
	cache := punishment.NewMuteCache(store, zap.NewNop(), time.Hour, time.Second)
	manager := punishment.NewManager(store, cache, zap.NewNop())

	decision, err := manager.CheckConnection(t.Context(), uuid.New(), "anyone", "192.0.2.7")
	require.Error(t, err)

	var persistenceErr *types.PersistenceError

	require.ErrorAs(t, err, &persistenceErr)
	assert.False(t, decision.Allowed, "a failing lookup must deny")
	assert.Nil(t, decision.Punishment)
}

func TestGateIgnoresExpiredTempBan(t *testing.T) {
	t.Parallel()

	manager, store := setupManager(t)
	ctx := t.Context()
	subject := uuid.New()

	stale := activeRecord(subject, "nox", enum.PunishmentTypeTempBan, 2*time.Hour)
	expiresAt := time.Now().UTC().Add(-time.Hour)
	stale.ExpiresAt = &expiresAt
	saveRecord(t, store, stale)

	decision, err := manager.CheckConnection(ctx, subject, "nox", "192.0.2.9")
	require.NoError(t, err)
	assert.True(t, decision.Allowed)

	// The lapsed ban was demoted by the lookup itself
	history, err := store.ListBySubjectID(ctx, subject)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.False(t, history[0].Active)
	assert.Equal(t, enum.DeactivationReasonExpired, history[0].DeactivationReason)
}
