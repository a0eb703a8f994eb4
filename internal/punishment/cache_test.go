package punishment_test

import (
	"context"
	"errors"
	"sync/atomic"
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

func TestCachePutFiltersRecords(t *testing.T) {
	t.Parallel()

	store := memory.New(zap.NewNop())
	t.Cleanup(func() { _ = store.Close() })

	cache := punishment.NewMuteCache(store, zap.NewNop(), time.Hour, time.Second)
	subject := uuid.New()

	// Ban-family records never enter the mute cache
	cache.Put(activeRecord(subject, "pat", enum.PunishmentTypeBan, time.Hour))
	assert.Zero(t, cache.Len())
	assert.Nil(t, cache.Get(subject))

	// Deactivated mutes are refused too
	inactive := activeRecord(subject, "pat", enum.PunishmentTypeMute, time.Hour)
	inactive.Active = false
	cache.Put(inactive)
	assert.Zero(t, cache.Len())

	cache.Put(activeRecord(subject, "pat", enum.PunishmentTypeMute, time.Hour))
	assert.Equal(t, 1, cache.Len())
	require.NotNil(t, cache.Get(subject))
}

func TestCacheGetEvictsExpiredEntries(t *testing.T) {
	t.Parallel()

	store := memory.New(zap.NewNop())
	t.Cleanup(func() { _ = store.Close() })

	cache := punishment.NewMuteCache(store, zap.NewNop(), time.Hour, time.Second)
	subject := uuid.New()

	mute := activeRecord(subject, "quinn", enum.PunishmentTypeTempMute, 0)
	expiresAt := time.Now().UTC().Add(60 * time.Millisecond)
	mute.ExpiresAt = &expiresAt

	cache.Put(mute)
	require.NotNil(t, cache.Get(subject))

	require.Eventually(t, func() bool {
		return cache.Get(subject) == nil
	}, time.Second, 10*time.Millisecond)

	assert.Zero(t, cache.Len(), "the stale entry must be evicted on read")
}

func TestCacheWarm(t *testing.T) {
	t.Parallel()

	store := memory.New(zap.NewNop())
	t.Cleanup(func() { _ = store.Close() })

	cache := punishment.NewMuteCache(store, zap.NewNop(), time.Hour, time.Second)
	ctx := t.Context()

	muted := uuid.New()
	saveRecord(t, store, activeRecord(muted, "rory", enum.PunishmentTypeMute, time.Hour))

	require.NoError(t, cache.Warm(ctx, muted))

	cached := cache.Get(muted)
	require.NotNil(t, cached)
	assert.Equal(t, enum.PunishmentTypeMute, cached.Type)

	// Subjects without an active mute stay absent
	clean := uuid.New()
	require.NoError(t, cache.Warm(ctx, clean))
	assert.Nil(t, cache.Get(clean))

	// A warm after removal clears the stale entry
	require.NoError(t, store.Deactivate(ctx, cached.ID, enum.DeactivationReasonRemovedBySource, "Admin"))
	require.NoError(t, cache.Warm(ctx, muted))
	assert.Nil(t, cache.Get(muted))
}

func TestCacheWarmPrefersPermanentMute(t *testing.T) {
	t.Parallel()

	store := memory.New(zap.NewNop())
	t.Cleanup(func() { _ = store.Close() })

	cache := punishment.NewMuteCache(store, zap.NewNop(), time.Hour, time.Second)
	subject := uuid.New()

	permanent := saveRecord(t, store, activeRecord(subject, "sam", enum.PunishmentTypeMute, 2*time.Hour))

	tempMute := activeRecord(subject, "sam", enum.PunishmentTypeTempMute, time.Hour)
	expiresAt := time.Now().UTC().Add(time.Hour)
	tempMute.ExpiresAt = &expiresAt
	saveRecord(t, store, tempMute)

	require.NoError(t, cache.Warm(t.Context(), subject))

	cached := cache.Get(subject)
	require.NotNil(t, cached)
	assert.Equal(t, permanent.ID, cached.ID)
}

func TestCacheWarmFailureLeavesEntryAbsent(t *testing.T) {
	t.Parallel()

	backing := memory.New(zap.NewNop())
	t.Cleanup(func() { _ = backing.Close() })

	store := &faultyStore{Store: backing}
	cache := punishment.NewMuteCache(store, zap.NewNop(), time.Hour, time.Second)

	subject := uuid.New()
	require.Error(t, cache.Warm(t.Context(), subject))

	// Chat stays open for the subject until a later warm succeeds
	assert.Nil(t, cache.Get(subject))
	assert.Zero(t, cache.Len())
}

func TestOnConnectWarmsInBackground(t *testing.T) {
	t.Parallel()

	manager, store := setupManager(t)
	subject := uuid.New()

	saveRecord(t, store, activeRecord(subject, "taylor", enum.PunishmentTypeMute, time.Hour))

	// Until the warm lands the subject reads as not muted
	manager.OnConnect(subject)

	require.Eventually(t, func() bool {
		return manager.CheckMuted(subject) != nil
	}, time.Second, 10*time.Millisecond)

	manager.OnDisconnect(subject)
	assert.Nil(t, manager.CheckMuted(subject))
}

func TestSweepExpiresCacheAndStore(t *testing.T) {
	t.Parallel()

	store := memory.New(zap.NewNop())
	t.Cleanup(func() { _ = store.Close() })

	cache := punishment.NewMuteCache(store, zap.NewNop(), time.Hour, time.Second)
	ctx := t.Context()

	// A cached mute about to lapse
	online := uuid.New()
	cachedMute := activeRecord(online, "uma", enum.PunishmentTypeTempMute, 0)
	expiresAt := time.Now().UTC().Add(50 * time.Millisecond)
	cachedMute.ExpiresAt = &expiresAt
	saveRecord(t, store, cachedMute)
	cache.Put(cachedMute)

	// An already lapsed ban for a subject nothing is reading
	offline := uuid.New()
	offlineBan := activeRecord(offline, "vic", enum.PunishmentTypeTempBan, 2*time.Hour)
	offlineExpiry := time.Now().UTC().Add(-time.Hour)
	offlineBan.ExpiresAt = &offlineExpiry
	saveRecord(t, store, offlineBan)

	time.Sleep(100 * time.Millisecond)

	cache.Sweep(ctx)

	assert.Zero(t, cache.Len())

	for subject, id := range map[uuid.UUID]int64{online: cachedMute.ID, offline: offlineBan.ID} {
		history, err := store.ListBySubjectID(ctx, subject)
		require.NoError(t, err)
		require.Len(t, history, 1)
		assert.Equal(t, id, history[0].ID)
		assert.False(t, history[0].Active)
		assert.Equal(t, enum.DeactivationReasonExpired, history[0].DeactivationReason)
	}
}

// deactivateFailStore fails Deactivate to drive the sweep's skip path.
type deactivateFailStore struct {
	database.Store

	deactivations atomic.Int32
}

func (s *deactivateFailStore) Deactivate(context.Context, int64, enum.DeactivationReason, string) error {
	s.deactivations.Add(1)
	return types.NewPersistenceError("deactivate", errors.New("connection reset"))
}

func TestSweepContinuesPastDeactivateFailure(t *testing.T) {
	t.Parallel()

	backing := memory.New(zap.NewNop())
	t.Cleanup(func() { _ = backing.Close() })

	store := &deactivateFailStore{Store: backing}
	cache := punishment.NewMuteCache(store, zap.NewNop(), time.Hour, time.Second)
	ctx := t.Context()

	names := []string{"xena", "yuri"}
	subjects := []uuid.UUID{uuid.New(), uuid.New()}

	for i, subject := range subjects {
		mute := activeRecord(subject, names[i], enum.PunishmentTypeTempMute, 0)
		expiresAt := time.Now().UTC().Add(50 * time.Millisecond)
		mute.ExpiresAt = &expiresAt
		saveRecord(t, backing, mute)
		cache.Put(mute)
	}

	time.Sleep(100 * time.Millisecond)

	cache.Sweep(ctx)

	// Both entries leave the cache even though no per-record demotion landed
	assert.Zero(t, cache.Len())
	assert.Equal(t, int32(len(subjects)), store.deactivations.Load())

	// The storewide reconcile still ran after the failures
	for _, subject := range subjects {
		history, err := backing.ListBySubjectID(ctx, subject)
		require.NoError(t, err)
		require.Len(t, history, 1)
		assert.False(t, history[0].Active)
		assert.Equal(t, enum.DeactivationReasonExpired, history[0].DeactivationReason)
	}
}

func TestSweeperLifecycle(t *testing.T) {
	t.Parallel()

	store := memory.New(zap.NewNop())
	t.Cleanup(func() { _ = store.Close() })

	cache := punishment.NewMuteCache(store, zap.NewNop(), 20*time.Millisecond, time.Second)

	subject := uuid.New()
	mute := activeRecord(subject, "wren", enum.PunishmentTypeTempMute, 0)
	expiresAt := time.Now().UTC().Add(40 * time.Millisecond)
	mute.ExpiresAt = &expiresAt
	saveRecord(t, store, mute)
	cache.Put(mute)

	cache.Start()
	defer cache.Stop()

	require.Eventually(t, func() bool {
		return cache.Len() == 0
	}, time.Second, 10*time.Millisecond, "the sweep loop must evict the lapsed mute")

	history, err := store.ListBySubjectID(t.Context(), subject)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.False(t, history[0].Active)
}
