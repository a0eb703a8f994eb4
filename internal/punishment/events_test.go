package punishment_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/rueidis"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wardenlabs/warden/internal/database/memory"
	"github.com/wardenlabs/warden/internal/database/types/enum"
	"github.com/wardenlabs/warden/internal/punishment"
	"go.uber.org/zap"
)

func setupBroadcast(t *testing.T) (*punishment.Broadcaster, *punishment.Broadcaster, *punishment.MuteCache) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	newClient := func() rueidis.Client {
		client, err := rueidis.NewClient(rueidis.ClientOption{
			InitAddress:  []string{mr.Addr()},
			DisableCache: true,
		})
		require.NoError(t, err)
		t.Cleanup(client.Close)

		return client
	}

	publisher := punishment.NewBroadcaster(newClient(), zap.NewNop())
	subscriber := punishment.NewBroadcaster(newClient(), zap.NewNop())

	store := memory.New(zap.NewNop())
	t.Cleanup(func() { _ = store.Close() })

	cache := punishment.NewMuteCache(store, zap.NewNop(), time.Hour, time.Second)

	listenCtx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	go func() { _ = subscriber.Listen(listenCtx, cache) }()

	// Give the subscription a moment to register
	time.Sleep(100 * time.Millisecond)

	return publisher, subscriber, cache
}

func TestRemoteInvalidationEvictsCache(t *testing.T) {
	t.Parallel()

	publisher, _, cache := setupBroadcast(t)
	subject := uuid.New()

	cache.Put(activeRecord(subject, "xena", enum.PunishmentTypeMute, time.Hour))
	require.NotNil(t, cache.Get(subject))

	publisher.Publish(t.Context(), subject)

	require.Eventually(t, func() bool {
		return cache.Get(subject) == nil
	}, 2*time.Second, 20*time.Millisecond, "a remote invalidation must evict the entry")
}

func TestOwnInvalidationIsSkipped(t *testing.T) {
	t.Parallel()

	_, subscriber, cache := setupBroadcast(t)
	subject := uuid.New()

	cache.Put(activeRecord(subject, "yuri", enum.PunishmentTypeMute, time.Hour))

	// Events published by the listening node itself must not evict
	subscriber.Publish(t.Context(), subject)

	time.Sleep(300 * time.Millisecond)
	assert.NotNil(t, cache.Get(subject))
}

func TestPublishSurvivesRedisOutage(t *testing.T) {
	t.Parallel()

	mr, err := miniredis.Run()
	require.NoError(t, err)

	client, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress:  []string{mr.Addr()},
		DisableCache: true,
	})
	require.NoError(t, err)
	t.Cleanup(client.Close)

	broadcaster := punishment.NewBroadcaster(client, zap.NewNop())

	// Take Redis down; publishing must not panic or block
	mr.Close()

	done := make(chan struct{})

	go func() {
		defer close(done)
		broadcaster.Publish(t.Context(), uuid.New())
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("publish did not return after Redis went away")
	}
}
