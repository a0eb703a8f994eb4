package punishment

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/wardenlabs/warden/internal/database"
	"github.com/wardenlabs/warden/internal/database/types"
	"github.com/wardenlabs/warden/internal/database/types/enum"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	// DefaultSweepInterval paces the background expiry pass.
	DefaultSweepInterval = time.Minute

	// DefaultWarmTimeout bounds the store read behind an async cache warm.
	DefaultWarmTimeout = 5 * time.Second
)

// MuteCache keeps the active mute-family record per subject in memory so
// chat checks never touch the store. Entries are whole-record replaced,
// never mutated in place.
type MuteCache struct {
	store   database.Store
	entries *xsync.MapOf[uuid.UUID, *types.Punishment]
	group   singleflight.Group
	events  *Broadcaster
	logger  *zap.Logger

	sweepInterval time.Duration
	warmTimeout   time.Duration

	cancel context.CancelFunc
	done   chan struct{}
}

// NewMuteCache creates the cache around a store. Zero durations select the
// defaults.
func NewMuteCache(store database.Store, logger *zap.Logger, sweepInterval, warmTimeout time.Duration) *MuteCache {
	if sweepInterval <= 0 {
		sweepInterval = DefaultSweepInterval
	}

	if warmTimeout <= 0 {
		warmTimeout = DefaultWarmTimeout
	}

	return &MuteCache{
		store:         store,
		entries:       xsync.NewMapOf[uuid.UUID, *types.Punishment](),
		logger:        logger.Named("mute_cache"),
		sweepInterval: sweepInterval,
		warmTimeout:   warmTimeout,
	}
}

// Put stores the subject's active mute. Records outside the mute family or
// not in force are ignored.
func (c *MuteCache) Put(record *types.Punishment) {
	if record == nil || !record.Type.IsMuteFamily() || !record.InForce() {
		return
	}

	c.entries.Store(record.SubjectID, record)
}

// Get returns the subject's in-force mute, or nil. Expired and deactivated
// entries are evicted on read so a stale positive is never served. Never
// blocks and never touches the store.
func (c *MuteCache) Get(subjectID uuid.UUID) *types.Punishment {
	record, ok := c.entries.Load(subjectID)
	if !ok {
		return nil
	}

	if record.InForce() {
		return record
	}

	// Remove only the entry just observed; a concurrent Put wins.
	c.entries.Compute(subjectID, func(current *types.Punishment, loaded bool) (*types.Punishment, bool) {
		return current, loaded && current == record
	})

	return nil
}

// Evict drops the subject's entry.
func (c *MuteCache) Evict(subjectID uuid.UUID) {
	c.entries.Delete(subjectID)
}

// Len reports the number of cached entries.
func (c *MuteCache) Len() int {
	return c.entries.Size()
}

// Warm loads the subject's active mute from the store into the cache.
// Concurrent warms for the same subject are coalesced. Store failure is
// logged and leaves the entry absent, so chat stays open for the subject.
func (c *MuteCache) Warm(ctx context.Context, subjectID uuid.UUID) error {
	_, err, _ := c.group.Do(subjectID.String(), func() (any, error) {
		record, err := c.store.FindActive(ctx, subjectID, enum.PunishmentTypeMute)
		if err != nil {
			return nil, err
		}

		if record == nil {
			record, err = c.store.FindActive(ctx, subjectID, enum.PunishmentTypeTempMute)
			if err != nil {
				return nil, err
			}
		}

		if record == nil {
			c.Evict(subjectID)
			return nil, nil
		}

		c.Put(record)

		return record, nil
	})
	if err != nil {
		c.logger.Warn("Failed to warm mute cache",
			zap.String("subjectID", subjectID.String()),
			zap.Error(err))

		return err
	}

	return nil
}

// WarmAsync warms the subject's entry on a fresh goroutine with a bounded
// timeout. Used on connect so the handshake never waits on the store.
func (c *MuteCache) WarmAsync(subjectID uuid.UUID) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), c.warmTimeout)
		defer cancel()

		_ = c.Warm(ctx, subjectID)
	}()
}

// Start launches the background sweep loop.
func (c *MuteCache) Start() {
	if c.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.done = make(chan struct{})

	go c.sweepLoop(ctx)

	c.logger.Debug("Mute cache sweeper started", zap.Duration("interval", c.sweepInterval))
}

// Stop halts the sweep loop and waits for the current pass to finish.
func (c *MuteCache) Stop() {
	if c.cancel == nil {
		return
	}

	c.cancel()
	<-c.done
	c.cancel = nil

	c.logger.Debug("Mute cache sweeper stopped")
}
