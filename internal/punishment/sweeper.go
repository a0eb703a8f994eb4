package punishment

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/wardenlabs/warden/internal/database/types"
	"github.com/wardenlabs/warden/internal/database/types/enum"
	"github.com/wardenlabs/warden/pkg/utils"
	"go.uber.org/zap"
)

// sweepLoop runs expiry passes until the context is cancelled. The loop is
// liveness only: reads already treat lapsed records as expired, the sweep
// keeps cache and store from accumulating dead entries.
func (c *MuteCache) sweepLoop(ctx context.Context) {
	defer close(c.done)

	for {
		if utils.ContextSleep(ctx, c.sweepInterval) == utils.SleepCancelled {
			return
		}

		c.Sweep(ctx)
	}
}

// Sweep runs one expiry pass: lapsed cache entries are evicted and
// deactivated, then the store reconciles records nothing is reading.
// Per-record failures are logged and skipped.
func (c *MuteCache) Sweep(ctx context.Context) {
	var lapsed []*types.Punishment

	c.entries.Range(func(_ uuid.UUID, record *types.Punishment) bool {
		if !record.InForce() {
			lapsed = append(lapsed, record)
		}

		return true
	})

	for _, record := range lapsed {
		c.Evict(record.SubjectID)

		if record.Active && record.IsExpired() {
			if err := c.store.Deactivate(ctx, record.ID, enum.DeactivationReasonExpired, ""); err != nil {
				c.logger.Error("Failed to expire cached mute",
					zap.Int64("id", record.ID),
					zap.String("subjectID", record.SubjectID.String()),
					zap.Error(err))

				continue
			}
		}

		if c.events != nil {
			c.events.Publish(ctx, record.SubjectID)
		}
	}

	count, err := c.store.ExpireDue(ctx, time.Now().UTC())
	if err != nil {
		c.logger.Error("Failed to reconcile expired records", zap.Error(err))
		return
	}

	if len(lapsed) > 0 || count > 0 {
		c.logger.Debug("Sweep pass completed",
			zap.Int("evicted", len(lapsed)),
			zap.Int64("reconciled", count))
	}
}
