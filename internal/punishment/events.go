package punishment

import (
	"context"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/redis/rueidis"
	"go.uber.org/zap"
)

// InvalidationChannel carries cross-node mute invalidation messages.
const InvalidationChannel = "warden:mute_invalidation"

// muteInvalidation tells other nodes to drop their cache entry for the
// subject. Node identifies the publisher so it can skip its own events.
type muteInvalidation struct {
	Node      string    `json:"node"`
	SubjectID uuid.UUID `json:"subject_id"`
}

// Broadcaster publishes and consumes mute invalidations over Redis
// pub/sub. Redis being down degrades to single-node behavior: publish
// failures are logged, never propagated.
type Broadcaster struct {
	client rueidis.Client
	node   string
	logger *zap.Logger
}

// NewBroadcaster creates a broadcaster with a fresh node identity.
func NewBroadcaster(client rueidis.Client, logger *zap.Logger) *Broadcaster {
	return &Broadcaster{
		client: client,
		node:   uuid.NewString(),
		logger: logger.Named("events"),
	}
}

// Publish announces that the subject's mute state changed.
func (b *Broadcaster) Publish(ctx context.Context, subjectID uuid.UUID) {
	payload, err := sonic.Marshal(muteInvalidation{Node: b.node, SubjectID: subjectID})
	if err != nil {
		b.logger.Error("Failed to encode mute invalidation", zap.Error(err))
		return
	}

	err = b.client.Do(ctx, b.client.B().Publish().
		Channel(InvalidationChannel).
		Message(string(payload)).
		Build()).Error()
	if err != nil {
		b.logger.Warn("Failed to publish mute invalidation",
			zap.String("subjectID", subjectID.String()),
			zap.Error(err))
	}
}

// Listen subscribes to invalidations and evicts the cache for events
// published by other nodes. Blocks until the context is cancelled or the
// subscription drops.
func (b *Broadcaster) Listen(ctx context.Context, cache *MuteCache) error {
	return b.client.Receive(ctx, b.client.B().Subscribe().Channel(InvalidationChannel).Build(),
		func(msg rueidis.PubSubMessage) {
			var event muteInvalidation

			if err := sonic.Unmarshal([]byte(msg.Message), &event); err != nil {
				b.logger.Warn("Discarded malformed invalidation", zap.Error(err))
				return
			}

			if event.Node == b.node {
				return
			}

			cache.Evict(event.SubjectID)

			b.logger.Debug("Evicted cache entry for remote invalidation",
				zap.String("subjectID", event.SubjectID.String()),
				zap.String("node", event.Node))
		})
}
