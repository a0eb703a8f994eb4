package utils_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/wardenlabs/warden/pkg/utils"
)

func TestContextSleep(t *testing.T) {
	t.Parallel()

	t.Run("completes full duration", func(t *testing.T) {
		t.Parallel()

		start := time.Now()
		result := utils.ContextSleep(t.Context(), 20*time.Millisecond)

		assert.Equal(t, utils.SleepCompleted, result)
		assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
	})

	t.Run("returns early on cancellation", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(t.Context())
		go func() {
			time.Sleep(10 * time.Millisecond)
			cancel()
		}()

		start := time.Now()
		result := utils.ContextSleep(ctx, 10*time.Second)

		assert.Equal(t, utils.SleepCancelled, result)
		assert.Less(t, time.Since(start), time.Second)
	})

	t.Run("already cancelled context", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(t.Context())
		cancel()

		result := utils.ContextSleep(ctx, 10*time.Second)
		assert.Equal(t, utils.SleepCancelled, result)
	})
}
