package memory_test

import (
	"testing"

	"github.com/wardenlabs/warden/internal/database"
	"github.com/wardenlabs/warden/internal/database/memory"
	"github.com/wardenlabs/warden/internal/database/storetest"
	"go.uber.org/zap"
)

func TestStoreContract(t *testing.T) {
	t.Parallel()

	storetest.Run(t, func(t *testing.T) database.Store {
		store := memory.New(zap.NewNop())
		t.Cleanup(func() { _ = store.Close() })

		return store
	})
}
