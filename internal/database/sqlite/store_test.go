package sqlite_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/wardenlabs/warden/internal/database"
	"github.com/wardenlabs/warden/internal/database/sqlite"
	"github.com/wardenlabs/warden/internal/database/storetest"
	"go.uber.org/zap"
)

func TestStoreContract(t *testing.T) {
	t.Parallel()

	storetest.Run(t, func(t *testing.T) database.Store {
		store, err := sqlite.New(t.Context(), filepath.Join(t.TempDir(), "warden.db"), 2, zap.NewNop())
		require.NoError(t, err)
		t.Cleanup(func() { _ = store.Close() })

		return store
	})
}

func TestReopenKeepsRecords(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "warden.db")
	ctx := t.Context()

	store, err := sqlite.New(ctx, path, 1, zap.NewNop())
	require.NoError(t, err)

	record := storetest.Record(t)
	id, err := store.Save(ctx, record)
	require.NoError(t, err)
	require.NoError(t, store.Close())

	reopened, err := sqlite.New(ctx, path, 1, zap.NewNop())
	require.NoError(t, err)

	defer func() { _ = reopened.Close() }()

	history, err := reopened.ListBySubjectID(ctx, record.SubjectID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	require.Equal(t, id, history[0].ID)
	require.Equal(t, record.Reason, history[0].Reason)
}
