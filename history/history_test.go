package history

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nvr-ai/go-pantry/inventory"
)

func openStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "history.db")
	store, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store, path
}

func TestOpenCreatesDatabase(t *testing.T) {
	_, path := openStore(t)

	_, err := os.Stat(path)
	assert.NoError(t, err)
}

func TestRecordAndRecent(t *testing.T) {
	store, _ := openStore(t)
	ctx := context.Background()

	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	tick := 0
	store.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Minute)
	}

	require.NoError(t, store.Record(ctx, "apple: 3", []inventory.Row{
		{Label: "apple", Detected: 3, Quantity: "3"},
		{Label: "banana", Detected: 1, Quantity: "0"},
	}))
	require.NoError(t, store.Record(ctx, "milk: 2", []inventory.Row{
		{Label: "milk", Detected: 1, Quantity: "2"},
	}))

	n, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	exports, err := store.Recent(ctx, 0)
	require.NoError(t, err)
	require.Len(t, exports, 2)

	assert.Equal(t, "milk: 2", exports[0].Text)
	assert.Equal(t, 2, exports[0].Items)
	assert.True(t, exports[0].CreatedAt.Equal(base.Add(2*time.Minute)))

	assert.Equal(t, "apple: 3", exports[1].Text)
	assert.Equal(t, 3, exports[1].Items)
	require.Len(t, exports[1].Rows, 1, "zero quantity rows are not archived")
	assert.Equal(t, "apple", exports[1].Rows[0].Label)
}

func TestRecentLimit(t *testing.T) {
	store, _ := openStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, store.Record(ctx, "apple: 1", []inventory.Row{{Label: "apple", Detected: 1, Quantity: "1"}}))
	}

	exports, err := store.Recent(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, exports, 2)
	assert.Greater(t, exports[0].ID, exports[1].ID)
}

func TestReopenKeepsExports(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	ctx := context.Background()

	store, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, store.Record(ctx, "apple: 1", []inventory.Row{{Label: "apple", Detected: 1, Quantity: "1"}}))
	require.NoError(t, store.Close())

	store, err = Open(path)
	require.NoError(t, err)
	defer store.Close()

	n, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
