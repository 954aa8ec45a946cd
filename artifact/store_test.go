package artifact

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/auditflow/auditflow/types"
)

// runStoreSuite exercises the Store contract against any backend.
func runStoreSuite(t *testing.T, newStore func(t *testing.T) Store) {
	t.Helper()
	ctx := context.Background()

	t.Run("SaveAndGetRoundTrip", func(t *testing.T) {
		store := newStore(t)
		msg := types.NewMessage(types.NewSchema("finding", "1.0.0"), map[string]any{
			"matches": []any{"email", "phone"},
			"count":   float64(2),
		})
		require.NoError(t, store.Save(ctx, "run-1", "findings", msg))

		got, err := store.Get(ctx, "run-1", "findings")
		require.NoError(t, err)
		assert.Equal(t, msg.ID, got.ID)
		assert.Equal(t, msg.Schema, got.Schema)
		assert.Equal(t, msg.Content, got.Content)
	})

	t.Run("GetMissingReturnsErrNotFound", func(t *testing.T) {
		store := newStore(t)
		_, err := store.Get(ctx, "run-1", "absent")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("RunIsolation", func(t *testing.T) {
		store := newStore(t)
		msg := types.NewMessage(types.NewSchema("source_code", "1.0.0"), map[string]any{"path": "main.go"})
		require.NoError(t, store.Save(ctx, "run-a", "code", msg))

		got, err := store.Get(ctx, "run-a", "code")
		require.NoError(t, err)
		assert.Equal(t, msg.Content, got.Content)

		_, err = store.Get(ctx, "run-b", "code")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("ExistsAndDelete", func(t *testing.T) {
		store := newStore(t)
		msg := types.NewMessage(types.NewSchema("finding", "1.0.0"), map[string]any{"n": float64(1)})

		ok, err := store.Exists(ctx, "run-1", "f")
		require.NoError(t, err)
		assert.False(t, ok)

		require.NoError(t, store.Save(ctx, "run-1", "f", msg))
		ok, err = store.Exists(ctx, "run-1", "f")
		require.NoError(t, err)
		assert.True(t, ok)

		require.NoError(t, store.Delete(ctx, "run-1", "f"))
		ok, err = store.Exists(ctx, "run-1", "f")
		require.NoError(t, err)
		assert.False(t, ok)

		// Deleting an absent key is not an error.
		assert.NoError(t, store.Delete(ctx, "run-1", "f"))
	})

	t.Run("SaveOverwrites", func(t *testing.T) {
		store := newStore(t)
		first := types.NewMessage(types.NewSchema("finding", "1.0.0"), map[string]any{"v": float64(1)})
		second := types.NewMessage(types.NewSchema("finding", "1.0.0"), map[string]any{"v": float64(2)})

		require.NoError(t, store.Save(ctx, "run-1", "f", first))
		require.NoError(t, store.Save(ctx, "run-1", "f", second))

		got, err := store.Get(ctx, "run-1", "f")
		require.NoError(t, err)
		assert.Equal(t, second.Content, got.Content)
	})

	t.Run("ListKeysWithPrefix", func(t *testing.T) {
		store := newStore(t)
		msg := types.NewMessage(types.NewSchema("finding", "1.0.0"), map[string]any{})
		for _, key := range []string{"reports/summary", "reports/detail", "raw"} {
			require.NoError(t, store.Save(ctx, "run-1", key, msg))
		}

		keys, err := store.ListKeys(ctx, "run-1", "reports/")
		require.NoError(t, err)
		assert.Equal(t, []string{"reports/detail", "reports/summary"}, keys)

		all, err := store.ListKeys(ctx, "run-1", "")
		require.NoError(t, err)
		assert.Equal(t, []string{"raw", "reports/detail", "reports/summary"}, all)
	})

	t.Run("Clear", func(t *testing.T) {
		store := newStore(t)
		msg := types.NewMessage(types.NewSchema("finding", "1.0.0"), map[string]any{})
		require.NoError(t, store.Save(ctx, "run-1", "f", msg))
		require.NoError(t, store.Save(ctx, "run-2", "f", msg))

		require.NoError(t, store.Clear(ctx, "run-1"))

		_, err := store.Get(ctx, "run-1", "f")
		assert.ErrorIs(t, err, ErrNotFound)
		_, err = store.Get(ctx, "run-2", "f")
		assert.NoError(t, err)
	})

	t.Run("JSONSideChannel", func(t *testing.T) {
		store := newStore(t)
		doc := map[string]any{
			"run_id": "run-1",
			"status": "completed",
			"counts": map[string]any{"succeeded": float64(3)},
		}
		require.NoError(t, store.SaveJSON(ctx, "run-1", "run", doc))

		got, err := store.GetJSON(ctx, "run-1", "run")
		require.NoError(t, err)
		assert.Equal(t, "completed", got["status"])

		_, err = store.GetJSON(ctx, "run-1", "absent")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("ListRuns", func(t *testing.T) {
		store := newStore(t)
		msg := types.NewMessage(types.NewSchema("finding", "1.0.0"), map[string]any{})
		require.NoError(t, store.Save(ctx, "run-b", "f", msg))
		require.NoError(t, store.Save(ctx, "run-a", "f", msg))

		runs, err := store.ListRuns(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"run-a", "run-b"}, runs)
	})
}
