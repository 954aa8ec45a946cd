package artifact

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/auditflow/auditflow/internal/metrics"
	"github.com/auditflow/auditflow/types"
)

func TestInstrumentedStoreDelegatesAndRecords(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector("test", reg, nil)
	store := NewInstrumentedStore(NewMemoryStore(), "memory", collector)

	ctx := context.Background()
	msg := types.NewMessage(types.NewSchema("raw", "1.0.0"), map[string]any{"k": "v"})

	require.NoError(t, store.Save(ctx, "run-1", "a", msg))
	got, err := store.Get(ctx, "run-1", "a")
	require.NoError(t, err)
	assert.Equal(t, msg.Content, got.Content)

	_, err = store.Get(ctx, "run-1", "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.SaveJSON(ctx, "run-1", "run", map[string]any{"status": "running"}))
	runs, err := store.ListRuns(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"run-1"}, runs)

	// Two counter families have samples: save/get/save_json/list_runs
	// operations plus their duration histograms.
	families, err := reg.Gather()
	require.NoError(t, err)

	var opSamples int
	for _, mf := range families {
		if mf.GetName() == "test_store_operations_total" {
			opSamples = len(mf.GetMetric())
		}
	}
	// save ok, get ok, get error, save_json ok, list_runs ok
	assert.Equal(t, 5, opSamples)
}

func TestInstrumentedStoreSatisfiesSuite(t *testing.T) {
	t.Parallel()

	runStoreSuite(t, func(t *testing.T) Store {
		collector := metrics.NewCollector("suite", prometheus.NewRegistry(), nil)
		return NewInstrumentedStore(NewMemoryStore(), "memory", collector)
	})
}
