package artifact

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/auditflow/auditflow/types"
)

func TestMemoryStoreContract(t *testing.T) {
	t.Parallel()
	runStoreSuite(t, func(t *testing.T) Store {
		return NewMemoryStore()
	})
}

func TestMemoryStoreConcurrentRuns(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			runID := fmt.Sprintf("run-%d", i)
			for j := 0; j < 20; j++ {
				key := fmt.Sprintf("artifact-%d", j)
				msg := types.NewMessage(types.NewSchema("finding", "1.0.0"), map[string]any{"n": j})
				if err := store.Save(ctx, runID, key, msg); err != nil {
					t.Error(err)
					return
				}
				if _, err := store.Get(ctx, runID, key); err != nil {
					t.Error(err)
					return
				}
			}
		}(i)
	}
	wg.Wait()

	for i := 0; i < 10; i++ {
		keys, err := store.ListKeys(ctx, fmt.Sprintf("run-%d", i), "")
		require.NoError(t, err)
		assert.Len(t, keys, 20)
	}
}
