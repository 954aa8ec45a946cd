package artifact

import (
	"context"
	"time"

	"github.com/auditflow/auditflow/internal/metrics"
	"github.com/auditflow/auditflow/types"
)

// InstrumentedStore decorates a Store with per-operation metrics.
type InstrumentedStore struct {
	inner   Store
	backend string
	metrics *metrics.Collector
}

// NewInstrumentedStore wraps a store. The backend label distinguishes
// backends in the exported metrics ("memory", "filesystem", "redis",
// "mongo").
func NewInstrumentedStore(inner Store, backend string, collector *metrics.Collector) *InstrumentedStore {
	return &InstrumentedStore{inner: inner, backend: backend, metrics: collector}
}

func (s *InstrumentedStore) observe(op string, start time.Time, err error) {
	s.metrics.ObserveStoreOperation(s.backend, op, err, time.Since(start))
}

func (s *InstrumentedStore) Save(ctx context.Context, runID, key string, msg types.Message) error {
	start := time.Now()
	err := s.inner.Save(ctx, runID, key, msg)
	s.observe("save", start, err)
	return err
}

func (s *InstrumentedStore) Get(ctx context.Context, runID, key string) (types.Message, error) {
	start := time.Now()
	msg, err := s.inner.Get(ctx, runID, key)
	s.observe("get", start, err)
	return msg, err
}

func (s *InstrumentedStore) Exists(ctx context.Context, runID, key string) (bool, error) {
	start := time.Now()
	ok, err := s.inner.Exists(ctx, runID, key)
	s.observe("exists", start, err)
	return ok, err
}

func (s *InstrumentedStore) Delete(ctx context.Context, runID, key string) error {
	start := time.Now()
	err := s.inner.Delete(ctx, runID, key)
	s.observe("delete", start, err)
	return err
}

func (s *InstrumentedStore) ListKeys(ctx context.Context, runID, prefix string) ([]string, error) {
	start := time.Now()
	keys, err := s.inner.ListKeys(ctx, runID, prefix)
	s.observe("list_keys", start, err)
	return keys, err
}

func (s *InstrumentedStore) Clear(ctx context.Context, runID string) error {
	start := time.Now()
	err := s.inner.Clear(ctx, runID)
	s.observe("clear", start, err)
	return err
}

func (s *InstrumentedStore) SaveJSON(ctx context.Context, runID, key string, doc map[string]any) error {
	start := time.Now()
	err := s.inner.SaveJSON(ctx, runID, key, doc)
	s.observe("save_json", start, err)
	return err
}

func (s *InstrumentedStore) GetJSON(ctx context.Context, runID, key string) (map[string]any, error) {
	start := time.Now()
	doc, err := s.inner.GetJSON(ctx, runID, key)
	s.observe("get_json", start, err)
	return doc, err
}

func (s *InstrumentedStore) ListRuns(ctx context.Context) ([]string, error) {
	start := time.Now()
	runs, err := s.inner.ListRuns(ctx)
	s.observe("list_runs", start, err)
	return runs, err
}

var _ Store = (*InstrumentedStore)(nil)
