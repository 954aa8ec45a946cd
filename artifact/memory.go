package artifact

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/auditflow/auditflow/types"
)

// MemoryStore is an ephemeral in-memory Store for tests and short
// single-process runs. Buckets are created per run so operations on
// different runs (and different keys within a run) do not contend on a
// single store-wide lock.
type MemoryStore struct {
	mu   sync.RWMutex
	runs map[string]*memoryBucket
}

type memoryBucket struct {
	mu        sync.RWMutex
	artifacts map[string]types.Message
	docs      map[string]map[string]any
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{runs: make(map[string]*memoryBucket)}
}

func (s *MemoryStore) bucket(runID string, create bool) *memoryBucket {
	s.mu.RLock()
	b := s.runs[runID]
	s.mu.RUnlock()
	if b != nil || !create {
		return b
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if b = s.runs[runID]; b == nil {
		b = &memoryBucket{
			artifacts: make(map[string]types.Message),
			docs:      make(map[string]map[string]any),
		}
		s.runs[runID] = b
	}
	return b
}

// Save stores a message under (runID, key).
func (s *MemoryStore) Save(_ context.Context, runID, key string, msg types.Message) error {
	b := s.bucket(runID, true)
	b.mu.Lock()
	b.artifacts[key] = msg
	b.mu.Unlock()
	return nil
}

// Get retrieves the message stored under (runID, key).
func (s *MemoryStore) Get(_ context.Context, runID, key string) (types.Message, error) {
	b := s.bucket(runID, false)
	if b == nil {
		return types.Message{}, ErrNotFound
	}
	b.mu.RLock()
	msg, ok := b.artifacts[key]
	b.mu.RUnlock()
	if !ok {
		return types.Message{}, ErrNotFound
	}
	return msg, nil
}

// Exists reports whether a message is stored under (runID, key).
func (s *MemoryStore) Exists(_ context.Context, runID, key string) (bool, error) {
	b := s.bucket(runID, false)
	if b == nil {
		return false, nil
	}
	b.mu.RLock()
	_, ok := b.artifacts[key]
	b.mu.RUnlock()
	return ok, nil
}

// Delete removes the message under (runID, key).
func (s *MemoryStore) Delete(_ context.Context, runID, key string) error {
	b := s.bucket(runID, false)
	if b == nil {
		return nil
	}
	b.mu.Lock()
	delete(b.artifacts, key)
	b.mu.Unlock()
	return nil
}

// ListKeys returns all artifact keys for a run with the given prefix.
func (s *MemoryStore) ListKeys(_ context.Context, runID, prefix string) ([]string, error) {
	b := s.bucket(runID, false)
	if b == nil {
		return nil, nil
	}
	b.mu.RLock()
	keys := make([]string, 0, len(b.artifacts))
	for k := range b.artifacts {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	b.mu.RUnlock()
	sort.Strings(keys)
	return keys, nil
}

// Clear removes all data for a run.
func (s *MemoryStore) Clear(_ context.Context, runID string) error {
	s.mu.Lock()
	delete(s.runs, runID)
	s.mu.Unlock()
	return nil
}

// SaveJSON stores a raw JSON document under (runID, key).
func (s *MemoryStore) SaveJSON(_ context.Context, runID, key string, doc map[string]any) error {
	b := s.bucket(runID, true)
	b.mu.Lock()
	b.docs[key] = doc
	b.mu.Unlock()
	return nil
}

// GetJSON retrieves a raw JSON document stored under (runID, key).
func (s *MemoryStore) GetJSON(_ context.Context, runID, key string) (map[string]any, error) {
	b := s.bucket(runID, false)
	if b == nil {
		return nil, ErrNotFound
	}
	b.mu.RLock()
	doc, ok := b.docs[key]
	b.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return doc, nil
}

// ListRuns enumerates run IDs known to the store.
func (s *MemoryStore) ListRuns(_ context.Context) ([]string, error) {
	s.mu.RLock()
	ids := make([]string, 0, len(s.runs))
	for id := range s.runs {
		ids = append(ids, id)
	}
	s.mu.RUnlock()
	sort.Strings(ids)
	return ids, nil
}

var _ Store = (*MemoryStore)(nil)
