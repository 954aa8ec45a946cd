// Package artifact provides run-scoped, keyed persistence for pipeline
// messages. Every operation is addressed by (run ID, key), which isolates
// concurrent runs from each other without any coordination between them.
//
// Backends are pluggable: an in-memory map for tests and short single-process
// runs, a local filesystem layout for post-hoc inspection, and Redis and
// MongoDB backends for shared or remote storage. All backends are safe for
// concurrent use by multiple workers.
package artifact

import (
	"context"
	"errors"

	"github.com/auditflow/auditflow/types"
)

// ErrNotFound is returned by Get/GetJSON when no artifact exists under the
// requested (run ID, key) pair. Match with errors.Is.
var ErrNotFound = errors.New("artifact not found")

// Store is the run-scoped artifact store boundary.
//
// Keys are written once per run by the owning step; concurrent saves to the
// same key are a caller error but must not corrupt storage. Operations on
// different keys must not serialize against each other.
//
// Keys may contain forward slashes for hierarchical grouping
// (e.g. "artifacts/findings"). The JSON side-channel (SaveJSON/GetJSON)
// stores system metadata such as run manifests alongside artifacts.
type Store interface {
	// Save stores a message under (runID, key) with upsert semantics.
	Save(ctx context.Context, runID, key string, msg types.Message) error

	// Get retrieves the message stored under (runID, key).
	// Returns ErrNotFound if absent.
	Get(ctx context.Context, runID, key string) (types.Message, error)

	// Exists reports whether a message is stored under (runID, key).
	Exists(ctx context.Context, runID, key string) (bool, error)

	// Delete removes the message under (runID, key). No-op if absent.
	Delete(ctx context.Context, runID, key string) error

	// ListKeys returns all keys for a run with the given prefix, sorted.
	// An empty prefix returns every key.
	ListKeys(ctx context.Context, runID, prefix string) ([]string, error)

	// Clear removes all data for a run.
	Clear(ctx context.Context, runID string) error

	// SaveJSON stores a raw JSON document under (runID, key), for system
	// metadata like run manifests. Upsert semantics.
	SaveJSON(ctx context.Context, runID, key string, doc map[string]any) error

	// GetJSON retrieves a raw JSON document. Returns ErrNotFound if absent.
	GetJSON(ctx context.Context, runID, key string) (map[string]any, error)

	// ListRuns enumerates run IDs known to the store, sorted.
	ListRuns(ctx context.Context) ([]string, error)
}
