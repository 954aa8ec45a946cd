package artifact

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/auditflow/auditflow/types"
)

// FilesystemStore persists artifacts as one JSON document per key, enabling
// post-hoc inspection without re-running a pipeline.
//
// Layout:
//
//	{root}/{run_id}/
//	    artifacts/{key}.json
//	    _system/{key}.json
type FilesystemStore struct {
	root   string
	logger *zap.Logger
}

const (
	artifactsPrefix = "artifacts"
	systemPrefix    = "_system"
)

// NewFilesystemStore creates a filesystem store rooted at the given
// directory. The directory is created lazily on first save.
func NewFilesystemStore(root string, logger *zap.Logger) *FilesystemStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FilesystemStore{
		root:   root,
		logger: logger.With(zap.String("component", "fs_store")),
	}
}

// Root returns the store's root directory.
func (s *FilesystemStore) Root() string {
	return s.root
}

// validateKey rejects keys that would escape the run directory.
func validateKey(key string) error {
	if key == "" {
		return fmt.Errorf("invalid key: empty")
	}
	if strings.Contains(key, "..") {
		return fmt.Errorf("invalid key %q: path traversal sequences are not allowed", key)
	}
	if strings.HasPrefix(key, "/") {
		return fmt.Errorf("invalid key %q: absolute paths are not allowed", key)
	}
	return nil
}

func (s *FilesystemStore) runDir(runID string) string {
	return filepath.Join(s.root, runID)
}

func (s *FilesystemStore) keyPath(runID, prefix, key string) (string, error) {
	if err := validateKey(key); err != nil {
		return "", err
	}
	return filepath.Join(s.runDir(runID), prefix, filepath.FromSlash(key)+".json"), nil
}

// writeJSON writes the document to a temp file and renames it into place so
// a crashed or cancelled run never leaves a torn document behind.
func writeJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create artifact dir: %w", err)
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode artifact: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close temp file: %w", err)
	}
	return os.Rename(tmp.Name(), path)
}

// Save stores a message as {root}/{runID}/artifacts/{key}.json.
func (s *FilesystemStore) Save(_ context.Context, runID, key string, msg types.Message) error {
	path, err := s.keyPath(runID, artifactsPrefix, key)
	if err != nil {
		return err
	}
	if err := writeJSON(path, msg); err != nil {
		return err
	}
	s.logger.Debug("artifact saved",
		zap.String("run_id", runID),
		zap.String("key", key),
	)
	return nil
}

// Get retrieves the message stored under (runID, key).
func (s *FilesystemStore) Get(_ context.Context, runID, key string) (types.Message, error) {
	path, err := s.keyPath(runID, artifactsPrefix, key)
	if err != nil {
		return types.Message{}, err
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return types.Message{}, fmt.Errorf("artifact %q in run %q: %w", key, runID, ErrNotFound)
	}
	if err != nil {
		return types.Message{}, fmt.Errorf("read artifact: %w", err)
	}
	return types.UnmarshalMessage(data)
}

// Exists reports whether a message is stored under (runID, key).
func (s *FilesystemStore) Exists(_ context.Context, runID, key string) (bool, error) {
	path, err := s.keyPath(runID, artifactsPrefix, key)
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return false, nil
	} else if err != nil {
		return false, err
	}
	return true, nil
}

// Delete removes the message under (runID, key). No-op if absent.
func (s *FilesystemStore) Delete(_ context.Context, runID, key string) error {
	path, err := s.keyPath(runID, artifactsPrefix, key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete artifact: %w", err)
	}
	return nil
}

// ListKeys returns all artifact keys for a run with the given prefix.
func (s *FilesystemStore) ListKeys(_ context.Context, runID, prefix string) ([]string, error) {
	dir := filepath.Join(s.runDir(runID), artifactsPrefix)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return nil, nil
	}

	var keys []string
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() || !strings.HasSuffix(path, ".json") {
			return err
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(strings.TrimSuffix(rel, ".json"))
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list artifacts: %w", err)
	}
	sort.Strings(keys)
	return keys, nil
}

// Clear removes the whole run directory, artifacts and system metadata.
func (s *FilesystemStore) Clear(_ context.Context, runID string) error {
	return os.RemoveAll(s.runDir(runID))
}

// SaveJSON stores a raw document as {root}/{runID}/_system/{key}.json.
func (s *FilesystemStore) SaveJSON(_ context.Context, runID, key string, doc map[string]any) error {
	path, err := s.keyPath(runID, systemPrefix, key)
	if err != nil {
		return err
	}
	return writeJSON(path, doc)
}

// GetJSON retrieves a raw document stored under (runID, key).
func (s *FilesystemStore) GetJSON(_ context.Context, runID, key string) (map[string]any, error) {
	path, err := s.keyPath(runID, systemPrefix, key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("document %q in run %q: %w", key, runID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read document: %w", err)
	}
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	return doc, nil
}

// ListRuns enumerates run directories under the root.
func (s *FilesystemStore) ListRuns(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	var ids []string
	for _, e := range entries {
		if e.IsDir() {
			ids = append(ids, e.Name())
		}
	}
	sort.Strings(ids)
	return ids, nil
}

var _ Store = (*FilesystemStore)(nil)
