// Package file provides a source connector that reads local files into
// standard input messages for downstream analysis.
package file

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"go.uber.org/zap"

	"github.com/auditflow/auditflow/component"
	"github.com/auditflow/auditflow/types"
)

// TypeName is the component type name used in pipeline definitions.
const TypeName = "file"

// OutputSchema is the schema produced by the connector.
var OutputSchema = types.NewSchema("standard_input", "1.0.0")

// maxFileSize guards against pulling huge binaries into a message.
const maxFileSize = 8 << 20

// Connector reads a file, or every file under a directory matching an
// optional glob pattern, into one standard_input message. Each file becomes
// an entry with its path as locator and its content as text.
type Connector struct {
	path    string
	pattern string
	logger  *zap.Logger
}

// New creates a file connector.
//
// Properties:
//
//	path    string  file or directory to read (required)
//	pattern string  glob applied to file base names under a directory
//	                (optional, defaults to every file)
func New(properties map[string]any, logger *zap.Logger) (*Connector, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	path, ok := properties["path"].(string)
	if !ok || path == "" {
		return nil, types.NewError(types.ErrInvalidConfig, "file connector requires a path property")
	}
	pattern, _ := properties["pattern"].(string)
	if pattern != "" {
		if _, err := filepath.Match(pattern, "probe"); err != nil {
			return nil, types.NewError(types.ErrInvalidConfig,
				fmt.Sprintf("invalid glob pattern %q", pattern)).WithCause(err)
		}
	}
	return &Connector{
		path:    path,
		pattern: pattern,
		logger:  logger.With(zap.String("component", "file_connector")),
	}, nil
}

// Factory adapts New to the registry factory signature.
func Factory(properties map[string]any, logger *zap.Logger) (component.Connector, error) {
	return New(properties, logger)
}

func (c *Connector) Name() string { return TypeName }

func (c *Connector) OutputSchemas() []types.Schema {
	return []types.Schema{OutputSchema}
}

// Extract reads the configured path and returns one message whose content
// lists every file read.
func (c *Connector) Extract(ctx context.Context, outputSchema types.Schema) (types.Message, error) {
	info, err := os.Stat(c.path)
	if err != nil {
		return types.Message{}, fmt.Errorf("stat %s: %w", c.path, err)
	}

	var paths []string
	if info.IsDir() {
		paths, err = c.collect(ctx)
		if err != nil {
			return types.Message{}, err
		}
	} else {
		paths = []string{c.path}
	}

	entries := make([]any, 0, len(paths))
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return types.Message{}, err
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return types.Message{}, fmt.Errorf("read %s: %w", p, err)
		}
		entries = append(entries, map[string]any{
			"locator": p,
			"content": string(data),
		})
	}

	c.logger.Debug("files extracted",
		zap.String("path", c.path),
		zap.Int("count", len(entries)),
	)
	return types.NewMessage(outputSchema, map[string]any{
		"source":  c.path,
		"entries": entries,
	}), nil
}

// collect walks the directory and returns matching regular files, sorted,
// skipping anything over the size guard.
func (c *Connector) collect(ctx context.Context) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(c.path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() {
			return nil
		}
		if c.pattern != "" {
			ok, _ := filepath.Match(c.pattern, d.Name())
			if !ok {
				return nil
			}
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if info.Size() > maxFileSize {
			c.logger.Warn("file exceeds size limit, skipping",
				zap.String("path", p),
				zap.Int64("size", info.Size()),
			)
			return nil
		}
		paths = append(paths, p)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", c.path, err)
	}
	sort.Strings(paths)
	return paths, nil
}

var _ component.Connector = (*Connector)(nil)
