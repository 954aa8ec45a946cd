package exporters

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/auditflow/auditflow/types"
)

// Exporter serializes an export document to a writer.
type Exporter interface {
	// Name identifies the format, matching the file extension it serves.
	Name() string
	Export(ctx context.Context, doc *Document, w io.Writer) error
}

// JSONExporter writes the document as indented JSON.
type JSONExporter struct{}

func (JSONExporter) Name() string { return "json" }

func (JSONExporter) Export(ctx context.Context, doc *Document, w io.Writer) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode export document: %w", err)
	}
	return nil
}

// ForPath selects an exporter by the target file's extension.
func ForPath(path string) (Exporter, error) {
	switch ext := filepath.Ext(path); ext {
	case ".json":
		return JSONExporter{}, nil
	default:
		return nil, types.NewError(types.ErrInvalidConfig,
			fmt.Sprintf("no exporter for extension %q (supported: .json)", ext))
	}
}

// WriteFile exports the document to path, choosing the format from the
// extension. The file appears atomically via a temp file and rename.
func WriteFile(ctx context.Context, doc *Document, path string) error {
	exp, err := ForPath(path)
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create export directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".export-*")
	if err != nil {
		return fmt.Errorf("create temp export file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := exp.Export(ctx, doc, tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp export file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename export file: %w", err)
	}
	return nil
}

var _ Exporter = JSONExporter{}
