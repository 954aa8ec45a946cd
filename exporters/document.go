// Package exporters turns an execution result into the export document
// consumed by downstream compliance tooling, and writes it in the format
// selected by the target file extension.
package exporters

import (
	"context"
	"fmt"
	"time"

	"github.com/auditflow/auditflow/artifact"
	"github.com/auditflow/auditflow/pipeline"
)

// FormatVersion identifies the export document layout.
const FormatVersion = "2.0.0"

// Run statuses for the export document. A run with any failed artifact is
// failed; skips without failures make it partial.
const (
	RunCompleted = "completed"
	RunPartial   = "partial"
	RunFailed    = "failed"
)

// SchemaInfo identifies an output artifact's schema.
type SchemaInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// OutputEntry is one artifact marked for output, with its produced content.
type OutputEntry struct {
	ArtifactID      string         `json:"artifact_id"`
	DurationSeconds float64        `json:"duration_seconds"`
	Schema          *SchemaInfo    `json:"schema,omitempty"`
	Content         map[string]any `json:"content,omitempty"`
}

// ErrorEntry records a failed artifact and its error.
type ErrorEntry struct {
	ArtifactID string `json:"artifact_id"`
	Error      string `json:"error"`
}

// SkippedEntry records a skipped artifact and the failed ancestor (or
// cancellation) that caused the skip.
type SkippedEntry struct {
	ArtifactID string `json:"artifact_id"`
	Reason     string `json:"reason"`
}

// RunInfo describes the run itself.
type RunInfo struct {
	ID              string    `json:"id"`
	Timestamp       time.Time `json:"timestamp"`
	DurationSeconds float64   `json:"duration_seconds"`
	Status          string    `json:"status"`
}

// PipelineInfo carries the pipeline definition's metadata.
type PipelineInfo struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Contact     string `json:"contact,omitempty"`
}

// SummaryInfo is the per-status artifact tally.
type SummaryInfo struct {
	Total     int `json:"total"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
}

// Document is the export format shared by all exporters.
type Document struct {
	FormatVersion string         `json:"format_version"`
	Run           RunInfo        `json:"run"`
	Pipeline      PipelineInfo   `json:"pipeline"`
	Summary       SummaryInfo    `json:"summary"`
	Outputs       []OutputEntry  `json:"outputs"`
	Errors        []ErrorEntry   `json:"errors"`
	Skipped       []SkippedEntry `json:"skipped"`
}

// BuildDocument assembles the export document for one run. Output artifact
// content is loaded from the store, which is where the executor persisted
// it.
func BuildDocument(ctx context.Context, result *pipeline.ExecutionResult, plan *pipeline.ExecutionPlan, store artifact.Store) (*Document, error) {
	def := plan.Definition()

	outputs := make([]OutputEntry, 0, len(result.ListOutputs()))
	for _, id := range result.ListOutputs() {
		res, ok := result.Result(id)
		if !ok || res.Status != pipeline.StatusSucceeded {
			continue
		}
		msg, err := store.Get(ctx, result.RunID(), id)
		if err != nil {
			return nil, fmt.Errorf("load output artifact %s: %w", id, err)
		}
		entry := OutputEntry{
			ArtifactID:      id,
			DurationSeconds: res.Duration().Seconds(),
			Content:         msg.Content,
		}
		if step, ok := plan.Step(id); ok {
			entry.Schema = &SchemaInfo{Name: step.OutputSchema.Name, Version: step.OutputSchema.Version}
		}
		outputs = append(outputs, entry)
	}

	errorEntries := make([]ErrorEntry, 0, len(result.Failed()))
	for _, id := range result.Failed() {
		res, _ := result.Result(id)
		text := "unknown error"
		if res.Err != nil {
			text = res.Err.Error()
		}
		errorEntries = append(errorEntries, ErrorEntry{ArtifactID: id, Error: text})
	}

	skipped := make([]SkippedEntry, 0, len(result.Skipped()))
	for _, id := range result.Skipped() {
		res, _ := result.Result(id)
		skipped = append(skipped, SkippedEntry{ArtifactID: id, Reason: res.SkipReason})
	}

	return &Document{
		FormatVersion: FormatVersion,
		Run: RunInfo{
			ID:              result.RunID(),
			Timestamp:       result.StartedAt(),
			DurationSeconds: result.FinishedAt().Sub(result.StartedAt()).Seconds(),
			Status:          runStatus(result),
		},
		Pipeline: PipelineInfo{
			Name:        def.Name,
			Description: def.Description,
			Contact:     def.Contact,
		},
		Summary: SummaryInfo{
			Total:     len(result.ArtifactIDs()),
			Succeeded: len(result.Succeeded()),
			Failed:    len(result.Failed()),
			Skipped:   len(result.Skipped()),
		},
		Outputs: outputs,
		Errors:  errorEntries,
		Skipped: skipped,
	}, nil
}

func runStatus(result *pipeline.ExecutionResult) string {
	switch {
	case len(result.Failed()) > 0:
		return RunFailed
	case len(result.Skipped()) > 0:
		return RunPartial
	default:
		return RunCompleted
	}
}
