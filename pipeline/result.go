package pipeline

import (
	"sort"
	"time"

	"github.com/auditflow/auditflow/types"
)

// ArtifactStatus is an artifact's terminal state within one run.
type ArtifactStatus string

const (
	// StatusSucceeded means the artifact's component call returned a message.
	StatusSucceeded ArtifactStatus = "succeeded"
	// StatusFailed means the artifact's own component call returned an error.
	StatusFailed ArtifactStatus = "failed"
	// StatusSkipped means the artifact never ran because a non-optional
	// ancestor failed, or the run was cancelled.
	StatusSkipped ArtifactStatus = "skipped"
)

// SkipReasonCancelled marks artifacts skipped by run cancellation rather
// than by a failed ancestor.
const SkipReasonCancelled = "cancelled"

// ArtifactResult is the per-artifact outcome of one run.
type ArtifactResult struct {
	ArtifactID string         `json:"artifact_id"`
	Status     ArtifactStatus `json:"status"`

	// Message is the produced message; only meaningful when succeeded.
	Message types.Message `json:"message,omitempty"`

	// Err is the component failure; only set when failed.
	Err error `json:"-"`

	// SkipReason names the failed ancestor artifact, or
	// SkipReasonCancelled; only set when skipped.
	SkipReason string `json:"skip_reason,omitempty"`

	StartedAt  time.Time `json:"started_at,omitempty"`
	FinishedAt time.Time `json:"finished_at,omitempty"`
}

// Duration returns how long the artifact ran; zero for skipped artifacts.
func (r ArtifactResult) Duration() time.Duration {
	if r.StartedAt.IsZero() || r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// ExecutionResult is the immutable per-run record: exactly one terminal
// status for every artifact in the plan. It is the sole source of truth for
// what happened, consumed by exporters and the CLI.
type ExecutionResult struct {
	runID        string
	pipelineName string
	startedAt    time.Time
	finishedAt   time.Time
	results      map[string]ArtifactResult
	outputIDs    []string
}

func newExecutionResult(runID, pipelineName string, startedAt, finishedAt time.Time, results map[string]ArtifactResult, outputIDs []string) *ExecutionResult {
	sort.Strings(outputIDs)
	return &ExecutionResult{
		runID:        runID,
		pipelineName: pipelineName,
		startedAt:    startedAt,
		finishedAt:   finishedAt,
		results:      results,
		outputIDs:    outputIDs,
	}
}

// RunID returns the unique run identifier scoping this run's artifacts.
func (r *ExecutionResult) RunID() string { return r.runID }

// PipelineName returns the name of the executed pipeline.
func (r *ExecutionResult) PipelineName() string { return r.pipelineName }

// StartedAt returns when the run began.
func (r *ExecutionResult) StartedAt() time.Time { return r.startedAt }

// FinishedAt returns when the run completed.
func (r *ExecutionResult) FinishedAt() time.Time { return r.finishedAt }

// Result returns the outcome for one artifact.
func (r *ExecutionResult) Result(artifactID string) (ArtifactResult, bool) {
	res, ok := r.results[artifactID]
	return res, ok
}

// Results returns a copy of every artifact outcome keyed by artifact ID.
func (r *ExecutionResult) Results() map[string]ArtifactResult {
	out := make(map[string]ArtifactResult, len(r.results))
	for id, res := range r.results {
		out[id] = res
	}
	return out
}

// ArtifactIDs returns every accounted artifact ID, sorted.
func (r *ExecutionResult) ArtifactIDs() []string {
	ids := make([]string, 0, len(r.results))
	for id := range r.results {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (r *ExecutionResult) withStatus(status ArtifactStatus) []string {
	var ids []string
	for id, res := range r.results {
		if res.Status == status {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// Succeeded returns the IDs of artifacts that succeeded, sorted.
func (r *ExecutionResult) Succeeded() []string { return r.withStatus(StatusSucceeded) }

// Failed returns the IDs of artifacts that failed, sorted.
func (r *ExecutionResult) Failed() []string { return r.withStatus(StatusFailed) }

// Skipped returns the IDs of artifacts that were skipped, sorted.
func (r *ExecutionResult) Skipped() []string { return r.withStatus(StatusSkipped) }

// ListOutputs returns the IDs of artifacts flagged output, sorted.
func (r *ExecutionResult) ListOutputs() []string {
	out := make([]string, len(r.outputIDs))
	copy(out, r.outputIDs)
	return out
}

// Success reports whether every artifact in the run succeeded.
func (r *ExecutionResult) Success() bool {
	for _, res := range r.results {
		if res.Status != StatusSucceeded {
			return false
		}
	}
	return true
}
