package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/auditflow/auditflow/artifact"
	"github.com/auditflow/auditflow/internal/metrics"
	"github.com/auditflow/auditflow/types"
)

// ExecutorConfig holds process-level executor settings. Per-pipeline
// settings in the definition's config block take precedence where both
// exist.
type ExecutorConfig struct {
	// MaxConcurrency bounds concurrent artifact work. Defaults to 4.
	MaxConcurrency int
	// DispatchPerSecond rate-limits component invocations, for API-bound
	// analysers. Zero disables the limiter.
	DispatchPerSecond float64
	// Metrics receives per-run and per-artifact observations. Optional.
	Metrics *metrics.Collector
}

// DAGExecutor runs execution plans. A single coordinator goroutine owns all
// DAG state transitions; artifact work fans out to a bounded set of workers
// and results fan back in over a channel, so the graph is never mutated
// concurrently.
type DAGExecutor struct {
	store          artifact.Store
	logger         *zap.Logger
	metrics        *metrics.Collector
	tracer         trace.Tracer
	maxConcurrency int
	limiter        *rate.Limiter
}

// NewDAGExecutor creates an executor persisting artifacts to the given store.
func NewDAGExecutor(store artifact.Store, config ExecutorConfig, logger *zap.Logger) *DAGExecutor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.MaxConcurrency <= 0 {
		config.MaxConcurrency = 4
	}
	var limiter *rate.Limiter
	if config.DispatchPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(config.DispatchPerSecond), 1)
	}
	return &DAGExecutor{
		store:          store,
		logger:         logger.With(zap.String("component", "dag_executor")),
		metrics:        config.Metrics,
		tracer:         otel.Tracer("auditflow/pipeline"),
		maxConcurrency: config.MaxConcurrency,
		limiter:        limiter,
	}
}

// Execute runs a plan to completion and returns the per-artifact accounting.
//
// Component failures never surface as the returned error: they are recorded
// as failed artifacts, and their non-optional transitive dependents are
// marked skipped with a reason naming the failed ancestor. The returned
// error is reserved for caller mistakes (nil plan).
//
// Cancellation stops dispatching new batches, waits for in-flight work, and
// marks everything not yet terminal as skipped with reason "cancelled". A
// message is persisted only after its producing call returned, so no torn
// message ever reaches the store.
func (e *DAGExecutor) Execute(ctx context.Context, plan *ExecutionPlan) (*ExecutionResult, error) {
	if plan == nil {
		return nil, errors.New("plan cannot be nil")
	}

	runID := uuid.NewString()
	startedAt := time.Now()

	if timeout := plan.Definition().Config.Timeout; timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	concurrency := e.maxConcurrency
	if c := plan.Definition().Config.MaxConcurrency; c > 0 {
		concurrency = c
	}

	ctx, span := e.tracer.Start(ctx, "pipeline.execute",
		trace.WithAttributes(
			attribute.String("pipeline.name", plan.Name()),
			attribute.String("run.id", runID),
			attribute.Int("pipeline.artifacts", len(plan.ArtifactIDs())),
		))
	defer span.End()

	e.logger.Info("starting pipeline run",
		zap.String("pipeline", plan.Name()),
		zap.String("run_id", runID),
		zap.Int("artifacts", len(plan.ArtifactIDs())),
		zap.Int("max_concurrency", concurrency),
	)
	e.saveRunMetadata(ctx, runID, plan, startedAt, nil)

	dag := plan.NewDAG()
	results := make(map[string]ArtifactResult, dag.Size())

	for dag.Remaining() > 0 {
		if ctx.Err() != nil {
			e.skipRemaining(dag, results)
			break
		}

		ready := dag.ReadySet()
		if len(ready) == 0 {
			// Unreachable for a validated acyclic graph; bail out rather
			// than spin if an invariant is ever broken.
			e.logger.Error("no ready artifacts with work remaining",
				zap.String("run_id", runID),
				zap.Int("remaining", dag.Remaining()),
			)
			e.skipRemaining(dag, results)
			break
		}

		batch := e.partitionReady(plan, dag, ready, results)
		if len(batch) == 0 {
			// Skip-only iterations re-enter the loop so the dependents
			// of freshly skipped artifacts are evaluated next.
			continue
		}

		e.runBatch(ctx, plan, dag, runID, batch, results, concurrency)
	}

	finishedAt := time.Now()
	var outputIDs []string
	for _, id := range plan.ArtifactIDs() {
		step, _ := plan.Step(id)
		if step.Definition.Output {
			outputIDs = append(outputIDs, id)
		}
	}
	result := newExecutionResult(runID, plan.Name(), startedAt, finishedAt, results, outputIDs)
	e.saveRunMetadata(ctx, runID, plan, startedAt, result)

	if e.metrics != nil {
		e.metrics.ObserveRun(plan.Name(), result.Success(), finishedAt.Sub(startedAt))
	}
	e.logger.Info("pipeline run finished",
		zap.String("run_id", runID),
		zap.Int("succeeded", len(result.Succeeded())),
		zap.Int("failed", len(result.Failed())),
		zap.Int("skipped", len(result.Skipped())),
		zap.Duration("duration", finishedAt.Sub(startedAt)),
	)
	return result, nil
}

// partitionReady fetches the ready frontier, marks artifacts blocked by a
// failed or skipped non-optional ancestor as skipped (and done, so their
// dependents are evaluated next iteration), and returns the dispatchable
// remainder.
func (e *DAGExecutor) partitionReady(plan *ExecutionPlan, dag *ExecutionDAG, ready []string, results map[string]ArtifactResult) []string {
	var batch []string
	for _, id := range ready {
		if ancestor := blockingAncestor(plan, dag, results, id); ancestor != "" {
			results[id] = ArtifactResult{
				ArtifactID: id,
				Status:     StatusSkipped,
				SkipReason: ancestor,
			}
			dag.MarkDone(id)
			e.logger.Warn("artifact skipped",
				zap.String("artifact_id", id),
				zap.String("failed_ancestor", ancestor),
			)
			continue
		}
		batch = append(batch, id)
	}
	return batch
}

// blockingAncestor returns the ID of the failed ancestor that prevents id
// from running, or "" if id may run. A direct dependency blocks when it did
// not succeed and is not marked optional; for a skipped dependency the
// original failed ancestor is carried through so every skip reason names a
// root cause.
func blockingAncestor(plan *ExecutionPlan, dag *ExecutionDAG, results map[string]ArtifactResult, id string) string {
	for _, dep := range dag.Dependencies(id) {
		res, ok := results[dep]
		if !ok || res.Status == StatusSucceeded {
			continue
		}
		step, _ := plan.Step(dep)
		if step.Definition.Optional {
			continue
		}
		if res.Status == StatusSkipped && res.SkipReason != "" {
			return res.SkipReason
		}
		return dep
	}
	return ""
}

// runBatch dispatches one ready batch to bounded workers and folds the
// results back into the coordinator's state.
func (e *DAGExecutor) runBatch(ctx context.Context, plan *ExecutionPlan, dag *ExecutionDAG, runID string, batch []string, results map[string]ArtifactResult, concurrency int) {
	resCh := make(chan ArtifactResult, len(batch))

	var g errgroup.Group
	g.SetLimit(concurrency)
	for _, id := range batch {
		g.Go(func() error {
			resCh <- e.runArtifact(ctx, plan, runID, id)
			return nil
		})
	}
	_ = g.Wait() // workers never return errors
	close(resCh)

	for res := range resCh {
		results[res.ArtifactID] = res
		dag.MarkDone(res.ArtifactID)
		if e.metrics != nil {
			e.metrics.ObserveArtifact(plan.Name(), string(res.Status), res.Duration())
		}
	}
}

// runArtifact executes one artifact on a worker: invoke the connector or
// analyser, verify the produced schema, and persist the message when the
// artifact is an output or has dependents.
func (e *DAGExecutor) runArtifact(ctx context.Context, plan *ExecutionPlan, runID, id string) ArtifactResult {
	step, _ := plan.Step(id)

	ctx, span := e.tracer.Start(ctx, "artifact.execute",
		trace.WithAttributes(
			attribute.String("artifact.id", id),
			attribute.String("artifact.schema", step.OutputSchema.String()),
		))
	defer span.End()

	result := ArtifactResult{ArtifactID: id, StartedAt: time.Now()}

	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			return e.failArtifact(result, span, err)
		}
	}

	var msg types.Message
	var err error
	if step.Definition.IsSource() {
		msg, err = step.Connector.Extract(ctx, step.OutputSchema)
		if err != nil {
			err = types.NewError(types.ErrConnectorFailed, fmt.Sprintf("connector %q", step.Definition.Source.Type)).WithCause(err)
		}
	} else {
		var inputs []types.Message
		inputs, err = e.gatherInputs(ctx, plan, runID, step)
		if err == nil {
			msg, err = step.Analyser.Process(ctx, inputs, step.OutputSchema)
			if err != nil {
				err = types.NewError(types.ErrAnalyserFailed, fmt.Sprintf("analyser %q", step.Definition.Transform.Type)).WithCause(err)
			}
		}
	}
	if err != nil {
		return e.failArtifact(result, span, err)
	}

	if !msg.Schema.Equal(step.OutputSchema) {
		return e.failArtifact(result, span, types.NewError(types.ErrExecutionFailed,
			fmt.Sprintf("component produced schema %s, plan resolved %s", msg.Schema, step.OutputSchema)))
	}

	if step.Definition.Output || plan.hasDependents(id) {
		if err := e.store.Save(ctx, runID, id, msg); err != nil {
			return e.failArtifact(result, span, types.NewError(types.ErrStoreUnavailable,
				fmt.Sprintf("persist artifact %q", id)).WithCause(err))
		}
	}

	result.Status = StatusSucceeded
	result.Message = msg
	result.FinishedAt = time.Now()
	e.logger.Debug("artifact succeeded",
		zap.String("artifact_id", id),
		zap.String("run_id", runID),
		zap.Duration("duration", result.Duration()),
	)
	return result
}

// gatherInputs loads the input messages for a derived artifact in declared
// order. Inputs whose optional producer failed are simply absent from the
// store and are omitted; the analyser contract owns the partial-input policy.
func (e *DAGExecutor) gatherInputs(ctx context.Context, plan *ExecutionPlan, runID string, step ResolvedStep) ([]types.Message, error) {
	inputs := make([]types.Message, 0, len(step.Definition.Inputs))
	for _, inputID := range step.Definition.Inputs {
		msg, err := e.store.Get(ctx, runID, inputID)
		if errors.Is(err, artifact.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, types.NewError(types.ErrStoreUnavailable,
				fmt.Sprintf("load input %q", inputID)).WithCause(err)
		}
		inputs = append(inputs, msg)
	}
	return inputs, nil
}

func (e *DAGExecutor) failArtifact(result ArtifactResult, span trace.Span, err error) ArtifactResult {
	result.Status = StatusFailed
	result.Err = err
	result.FinishedAt = time.Now()
	span.RecordError(err)
	e.logger.Error("artifact failed",
		zap.String("artifact_id", result.ArtifactID),
		zap.Error(err),
	)
	return result
}

// skipRemaining marks every artifact without a terminal status as skipped
// due to cancellation.
func (e *DAGExecutor) skipRemaining(dag *ExecutionDAG, results map[string]ArtifactResult) {
	for id := range dag.deps {
		if _, done := results[id]; done {
			continue
		}
		results[id] = ArtifactResult{
			ArtifactID: id,
			Status:     StatusSkipped,
			SkipReason: SkipReasonCancelled,
		}
		dag.MarkDone(id)
	}
}

// saveRunMetadata writes the run manifest through the store's JSON
// side-channel. Failures are logged, never fatal to the run.
func (e *DAGExecutor) saveRunMetadata(ctx context.Context, runID string, plan *ExecutionPlan, startedAt time.Time, result *ExecutionResult) {
	// The final manifest must still be written after cancellation.
	ctx = context.WithoutCancel(ctx)
	doc := map[string]any{
		"run_id":     runID,
		"pipeline":   plan.Name(),
		"started_at": startedAt.Format(time.RFC3339Nano),
		"status":     "running",
	}
	if result != nil {
		doc["status"] = "completed"
		doc["finished_at"] = result.FinishedAt().Format(time.RFC3339Nano)
		doc["counts"] = map[string]any{
			"succeeded": len(result.Succeeded()),
			"failed":    len(result.Failed()),
			"skipped":   len(result.Skipped()),
		}
	}
	if err := e.store.SaveJSON(ctx, runID, "run", doc); err != nil {
		e.logger.Warn("failed to save run metadata",
			zap.String("run_id", runID),
			zap.Error(err),
		)
	}
}
