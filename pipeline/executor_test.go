package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/auditflow/auditflow/artifact"
	"github.com/auditflow/auditflow/testutil"
	"github.com/auditflow/auditflow/types"
)

func TestExecutorFanInOrdering(t *testing.T) {
	t.Parallel()

	srcA, srcB, merge, planner := twoSourceRegistry(t)
	plan, err := planner.Plan(fanInDefinition())
	require.NoError(t, err)

	store := artifact.NewMemoryStore()
	exec := NewDAGExecutor(store, ExecutorConfig{MaxConcurrency: 4}, nil)

	result, err := exec.Execute(context.Background(), plan)
	require.NoError(t, err)

	assert.True(t, result.Success())
	assert.Equal(t, []string{"a", "b", "c"}, result.Succeeded())
	assert.Equal(t, []string{"c"}, result.ListOutputs())

	// The dependent never starts before both dependencies finish.
	mergeCalls := merge.Invocations()
	require.Len(t, mergeCalls, 1)
	for _, conn := range []*testutil.MockConnector{srcA, srcB} {
		calls := conn.Invocations()
		require.Len(t, calls, 1)
		assert.False(t, mergeCalls[0].StartedAt.Before(calls[0].FinishedAt))
	}

	// Fan-in passes both input messages.
	received := merge.Received()
	require.Len(t, received, 1)
	assert.Len(t, received[0], 2)

	// Inputs and the flagged output were persisted under the run.
	ctx := context.Background()
	for _, id := range []string{"a", "b", "c"} {
		ok, err := store.Exists(ctx, result.RunID(), id)
		require.NoError(t, err)
		assert.True(t, ok, "artifact %s", id)
	}

	// Run manifest records the final accounting.
	doc, err := store.GetJSON(ctx, result.RunID(), "run")
	require.NoError(t, err)
	assert.Equal(t, "completed", doc["status"])
}

func TestExecutorFailurePropagation(t *testing.T) {
	t.Parallel()

	boom := errors.New("extraction exploded")
	srcA := &testutil.MockConnector{
		TypeName: "src_a",
		Schemas:  []types.Schema{schemaA},
		ExtractFunc: func(context.Context, types.Schema) (types.Message, error) {
			return types.Message{}, boom
		},
	}
	analyse := &testutil.MockAnalyser{
		TypeName: "analyse",
		Combos:   []types.RequirementCombination{{types.NewInputRequirement("schema_a", "1.0.0")}},
		Schemas:  []types.Schema{reportSchema},
	}
	chain := &testutil.MockAnalyser{
		TypeName: "chain",
		Combos:   []types.RequirementCombination{{types.NewInputRequirement("report", "1.0.0")}},
		Schemas:  []types.Schema{types.NewSchema("summary", "1.0.0")},
	}
	reg := testutil.NewRegistry(t, []*testutil.MockConnector{srcA}, []*testutil.MockAnalyser{analyse, chain})
	planner := NewPlanner(reg, nil)

	plan, err := planner.Plan(&Definition{
		Name: "failing",
		Artifacts: map[string]ArtifactDefinition{
			"a": {Source: &ComponentRef{Type: "src_a"}},
			"e": {Inputs: []string{"a"}, Transform: &ComponentRef{Type: "analyse"}},
			"f": {Inputs: []string{"e"}, Transform: &ComponentRef{Type: "chain"}},
		},
	})
	require.NoError(t, err)

	exec := NewDAGExecutor(artifact.NewMemoryStore(), ExecutorConfig{}, nil)
	result, err := exec.Execute(context.Background(), plan)
	require.NoError(t, err)

	resA, _ := result.Result("a")
	assert.Equal(t, StatusFailed, resA.Status)
	require.Error(t, resA.Err)
	assert.ErrorIs(t, resA.Err, boom)
	assert.Equal(t, types.ErrConnectorFailed, types.GetErrorCode(resA.Err))

	// Direct and transitive dependents both reference the root ancestor.
	resE, _ := result.Result("e")
	assert.Equal(t, StatusSkipped, resE.Status)
	assert.Equal(t, "a", resE.SkipReason)

	resF, _ := result.Result("f")
	assert.Equal(t, StatusSkipped, resF.Status)
	assert.Equal(t, "a", resF.SkipReason)

	// The analysers never ran.
	assert.Empty(t, analyse.Invocations())
	assert.Empty(t, chain.Invocations())
}

func TestExecutorOptionalFailureTolerated(t *testing.T) {
	t.Parallel()

	srcA := &testutil.MockConnector{
		TypeName: "src_a",
		Schemas:  []types.Schema{schemaA},
		ExtractFunc: func(context.Context, types.Schema) (types.Message, error) {
			return types.Message{}, errors.New("optional source down")
		},
	}
	srcB := &testutil.MockConnector{TypeName: "src_b", Schemas: []types.Schema{schemaB}}
	merge := &testutil.MockAnalyser{
		TypeName: "merge",
		Combos: []types.RequirementCombination{{
			types.NewInputRequirement("schema_a", "1.0.0"),
			types.NewInputRequirement("schema_b", "1.0.0"),
		}},
		Schemas: []types.Schema{reportSchema},
	}
	reg := testutil.NewRegistry(t, []*testutil.MockConnector{srcA, srcB}, []*testutil.MockAnalyser{merge})
	planner := NewPlanner(reg, nil)

	plan, err := planner.Plan(&Definition{
		Name: "tolerant",
		Artifacts: map[string]ArtifactDefinition{
			"a": {Source: &ComponentRef{Type: "src_a"}, Optional: true},
			"b": {Source: &ComponentRef{Type: "src_b"}},
			"c": {Inputs: []string{"a", "b"}, Transform: &ComponentRef{Type: "merge"}, Output: true},
		},
	})
	require.NoError(t, err)

	exec := NewDAGExecutor(artifact.NewMemoryStore(), ExecutorConfig{}, nil)
	result, err := exec.Execute(context.Background(), plan)
	require.NoError(t, err)

	resC, _ := result.Result("c")
	assert.Equal(t, StatusSucceeded, resC.Status)

	// The analyser ran with the surviving input only.
	received := merge.Received()
	require.Len(t, received, 1)
	require.Len(t, received[0], 1)
	assert.Equal(t, schemaB, received[0][0].Schema)
}

func TestExecutorIndependentArtifactsOverlap(t *testing.T) {
	t.Parallel()

	// Each connector blocks until the other has started; the test only
	// completes if both run simultaneously.
	aStarted := make(chan struct{})
	bStarted := make(chan struct{})
	srcA := &testutil.MockConnector{
		TypeName: "src_a",
		Schemas:  []types.Schema{schemaA},
		ExtractFunc: func(ctx context.Context, schema types.Schema) (types.Message, error) {
			close(aStarted)
			select {
			case <-bStarted:
			case <-time.After(5 * time.Second):
				return types.Message{}, errors.New("peer never started")
			}
			return types.NewMessage(schema, map[string]any{}), nil
		},
	}
	srcB := &testutil.MockConnector{
		TypeName: "src_b",
		Schemas:  []types.Schema{schemaB},
		ExtractFunc: func(ctx context.Context, schema types.Schema) (types.Message, error) {
			close(bStarted)
			select {
			case <-aStarted:
			case <-time.After(5 * time.Second):
				return types.Message{}, errors.New("peer never started")
			}
			return types.NewMessage(schema, map[string]any{}), nil
		},
	}
	reg := testutil.NewRegistry(t, []*testutil.MockConnector{srcA, srcB}, nil)
	planner := NewPlanner(reg, nil)

	plan, err := planner.Plan(&Definition{
		Name: "parallel",
		Artifacts: map[string]ArtifactDefinition{
			"a": {Source: &ComponentRef{Type: "src_a"}, Output: true},
			"b": {Source: &ComponentRef{Type: "src_b"}, Output: true},
		},
	})
	require.NoError(t, err)

	exec := NewDAGExecutor(artifact.NewMemoryStore(), ExecutorConfig{MaxConcurrency: 2}, nil)
	result, err := exec.Execute(context.Background(), plan)
	require.NoError(t, err)
	assert.True(t, result.Success())
}

func TestExecutorCancellationSkipsRemaining(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	srcA := &testutil.MockConnector{
		TypeName: "src_a",
		Schemas:  []types.Schema{schemaA},
		ExtractFunc: func(_ context.Context, schema types.Schema) (types.Message, error) {
			// Cancel mid-run: the current batch finishes, nothing new
			// dispatches.
			cancel()
			return types.NewMessage(schema, map[string]any{}), nil
		},
	}
	analyse := &testutil.MockAnalyser{
		TypeName: "analyse",
		Combos:   []types.RequirementCombination{{types.NewInputRequirement("schema_a", "1.0.0")}},
		Schemas:  []types.Schema{reportSchema},
	}
	reg := testutil.NewRegistry(t, []*testutil.MockConnector{srcA}, []*testutil.MockAnalyser{analyse})
	planner := NewPlanner(reg, nil)

	plan, err := planner.Plan(&Definition{
		Name: "cancelled",
		Artifacts: map[string]ArtifactDefinition{
			"a": {Source: &ComponentRef{Type: "src_a"}},
			"e": {Inputs: []string{"a"}, Transform: &ComponentRef{Type: "analyse"}, Output: true},
		},
	})
	require.NoError(t, err)

	store := artifact.NewMemoryStore()
	exec := NewDAGExecutor(store, ExecutorConfig{}, nil)
	result, err := exec.Execute(ctx, plan)
	require.NoError(t, err)

	resA, _ := result.Result("a")
	assert.Equal(t, StatusSucceeded, resA.Status)

	resE, _ := result.Result("e")
	assert.Equal(t, StatusSkipped, resE.Status)
	assert.Equal(t, SkipReasonCancelled, resE.SkipReason)
	assert.Empty(t, analyse.Invocations())

	// The final manifest is still written after cancellation.
	doc, err := store.GetJSON(context.Background(), result.RunID(), "run")
	require.NoError(t, err)
	assert.Equal(t, "completed", doc["status"])
}

func TestExecutorRunIsolation(t *testing.T) {
	t.Parallel()

	_, _, _, planner := twoSourceRegistry(t)
	plan, err := planner.Plan(fanInDefinition())
	require.NoError(t, err)

	store := artifact.NewMemoryStore()
	exec := NewDAGExecutor(store, ExecutorConfig{}, nil)

	first, err := exec.Execute(context.Background(), plan)
	require.NoError(t, err)
	second, err := exec.Execute(context.Background(), plan)
	require.NoError(t, err)

	assert.NotEqual(t, first.RunID(), second.RunID())

	ctx := context.Background()
	for _, result := range []*ExecutionResult{first, second} {
		msg, err := store.Get(ctx, result.RunID(), "c")
		require.NoError(t, err)
		assert.Equal(t, reportSchema, msg.Schema)
	}
}

func TestExecutorRejectsSchemaMismatch(t *testing.T) {
	t.Parallel()

	liar := &testutil.MockConnector{
		TypeName: "liar",
		Schemas:  []types.Schema{schemaA},
		ExtractFunc: func(context.Context, types.Schema) (types.Message, error) {
			return types.NewMessage(types.NewSchema("something_else", "9.9.9"), map[string]any{}), nil
		},
	}
	reg := testutil.NewRegistry(t, []*testutil.MockConnector{liar}, nil)
	planner := NewPlanner(reg, nil)

	plan, err := planner.Plan(&Definition{
		Name:      "mismatch",
		Artifacts: map[string]ArtifactDefinition{"a": {Source: &ComponentRef{Type: "liar"}, Output: true}},
	})
	require.NoError(t, err)

	exec := NewDAGExecutor(artifact.NewMemoryStore(), ExecutorConfig{}, nil)
	result, err := exec.Execute(context.Background(), plan)
	require.NoError(t, err)

	resA, _ := result.Result("a")
	assert.Equal(t, StatusFailed, resA.Status)
	assert.Equal(t, types.ErrExecutionFailed, types.GetErrorCode(resA.Err))
}

func TestExecutorEveryArtifactAccounted(t *testing.T) {
	t.Parallel()

	srcA := &testutil.MockConnector{
		TypeName: "src_a",
		Schemas:  []types.Schema{schemaA},
		ExtractFunc: func(context.Context, types.Schema) (types.Message, error) {
			return types.Message{}, errors.New("down")
		},
	}
	srcB := &testutil.MockConnector{TypeName: "src_b", Schemas: []types.Schema{schemaB}}
	analyseA := &testutil.MockAnalyser{
		TypeName: "analyse_a",
		Combos:   []types.RequirementCombination{{types.NewInputRequirement("schema_a", "1.0.0")}},
		Schemas:  []types.Schema{reportSchema},
	}
	analyseB := &testutil.MockAnalyser{
		TypeName: "analyse_b",
		Combos:   []types.RequirementCombination{{types.NewInputRequirement("schema_b", "1.0.0")}},
		Schemas:  []types.Schema{reportSchema},
	}
	reg := testutil.NewRegistry(t, []*testutil.MockConnector{srcA, srcB}, []*testutil.MockAnalyser{analyseA, analyseB})
	planner := NewPlanner(reg, nil)

	plan, err := planner.Plan(&Definition{
		Name: "mixed",
		Artifacts: map[string]ArtifactDefinition{
			"a":  {Source: &ComponentRef{Type: "src_a"}},
			"b":  {Source: &ComponentRef{Type: "src_b"}},
			"ea": {Inputs: []string{"a"}, Transform: &ComponentRef{Type: "analyse_a"}},
			"eb": {Inputs: []string{"b"}, Transform: &ComponentRef{Type: "analyse_b"}},
		},
	})
	require.NoError(t, err)

	exec := NewDAGExecutor(artifact.NewMemoryStore(), ExecutorConfig{}, nil)
	result, err := exec.Execute(context.Background(), plan)
	require.NoError(t, err)

	// Exactly one terminal status per artifact, none silently absent.
	assert.ElementsMatch(t, []string{"a", "b", "ea", "eb"}, result.ArtifactIDs())
	total := len(result.Succeeded()) + len(result.Failed()) + len(result.Skipped())
	assert.Equal(t, 4, total)
	assert.Equal(t, []string{"b", "eb"}, result.Succeeded())
	assert.Equal(t, []string{"a"}, result.Failed())
	assert.Equal(t, []string{"ea"}, result.Skipped())
	assert.False(t, result.Success())
}
