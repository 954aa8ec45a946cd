package pipeline

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/auditflow/auditflow/component"
	"github.com/auditflow/auditflow/types"
)

// Planner transforms a pipeline definition into an immutable ExecutionPlan.
// All validation that can happen without running anything happens here:
// structural checks, graph validation, component instantiation, and schema
// resolution. Any failure is a *PlanError and nothing executes.
type Planner struct {
	registry *component.Registry
	logger   *zap.Logger
}

// NewPlanner creates a planner over an explicit component registry.
func NewPlanner(registry *component.Registry, logger *zap.Logger) *Planner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Planner{
		registry: registry,
		logger:   logger.With(zap.String("component", "planner")),
	}
}

// Plan validates the definition and produces an execution-ready plan.
//
// Schema resolution runs in two passes. The first resolves every artifact's
// output schema against its component's supported outputs, which needs no
// topological order because it only inspects declarations. The second
// matches each derived artifact's input requirement combinations against the
// output schemas of its declared inputs, by exact set equality.
func (p *Planner) Plan(def *Definition) (*ExecutionPlan, error) {
	if err := def.Validate(); err != nil {
		return nil, err
	}

	dag := NewExecutionDAG(def.Artifacts)
	if err := dag.Validate(); err != nil {
		return nil, err
	}

	steps := make(map[string]ResolvedStep, len(def.Artifacts))

	// First pass: instantiate components and resolve output schemas.
	for _, id := range def.ArtifactIDs() {
		artifact := def.Artifacts[id]
		step := ResolvedStep{ID: id, Definition: artifact}

		if artifact.IsSource() {
			conn, err := p.registry.CreateConnector(artifact.Source.Type, artifact.Source.Properties)
			if err != nil {
				return nil, &PlanError{Kind: PlanErrComponent, ArtifactIDs: []string{id}, Cause: err}
			}
			step.Connector = conn
			schema, err := resolveOutputSchema(id, artifact.Schema, conn.OutputSchemas())
			if err != nil {
				return nil, err
			}
			step.OutputSchema = schema
		} else {
			ana, err := p.registry.CreateAnalyser(artifact.Transform.Type, artifact.Transform.Properties)
			if err != nil {
				return nil, &PlanError{Kind: PlanErrComponent, ArtifactIDs: []string{id}, Cause: err}
			}
			step.Analyser = ana
			schema, err := resolveOutputSchema(id, artifact.Schema, ana.OutputSchemas())
			if err != nil {
				return nil, err
			}
			step.OutputSchema = schema
		}

		steps[id] = step
	}

	// Second pass: match requirement combinations against the schemas the
	// declared inputs actually provide.
	for _, id := range def.ArtifactIDs() {
		step := steps[id]
		if step.Definition.IsSource() {
			continue
		}

		provided := make(map[types.Schema]struct{}, len(step.Definition.Inputs))
		for _, inputID := range step.Definition.Inputs {
			provided[steps[inputID].OutputSchema] = struct{}{}
		}

		combo, err := MatchRequirements(provided, step.Analyser.InputRequirements())
		if err != nil {
			return nil, &PlanError{
				Kind:        PlanErrNoMatchingCombination,
				ArtifactIDs: []string{id},
				Detail:      err.Error(),
			}
		}
		step.MatchedCombination = combo
		steps[id] = step
	}

	p.logger.Info("pipeline planned",
		zap.String("pipeline", def.Name),
		zap.Int("artifacts", len(steps)),
	)

	return &ExecutionPlan{definition: def, steps: steps}, nil
}

// resolveOutputSchema picks the schema a step will produce: the declared one
// if present (which must be supported exactly), otherwise the component's
// single supported output. A component with several outputs and no
// declaration is ambiguous and rejected.
func resolveOutputSchema(id, declared string, supported []types.Schema) (types.Schema, error) {
	if declared == "" {
		if len(supported) == 1 {
			return supported[0], nil
		}
		return types.Schema{}, &PlanError{
			Kind:        PlanErrUnresolvableOutput,
			ArtifactIDs: []string{id},
			Detail: fmt.Sprintf("component supports %d output schemas (%s); declare one with the schema field",
				len(supported), formatSchemas(supported)),
		}
	}

	want, err := types.ParseSchema(declared)
	if err != nil {
		return types.Schema{}, &PlanError{
			Kind:        PlanErrUnresolvableOutput,
			ArtifactIDs: []string{id},
			Detail:      fmt.Sprintf("invalid schema declaration %q", declared),
			Cause:       err,
		}
	}
	for _, s := range supported {
		if s.Equal(want) {
			return s, nil
		}
	}
	return types.Schema{}, &PlanError{
		Kind:        PlanErrUnresolvableOutput,
		ArtifactIDs: []string{id},
		Detail: fmt.Sprintf("declared schema %s is not among the component's supported outputs: %s",
			want, formatSchemas(supported)),
	}
}

func formatSchemas(schemas []types.Schema) string {
	set := make(map[types.Schema]struct{}, len(schemas))
	for _, s := range schemas {
		set[s] = struct{}{}
	}
	return types.FormatSchemaSet(set)
}
