package pipeline

import (
	"github.com/auditflow/auditflow/component"
	"github.com/auditflow/auditflow/types"
)

// ResolvedStep is one artifact of a plan with its component instance and
// plan-time schema resolution attached. Exactly one of Connector or Analyser
// is set, matching the artifact's form.
type ResolvedStep struct {
	ID         string
	Definition ArtifactDefinition
	Connector  component.Connector
	Analyser   component.Analyser

	// MatchedCombination is the requirement combination resolved for a
	// derived artifact; nil for source artifacts.
	MatchedCombination types.RequirementCombination

	// OutputSchema is the schema this step's message will carry.
	OutputSchema types.Schema
}

// ExecutionPlan is the validated, immutable output of planning: the
// dependency graph plus the resolved component and schemas per artifact.
// It is safe to share across concurrent executor runs; per-run traversal
// state lives in the ExecutionDAG returned by NewDAG.
type ExecutionPlan struct {
	definition *Definition
	steps      map[string]ResolvedStep
}

// Definition returns the original pipeline definition, for metadata such as
// name, description, and contact.
func (p *ExecutionPlan) Definition() *Definition {
	return p.definition
}

// Name returns the pipeline name.
func (p *ExecutionPlan) Name() string {
	return p.definition.Name
}

// Step returns the resolved step for an artifact ID.
func (p *ExecutionPlan) Step(id string) (ResolvedStep, bool) {
	step, ok := p.steps[id]
	return step, ok
}

// ArtifactIDs returns every artifact ID in the plan, sorted.
func (p *ExecutionPlan) ArtifactIDs() []string {
	return p.definition.ArtifactIDs()
}

// NewDAG builds a fresh dependency graph for one run. The graph was
// validated at plan time; the copy exists because traversal state (the done
// set) is per-run.
func (p *ExecutionPlan) NewDAG() *ExecutionDAG {
	dag := NewExecutionDAG(p.definition.Artifacts)
	dag.validated = true
	return dag
}

// hasDependents reports whether any other artifact consumes id. Used by the
// executor to decide whether a message must be persisted for downstream use.
func (p *ExecutionPlan) hasDependents(id string) bool {
	for _, step := range p.steps {
		for _, dep := range step.Definition.Inputs {
			if dep == id {
				return true
			}
		}
	}
	return false
}
