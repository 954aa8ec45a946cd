package pipeline

import (
	"fmt"
	"strings"
)

// PlanErrorKind classifies why planning rejected a definition.
type PlanErrorKind string

const (
	// PlanErrInvalidDefinition means the definition failed structural checks.
	PlanErrInvalidDefinition PlanErrorKind = "invalid_definition"
	// PlanErrCycle means the dependency graph contains a cycle.
	PlanErrCycle PlanErrorKind = "cycle"
	// PlanErrDanglingReference means an input references an undefined artifact.
	PlanErrDanglingReference PlanErrorKind = "dangling_reference"
	// PlanErrComponent means a component could not be created from the registry.
	PlanErrComponent PlanErrorKind = "component"
	// PlanErrNoMatchingCombination means no requirement combination matched
	// the schemas provided by an artifact's inputs.
	PlanErrNoMatchingCombination PlanErrorKind = "no_matching_combination"
	// PlanErrUnresolvableOutput means an artifact's output schema could not
	// be resolved against its component's supported outputs.
	PlanErrUnresolvableOutput PlanErrorKind = "unresolvable_output"
)

// PlanError is the typed plan-time failure. Planning is fail-fast: any
// PlanError aborts before execution begins, so no side effect ever results
// from an invalid plan. Match with errors.As to branch on Kind.
type PlanError struct {
	Kind        PlanErrorKind
	ArtifactIDs []string
	Detail      string
	Cause       error
}

func (e *PlanError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "plan error (%s)", e.Kind)
	if len(e.ArtifactIDs) > 0 {
		fmt.Fprintf(&b, " [%s]", strings.Join(e.ArtifactIDs, ", "))
	}
	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}
	if e.Cause != nil {
		fmt.Fprintf(&b, ": %v", e.Cause)
	}
	return b.String()
}

func (e *PlanError) Unwrap() error {
	return e.Cause
}
