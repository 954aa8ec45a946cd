// Package component defines the two pluggable step contracts of a pipeline,
// connectors that bring external data into the run and analysers that
// transform stored artifacts, together with the registry that instantiates
// them from pipeline definitions.
package component

import (
	"context"

	"github.com/auditflow/auditflow/types"
)

// Connector extracts data from an external system and produces one message
// conforming to the requested output schema. Connectors are pipeline entry
// points: they take no artifact inputs.
type Connector interface {
	// Name returns the component type name used in pipeline definitions.
	Name() string

	// OutputSchemas lists the schemas this connector can produce.
	OutputSchemas() []types.Schema

	// Extract reads the external source and returns a message tagged with
	// outputSchema. The schema is guaranteed by the planner to be one of
	// OutputSchemas().
	Extract(ctx context.Context, outputSchema types.Schema) (types.Message, error)
}

// Analyser transforms one or more input artifacts into a new message.
//
// InputRequirements declares the acceptable input shapes as a disjunction of
// combinations: the planner matches a step's declared inputs against each
// combination by exact schema-set equality, and exactly one combination must
// match. When several inputs supply the same schema, all of them are passed
// to Process (same-schema fan-in).
type Analyser interface {
	// Name returns the component type name used in pipeline definitions.
	Name() string

	// InputRequirements lists the acceptable input schema combinations.
	InputRequirements() []types.RequirementCombination

	// OutputSchemas lists the schemas this analyser can produce.
	OutputSchemas() []types.Schema

	// Process transforms the inputs into a message tagged with outputSchema.
	// Inputs arrive in the order the step declares them.
	Process(ctx context.Context, inputs []types.Message, outputSchema types.Schema) (types.Message, error)
}
