// Package pipeline contains the orchestration core: it turns a declarative
// pipeline definition into a validated, immutable execution plan and runs
// that plan with bounded parallelism, persisting every step's output to a
// run-scoped artifact store.
package pipeline

import (
	"fmt"
	"sort"
	"time"
)

// ComponentRef names a registered component type and carries its
// configuration block from the pipeline definition.
type ComponentRef struct {
	Type       string         `yaml:"type" json:"type"`
	Properties map[string]any `yaml:"properties,omitempty" json:"properties,omitempty"`
}

// ArtifactDefinition declares one named unit of data production. Exactly one
// of the two forms is valid:
//
//   - source artifact: Source set, no Inputs, no Transform
//   - derived artifact: Inputs and Transform set, no Source
//
// Schema optionally pins the produced schema ("name/version") when the
// component supports more than one output. Output marks the artifact for
// export. Optional means the artifact's own failure does not propagate skips
// to its dependents.
type ArtifactDefinition struct {
	Source    *ComponentRef `yaml:"source,omitempty" json:"source,omitempty"`
	Inputs    []string      `yaml:"inputs,omitempty" json:"inputs,omitempty"`
	Transform *ComponentRef `yaml:"transform,omitempty" json:"transform,omitempty"`
	Schema    string        `yaml:"schema,omitempty" json:"schema,omitempty"`
	Output    bool          `yaml:"output,omitempty" json:"output,omitempty"`
	Optional  bool          `yaml:"optional,omitempty" json:"optional,omitempty"`
}

// IsSource reports whether this is a source (connector-produced) artifact.
func (d ArtifactDefinition) IsSource() bool {
	return d.Source != nil
}

// Config holds per-pipeline execution settings.
type Config struct {
	// MaxConcurrency bounds how many artifacts run at once. Zero means
	// use the executor's default.
	MaxConcurrency int `yaml:"max_concurrency,omitempty" json:"max_concurrency,omitempty"`
	// Timeout bounds the whole run. Zero means no deadline.
	Timeout time.Duration `yaml:"timeout,omitempty" json:"timeout,omitempty"`
}

// Definition is a parsed pipeline definition: named artifacts plus metadata.
type Definition struct {
	Name        string                        `yaml:"name" json:"name"`
	Description string                        `yaml:"description,omitempty" json:"description,omitempty"`
	Contact     string                        `yaml:"contact,omitempty" json:"contact,omitempty"`
	Config      Config                        `yaml:"config,omitempty" json:"config,omitempty"`
	Artifacts   map[string]ArtifactDefinition `yaml:"artifacts" json:"artifacts"`
}

// Validate performs the structural checks that do not require a component
// registry: every artifact is exactly one of source or derived, derived
// artifacts declare at least one input, and no artifact references itself.
// Graph-level checks (cycles, dangling references) belong to ExecutionDAG.
func (d *Definition) Validate() error {
	if d.Name == "" {
		return &PlanError{Kind: PlanErrInvalidDefinition, Detail: "pipeline name must not be empty"}
	}
	if len(d.Artifacts) == 0 {
		return &PlanError{Kind: PlanErrInvalidDefinition, Detail: "pipeline declares no artifacts"}
	}

	for _, id := range d.ArtifactIDs() {
		def := d.Artifacts[id]
		switch {
		case def.Source != nil && (def.Transform != nil || len(def.Inputs) > 0):
			return &PlanError{
				Kind:        PlanErrInvalidDefinition,
				ArtifactIDs: []string{id},
				Detail:      fmt.Sprintf("artifact %q declares both source and transform forms; they are mutually exclusive", id),
			}
		case def.Source == nil && def.Transform == nil:
			return &PlanError{
				Kind:        PlanErrInvalidDefinition,
				ArtifactIDs: []string{id},
				Detail:      fmt.Sprintf("artifact %q declares neither a source nor a transform", id),
			}
		case def.Transform != nil && len(def.Inputs) == 0:
			return &PlanError{
				Kind:        PlanErrInvalidDefinition,
				ArtifactIDs: []string{id},
				Detail:      fmt.Sprintf("derived artifact %q declares no inputs", id),
			}
		}
		if def.Source != nil && def.Source.Type == "" {
			return &PlanError{
				Kind:        PlanErrInvalidDefinition,
				ArtifactIDs: []string{id},
				Detail:      fmt.Sprintf("artifact %q: source type must not be empty", id),
			}
		}
		if def.Transform != nil && def.Transform.Type == "" {
			return &PlanError{
				Kind:        PlanErrInvalidDefinition,
				ArtifactIDs: []string{id},
				Detail:      fmt.Sprintf("artifact %q: transform type must not be empty", id),
			}
		}
	}
	return nil
}

// ArtifactIDs returns the artifact IDs in sorted order, for deterministic
// iteration over the definition map.
func (d *Definition) ArtifactIDs() []string {
	ids := make([]string, 0, len(d.Artifacts))
	for id := range d.Artifacts {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
