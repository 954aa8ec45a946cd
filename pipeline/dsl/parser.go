// Package dsl parses declarative YAML pipeline definitions into the
// pipeline data model. The planner is format-agnostic; this package owns
// every textual convenience of the reference format, such as scalar-or-list
// inputs and human-readable durations.
package dsl

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/auditflow/auditflow/pipeline"
)

// stringList accepts either a YAML scalar or a sequence of scalars.
type stringList []string

func (l *stringList) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		var s string
		if err := node.Decode(&s); err != nil {
			return err
		}
		*l = []string{s}
		return nil
	case yaml.SequenceNode:
		var ss []string
		if err := node.Decode(&ss); err != nil {
			return err
		}
		*l = ss
		return nil
	default:
		return fmt.Errorf("line %d: inputs must be a string or a list of strings", node.Line)
	}
}

type componentDoc struct {
	Type       string         `yaml:"type"`
	Properties map[string]any `yaml:"properties"`
}

type artifactDoc struct {
	Source    *componentDoc `yaml:"source"`
	Inputs    stringList    `yaml:"inputs"`
	Transform *componentDoc `yaml:"transform"`
	Schema    string        `yaml:"schema"`
	Output    bool          `yaml:"output"`
	Optional  bool          `yaml:"optional"`
}

type configDoc struct {
	MaxConcurrency int    `yaml:"max_concurrency"`
	Timeout        string `yaml:"timeout"`
}

type pipelineDoc struct {
	Name        string                 `yaml:"name"`
	Description string                 `yaml:"description"`
	Contact     string                 `yaml:"contact"`
	Config      configDoc              `yaml:"config"`
	Artifacts   map[string]artifactDoc `yaml:"artifacts"`
}

// Parse decodes a YAML pipeline definition and runs the structural
// validation of the pipeline data model. Unknown fields are an error, so a
// typo like "trasform" fails loudly instead of silently producing an
// invalid artifact.
func Parse(data []byte) (*pipeline.Definition, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var doc pipelineDoc
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("parse pipeline definition: %w", err)
	}

	def := &pipeline.Definition{
		Name:        doc.Name,
		Description: doc.Description,
		Contact:     doc.Contact,
		Artifacts:   make(map[string]pipeline.ArtifactDefinition, len(doc.Artifacts)),
	}

	def.Config.MaxConcurrency = doc.Config.MaxConcurrency
	if doc.Config.Timeout != "" {
		timeout, err := time.ParseDuration(doc.Config.Timeout)
		if err != nil {
			return nil, fmt.Errorf("parse pipeline timeout %q: %w", doc.Config.Timeout, err)
		}
		def.Config.Timeout = timeout
	}

	for id, a := range doc.Artifacts {
		artifact := pipeline.ArtifactDefinition{
			Inputs:   a.Inputs,
			Schema:   a.Schema,
			Output:   a.Output,
			Optional: a.Optional,
		}
		if a.Source != nil {
			artifact.Source = &pipeline.ComponentRef{Type: a.Source.Type, Properties: a.Source.Properties}
		}
		if a.Transform != nil {
			artifact.Transform = &pipeline.ComponentRef{Type: a.Transform.Type, Properties: a.Transform.Properties}
		}
		def.Artifacts[id] = artifact
	}

	if err := def.Validate(); err != nil {
		return nil, err
	}
	return def, nil
}

// ParseFile reads and parses a pipeline definition from disk.
func ParseFile(path string) (*pipeline.Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read pipeline definition: %w", err)
	}
	return Parse(data)
}
