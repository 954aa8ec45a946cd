package types

import (
	"sort"
	"strings"
)

// InputRequirement declares one schema an analyser needs as part of a
// requirement combination. Multiple upstream artifacts supplying the same
// schema satisfy a single requirement slot collectively (same-schema fan-in).
type InputRequirement struct {
	SchemaName string `json:"schema_name"`
	Version    string `json:"version"`
}

// NewInputRequirement creates an input requirement.
func NewInputRequirement(schemaName, version string) InputRequirement {
	return InputRequirement{SchemaName: schemaName, Version: version}
}

// Schema returns the requirement as a Schema value.
func (r InputRequirement) Schema() Schema {
	return Schema{Name: r.SchemaName, Version: r.Version}
}

// RequirementCombination is one valid conjunction of input schemas for a
// step. An analyser declares a list of combinations (a disjunction); exactly
// one must match the schemas provided by the step's declared inputs.
type RequirementCombination []InputRequirement

// SchemaSet returns the deduplicated set of schemas in the combination.
func (c RequirementCombination) SchemaSet() map[Schema]struct{} {
	set := make(map[Schema]struct{}, len(c))
	for _, r := range c {
		set[r.Schema()] = struct{}{}
	}
	return set
}

// String renders the combination as a sorted, human-readable schema list.
func (c RequirementCombination) String() string {
	names := make([]string, 0, len(c))
	seen := make(map[string]struct{}, len(c))
	for _, r := range c {
		s := r.Schema().String()
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		names = append(names, s)
	}
	sort.Strings(names)
	return "{" + strings.Join(names, ", ") + "}"
}

// FormatSchemaSet renders a schema set the same way RequirementCombination
// renders itself, for symmetric diagnostics.
func FormatSchemaSet(set map[Schema]struct{}) string {
	names := make([]string, 0, len(set))
	for s := range set {
		names = append(names, s.String())
	}
	sort.Strings(names)
	return "{" + strings.Join(names, ", ") + "}"
}
