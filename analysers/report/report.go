// Package report provides a fan-in analyser that merges finding messages
// into a single compliance report.
package report

import (
	"context"
	"sort"

	"go.uber.org/zap"

	"github.com/auditflow/auditflow/component"
	"github.com/auditflow/auditflow/types"
)

// TypeName is the component type name used in pipeline definitions.
const TypeName = "report"

// InputSchema and OutputSchema bound the analyser's contract.
var (
	InputSchema  = types.NewSchema("finding", "1.0.0")
	OutputSchema = types.NewSchema("compliance_report", "1.0.0")
)

// Analyser aggregates findings from any number of upstream scans. Each
// input message contributes its findings to one merged report with per-rule
// and per-category tallies.
type Analyser struct {
	title           string
	includeFindings bool
	logger          *zap.Logger
}

// New creates a report analyser.
//
// Properties:
//
//	title            string  report title (default "Compliance Report")
//	include_findings bool    embed the merged finding list (default true)
func New(properties map[string]any, logger *zap.Logger) (*Analyser, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	title, _ := properties["title"].(string)
	if title == "" {
		title = "Compliance Report"
	}
	include := true
	if v, ok := properties["include_findings"].(bool); ok {
		include = v
	}

	return &Analyser{
		title:           title,
		includeFindings: include,
		logger:          logger.With(zap.String("component", "report_analyser")),
	}, nil
}

// Factory adapts New to the registry factory signature.
func Factory(properties map[string]any, logger *zap.Logger) (component.Analyser, error) {
	return New(properties, logger)
}

func (a *Analyser) Name() string { return TypeName }

func (a *Analyser) InputRequirements() []types.RequirementCombination {
	return []types.RequirementCombination{
		{types.NewInputRequirement(InputSchema.Name, InputSchema.Version)},
	}
}

func (a *Analyser) OutputSchemas() []types.Schema {
	return []types.Schema{OutputSchema}
}

// Process merges the findings of every input message into one report.
func (a *Analyser) Process(ctx context.Context, inputs []types.Message, outputSchema types.Schema) (types.Message, error) {
	if err := ctx.Err(); err != nil {
		return types.Message{}, err
	}

	var merged []any
	byRule := map[string]any{}
	byCategory := map[string]any{}
	sourceSet := map[string]struct{}{}
	rulesetSet := map[string]struct{}{}

	for _, input := range inputs {
		if ruleset, ok := input.Content["ruleset"].(string); ok && ruleset != "" {
			rulesetSet[ruleset] = struct{}{}
		}
		findings, _ := input.Content["findings"].([]any)
		for _, raw := range findings {
			finding, ok := raw.(map[string]any)
			if !ok {
				continue
			}
			merged = append(merged, finding)
			if rule, ok := finding["rule"].(string); ok {
				byRule[rule] = intAt(byRule, rule) + 1
			}
			if category, ok := finding["category"].(string); ok {
				byCategory[category] = intAt(byCategory, category) + 1
			}
			if source, ok := finding["source"].(string); ok && source != "" {
				sourceSet[source] = struct{}{}
			}
		}
	}

	content := map[string]any{
		"title":          a.title,
		"total_findings": len(merged),
		"by_rule":        byRule,
		"by_category":    byCategory,
		"sources":        sortedKeys(sourceSet),
		"rulesets":       sortedKeys(rulesetSet),
	}
	if a.includeFindings {
		content["findings"] = merged
	}

	a.logger.Debug("report assembled",
		zap.Int("inputs", len(inputs)),
		zap.Int("findings", len(merged)),
	)
	return types.NewMessage(outputSchema, content), nil
}

func intAt(m map[string]any, key string) int {
	n, _ := m[key].(int)
	return n
}

func sortedKeys(set map[string]struct{}) []any {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]any, len(keys))
	for i, k := range keys {
		out[i] = k
	}
	return out
}

var _ component.Analyser = (*Analyser)(nil)
