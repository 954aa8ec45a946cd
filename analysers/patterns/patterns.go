// Package patterns provides an analyser that scans extracted entries
// against a regex ruleset and emits findings.
package patterns

import (
	"context"
	"fmt"
	"sync"

	"github.com/pkoukk/tiktoken-go"
	"go.uber.org/zap"

	"github.com/auditflow/auditflow/component"
	"github.com/auditflow/auditflow/types"
)

// TypeName is the component type name used in pipeline definitions.
const TypeName = "patterns"

// InputSchema and OutputSchema bound the analyser's contract.
var (
	InputSchema  = types.NewSchema("standard_input", "1.0.0")
	OutputSchema = types.NewSchema("finding", "1.0.0")
)

// defaultEvidenceTokens caps the evidence snippet attached to each finding,
// sized for hand-off to downstream LLM validation without blowing a prompt
// budget.
const defaultEvidenceTokens = 64

// evidenceContext is how many bytes around a match are considered before
// token truncation.
const evidenceContext = 120

// tokenCounter abstracts tokenization so tests do not need the tiktoken
// vocabulary download.
type tokenCounter interface {
	Count(s string) int
}

type tiktokenCounter struct {
	once sync.Once
	enc  *tiktoken.Tiktoken
}

func (c *tiktokenCounter) Count(s string) int {
	c.once.Do(func() {
		// Vocabulary fetch can fail offline; the heuristic below covers
		// that case.
		c.enc, _ = tiktoken.GetEncoding(tiktoken.MODEL_CL100K_BASE)
	})
	if c.enc == nil {
		return heuristicCounter{}.Count(s)
	}
	return len(c.enc.Encode(s, nil, nil))
}

// heuristicCounter approximates 4 bytes per token.
type heuristicCounter struct{}

func (heuristicCounter) Count(s string) int {
	return (len(s) + 3) / 4
}

// Analyser scans standard_input entries with a compiled ruleset. Same-schema
// fan-in is supported: every input message is scanned and findings carry
// their source.
type Analyser struct {
	ruleset        string
	rules          []Rule
	evidenceBudget int
	counter        tokenCounter
	logger         *zap.Logger
}

// New creates a patterns analyser.
//
// Properties:
//
//	ruleset             string  built-in ruleset name (default personal_data)
//	rules               list    custom {name, category, pattern} rules,
//	                            overriding the built-in ruleset
//	max_evidence_tokens int     evidence token cap per finding (default 64)
func New(properties map[string]any, logger *zap.Logger) (*Analyser, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	ruleset, _ := properties["ruleset"].(string)
	if ruleset == "" {
		ruleset = "personal_data"
	}
	custom, _ := properties["rules"].([]any)
	rules, err := loadRuleset(ruleset, custom)
	if err != nil {
		return nil, err
	}

	budget := defaultEvidenceTokens
	if v, ok := properties["max_evidence_tokens"].(int); ok && v > 0 {
		budget = v
	}

	return &Analyser{
		ruleset:        ruleset,
		rules:          rules,
		evidenceBudget: budget,
		counter:        &tiktokenCounter{},
		logger:         logger.With(zap.String("component", "patterns_analyser")),
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

// Process scans every entry of every input message and returns one finding
// message.
func (a *Analyser) Process(ctx context.Context, inputs []types.Message, outputSchema types.Schema) (types.Message, error) {
	var findings []any
	for _, input := range inputs {
		if err := ctx.Err(); err != nil {
			return types.Message{}, err
		}
		source, _ := input.Content["source"].(string)
		entries, _ := input.Content["entries"].([]any)
		for _, raw := range entries {
			entry, ok := raw.(map[string]any)
			if !ok {
				return types.Message{}, fmt.Errorf("malformed entry in input from %q", source)
			}
			locator, _ := entry["locator"].(string)
			content, _ := entry["content"].(string)
			findings = append(findings, a.scan(source, locator, content)...)
		}
	}

	a.logger.Debug("scan complete",
		zap.String("ruleset", a.ruleset),
		zap.Int("inputs", len(inputs)),
		zap.Int("findings", len(findings)),
	)
	return types.NewMessage(outputSchema, map[string]any{
		"ruleset":  a.ruleset,
		"findings": findings,
		"count":    len(findings),
	}), nil
}

// scan applies every rule to one entry's content.
func (a *Analyser) scan(source, locator, content string) []any {
	var findings []any
	for _, rule := range a.rules {
		for _, loc := range rule.pattern.FindAllStringIndex(content, -1) {
			findings = append(findings, map[string]any{
				"rule":     rule.Name,
				"category": rule.Category,
				"source":   source,
				"locator":  locator,
				"evidence": a.evidence(content, loc[0], loc[1]),
			})
		}
	}
	return findings
}

// evidence extracts the context window around a match and trims it to the
// token budget.
func (a *Analyser) evidence(content string, start, end int) string {
	lo := start - evidenceContext/2
	if lo < 0 {
		lo = 0
	}
	hi := end + evidenceContext/2
	if hi > len(content) {
		hi = len(content)
	}
	snippet := content[lo:hi]

	for a.counter.Count(snippet) > a.evidenceBudget && len(snippet) > end-start {
		// Trim a quarter at a time until the snippet fits.
		cut := len(snippet) / 4
		if cut == 0 {
			break
		}
		snippet = snippet[:len(snippet)-cut]
	}
	return snippet
}

var _ component.Analyser = (*Analyser)(nil)
