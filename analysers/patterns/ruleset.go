package patterns

import (
	"fmt"
	"regexp"

	"github.com/auditflow/auditflow/types"
)

// Rule is one compiled detection pattern.
type Rule struct {
	Name     string
	Category string
	pattern  *regexp.Regexp
}

// builtinRulesets maps ruleset names to their rule definitions. Patterns are
// compiled once at analyser construction.
var builtinRulesets = map[string][]struct {
	name     string
	category string
	pattern  string
}{
	"personal_data": {
		{"email_address", "contact", `[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`},
		{"phone_number", "contact", `\+?\d{1,3}[\s\-.]?\(?\d{2,4}\)?[\s\-.]?\d{3,4}[\s\-.]?\d{3,4}`},
		{"ip_address", "network", `\b(?:\d{1,3}\.){3}\d{1,3}\b`},
		{"iban", "financial", `\b[A-Z]{2}\d{2}[A-Z0-9]{11,30}\b`},
	},
	"credentials": {
		{"password_assignment", "secret", `(?i)(password|passwd|pwd)\s*[:=]\s*\S+`},
		{"api_key", "secret", `(?i)(api[_\-]?key|secret[_\-]?key|access[_\-]?token)\s*[:=]\s*\S+`},
		{"private_key_header", "secret", `-----BEGIN (?:RSA |EC |OPENSSH )?PRIVATE KEY-----`},
		{"aws_access_key", "secret", `\bAKIA[0-9A-Z]{16}\b`},
	},
}

// loadRuleset compiles a built-in ruleset by name, or a custom ruleset from
// a properties list of {name, category, pattern} maps.
func loadRuleset(name string, custom []any) ([]Rule, error) {
	if len(custom) > 0 {
		rules := make([]Rule, 0, len(custom))
		for i, raw := range custom {
			m, ok := raw.(map[string]any)
			if !ok {
				return nil, types.NewError(types.ErrInvalidConfig,
					fmt.Sprintf("rule %d: expected a mapping with name and pattern", i))
			}
			ruleName, _ := m["name"].(string)
			pattern, _ := m["pattern"].(string)
			category, _ := m["category"].(string)
			if ruleName == "" || pattern == "" {
				return nil, types.NewError(types.ErrInvalidConfig,
					fmt.Sprintf("rule %d: name and pattern are required", i))
			}
			re, err := regexp.Compile(pattern)
			if err != nil {
				return nil, types.NewError(types.ErrInvalidConfig,
					fmt.Sprintf("rule %q: invalid pattern", ruleName)).WithCause(err)
			}
			rules = append(rules, Rule{Name: ruleName, Category: category, pattern: re})
		}
		return rules, nil
	}

	defs, ok := builtinRulesets[name]
	if !ok {
		available := make([]string, 0, len(builtinRulesets))
		for n := range builtinRulesets {
			available = append(available, n)
		}
		return nil, types.NewError(types.ErrInvalidConfig,
			fmt.Sprintf("unknown ruleset %q (built-in: %v)", name, available))
	}
	rules := make([]Rule, 0, len(defs))
	for _, d := range defs {
		rules = append(rules, Rule{Name: d.name, Category: d.category, pattern: regexp.MustCompile(d.pattern)})
	}
	return rules, nil
}
