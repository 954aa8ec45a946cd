package pipeline

import (
	"fmt"
	"strings"

	"github.com/auditflow/auditflow/types"
)

// MatchRequirements finds the requirement combination whose schema set is
// exactly equal to the provided set. It is a total, side-effect-free
// function: partial or subset matching is deliberately rejected, so a
// component that wants different handling for different optional inputs must
// declare them as distinct combinations.
//
// Registration-level validation guarantees combinations are pairwise
// distinct, so at most one can match.
func MatchRequirements(provided map[types.Schema]struct{}, combinations []types.RequirementCombination) (types.RequirementCombination, error) {
	for _, combo := range combinations {
		if schemaSetsEqual(provided, combo.SchemaSet()) {
			return combo, nil
		}
	}

	alternatives := make([]string, 0, len(combinations))
	for _, combo := range combinations {
		alternatives = append(alternatives, combo.String())
	}
	return nil, fmt.Errorf("provided schemas %s match none of the accepted combinations: %s",
		types.FormatSchemaSet(provided), strings.Join(alternatives, "; "))
}

func schemaSetsEqual(a, b map[types.Schema]struct{}) bool {
	if len(a) != len(b) {
		return false
	}
	for s := range a {
		if _, ok := b[s]; !ok {
			return false
		}
	}
	return true
}
