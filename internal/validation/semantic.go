package validation

import (
	"fmt"
	"sort"

	"github.com/rendis/plancheck/internal/expressions"
	"github.com/rendis/plancheck/pkg/schema"
)

// validateSemantic checks what the scenario schema cannot express: world
// invariants, goal references, and that every allow-list rule and goal
// condition compiles.
func validateSemantic(s *schema.Scenario, matcher *Matcher, cel *expressions.CELEngine) *schema.ValidationResult {
	result := s.Check()

	if s.Constraints != nil {
		for _, slot := range sortedKeys(s.Constraints.AllowedTargets) {
			rules := s.Constraints.AllowedTargets[slot]
			path := "constraints.allowed_targets." + slot
			if len(rules) == 0 {
				result.AddWarning(path, schema.ErrCodeValidation, "empty rule list admits no object")
			}
			for i, raw := range rules {
				if err := matcher.Lint(raw); err != nil {
					result.AddError(fmt.Sprintf("%s[%d]", path, i), schema.ErrCodeValidation, err.Error())
				}
			}
		}
	}

	if s.Goal != nil && cel != nil {
		for i, cond := range s.Goal.Conditions {
			if err := cel.Compile(cond); err != nil {
				result.AddError(fmt.Sprintf("goal.conditions[%d]", i), schema.ErrCodeValidation, err.Error())
			}
		}
	}

	return result
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
