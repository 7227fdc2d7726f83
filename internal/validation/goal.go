package validation

import (
	"context"
	"fmt"

	"github.com/rendis/plancheck/internal/expressions"
	"github.com/rendis/plancheck/internal/state"
	"github.com/rendis/plancheck/pkg/schema"
)

// checkGoal evaluates placements in object order, then conditions in declared
// order, and returns one diagnostic per unmet requirement.
func (v *Validator) checkGoal(ctx context.Context, st *state.State, goal *schema.Goal) []schema.Diagnostic {
	if goal.Empty() {
		return nil
	}

	var out []schema.Diagnostic
	for _, obj := range goal.Objects() {
		slot := goal.Placements[obj]
		ok, have := st.Satisfies(obj, slot)
		if ok {
			continue
		}
		actual := have
		if actual == "" {
			actual = state.None
		}
		out = append(out, schema.Diagnostic{
			Step:     schema.NoStep,
			Code:     schema.ReasonGoalUnsatisfied,
			Expected: obj,
			Actual:   actual,
			Message:  fmt.Sprintf("%s not in %s (in=%s)", obj, slot, actual),
		})
	}

	if len(goal.Conditions) == 0 {
		return out
	}
	vars := st.Vars()
	for _, cond := range goal.Conditions {
		if v.cel == nil {
			out = append(out, schema.Diagnostic{
				Step:      schema.NoStep,
				Code:      schema.ReasonGoalUnsatisfied,
				Predicate: cond,
				Message:   "condition error: CEL engine unavailable",
			})
			continue
		}
		ok, err := expressions.EvaluateBool(ctx, v.cel, cond, vars)
		switch {
		case err != nil:
			out = append(out, schema.Diagnostic{
				Step:      schema.NoStep,
				Code:      schema.ReasonGoalUnsatisfied,
				Predicate: cond,
				Message:   "condition error: " + err.Error(),
			})
		case !ok:
			out = append(out, schema.Diagnostic{
				Step:      schema.NoStep,
				Code:      schema.ReasonGoalUnsatisfied,
				Predicate: cond,
				Expected:  "true",
				Actual:    "false",
				Message:   "condition not met",
			})
		}
	}
	return out
}
