package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rendis/plancheck/internal/planio"
	"github.com/rendis/plancheck/internal/validation"
	"github.com/rendis/plancheck/pkg/schema"
)

var (
	validateScenario string
	validateGoal     []string
	validateTrace    bool
	validateJSON     bool
)

var validateCmd = &cobra.Command{
	Use:   "validate [plan-file]",
	Short: "Validate a plan against a scenario world, its constraints and goal",
	Long: `Validate a plan file (JSON, YAML, or raw model output containing a fenced
JSON block) against a built-in scenario or a scenario file.

Exits non-zero when the plan is rejected.`,
	Args: cobra.ExactArgs(1),
	RunE: runValidate,
}

func init() {
	validateCmd.Flags().StringVar(&validateScenario, "scenario", "", "scenario name (s1..s4) or scenario file (default from config)")
	validateCmd.Flags().StringArrayVar(&validateGoal, "goal", nil, "goal placement slot=object, repeatable; replaces the scenario goal placements")
	validateCmd.Flags().BoolVar(&validateTrace, "trace", false, "record the per-step occupancy trace")
	validateCmd.Flags().BoolVar(&validateJSON, "json", false, "print the verdict as JSON")
}

func runValidate(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	sc, err := a.catalog.Resolve(firstNonEmpty(validateScenario, a.cfg.Scenario))
	if err != nil {
		return err
	}
	goal := sc.Goal
	if len(validateGoal) > 0 {
		if goal, err = parseGoalFlags(validateGoal); err != nil {
			return err
		}
	}

	verdict, err := a.check(ctx, sc, args[0], goal, validateTrace)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if validateJSON {
		if err := writeJSON(out, verdict); err != nil {
			return err
		}
	} else {
		printVerdict(out, verdict)
	}
	if !verdict.OK {
		return errRejected
	}
	return nil
}

// check loads a plan file and validates it. A malformed plan yields a
// rejected verdict, not an error.
func (a *app) check(ctx context.Context, sc *schema.Scenario, path string, goal *schema.Goal, trace bool) (*schema.Verdict, error) {
	doc, err := a.plans.LoadFile(ctx, path)
	if err != nil {
		return nil, err
	}
	return a.checkDocument(ctx, sc, doc, goal, trace), nil
}

func (a *app) checkDocument(ctx context.Context, sc *schema.Scenario, doc *planio.Document, goal *schema.Goal, trace bool) *schema.Verdict {
	if doc.Rejected != nil {
		return doc.Rejected
	}
	return a.validator.Validate(ctx, validation.Input{
		World:       &sc.World,
		Plan:        doc.Plan,
		Constraints: sc.Constraints,
		Goal:        goal,
		RecordTrace: trace,
	})
}

// parseGoalFlags turns slot=object pairs into a goal.
func parseGoalFlags(pairs []string) (*schema.Goal, error) {
	bySlot := make(map[string]string, len(pairs))
	for _, p := range pairs {
		slot, obj, ok := strings.Cut(p, "=")
		if !ok || slot == "" || obj == "" {
			return nil, schema.NewErrorf(schema.ErrCodeValidation, "invalid goal %q: want slot=object", p)
		}
		bySlot[slot] = obj
	}
	return schema.GoalFromSlotMap(bySlot), nil
}

func printVerdict(w io.Writer, v *schema.Verdict) {
	mark := "✓"
	if !v.OK {
		mark = "✗"
	}
	fmt.Fprintf(w, "%s %s (logic_ok=%t goal_ok=%t, %d step(s) executed)\n",
		mark, v.Phase, v.LogicOK, v.GoalOK, v.StepsExecuted)
	if v.FailedStep != schema.NoStep {
		fmt.Fprintf(w, "  failed at step %d\n", v.FailedStep)
	}
	if v.PartialGoal {
		fmt.Fprintln(w, "  goal checked against a truncated run")
	}
	for _, d := range v.Errors {
		fmt.Fprintf(w, "  %s\n", d.String())
	}
	for _, snap := range v.Trace {
		fmt.Fprintf(w, "  [%d] %s %s -> %s\n", snap.Step, snap.Agent, snap.Action, formatOccupancy(snap.Occupancy))
	}
}

func formatOccupancy(occ map[string]string) string {
	keys := make([]string, 0, len(occ))
	for k := range occ {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "=" + occ[k]
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
