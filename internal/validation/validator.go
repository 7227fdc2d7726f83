package validation

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/rendis/plancheck/internal/actions"
	"github.com/rendis/plancheck/internal/expressions"
	"github.com/rendis/plancheck/internal/logging"
	"github.com/rendis/plancheck/internal/state"
	"github.com/rendis/plancheck/pkg/schema"
)

// Input is everything one validation run needs. World and registry are
// read-only; Constraints and Goal are optional.
type Input struct {
	World       *schema.World
	Plan        *schema.Plan
	Constraints *schema.Constraints
	Goal        *schema.Goal
	RecordTrace bool
}

// Config holds optional validator dependencies.
type Config struct {
	Logger *slog.Logger
	Hooks  []TransitionHook
	Expr   *expressions.ExprEngine // for "expr:" allow-list rules (nil = private engine)
}

// Validator checks plans against a world model. It keeps no per-run state
// and is safe for concurrent use.
type Validator struct {
	actions actions.ActionRegistry
	logger  *slog.Logger
	hooks   []TransitionHook
	matcher *Matcher
	cel     *expressions.CELEngine
}

// New creates a Validator over the given action registry.
func New(registry actions.ActionRegistry, cfg Config) *Validator {
	if registry == nil {
		registry = actions.NewDefaultRegistry()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Discard()
	}

	// CEL engine is optional; goal conditions report an error diagnostic without it.
	celEngine, err := expressions.NewCELEngine()
	if err != nil {
		logger.Warn("CEL engine unavailable, goal conditions disabled", "error", err)
	}

	return &Validator{
		actions: registry,
		logger:  logger,
		hooks:   cfg.Hooks,
		matcher: NewMatcher(cfg.Expr),
		cel:     celEngine,
	}
}

// run is the state of one Validate call.
type run struct {
	in      Input
	st      *state.State
	m       *machine
	verdict *schema.Verdict
}

// Validate runs the step protocol over the plan and then evaluates the goal.
// Malformed input produces a rejected verdict; it never panics or returns an error.
// ctx is used for log correlation only.
func (v *Validator) Validate(ctx context.Context, in Input) *schema.Verdict {
	if in.World == nil {
		return schema.RejectedDocument("world is required")
	}
	if r := in.World.Check(); !r.Valid() {
		return schema.RejectedDocument("invalid world: " + r.Summary())
	}
	if in.Plan == nil {
		return schema.RejectedDocument("plan missing 'steps' list")
	}

	r := &run{
		in: in,
		st: state.New(in.World),
		m:  newMachine(v.hooks),
		verdict: &schema.Verdict{
			Phase:      schema.PhaseRunning,
			FailedStep: schema.NoStep,
		},
	}

	for i, step := range in.Plan.Steps {
		next, diag := v.step(logging.WithStep(ctx, i), r, i, step)
		if diag != nil {
			// Effects stand once preconditions pass, even if a later check rejects.
			if next != nil {
				r.st = next
			}
			v.reject(ctx, r, *diag)
			break
		}
		r.st = next
		r.verdict.StepsExecuted++
		if in.RecordTrace {
			r.verdict.Trace = append(r.verdict.Trace, next.Snapshot(i, step.Agent, step.Action))
		}
	}

	logicOK := r.m.running()
	goalDiags := v.checkGoal(ctx, r.st, in.Goal)

	r.verdict.LogicOK = logicOK
	r.verdict.GoalOK = len(goalDiags) == 0
	r.verdict.OK = logicOK && r.verdict.GoalOK
	r.verdict.PartialGoal = !logicOK && !in.Goal.Empty()
	r.verdict.Errors = append(r.verdict.Errors, goalDiags...)

	if logicOK {
		to := schema.PhaseAccepted
		if !r.verdict.GoalOK {
			to = schema.PhaseRejectedGoal
		}
		if err := r.m.transition(to, schema.NoStep); err != nil {
			v.logger.ErrorContext(ctx, "phase machine", "error", err)
		}
	}
	r.verdict.Phase = r.m.phase

	final := r.st.Snapshot(r.verdict.StepsExecuted-1, "", "")
	r.verdict.Final = &final

	v.logger.DebugContext(ctx, "plan validated",
		"phase", r.verdict.Phase,
		"logic_ok", r.verdict.LogicOK,
		"goal_ok", r.verdict.GoalOK,
		"steps_executed", r.verdict.StepsExecuted)
	return r.verdict
}

// reject records the failing diagnostic and moves the machine to the matching phase.
func (v *Validator) reject(ctx context.Context, r *run, d schema.Diagnostic) {
	r.verdict.Errors = append(r.verdict.Errors, d)
	r.verdict.FailedStep = d.Step
	if err := r.m.transition(rejectionPhase(d.Code), d.Step); err != nil {
		r.verdict.Errors = append(r.verdict.Errors, schema.Diagnostic{
			Step:    d.Step,
			Code:    schema.ReasonInvariantBroken,
			Message: err.Error(),
		})
	}
	v.logger.DebugContext(logging.WithStep(ctx, d.Step), "step rejected",
		"code", d.Code, "agent", d.Agent, "message", d.Message)
}

// step runs the per-step protocol and returns the successor state, or the
// diagnostic that rejects the plan. Rejections after effect application
// return the successor state along with the diagnostic.
func (v *Validator) step(ctx context.Context, r *run, i int, step schema.Step) (*state.State, *schema.Diagnostic) {
	w := r.in.World
	diag := func(code schema.ReasonCode, agent, msg string) *schema.Diagnostic {
		return &schema.Diagnostic{Step: i, Code: code, Agent: agent, Action: step.Action, Message: msg}
	}

	// 1. Action lookup.
	sch, err := v.actions.Get(step.Action)
	if err != nil {
		return nil, diag(schema.ReasonUnknownAction, step.Agent, fmt.Sprintf("unknown action '%s'", step.Action))
	}

	// 2. Field schema and agent resolution.
	missing, extra := sch.CheckFields(step)
	if len(missing) > 0 || len(extra) > 0 {
		d := diag(schema.ReasonSchemaError, step.Agent, fieldMessage(missing, extra))
		d.Missing, d.Extra = missing, extra
		return nil, d
	}
	agent, msg := resolveAgent(w, step.Agent)
	if msg != "" {
		return nil, diag(schema.ReasonSchemaError, step.Agent, msg)
	}
	ctx = logging.WithAgent(ctx, agent)

	call, err := sch.Decode(step)
	if err != nil {
		return nil, diag(schema.ReasonSchemaError, agent, err.Error())
	}

	// 3. Referential check.
	if msgs := unknownRefs(w, call); len(msgs) > 0 {
		return nil, diag(schema.ReasonSchemaError, agent, strings.Join(msgs, "; "))
	}

	// 4. Preconditions in declared order, first failure wins.
	for _, cond := range sch.Conditions(call) {
		out := r.st.Check(agent, cond)
		if !out.OK {
			d := diag(schema.ReasonPreconditionFailed, agent, out.Reason)
			d.Predicate = out.Pred.String()
			d.Expected = out.Expected
			d.Actual = out.Actual
			return nil, d
		}
	}

	// 5. Effects, computed on a copy.
	next := r.st.Apply(agent, sch.StateEffects(call))

	// 6. Allow-list on placement.
	if place, ok := call.(actions.Place); ok {
		if rules, restricted := r.in.Constraints.Rules(place.To); restricted {
			allowed, problems := v.matcher.Allowed(ctx, rules, place.Object, place.To)
			if !allowed {
				msg := fmt.Sprintf("'%s' not allowed in '%s'", place.Object, place.To)
				if len(problems) > 0 {
					msg += " (" + strings.Join(problems, "; ") + ")"
				}
				d := diag(schema.ReasonConstraintViolation, agent, msg)
				d.Expected = strings.Join(rules, ", ")
				d.Actual = place.Object
				return next, d
			}
		}
	}

	// 7. Global invariant.
	if err := next.Invariants(); err != nil {
		return next, diag(schema.ReasonInvariantBroken, agent, err.Error())
	}

	v.logger.DebugContext(ctx, "step accepted", "action", sch.Name)
	return next, nil
}

// resolveAgent returns the acting agent, or a schema error message.
func resolveAgent(w *schema.World, tag string) (string, string) {
	if tag == "" {
		if w.MultiAgent() {
			return "", fmt.Sprintf("missing agent tag in multi-agent world (agents: %s)", strings.Join(w.AgentIDs(), ", "))
		}
		return w.AgentIDs()[0], ""
	}
	if !w.HasAgent(tag) {
		return "", fmt.Sprintf("unknown agent '%s'", tag)
	}
	return tag, ""
}

func unknownRefs(w *schema.World, call actions.Call) []string {
	var msgs []string
	for _, ref := range call.References() {
		var known bool
		switch ref.Kind {
		case actions.RefPose:
			known = w.HasPose(ref.Name)
		case actions.RefSlot:
			known = w.HasSlot(ref.Name)
		case actions.RefObject:
			known = w.HasObject(ref.Name)
		}
		if !known {
			msgs = append(msgs, fmt.Sprintf("unknown %s '%s'", ref.Kind, ref.Name))
		}
	}
	return msgs
}

func fieldMessage(missing, extra []string) string {
	var parts []string
	if len(missing) > 0 {
		parts = append(parts, fmt.Sprintf("missing fields [%s]", strings.Join(missing, ", ")))
	}
	if len(extra) > 0 {
		parts = append(parts, fmt.Sprintf("unknown fields [%s]", strings.Join(extra, ", ")))
	}
	return strings.Join(parts, "; ")
}
