package schema

import (
	"fmt"
	"strings"
)

// ReasonCode classifies a diagnostic.
type ReasonCode string

const (
	ReasonUnknownAction       ReasonCode = "unknown_action"
	ReasonSchemaError         ReasonCode = "schema_error"
	ReasonPreconditionFailed  ReasonCode = "precondition_failed"
	ReasonConstraintViolation ReasonCode = "constraint_violation"
	ReasonInvariantBroken     ReasonCode = "invariant_broken"
	ReasonGoalUnsatisfied     ReasonCode = "goal_unsatisfied"
)

// Phase is the validator machine state. All phases except PhaseRunning are terminal.
type Phase string

const (
	PhaseRunning              Phase = "running"
	PhaseRejectedSchema       Phase = "rejected_schema"
	PhaseRejectedPrecondition Phase = "rejected_precondition"
	PhaseRejectedInvariant    Phase = "rejected_invariant"
	PhaseRejectedGoal         Phase = "rejected_goal"
	PhaseAccepted             Phase = "accepted"
)

// IsTerminal returns true if the phase ends a validation run.
func (p Phase) IsTerminal() bool {
	return p != PhaseRunning
}

// NoStep is the step index of diagnostics that are not attributed to a step.
const NoStep = -1

// Diagnostic is one machine-classifiable finding.
type Diagnostic struct {
	Step      int        `json:"step"`
	Code      ReasonCode `json:"code"`
	Agent     string     `json:"agent,omitempty"`
	Action    string     `json:"action,omitempty"`
	Predicate string     `json:"predicate,omitempty"`
	Expected  string     `json:"expected,omitempty"`
	Actual    string     `json:"actual,omitempty"`
	Missing   []string   `json:"missing,omitempty"`
	Extra     []string   `json:"extra,omitempty"`
	Message   string     `json:"message"`
}

// String renders "[i] code (agent): predicate -> message". Diagnostics with
// no step index drop the "[i] " prefix.
func (d Diagnostic) String() string {
	var b strings.Builder
	if d.Step >= 0 {
		fmt.Fprintf(&b, "[%d] ", d.Step)
	}
	b.WriteString(string(d.Code))
	if d.Agent != "" {
		fmt.Fprintf(&b, " (%s)", d.Agent)
	}
	b.WriteString(": ")
	if d.Predicate != "" {
		b.WriteString(d.Predicate)
		b.WriteString(" -> ")
	}
	b.WriteString(d.Message)
	return b.String()
}

// StateSnapshot is the symbolic state after a step. Empty slots and hands
// are omitted from the maps.
type StateSnapshot struct {
	Step      int               `json:"step"`
	Agent     string            `json:"agent,omitempty"`
	Action    string            `json:"action,omitempty"`
	Occupancy map[string]string `json:"occupancy"`
	Holding   map[string]string `json:"holding,omitempty"`
	AgentAt   map[string]string `json:"agent_at,omitempty"`
}

// Verdict is the outcome of validating one plan.
type Verdict struct {
	OK            bool            `json:"ok"`
	LogicOK       bool            `json:"logic_ok"`
	GoalOK        bool            `json:"goal_ok"`
	Phase         Phase           `json:"phase"`
	Errors        []Diagnostic    `json:"errors"`
	StepsExecuted int             `json:"steps_executed"`
	FailedStep    int             `json:"failed_step"`
	PartialGoal   bool            `json:"partial_goal,omitempty"`
	Final         *StateSnapshot  `json:"final,omitempty"`
	Trace         []StateSnapshot `json:"trace,omitempty"`
}

// Messages returns the rendered diagnostics in order.
func (v *Verdict) Messages() []string {
	out := make([]string, len(v.Errors))
	for i, d := range v.Errors {
		out[i] = d.String()
	}
	return out
}

// FirstError returns the first diagnostic with the given code, if any.
func (v *Verdict) FirstError(code ReasonCode) (Diagnostic, bool) {
	for _, d := range v.Errors {
		if d.Code == code {
			return d, true
		}
	}
	return Diagnostic{}, false
}

// RejectedDocument returns the verdict for a plan document that could not be
// interpreted as a step list at all.
func RejectedDocument(message string) *Verdict {
	return &Verdict{
		Phase:      PhaseRejectedSchema,
		FailedStep: NoStep,
		Errors: []Diagnostic{{
			Step:    NoStep,
			Code:    ReasonSchemaError,
			Message: message,
		}},
	}
}
