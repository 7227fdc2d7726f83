package validation

import (
	"github.com/rendis/plancheck/pkg/schema"
)

// ValidPhaseTransitions lists the legal phase transitions of a validation run.
// Every rejected phase and accepted are terminal.
var ValidPhaseTransitions = map[schema.Phase][]schema.Phase{
	schema.PhaseRunning: {
		schema.PhaseRejectedSchema,
		schema.PhaseRejectedPrecondition,
		schema.PhaseRejectedInvariant,
		schema.PhaseRejectedGoal,
		schema.PhaseAccepted,
	},
}

// TransitionHook is called after a phase transition.
type TransitionHook func(from, to schema.Phase, step int)

// machine tracks the phase of a single run. It is not shared between runs.
type machine struct {
	phase schema.Phase
	hooks []TransitionHook
}

func newMachine(hooks []TransitionHook) *machine {
	return &machine{phase: schema.PhaseRunning, hooks: hooks}
}

// transition moves to the given phase or reports an illegal move.
func (m *machine) transition(to schema.Phase, step int) error {
	from := m.phase
	if !isValidPhaseTransition(from, to) {
		return schema.NewErrorf(schema.ErrCodeExecution,
			"invalid phase transition: %s -> %s", from, to).
			WithStep(step).
			WithDetails(map[string]any{"from": string(from), "to": string(to)})
	}
	m.phase = to
	for _, h := range m.hooks {
		h(from, to, step)
	}
	return nil
}

func (m *machine) running() bool {
	return m.phase == schema.PhaseRunning
}

func isValidPhaseTransition(from, to schema.Phase) bool {
	for _, a := range ValidPhaseTransitions[from] {
		if a == to {
			return true
		}
	}
	return false
}

// rejectionPhase maps a step diagnostic code to the phase it ends in.
func rejectionPhase(code schema.ReasonCode) schema.Phase {
	switch code {
	case schema.ReasonUnknownAction, schema.ReasonSchemaError:
		return schema.PhaseRejectedSchema
	case schema.ReasonPreconditionFailed, schema.ReasonConstraintViolation:
		return schema.PhaseRejectedPrecondition
	case schema.ReasonGoalUnsatisfied:
		return schema.PhaseRejectedGoal
	default:
		return schema.PhaseRejectedInvariant
	}
}
