package actions

import (
	"fmt"
	"strings"

	"github.com/rendis/plancheck/internal/state"
)

// Arg references a call parameter from a template. ArgNone stands for
// "nothing" (an empty hand or slot).
type Arg int

const (
	ArgNone Arg = iota
	ArgTarget
	ArgObject
	ArgFrom
	ArgTo
)

func (a Arg) String() string {
	switch a {
	case ArgTarget:
		return ParamTarget
	case ArgObject:
		return ParamObject
	case ArgFrom:
		return ParamFrom
	case ArgTo:
		return ParamTo
	default:
		return "none"
	}
}

func resolve(c Call, a Arg) string {
	if a == ArgNone {
		return ""
	}
	return c.arg(a)
}

// PredicateTemplate is a precondition over call parameters.
type PredicateTemplate struct {
	Pred   state.Predicate
	Pose   Arg
	Slot   Arg
	Object Arg
}

// Materialize binds the template to a call.
func (t PredicateTemplate) Materialize(c Call) state.Condition {
	return state.Condition{
		Pred:   t.Pred,
		Pose:   resolve(c, t.Pose),
		Slot:   resolve(c, t.Slot),
		Object: resolve(c, t.Object),
	}
}

func (t PredicateTemplate) String() string {
	var args []string
	switch t.Pred {
	case state.IsPose:
		args = []string{t.Pose.String()}
	case state.AtReach, state.SlotFree:
		args = []string{t.Slot.String()}
	case state.SlotHas:
		args = []string{t.Slot.String(), t.Object.String()}
	case state.HoldingIs:
		args = []string{t.Object.String()}
	}
	return fmt.Sprintf("%s(%s)", t.Pred, strings.Join(args, ", "))
}

// EffectTemplate is a state mutation over call parameters.
type EffectTemplate struct {
	Kind   state.EffectKind
	Pose   Arg
	Slot   Arg
	Object Arg
}

// Materialize binds the template to a call.
func (t EffectTemplate) Materialize(c Call) state.Effect {
	return state.Effect{
		Kind:   t.Kind,
		Pose:   resolve(c, t.Pose),
		Slot:   resolve(c, t.Slot),
		Object: resolve(c, t.Object),
	}
}

func (t EffectTemplate) String() string {
	var args []string
	switch t.Kind {
	case state.SetAt:
		args = []string{t.Pose.String()}
	case state.SlotSet:
		args = []string{t.Slot.String(), t.Object.String()}
	case state.HoldingSet:
		args = []string{t.Object.String()}
	}
	return fmt.Sprintf("%s(%s)", t.Kind, strings.Join(args, ", "))
}
