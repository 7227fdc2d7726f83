package actions

import (
	"fmt"
	"sort"

	"github.com/rendis/plancheck/internal/state"
	"github.com/rendis/plancheck/pkg/schema"
)

// Parameter names used by the canonical actions.
const (
	ParamTarget = "target"
	ParamObject = "object"
	ParamFrom   = "from"
	ParamTo     = "to"
)

// Kind is the closed set of canonical action kinds.
type Kind int

const (
	KindMove Kind = iota
	KindPick
	KindPlace
	KindWaitForFree
)

var kindNames = [...]string{"move", "pick", "place", "wait_for_free"}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Call is a decoded step: one of Move, Pick, Place, WaitForFree.
type Call interface {
	Kind() Kind
	References() []Ref
	arg(a Arg) string
}

type Move struct{ Target string }
type Pick struct{ Object, From string }
type Place struct{ Object, To string }
type WaitForFree struct{ Target string }

func (Move) Kind() Kind        { return KindMove }
func (Pick) Kind() Kind        { return KindPick }
func (Place) Kind() Kind       { return KindPlace }
func (WaitForFree) Kind() Kind { return KindWaitForFree }

func (c Move) References() []Ref {
	return []Ref{{RefPose, ParamTarget, c.Target}}
}

func (c Pick) References() []Ref {
	return []Ref{{RefObject, ParamObject, c.Object}, {RefSlot, ParamFrom, c.From}}
}

func (c Place) References() []Ref {
	return []Ref{{RefObject, ParamObject, c.Object}, {RefSlot, ParamTo, c.To}}
}

func (c WaitForFree) References() []Ref {
	return []Ref{{RefSlot, ParamTarget, c.Target}}
}

func (c Move) arg(a Arg) string {
	if a == ArgTarget {
		return c.Target
	}
	return ""
}

func (c Pick) arg(a Arg) string {
	switch a {
	case ArgObject:
		return c.Object
	case ArgFrom:
		return c.From
	}
	return ""
}

func (c Place) arg(a Arg) string {
	switch a {
	case ArgObject:
		return c.Object
	case ArgTo:
		return c.To
	}
	return ""
}

func (c WaitForFree) arg(a Arg) string {
	if a == ArgTarget {
		return c.Target
	}
	return ""
}

// RefKind is the world namespace a parameter refers to.
type RefKind int

const (
	RefPose RefKind = iota
	RefSlot
	RefObject
)

func (k RefKind) String() string {
	switch k {
	case RefPose:
		return "pose"
	case RefSlot:
		return "slot"
	default:
		return "object"
	}
}

// Ref is a named world entity referenced by a call parameter.
type Ref struct {
	Kind  RefKind
	Param string
	Name  string
}

// ActionSchema is the field contract and symbolic semantics of an action.
type ActionSchema struct {
	Name          string
	Kind          Kind
	Description   string
	Required      []string
	Optional      []string
	Preconditions []PredicateTemplate
	Effects       []EffectTemplate
}

// Allowed returns required ∪ optional ∪ {agent}, sorted.
func (s *ActionSchema) Allowed() []string {
	out := []string{schema.FieldAgent}
	out = append(out, s.Required...)
	out = append(out, s.Optional...)
	sort.Strings(out)
	return out
}

func (s *ActionSchema) allows(field string) bool {
	if field == schema.FieldAgent {
		return true
	}
	for _, f := range s.Required {
		if f == field {
			return true
		}
	}
	for _, f := range s.Optional {
		if f == field {
			return true
		}
	}
	return false
}

// CheckFields returns missing required fields and fields outside the allowed set.
func (s *ActionSchema) CheckFields(step schema.Step) (missing, extra []string) {
	for _, f := range s.Required {
		if _, ok := step.Params[f]; !ok {
			missing = append(missing, f)
		}
	}
	for _, f := range step.ParamNames() {
		if !s.allows(f) {
			extra = append(extra, f)
		}
	}
	return missing, extra
}

// Decode builds the typed call for step. Fields must already have passed CheckFields.
func (s *ActionSchema) Decode(step schema.Step) (Call, error) {
	str := func(name string) (string, error) {
		v, ok := step.Params[name]
		if !ok {
			return "", fmt.Errorf("missing field '%s'", name)
		}
		out, ok := v.(string)
		if !ok {
			return "", fmt.Errorf("field '%s' must be a string, got %T", name, v)
		}
		return out, nil
	}

	switch s.Kind {
	case KindMove:
		target, err := str(ParamTarget)
		if err != nil {
			return nil, err
		}
		return Move{Target: target}, nil
	case KindPick:
		obj, err := str(ParamObject)
		if err != nil {
			return nil, err
		}
		from, err := str(ParamFrom)
		if err != nil {
			return nil, err
		}
		return Pick{Object: obj, From: from}, nil
	case KindPlace:
		obj, err := str(ParamObject)
		if err != nil {
			return nil, err
		}
		to, err := str(ParamTo)
		if err != nil {
			return nil, err
		}
		return Place{Object: obj, To: to}, nil
	case KindWaitForFree:
		target, err := str(ParamTarget)
		if err != nil {
			return nil, err
		}
		return WaitForFree{Target: target}, nil
	}
	return nil, fmt.Errorf("action %q has unsupported kind %s", s.Name, s.Kind)
}

// Conditions materializes the preconditions for call in declared order.
func (s *ActionSchema) Conditions(call Call) []state.Condition {
	out := make([]state.Condition, len(s.Preconditions))
	for i, t := range s.Preconditions {
		out[i] = t.Materialize(call)
	}
	return out
}

// StateEffects materializes the effects for call in declared order.
func (s *ActionSchema) StateEffects(call Call) []state.Effect {
	out := make([]state.Effect, len(s.Effects))
	for i, t := range s.Effects {
		out[i] = t.Materialize(call)
	}
	return out
}

// ActionInfo is a summary of a registered action for listing.
type ActionInfo struct {
	Name          string   `json:"name"`
	Kind          string   `json:"kind"`
	Description   string   `json:"description,omitempty"`
	Required      []string `json:"required"`
	Allowed       []string `json:"allowed"`
	Aliases       []string `json:"aliases,omitempty"`
	Preconditions []string `json:"preconditions"`
	Effects       []string `json:"effects"`
}
