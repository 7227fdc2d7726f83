package actions

import "github.com/rendis/plancheck/internal/state"

// Canonical action names.
const (
	ActionMove        = "move"
	ActionPick        = "pick"
	ActionPlace       = "place"
	ActionWaitForFree = "wait_for_free"
)

// BuiltinAliases maps the dotted vocabulary used by generated plans to the canonical names.
var BuiltinAliases = map[string]string{
	"base.goto":       ActionMove,
	"arm.pick":        ActionPick,
	"arm.place":       ActionPlace,
	"wait_until_free": ActionWaitForFree,
}

// BuiltinSchemas returns fresh copies of the canonical action schemas.
func BuiltinSchemas() []*ActionSchema {
	return []*ActionSchema{
		{
			Name:        ActionMove,
			Kind:        KindMove,
			Description: "Drive the agent's base to a pose",
			Required:    []string{ParamTarget},
			Preconditions: []PredicateTemplate{
				{Pred: state.IsPose, Pose: ArgTarget},
			},
			Effects: []EffectTemplate{
				{Kind: state.SetAt, Pose: ArgTarget},
			},
		},
		{
			Name:        ActionPick,
			Kind:        KindPick,
			Description: "Pick an object out of a slot reachable from the agent's pose",
			Required:    []string{ParamObject, ParamFrom},
			Preconditions: []PredicateTemplate{
				{Pred: state.AtReach, Slot: ArgFrom},
				{Pred: state.SlotHas, Slot: ArgFrom, Object: ArgObject},
				{Pred: state.HoldingIs, Object: ArgNone},
			},
			Effects: []EffectTemplate{
				{Kind: state.SlotSet, Slot: ArgFrom, Object: ArgNone},
				{Kind: state.HoldingSet, Object: ArgObject},
			},
		},
		{
			Name:        ActionPlace,
			Kind:        KindPlace,
			Description: "Place the held object into an empty slot reachable from the agent's pose",
			Required:    []string{ParamObject, ParamTo},
			Preconditions: []PredicateTemplate{
				{Pred: state.AtReach, Slot: ArgTo},
				{Pred: state.HoldingIs, Object: ArgObject},
				{Pred: state.SlotFree, Slot: ArgTo},
			},
			Effects: []EffectTemplate{
				{Kind: state.SlotSet, Slot: ArgTo, Object: ArgObject},
				{Kind: state.HoldingSet, Object: ArgNone},
			},
		},
		{
			Name:        ActionWaitForFree,
			Kind:        KindWaitForFree,
			Description: "Synchronization checkpoint: the slot must be empty and not busy",
			Required:    []string{ParamTarget},
			Preconditions: []PredicateTemplate{
				{Pred: state.SlotFree, Slot: ArgTarget},
			},
		},
	}
}

// RegisterBuiltins registers the canonical actions and their aliases.
func RegisterBuiltins(reg *Registry) error {
	for _, s := range BuiltinSchemas() {
		if err := reg.Register(s); err != nil {
			return err
		}
	}
	for alias, name := range BuiltinAliases {
		if err := reg.Alias(alias, name); err != nil {
			return err
		}
	}
	return nil
}

// NewDefaultRegistry returns a registry with the builtins installed.
func NewDefaultRegistry() *Registry {
	reg := NewRegistry()
	if err := RegisterBuiltins(reg); err != nil {
		// Builtin names are fixed; a conflict here is a programming error.
		panic(err)
	}
	return reg
}
