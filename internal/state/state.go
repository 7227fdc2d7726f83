// Package state holds the symbolic world state of a single validation run.
package state

import (
	"fmt"
	"sort"
	"strings"

	"github.com/rendis/plancheck/pkg/schema"
)

// None renders an empty slot, hand, or pose in diagnostics.
const None = "none"

// Predicate is a closed set of state queries used as preconditions.
type Predicate int

const (
	IsPose Predicate = iota
	AtReach
	SlotHas
	SlotFree
	HoldingIs
)

var predicateNames = [...]string{"is_pose", "at_reach", "slot_has", "slot_free", "holding_is"}

func (p Predicate) String() string {
	if int(p) < len(predicateNames) {
		return predicateNames[p]
	}
	return fmt.Sprintf("predicate(%d)", int(p))
}

// Condition is a materialized predicate. Unused fields are empty; an empty
// Object on HoldingIs means "holding nothing".
type Condition struct {
	Pred   Predicate
	Pose   string
	Slot   string
	Object string
}

// EffectKind is a closed set of state mutations.
type EffectKind int

const (
	SetAt EffectKind = iota
	SlotSet
	HoldingSet
)

var effectNames = [...]string{"set_at", "slot_set", "holding_set"}

func (k EffectKind) String() string {
	if int(k) < len(effectNames) {
		return effectNames[k]
	}
	return fmt.Sprintf("effect(%d)", int(k))
}

// Effect is a materialized effect. An empty Object clears the slot or hand.
type Effect struct {
	Kind   EffectKind
	Pose   string
	Slot   string
	Object string
}

// Outcome is the result of checking one condition.
type Outcome struct {
	OK       bool
	Pred     Predicate
	Expected string
	Actual   string
	Reason   string
}

// State is the mutable symbolic state: slot occupancy, per-agent holding
// and pose, and busy flags for shared slots.
type State struct {
	world     *schema.World
	occupancy map[string]string
	holding   map[string]string
	agentAt   map[string]string
	busy      map[string]bool
	initial   []string
}

// New seeds a state from the world's initial occupancy. Agents start at no
// pose holding nothing.
func New(w *schema.World) *State {
	s := &State{
		world:     w,
		occupancy: make(map[string]string, len(w.Slots)),
		holding:   make(map[string]string),
		agentAt:   make(map[string]string),
		busy:      make(map[string]bool, len(w.SharedSlots)),
	}
	for _, slot := range w.Slots {
		s.occupancy[slot] = w.Occupancy[slot]
	}
	for _, a := range w.AgentIDs() {
		s.holding[a] = ""
		s.agentAt[a] = ""
	}
	for _, slot := range w.SharedSlots {
		s.busy[slot] = s.occupancy[slot] != ""
	}
	s.initial = s.presentObjects()
	return s
}

// Clone returns an independent copy.
func (s *State) Clone() *State {
	c := &State{
		world:     s.world,
		occupancy: cloneMap(s.occupancy),
		holding:   cloneMap(s.holding),
		agentAt:   cloneMap(s.agentAt),
		busy:      make(map[string]bool, len(s.busy)),
		initial:   s.initial,
	}
	for k, v := range s.busy {
		c.busy[k] = v
	}
	return c
}

// Occupant returns the object in slot, or "" when empty.
func (s *State) Occupant(slot string) string { return s.occupancy[slot] }

// Holding returns what agent holds, or "".
func (s *State) Holding(agent string) string { return s.holding[agent] }

// At returns the agent's current pose, or "" if it has not moved yet.
func (s *State) At(agent string) string { return s.agentAt[agent] }

// Busy reports the shared-resource flag of slot.
func (s *State) Busy(slot string) bool { return s.busy[slot] }

// Check evaluates one condition for agent. It never mutates the state.
func (s *State) Check(agent string, c Condition) Outcome {
	out := Outcome{Pred: c.Pred, OK: true}
	switch c.Pred {
	case IsPose:
		out.Expected = "pose " + c.Pose
		if !s.world.HasPose(c.Pose) {
			out.OK = false
			out.Actual = "unknown"
			out.Reason = fmt.Sprintf("unknown pose '%s'", c.Pose)
		}
	case AtReach:
		dock, ok := s.world.Dock(c.Slot)
		at := s.agentAt[agent]
		out.Expected = dock
		out.Actual = show(at)
		if !ok {
			out.OK = false
			out.Reason = fmt.Sprintf("slot '%s' has no reachable dock", c.Slot)
		} else if at != dock {
			out.OK = false
			out.Reason = fmt.Sprintf("%s not at dock '%s' (at=%s)", agent, dock, show(at))
		}
	case SlotHas:
		have := s.occupancy[c.Slot]
		out.Expected = c.Object
		out.Actual = show(have)
		if have != c.Object {
			out.OK = false
			if s.busy[c.Slot] {
				out.Reason = fmt.Sprintf("%s busy with %s, cannot access for %s", c.Slot, show(have), c.Object)
			} else {
				out.Reason = fmt.Sprintf("%s has %s not %s", c.Slot, show(have), c.Object)
			}
		}
	case SlotFree:
		have := s.occupancy[c.Slot]
		out.Expected = None
		out.Actual = show(have)
		if s.busy[c.Slot] {
			out.OK = false
			out.Reason = fmt.Sprintf("%s currently occupied by %s (shared resource)", c.Slot, show(have))
		} else if have != "" {
			out.OK = false
			out.Reason = fmt.Sprintf("%s occupied by %s", c.Slot, have)
		}
	case HoldingIs:
		held := s.holding[agent]
		out.Expected = show(c.Object)
		out.Actual = show(held)
		if held != c.Object {
			out.OK = false
			out.Reason = fmt.Sprintf("%s holding=%s != %s", agent, show(held), show(c.Object))
		}
	default:
		out.OK = false
		out.Reason = fmt.Sprintf("unsupported predicate %s", c.Pred)
	}
	return out
}

// Apply returns a new state with all effects applied for agent. The
// receiver is left untouched, so a step's effects are observed all at once.
func (s *State) Apply(agent string, effects []Effect) *State {
	next := s.Clone()
	for _, e := range effects {
		switch e.Kind {
		case SetAt:
			next.agentAt[agent] = e.Pose
		case SlotSet:
			next.occupancy[e.Slot] = e.Object
			if _, shared := next.busy[e.Slot]; shared {
				next.busy[e.Slot] = e.Object != ""
			}
		case HoldingSet:
			next.holding[agent] = e.Object
		}
	}
	return next
}

// Invariants checks that no object is duplicated, created, or destroyed and
// that shared-slot flags agree with occupancy.
func (s *State) Invariants() error {
	counts := make(map[string]int)
	for _, obj := range s.occupancy {
		if obj != "" {
			counts[obj]++
		}
	}
	for _, obj := range s.holding {
		if obj != "" {
			counts[obj]++
		}
	}
	var dup []string
	for obj, n := range counts {
		if n > 1 {
			dup = append(dup, obj)
		}
	}
	if len(dup) > 0 {
		sort.Strings(dup)
		return fmt.Errorf("duplicate object(s): [%s]", strings.Join(dup, ", "))
	}

	for _, slot := range sortedKeys(s.busy) {
		if s.busy[slot] != (s.occupancy[slot] != "") {
			return fmt.Errorf("%s busy flag inconsistent with slot content (%s)", slot, show(s.occupancy[slot]))
		}
	}

	present := s.presentObjects()
	if strings.Join(present, ",") != strings.Join(s.initial, ",") {
		return fmt.Errorf("object set changed: had [%s], now [%s]",
			strings.Join(s.initial, ", "), strings.Join(present, ", "))
	}
	return nil
}

// Satisfies reports whether obj currently sits in slot, with the actual occupant.
func (s *State) Satisfies(obj, slot string) (bool, string) {
	have := s.occupancy[slot]
	return have == obj, have
}

// Snapshot captures the state after a step. Empty entries are omitted.
func (s *State) Snapshot(step int, agent, action string) schema.StateSnapshot {
	return schema.StateSnapshot{
		Step:      step,
		Agent:     agent,
		Action:    action,
		Occupancy: nonEmpty(s.occupancy),
		Holding:   nonEmpty(s.holding),
		AgentAt:   nonEmpty(s.agentAt),
	}
}

// Vars exposes the state as plain maps for expression evaluation.
func (s *State) Vars() map[string]any {
	return map[string]any{
		"occupancy": toAny(s.occupancy),
		"holding":   toAny(s.holding),
		"agent_at":  toAny(s.agentAt),
	}
}

func (s *State) presentObjects() []string {
	var out []string
	for _, obj := range s.occupancy {
		if obj != "" {
			out = append(out, obj)
		}
	}
	for _, obj := range s.holding {
		if obj != "" {
			out = append(out, obj)
		}
	}
	sort.Strings(out)
	return out
}

func show(v string) string {
	if v == "" {
		return None
	}
	return v
}

func cloneMap(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func nonEmpty(m map[string]string) map[string]string {
	out := make(map[string]string)
	for k, v := range m {
		if v != "" {
			out[k] = v
		}
	}
	return out
}

func toAny(m map[string]string) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
