package schema

import (
	"fmt"
	"slices"
	"sort"

	"github.com/invopop/jsonschema"
)

// DefaultAgent is the identity used for untagged steps in single-agent worlds.
const DefaultAgent = "robot"

// Occupancy maps a slot to the object it holds. An empty string means the slot is empty.
type Occupancy map[string]string

// JSONSchema allows null values so that documents can spell empty slots explicitly.
func (Occupancy) JSONSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type: "object",
		AdditionalProperties: &jsonschema.Schema{
			AnyOf: []*jsonschema.Schema{{Type: "string"}, {Type: "null"}},
		},
	}
}

// Clone returns an independent copy.
func (o Occupancy) Clone() Occupancy {
	out := make(Occupancy, len(o))
	for k, v := range o {
		out[k] = v
	}
	return out
}

// World is the static description of a scenario. It is never mutated during validation.
type World struct {
	Name         string            `json:"name" yaml:"name" jsonschema:"required,minLength=1"`
	Description  string            `json:"description,omitempty" yaml:"description,omitempty"`
	Slots        []string          `json:"slots" yaml:"slots" jsonschema:"required"`
	Poses        []string          `json:"poses" yaml:"poses" jsonschema:"required"`
	Objects      []string          `json:"objects" yaml:"objects" jsonschema:"required"`
	Agents       []string          `json:"agents,omitempty" yaml:"agents,omitempty"`
	SharedSlots  []string          `json:"shared_slots,omitempty" yaml:"shared_slots,omitempty"`
	Reachability map[string]string `json:"reachability" yaml:"reachability" jsonschema:"required"`
	Occupancy    Occupancy         `json:"occupancy,omitempty" yaml:"occupancy,omitempty"`
}

func (w *World) HasSlot(name string) bool   { return slices.Contains(w.Slots, name) }
func (w *World) HasPose(name string) bool   { return slices.Contains(w.Poses, name) }
func (w *World) HasObject(name string) bool { return slices.Contains(w.Objects, name) }

// HasAgent reports whether id is one of the world's acting agents.
func (w *World) HasAgent(id string) bool { return slices.Contains(w.AgentIDs(), id) }

// IsShared reports whether the slot is modeled as a mutual-exclusion resource.
func (w *World) IsShared(slot string) bool { return slices.Contains(w.SharedSlots, slot) }

// Dock returns the pose from which slot is reachable.
func (w *World) Dock(slot string) (string, bool) {
	d, ok := w.Reachability[slot]
	return d, ok
}

// AgentIDs returns the declared agents, or the single implicit DefaultAgent.
func (w *World) AgentIDs() []string {
	if len(w.Agents) == 0 {
		return []string{DefaultAgent}
	}
	return w.Agents
}

// MultiAgent reports whether steps must carry an explicit agent tag.
func (w *World) MultiAgent() bool { return len(w.AgentIDs()) > 1 }

// Check verifies the world's structural invariants.
func (w *World) Check() *ValidationResult {
	r := &ValidationResult{}
	if w.Name == "" {
		r.AddError("name", ErrCodeValidation, "world name is required")
	}

	checkNames(r, "slots", w.Slots)
	checkNames(r, "poses", w.Poses)
	checkNames(r, "objects", w.Objects)
	checkNames(r, "agents", w.Agents)

	for _, slot := range w.Slots {
		dock, ok := w.Reachability[slot]
		if !ok {
			r.AddError("reachability", ErrCodeValidation, fmt.Sprintf("slot %q has no reachable dock", slot))
			continue
		}
		if !w.HasPose(dock) {
			r.AddError("reachability."+slot, ErrCodeValidation, fmt.Sprintf("dock %q is not a declared pose", dock))
		}
	}
	for _, slot := range sortedKeys(w.Reachability) {
		if !w.HasSlot(slot) {
			r.AddError("reachability."+slot, ErrCodeValidation, fmt.Sprintf("unknown slot %q", slot))
		}
	}

	placed := make(map[string]string)
	for _, slot := range sortedKeys(w.Occupancy) {
		obj := w.Occupancy[slot]
		if !w.HasSlot(slot) {
			r.AddError("occupancy."+slot, ErrCodeValidation, fmt.Sprintf("unknown slot %q", slot))
		}
		if obj == "" {
			continue
		}
		if !w.HasObject(obj) {
			r.AddError("occupancy."+slot, ErrCodeValidation, fmt.Sprintf("unknown object %q", obj))
		}
		if prev, dup := placed[obj]; dup {
			r.AddError("occupancy."+slot, ErrCodeValidation,
				fmt.Sprintf("object %q already placed in %q", obj, prev))
		}
		placed[obj] = slot
	}

	for i, slot := range w.SharedSlots {
		if !w.HasSlot(slot) {
			r.AddError(fmt.Sprintf("shared_slots[%d]", i), ErrCodeValidation, fmt.Sprintf("unknown slot %q", slot))
		}
	}
	return r
}

func checkNames(r *ValidationResult, path string, names []string) {
	seen := make(map[string]bool, len(names))
	for i, n := range names {
		p := fmt.Sprintf("%s[%d]", path, i)
		if n == "" {
			r.AddError(p, ErrCodeValidation, "name must not be empty")
			continue
		}
		if seen[n] {
			r.AddError(p, ErrCodeValidation, fmt.Sprintf("duplicate name %q", n))
		}
		seen[n] = true
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Scenario bundles a world with its default goal and resource constraints.
// It is the on-disk document format for scenario files.
type Scenario struct {
	World       World        `json:"world" yaml:"world" jsonschema:"required"`
	Goal        *Goal        `json:"goal,omitempty" yaml:"goal,omitempty"`
	Constraints *Constraints `json:"constraints,omitempty" yaml:"constraints,omitempty"`
}

// Check validates the world plus goal and constraint references.
func (s *Scenario) Check() *ValidationResult {
	r := s.World.Check()
	if s.Goal != nil {
		for _, obj := range sortedKeys(s.Goal.Placements) {
			slot := s.Goal.Placements[obj]
			if !s.World.HasObject(obj) {
				r.AddError("goal.placements."+obj, ErrCodeValidation, fmt.Sprintf("unknown object %q", obj))
			}
			if !s.World.HasSlot(slot) {
				r.AddError("goal.placements."+obj, ErrCodeValidation, fmt.Sprintf("unknown slot %q", slot))
			}
		}
	}
	if s.Constraints != nil {
		for _, slot := range sortedKeys(s.Constraints.AllowedTargets) {
			if !s.World.HasSlot(slot) {
				r.AddWarning("constraints.allowed_targets."+slot, ErrCodeValidation,
					fmt.Sprintf("rules for unknown slot %q never apply", slot))
			}
		}
	}
	return r
}
