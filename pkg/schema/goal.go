package schema

// Goal is the required final configuration. Placements maps object to slot;
// Conditions are CEL boolean expressions over the final state.
type Goal struct {
	Placements map[string]string `json:"placements,omitempty" yaml:"placements,omitempty"`
	Conditions []string          `json:"conditions,omitempty" yaml:"conditions,omitempty"`
}

// Empty reports whether the goal imposes nothing.
func (g *Goal) Empty() bool {
	return g == nil || (len(g.Placements) == 0 && len(g.Conditions) == 0)
}

// Objects returns the goal's objects in sorted order.
func (g *Goal) Objects() []string {
	if g == nil {
		return nil
	}
	return sortedKeys(g.Placements)
}

// GoalFromSlotMap builds a goal from a slot -> object mapping, the shape
// reference plans record. Empty slot entries are ignored.
func GoalFromSlotMap(bySlot map[string]string) *Goal {
	g := &Goal{Placements: make(map[string]string, len(bySlot))}
	for _, slot := range sortedKeys(bySlot) {
		if obj := bySlot[slot]; obj != "" {
			g.Placements[obj] = slot
		}
	}
	return g
}

// Constraints restricts which objects may be placed into a slot.
// A slot absent from AllowedTargets is unrestricted; a slot mapped to an
// empty rule list admits nothing.
type Constraints struct {
	AllowedTargets map[string][]string `json:"allowed_targets,omitempty" yaml:"allowed_targets,omitempty"`
}

// Rules returns the allow-list for slot and whether the slot is restricted.
func (c *Constraints) Rules(slot string) ([]string, bool) {
	if c == nil || c.AllowedTargets == nil {
		return nil, false
	}
	rules, ok := c.AllowedTargets[slot]
	return rules, ok
}
