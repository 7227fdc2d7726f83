package diagram

import (
	"fmt"
	"sort"
	"strings"

	"github.com/rendis/plancheck/internal/actions"
	"github.com/rendis/plancheck/pkg/schema"
)

const (
	startID = "__start__"
	goalID  = "__goal__"
)

// Options tune Build. All fields are optional.
type Options struct {
	Title    string
	Registry actions.ActionRegistry // classifies steps; defaults to the built-in actions
	Verdict  *schema.Verdict
	// Initial is the occupancy before the first step, used to diff the first
	// trace snapshot.
	Initial schema.Occupancy
}

// Build constructs a DiagramModel for a plan. A nil plan yields only the
// start and goal nodes.
func Build(plan *schema.Plan, opts Options) *DiagramModel {
	reg := opts.Registry
	if reg == nil {
		reg = actions.NewDefaultRegistry()
	}
	title := opts.Title
	if title == "" {
		title = "Plan"
	}

	model := &DiagramModel{Title: title}
	model.Nodes = append(model.Nodes, &Node{ID: startID, Label: "Start", Kind: NodeKindStart})

	var steps []schema.Step
	if plan != nil {
		steps = plan.Steps
	}
	prev := startID
	for i, step := range steps {
		n := &Node{
			ID:    stepID(i),
			Label: stepLabel(i, step),
			Kind:  stepKind(reg, step.Action),
			Agent: step.Agent,
		}
		model.Nodes = append(model.Nodes, n)
		model.Edges = append(model.Edges, Edge{From: prev, To: n.ID})
		prev = n.ID
	}

	goal := &Node{ID: goalID, Label: "Goal", Kind: NodeKindGoal}
	model.Nodes = append(model.Nodes, goal)
	model.Edges = append(model.Edges, Edge{From: prev, To: goalID})

	if plan != nil && len(plan.Agents()) > 1 {
		model.Lanes = buildLanes(steps)
	}
	if opts.Verdict != nil {
		overlayVerdict(model, len(steps), opts.Verdict, opts.Initial)
	}
	return model
}

func stepID(i int) string { return fmt.Sprintf("step_%d", i) }

// stepLabel renders "i: action k=v, ...", leaving the agent to the lane.
func stepLabel(i int, step schema.Step) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d: %s", i, step.Action)
	names := step.ParamNames()
	if len(names) > 0 {
		b.WriteString(" ")
		for j, k := range names {
			if j > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "%s=%v", k, step.Params[k])
		}
	}
	return b.String()
}

func stepKind(reg actions.ActionRegistry, action string) NodeKind {
	s, err := reg.Get(action)
	if err != nil {
		return NodeKindUnknown
	}
	switch s.Kind {
	case actions.KindMove:
		return NodeKindMove
	case actions.KindPick:
		return NodeKindPick
	case actions.KindPlace:
		return NodeKindPlace
	case actions.KindWaitForFree:
		return NodeKindWait
	default:
		return NodeKindUnknown
	}
}

func buildLanes(steps []schema.Step) []Lane {
	index := make(map[string]int)
	var lanes []Lane
	for i, step := range steps {
		agent := step.Agent
		if agent == "" {
			agent = "untagged"
		}
		li, ok := index[agent]
		if !ok {
			li = len(lanes)
			index[agent] = li
			lanes = append(lanes, Lane{Agent: agent})
		}
		lanes[li].NodeIDs = append(lanes[li].NodeIDs, stepID(i))
	}
	return lanes
}

// overlayVerdict marks executed steps ok, the failing step failed and the
// rest skipped, and attaches occupancy changes from the trace.
func overlayVerdict(model *DiagramModel, n int, v *schema.Verdict, initial schema.Occupancy) {
	details := make(map[int]string)
	for _, d := range v.Errors {
		if d.Step >= 0 {
			if _, ok := details[d.Step]; !ok {
				details[d.Step] = d.String()
			}
		}
	}

	for i := 0; i < n; i++ {
		node := model.node(stepID(i))
		switch {
		case v.FailedStep >= 0 && i == v.FailedStep:
			node.Status = &StatusOverlay{Status: StatusFailed, Detail: details[i]}
		case v.FailedStep >= 0 && i > v.FailedStep:
			node.Status = &StatusOverlay{Status: StatusSkipped}
		case i < v.StepsExecuted:
			node.Status = &StatusOverlay{Status: StatusOK}
		default:
			node.Status = &StatusOverlay{Status: StatusSkipped}
		}
	}

	prev := occupied(initial)
	for _, snap := range v.Trace {
		node := model.node(stepID(snap.Step))
		if node == nil || node.Status == nil {
			continue
		}
		node.Status.Change = occupancyChanges(prev, snap.Occupancy)
		prev = snap.Occupancy
	}

	goal := model.node(goalID)
	if v.GoalOK {
		goal.Status = &StatusOverlay{Status: StatusOK}
		return
	}
	var msgs []string
	for _, d := range v.Errors {
		if d.Step < 0 {
			msgs = append(msgs, d.Message)
		}
	}
	goal.Status = &StatusOverlay{Status: StatusFailed, Detail: strings.Join(msgs, "; ")}
}

func occupied(o schema.Occupancy) map[string]string {
	out := make(map[string]string, len(o))
	for slot, obj := range o {
		if obj != "" {
			out[slot] = obj
		}
	}
	return out
}

func occupancyChanges(before, after map[string]string) []string {
	var changes []string
	for slot, obj := range after {
		if before[slot] != obj {
			changes = append(changes, slot+"="+obj)
		}
	}
	for slot := range before {
		if _, ok := after[slot]; !ok {
			changes = append(changes, slot+"=-")
		}
	}
	sort.Strings(changes)
	return changes
}
