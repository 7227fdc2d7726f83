// Package diagram renders a plan, optionally overlaid with its verdict and
// occupancy trace, as Mermaid, ASCII, or a graphviz PNG.
package diagram

// NodeKind classifies a diagram node by its action kind.
type NodeKind string

const (
	NodeKindMove    NodeKind = "move"
	NodeKindPick    NodeKind = "pick"
	NodeKindPlace   NodeKind = "place"
	NodeKindWait    NodeKind = "wait"
	NodeKindUnknown NodeKind = "unknown"
	NodeKindStart   NodeKind = "start"
	NodeKindGoal    NodeKind = "goal"
)

// Node statuses set from a verdict.
const (
	StatusOK      = "ok"
	StatusFailed  = "failed"
	StatusSkipped = "skipped"
)

// DiagramModel is the intermediate representation used by all renderers.
type DiagramModel struct {
	Title string
	Nodes []*Node
	Edges []Edge
	// Lanes groups step nodes by agent. Empty for single-agent plans.
	Lanes []Lane
}

// Node represents one plan step, or the virtual start and goal nodes.
type Node struct {
	ID     string
	Label  string
	Kind   NodeKind
	Agent  string
	Status *StatusOverlay
}

// StatusOverlay carries the verdict outcome for a node.
type StatusOverlay struct {
	Status string
	Detail string   // diagnostic message on failure
	Change []string // occupancy changes, "slot=object" or "slot=-"
}

// Lane is the ordered set of step nodes executed by one agent.
type Lane struct {
	Agent   string
	NodeIDs []string
}

// Edge represents execution order between two nodes.
type Edge struct {
	From  string
	To    string
	Label string
}

func (m *DiagramModel) node(id string) *Node {
	for _, n := range m.Nodes {
		if n.ID == id {
			return n
		}
	}
	return nil
}
