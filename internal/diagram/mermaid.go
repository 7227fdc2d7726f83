package diagram

import (
	"fmt"
	"strings"
)

// RenderMermaid renders a DiagramModel as a Mermaid flowchart string.
// Multi-agent plans get one subgraph per agent.
func RenderMermaid(model *DiagramModel) string {
	var b strings.Builder

	b.WriteString("graph TD\n")
	if model.Title != "" {
		b.WriteString(fmt.Sprintf("    %%%% %s\n", model.Title))
	}

	inLane := make(map[string]bool)
	for _, lane := range model.Lanes {
		b.WriteString(fmt.Sprintf("    subgraph %s[\"%s\"]\n", mermaidSafeID("lane_"+lane.Agent), lane.Agent))
		for _, id := range lane.NodeIDs {
			if n := model.node(id); n != nil {
				b.WriteString(fmt.Sprintf("        %s\n", mermaidNodeDef(n)))
				inLane[id] = true
			}
		}
		b.WriteString("    end\n")
	}
	for _, node := range model.Nodes {
		if !inLane[node.ID] {
			b.WriteString(fmt.Sprintf("    %s\n", mermaidNodeDef(node)))
		}
	}

	for _, edge := range model.Edges {
		label := ""
		if edge.Label != "" {
			label = fmt.Sprintf("|%s|", edge.Label)
		}
		b.WriteString(fmt.Sprintf("    %s -->%s %s\n",
			mermaidSafeID(edge.From), label, mermaidSafeID(edge.To)))
	}

	b.WriteString("\n")
	b.WriteString("    classDef ok fill:#2d6a2d,stroke:#1a4a1a,color:#fff\n")
	b.WriteString("    classDef failed fill:#8b1a1a,stroke:#5c0e0e,color:#fff\n")
	b.WriteString("    classDef skipped fill:#4a4a4a,stroke:#333,color:#aaa,stroke-dasharray:5 5\n")

	for _, node := range model.Nodes {
		if node.Status != nil {
			b.WriteString(fmt.Sprintf("    class %s %s\n", mermaidSafeID(node.ID), node.Status.Status))
		}
	}

	return b.String()
}

// mermaidNodeDef returns a Mermaid node definition with the shape of its kind.
func mermaidNodeDef(node *Node) string {
	id := mermaidSafeID(node.ID)
	label := mermaidEscapeLabel(nodeText(node))

	switch node.Kind {
	case NodeKindMove:
		return fmt.Sprintf("%s>\"%s\"]", id, label)
	case NodeKindPick, NodeKindPlace:
		return fmt.Sprintf("%s[\"%s\"]", id, label)
	case NodeKindWait:
		return fmt.Sprintf("%s([\"%s\"])", id, label)
	case NodeKindStart:
		return fmt.Sprintf("%s((\"%s\"))", id, label)
	case NodeKindGoal:
		return fmt.Sprintf("%s{{\"%s\"}}", id, label)
	default:
		return fmt.Sprintf("%s[/\"%s\"/]", id, label)
	}
}

// nodeText is the label plus occupancy changes and the failure detail.
func nodeText(node *Node) string {
	text := node.Label
	if node.Status == nil {
		return text
	}
	if len(node.Status.Change) > 0 {
		text += "<br/>" + strings.Join(node.Status.Change, " ")
	}
	if node.Status.Detail != "" {
		text += "<br/>" + node.Status.Detail
	}
	return text
}

// mermaidSafeID converts a node ID to a Mermaid-safe identifier.
func mermaidSafeID(id string) string {
	r := strings.NewReplacer(".", "_", "-", "_", " ", "_")
	return r.Replace(id)
}

// mermaidEscapeLabel replaces double quotes, which end a quoted label.
func mermaidEscapeLabel(s string) string {
	return strings.ReplaceAll(s, `"`, "#quot;")
}
