package diagram

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// statusTag returns a short ASCII indicator for a status string.
func statusTag(status string) string {
	switch status {
	case StatusOK:
		return "[OK]"
	case StatusFailed:
		return "[FAIL]"
	case StatusSkipped:
		return "[SKIP]"
	default:
		return ""
	}
}

// RenderASCII renders a DiagramModel as a vertical chain of boxes, one per
// step, in execution order.
func RenderASCII(model *DiagramModel) string {
	var b strings.Builder

	if model.Title != "" {
		b.WriteString(fmt.Sprintf("=== %s ===\n\n", model.Title))
	}

	for i, node := range model.Nodes {
		box := makeBox(node)
		for _, line := range box.lines {
			b.WriteString(line)
			b.WriteByte('\n')
		}
		if i < len(model.Nodes)-1 {
			renderConnector(&b)
		}
	}

	if len(model.Lanes) > 0 {
		b.WriteString("\n--- agents ---\n")
		for _, lane := range model.Lanes {
			steps := make([]string, len(lane.NodeIDs))
			for i, id := range lane.NodeIDs {
				steps[i] = strings.TrimPrefix(id, "step_")
			}
			b.WriteString(fmt.Sprintf("  %s: %s\n", lane.Agent, strings.Join(steps, " ")))
		}
	}

	return b.String()
}

// asciiBox holds the rendered lines of a single box.
type asciiBox struct {
	lines []string
	width int
}

// makeBox creates an ASCII box for a node.
func makeBox(node *Node) asciiBox {
	label := node.Label
	if node.Agent != "" {
		label = node.Agent + " | " + label
	}
	contentLines := []string{label}

	if node.Status != nil {
		if tag := statusTag(node.Status.Status); tag != "" {
			contentLines = append(contentLines, tag)
		}
		if len(node.Status.Change) > 0 {
			contentLines = append(contentLines, strings.Join(node.Status.Change, " "))
		}
		if node.Status.Detail != "" {
			contentLines = append(contentLines, node.Status.Detail)
		}
	}

	maxLen := 0
	for _, line := range contentLines {
		if n := utf8.RuneCountInString(line); n > maxLen {
			maxLen = n
		}
	}
	width := maxLen + 4 // 2 border + 2 padding

	var lines []string
	lines = append(lines, "┌"+strings.Repeat("─", width-2)+"┐")
	for _, content := range contentLines {
		padded := content + strings.Repeat(" ", maxLen-utf8.RuneCountInString(content))
		lines = append(lines, "│ "+padded+" │")
	}
	lines = append(lines, "└"+strings.Repeat("─", width-2)+"┘")

	return asciiBox{lines: lines, width: width}
}

// renderConnector draws a vertical connector between boxes.
func renderConnector(b *strings.Builder) {
	b.WriteString("   │\n")
	b.WriteString("   ▼\n")
}
