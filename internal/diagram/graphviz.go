package diagram

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/goccy/go-graphviz"
	"github.com/goccy/go-graphviz/cgraph"
)

// RenderImage renders a DiagramModel as a PNG image using graphviz.
func RenderImage(ctx context.Context, model *DiagramModel) ([]byte, error) {
	gv, err := graphviz.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("diagram: create graphviz: %w", err)
	}
	defer gv.Close()

	gv.SetLayout(graphviz.DOT)

	graph, err := gv.Graph()
	if err != nil {
		return nil, fmt.Errorf("diagram: create graph: %w", err)
	}
	defer graph.Close()

	graph.SetRankDir(cgraph.TBRank)
	if model.Title != "" {
		graph.SetLabel(model.Title)
	}

	// Lane members are created inside their agent cluster.
	gvNodes := make(map[string]*cgraph.Node, len(model.Nodes))
	for _, lane := range model.Lanes {
		sub, subErr := graph.CreateSubGraphByName("cluster_" + mermaidSafeID(lane.Agent))
		if subErr != nil {
			return nil, fmt.Errorf("diagram: create lane %s: %w", lane.Agent, subErr)
		}
		sub.SetLabel(lane.Agent)
		sub.SetStyle(cgraph.DashedGraphStyle)
		for _, id := range lane.NodeIDs {
			node := model.node(id)
			if node == nil {
				continue
			}
			gvNode, nErr := sub.CreateNodeByName(node.ID)
			if nErr != nil {
				return nil, fmt.Errorf("diagram: create node %s: %w", node.ID, nErr)
			}
			gvNode.SetLabel(graphvizLabel(node))
			applyNodeStyle(gvNode, node)
			gvNodes[node.ID] = gvNode
		}
	}

	for _, node := range model.Nodes {
		if _, ok := gvNodes[node.ID]; ok {
			continue
		}
		gvNode, nErr := graph.CreateNodeByName(node.ID)
		if nErr != nil {
			return nil, fmt.Errorf("diagram: create node %s: %w", node.ID, nErr)
		}
		gvNode.SetLabel(graphvizLabel(node))
		applyNodeStyle(gvNode, node)
		gvNodes[node.ID] = gvNode
	}

	for _, edge := range model.Edges {
		fromGV, toGV := gvNodes[edge.From], gvNodes[edge.To]
		if fromGV != nil && toGV != nil {
			e, eErr := graph.CreateEdgeByName("", fromGV, toGV)
			if eErr == nil && edge.Label != "" {
				e.SetLabel(edge.Label)
			}
		}
	}

	var buf bytes.Buffer
	if err := gv.Render(ctx, graph, graphviz.PNG, &buf); err != nil {
		return nil, fmt.Errorf("diagram: render PNG: %w", err)
	}

	return buf.Bytes(), nil
}

func graphvizLabel(node *Node) string {
	parts := []string{node.Label}
	if node.Status != nil {
		if len(node.Status.Change) > 0 {
			parts = append(parts, strings.Join(node.Status.Change, " "))
		}
		if node.Status.Detail != "" {
			parts = append(parts, node.Status.Detail)
		}
	}
	return strings.Join(parts, "\n")
}

// applyNodeStyle sets graphviz attributes based on node kind and status.
func applyNodeStyle(gvNode *cgraph.Node, node *Node) {
	switch node.Kind {
	case NodeKindMove:
		gvNode.SetShape(cgraph.ParallelogramShape)
	case NodeKindPick, NodeKindPlace:
		gvNode.SetShape(cgraph.BoxShape)
	case NodeKindWait:
		gvNode.SetShape(cgraph.EllipseShape)
	case NodeKindGoal:
		gvNode.SetShape(cgraph.HexagonShape)
	case NodeKindStart:
		gvNode.SetShape(cgraph.CircleShape)
		gvNode.SetWidth(0.5)
		gvNode.SetHeight(0.5)
	default:
		gvNode.SetShape(cgraph.NoteShape)
	}

	if node.Status != nil {
		applyStatusColor(gvNode, node.Status.Status)
	}
}

// applyStatusColor sets fill color and style based on status.
func applyStatusColor(gvNode *cgraph.Node, status string) {
	gvNode.SetStyle(cgraph.FilledNodeStyle)
	switch status {
	case StatusOK:
		gvNode.SetFillColor("#2d6a2d")
		gvNode.SetFontColor("white")
	case StatusFailed:
		gvNode.SetFillColor("#8b1a1a")
		gvNode.SetFontColor("white")
	case StatusSkipped:
		gvNode.SetFillColor("#e8e8e8")
		gvNode.SetFontColor("#888888")
		gvNode.SetStyle(cgraph.DashedNodeStyle)
	}
}
