package mcp

import (
	"context"
	"encoding/base64"
	"fmt"
	"strconv"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/rendis/plancheck/internal/diagram"
	"github.com/rendis/plancheck/internal/logging"
	"github.com/rendis/plancheck/internal/planio"
	"github.com/rendis/plancheck/internal/store"
	"github.com/rendis/plancheck/internal/validation"
	"github.com/rendis/plancheck/pkg/schema"
)

// handleValidate checks a plan against a scenario.
func (s *PlanServer) handleValidate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sc, doc, errResult := s.resolveInputs(ctx, req)
	if errResult != nil {
		return errResult, nil
	}

	goal := sc.Goal
	if override := mcp.ParseStringMap(req, "goal", nil); len(override) > 0 {
		bySlot := make(map[string]string, len(override))
		for slot, obj := range override {
			if str, ok := obj.(string); ok {
				bySlot[slot] = str
			}
		}
		goal = schema.GoalFromSlotMap(bySlot)
	}

	verdict := s.validate(ctx, sc, doc, goal, req.GetBool("trace", false))
	return marshalResult(verdict)
}

// handleScenarios lists scenarios or describes one.
func (s *PlanServer) handleScenarios(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.scenarios == nil {
		return mcp.NewToolResultError("scenario catalog not configured"), nil
	}
	name := req.GetString("name", "")
	if name != "" {
		sc, err := s.scenarios.Resolve(name)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("scenario lookup failed: %v", err)), nil
		}
		return marshalResult(map[string]any{"name": name, "scenario": sc})
	}

	type summary struct {
		Name    string   `json:"name"`
		World   string   `json:"world"`
		Agents  []string `json:"agents"`
		Slots   int      `json:"slots"`
		Objects int      `json:"objects"`
		Shared  []string `json:"shared_slots,omitempty"`
	}
	var out []summary
	for _, n := range s.scenarios.Names() {
		sc, err := s.scenarios.Resolve(n)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("scenario %s: %v", n, err)), nil
		}
		out = append(out, summary{
			Name:    n,
			World:   sc.World.Name,
			Agents:  sc.World.AgentIDs(),
			Slots:   len(sc.World.Slots),
			Objects: len(sc.World.Objects),
			Shared:  sc.World.SharedSlots,
		})
	}
	return marshalResult(map[string]any{"scenarios": out})
}

// handleActions lists the registered actions.
func (s *PlanServer) handleActions(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return marshalResult(map[string]any{"actions": s.registry.List()})
}

// handleRuns queries the run store.
func (s *PlanServer) handleRuns(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	resource, err := req.RequireString("resource")
	if err != nil {
		return mcp.NewToolResultError("resource is required"), nil
	}
	if s.store == nil {
		return mcp.NewToolResultError("run store not configured"), nil
	}

	filter := mcp.ParseStringMap(req, "filter", nil)

	switch resource {
	case "runs":
		return s.queryRuns(ctx, filter)
	case "run":
		id := extractString(filter, "run_id")
		if id == "" {
			return mcp.NewToolResultError("run query requires 'run_id' in filter"), nil
		}
		report, err := s.store.GetReport(ctx, id)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("query failed: %v", err)), nil
		}
		return marshalResult(report)
	case "cases":
		return s.queryCases(ctx, filter)
	case "history":
		model := extractString(filter, "model")
		if model == "" {
			return mcp.NewToolResultError("history query requires 'model' in filter"), nil
		}
		hist, err := s.store.ModelHistory(ctx, model, extractString(filter, "scenario"), extractInt(filter, "limit", 20))
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("query failed: %v", err)), nil
		}
		return marshalResult(map[string]any{"history": hist})
	default:
		return mcp.NewToolResultError(fmt.Sprintf("unknown resource type: %s", resource)), nil
	}
}

// handleDiagram draws a plan with its verdict overlay.
func (s *PlanServer) handleDiagram(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	format, err := req.RequireString("format")
	if err != nil {
		return mcp.NewToolResultError("format is required"), nil
	}
	if format != "ascii" && format != "mermaid" && format != "image" {
		return mcp.NewToolResultError("format must be ascii, mermaid, or image"), nil
	}

	sc, doc, errResult := s.resolveInputs(ctx, req)
	if errResult != nil {
		return errResult, nil
	}
	verdict := s.validate(ctx, sc, doc, sc.Goal, true)

	model := diagram.Build(doc.Plan, diagram.Options{
		Title:    sc.World.Name,
		Registry: s.registry,
		Verdict:  verdict,
		Initial:  sc.World.Occupancy,
	})

	switch format {
	case "ascii":
		return mcp.NewToolResultText(diagram.RenderASCII(model)), nil
	case "mermaid":
		return mcp.NewToolResultText(diagram.RenderMermaid(model)), nil
	default:
		png, imgErr := diagram.RenderImage(ctx, model)
		if imgErr != nil {
			return mcp.NewToolResultError(fmt.Sprintf("image render failed: %v", imgErr)), nil
		}
		return mcp.NewToolResultImage(string(verdict.Phase), base64.StdEncoding.EncodeToString(png), "image/png"), nil
	}
}

// --- Query helpers ---

func (s *PlanServer) queryRuns(ctx context.Context, filter map[string]any) (*mcp.CallToolResult, error) {
	rf := store.RunFilter{
		Scenario: extractString(filter, "scenario"),
		Model:    extractString(filter, "model"),
		Limit:    extractInt(filter, "limit", 50),
		Offset:   extractInt(filter, "offset", 0),
	}
	if since := extractString(filter, "since"); since != "" {
		if t, err := time.Parse(time.RFC3339, since); err == nil {
			rf.Since = &t
		}
	}

	runs, err := s.store.ListRuns(ctx, rf)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("query failed: %v", err)), nil
	}
	return marshalResult(map[string]any{"runs": runs})
}

func (s *PlanServer) queryCases(ctx context.Context, filter map[string]any) (*mcp.CallToolResult, error) {
	cf := store.CaseFilter{
		RunID: extractString(filter, "run_id"),
		Model: extractString(filter, "model"),
		Limit: extractInt(filter, "limit", 100),
	}
	if cf.RunID == "" {
		return mcp.NewToolResultError("case query requires 'run_id' in filter"), nil
	}
	if failed, ok := filter["failed_only"].(bool); ok {
		cf.FailedOnly = failed
	}

	cases, err := s.store.ListCaseResults(ctx, cf)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("query failed: %v", err)), nil
	}
	return marshalResult(map[string]any{"cases": cases})
}

// --- Internal helpers ---

// resolveInputs loads the scenario and the plan document named by a request.
func (s *PlanServer) resolveInputs(ctx context.Context, req mcp.CallToolRequest) (*schema.Scenario, *planio.Document, *mcp.CallToolResult) {
	ref, err := req.RequireString("scenario")
	if err != nil {
		return nil, nil, mcp.NewToolResultError("scenario is required")
	}
	if s.scenarios == nil {
		return nil, nil, mcp.NewToolResultError("scenario catalog not configured")
	}
	sc, err := s.scenarios.Resolve(ref)
	if err != nil {
		return nil, nil, mcp.NewToolResultError(fmt.Sprintf("scenario lookup failed: %v", err))
	}

	var doc *planio.Document
	if raw, ok := req.GetArguments()["plan"]; ok && raw != nil {
		doc = s.plans.FromValue(ctx, raw)
	} else if text := req.GetString("plan_text", ""); text != "" {
		doc = s.plans.Parse(ctx, []byte(text))
	} else {
		return nil, nil, mcp.NewToolResultError("one of plan or plan_text is required")
	}
	return sc, doc, nil
}

// validate runs the validator unless the document was already rejected.
func (s *PlanServer) validate(ctx context.Context, sc *schema.Scenario, doc *planio.Document, goal *schema.Goal, trace bool) *schema.Verdict {
	if doc.Rejected != nil {
		return doc.Rejected
	}
	verdict := s.validator.Validate(ctx, validation.Input{
		World:       &sc.World,
		Plan:        doc.Plan,
		Constraints: sc.Constraints,
		Goal:        goal,
		RecordTrace: trace,
	})
	logging.LogWith(ctx, s.logger).Debug("plan validated via mcp",
		"world", sc.World.Name, "phase", verdict.Phase, "steps", len(doc.Plan.Steps))
	return verdict
}

func extractString(filter map[string]any, key string) string {
	if filter == nil {
		return ""
	}
	str, _ := filter[key].(string)
	return str
}

// extractInt safely extracts an integer from a filter map.
func extractInt(filter map[string]any, key string, defaultVal int) int {
	if filter == nil {
		return defaultVal
	}
	v, ok := filter[key]
	if !ok {
		return defaultVal
	}
	switch val := v.(type) {
	case float64:
		return int(val)
	case int:
		return val
	case string:
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}
	return defaultVal
}

// marshalResult converts a value to a JSON text tool result.
func marshalResult(v any) (*mcp.CallToolResult, error) {
	result, err := mcp.NewToolResultJSON(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return result, nil
}
