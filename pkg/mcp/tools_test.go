package mcp

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/plancheck/internal/evaluation"
	"github.com/rendis/plancheck/internal/scenario"
	"github.com/rendis/plancheck/internal/store"
	"github.com/rendis/plancheck/pkg/schema"
)

// --- Helpers ---

func buildRequest(toolName string, args map[string]any) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      toolName,
			Arguments: args,
		},
	}
}

func newTestServer(t *testing.T, st store.Store) *PlanServer {
	t.Helper()
	loader, err := scenario.NewLoader(nil)
	require.NoError(t, err)
	catalog, err := scenario.NewCatalog(loader)
	require.NoError(t, err)

	s, err := NewPlanServer(ServerDeps{Scenarios: catalog, Store: st})
	require.NoError(t, err)
	return s
}

func newTestStore(t *testing.T) *store.LibSQLStore {
	t.Helper()
	st, err := store.NewLibSQLStore("file:" + filepath.Join(t.TempDir(), "mcp.db"))
	require.NoError(t, err)
	require.NoError(t, st.Migrate(context.Background()))
	t.Cleanup(func() { _ = st.Close() })
	return st
}

// s1Plan carries the red box straight to the bin.
func s1Plan() map[string]any {
	return map[string]any{"steps": []any{
		map[string]any{"action": "base.goto", "target": "Shelf.front.dock"},
		map[string]any{"action": "arm.pick", "object": "redbox", "from": "Shelf.red.slot"},
		map[string]any{"action": "base.goto", "target": "RedBin.dock"},
		map[string]any{"action": "arm.place", "object": "redbox", "to": "RedBin.slot"},
	}}
}

func verdictOf(t *testing.T, result *mcp.CallToolResult) schema.Verdict {
	t.Helper()
	require.False(t, result.IsError, extractText(t, result))
	var v schema.Verdict
	unmarshalResult(t, result, &v)
	return v
}

// --- Validate ---

func TestValidateTool_Accepted(t *testing.T) {
	s := newTestServer(t, nil)
	req := buildRequest("plancheck.validate", map[string]any{
		"scenario": "s1",
		"plan":     s1Plan(),
		"trace":    true,
	})

	result, err := s.handleValidate(context.Background(), req)
	require.NoError(t, err)

	v := verdictOf(t, result)
	assert.True(t, v.OK)
	assert.Equal(t, schema.PhaseAccepted, v.Phase)
	assert.Equal(t, 4, v.StepsExecuted)
	assert.Len(t, v.Trace, 4)
}

func TestValidateTool_PlanText(t *testing.T) {
	s := newTestServer(t, nil)
	raw, err := json.Marshal(s1Plan())
	require.NoError(t, err)

	req := buildRequest("plancheck.validate", map[string]any{
		"scenario":  "s1",
		"plan_text": "Here is my plan:\n```json\n" + string(raw) + "\n```",
	})
	result, err := s.handleValidate(context.Background(), req)
	require.NoError(t, err)

	v := verdictOf(t, result)
	assert.True(t, v.OK)
	assert.Empty(t, v.Trace)
}

func TestValidateTool_PreconditionFailure(t *testing.T) {
	s := newTestServer(t, nil)
	plan := s1Plan()
	steps := plan["steps"].([]any)
	plan["steps"] = steps[1:]

	req := buildRequest("plancheck.validate", map[string]any{"scenario": "s1", "plan": plan})
	result, err := s.handleValidate(context.Background(), req)
	require.NoError(t, err)

	v := verdictOf(t, result)
	assert.False(t, v.OK)
	assert.False(t, v.LogicOK)
	assert.Equal(t, schema.PhaseRejectedPrecondition, v.Phase)
	assert.Equal(t, 0, v.FailedStep)
	require.NotEmpty(t, v.Errors)
	assert.Equal(t, schema.ReasonPreconditionFailed, v.Errors[0].Code)
}

func TestValidateTool_GoalOverride(t *testing.T) {
	s := newTestServer(t, nil)
	req := buildRequest("plancheck.validate", map[string]any{
		"scenario": "s1",
		"plan":     s1Plan(),
		"goal":     map[string]any{"Worktable.slot": "redbox"},
	})
	result, err := s.handleValidate(context.Background(), req)
	require.NoError(t, err)

	v := verdictOf(t, result)
	assert.True(t, v.LogicOK)
	assert.False(t, v.GoalOK)
	assert.Equal(t, schema.PhaseRejectedGoal, v.Phase)
}

func TestValidateTool_RejectedDocument(t *testing.T) {
	s := newTestServer(t, nil)
	req := buildRequest("plancheck.validate", map[string]any{
		"scenario": "s1",
		"plan":     map[string]any{"plan": []any{}},
	})
	result, err := s.handleValidate(context.Background(), req)
	require.NoError(t, err)

	v := verdictOf(t, result)
	assert.Equal(t, schema.PhaseRejectedSchema, v.Phase)
	assert.Equal(t, 0, v.StepsExecuted)
}

func TestValidateTool_MissingParams(t *testing.T) {
	s := newTestServer(t, nil)

	tests := []struct {
		name string
		args map[string]any
	}{
		{"no scenario", map[string]any{"plan": s1Plan()}},
		{"no plan", map[string]any{"scenario": "s1"}},
		{"unknown scenario", map[string]any{"scenario": "s9", "plan": s1Plan()}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			result, err := s.handleValidate(context.Background(), buildRequest("plancheck.validate", tc.args))
			require.NoError(t, err)
			assert.True(t, result.IsError)
		})
	}
}

// --- Scenarios and actions ---

func TestScenariosTool_List(t *testing.T) {
	s := newTestServer(t, nil)
	result, err := s.handleScenarios(context.Background(), buildRequest("plancheck.scenarios", nil))
	require.NoError(t, err)
	require.False(t, result.IsError)

	var out struct {
		Scenarios []struct {
			Name   string   `json:"name"`
			Agents []string `json:"agents"`
			Shared []string `json:"shared_slots"`
		} `json:"scenarios"`
	}
	unmarshalResult(t, result, &out)
	require.Len(t, out.Scenarios, 4)
	assert.Equal(t, "s1", out.Scenarios[0].Name)
	assert.Equal(t, []string{"robotA", "robotB", "robotC", "robotD"}, out.Scenarios[3].Agents)
	assert.Contains(t, out.Scenarios[3].Shared, "Inspection.slot")
}

func TestScenariosTool_Detail(t *testing.T) {
	s := newTestServer(t, nil)
	result, err := s.handleScenarios(context.Background(), buildRequest("plancheck.scenarios", map[string]any{"name": "s1"}))
	require.NoError(t, err)

	var out struct {
		Scenario schema.Scenario `json:"scenario"`
	}
	unmarshalResult(t, result, &out)
	assert.Equal(t, "s1", out.Scenario.World.Name)
	assert.Equal(t, "RedBin.slot", out.Scenario.Goal.Placements["redbox"])

	result, err = s.handleScenarios(context.Background(), buildRequest("plancheck.scenarios", map[string]any{"name": "nope"}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestActionsTool(t *testing.T) {
	s := newTestServer(t, nil)
	result, err := s.handleActions(context.Background(), buildRequest("plancheck.actions", nil))
	require.NoError(t, err)

	var out struct {
		Actions []struct {
			Name    string   `json:"name"`
			Aliases []string `json:"aliases"`
		} `json:"actions"`
	}
	unmarshalResult(t, result, &out)
	require.Len(t, out.Actions, 4)

	var aliases []string
	for _, a := range out.Actions {
		aliases = append(aliases, a.Aliases...)
	}
	assert.Contains(t, aliases, "base.goto")
	assert.Contains(t, aliases, "wait_until_free")
}

// --- Runs ---

func seedRun(t *testing.T, st store.Store) string {
	t.Helper()
	started := time.Now().UTC().Truncate(time.Second)
	report := &evaluation.Report{
		RunID:      uuid.New().String(),
		Scenario:   "s1",
		Dataset:    "/data/s1",
		StartedAt:  started,
		FinishedAt: started.Add(time.Second),
		Models: []evaluation.ModelReport{{
			Model: "alpha", TSR: 0.5, LVR: 1, PS: 0.9, Cases: 2,
			Results: []evaluation.CaseResult{
				{Model: "alpha", CaseID: "c1", LogicOK: true, GoalOK: true, Similarity: 1, Phase: schema.PhaseAccepted, FailedStep: -1},
				{Model: "alpha", CaseID: "c2", LogicOK: true, GoalOK: false, Similarity: 0.8, Phase: schema.PhaseRejectedGoal, FailedStep: -1},
			},
		}},
	}
	require.NoError(t, st.SaveReport(context.Background(), report, ""))
	return report.RunID
}

func TestRunsTool(t *testing.T) {
	st := newTestStore(t)
	runID := seedRun(t, st)
	s := newTestServer(t, st)
	ctx := context.Background()

	t.Run("runs", func(t *testing.T) {
		result, err := s.handleRuns(ctx, buildRequest("plancheck.runs", map[string]any{
			"resource": "runs",
			"filter":   map[string]any{"scenario": "s1"},
		}))
		require.NoError(t, err)
		var out struct {
			Runs []store.Run `json:"runs"`
		}
		unmarshalResult(t, result, &out)
		require.Len(t, out.Runs, 1)
		assert.Equal(t, runID, out.Runs[0].ID)
	})

	t.Run("run", func(t *testing.T) {
		result, err := s.handleRuns(ctx, buildRequest("plancheck.runs", map[string]any{
			"resource": "run",
			"filter":   map[string]any{"run_id": runID},
		}))
		require.NoError(t, err)
		var report evaluation.Report
		unmarshalResult(t, result, &report)
		require.Len(t, report.Models, 1)
		assert.InDelta(t, 0.5, report.Models[0].TSR, 1e-9)
	})

	t.Run("failed cases", func(t *testing.T) {
		result, err := s.handleRuns(ctx, buildRequest("plancheck.runs", map[string]any{
			"resource": "cases",
			"filter":   map[string]any{"run_id": runID, "failed_only": true},
		}))
		require.NoError(t, err)
		var out struct {
			Cases []store.CaseRecord `json:"cases"`
		}
		unmarshalResult(t, result, &out)
		require.Len(t, out.Cases, 1)
		assert.Equal(t, "c2", out.Cases[0].CaseID)
	})

	t.Run("history", func(t *testing.T) {
		result, err := s.handleRuns(ctx, buildRequest("plancheck.runs", map[string]any{
			"resource": "history",
			"filter":   map[string]any{"model": "alpha"},
		}))
		require.NoError(t, err)
		var out struct {
			History []store.ModelResult `json:"history"`
		}
		unmarshalResult(t, result, &out)
		require.Len(t, out.History, 1)
		assert.Equal(t, runID, out.History[0].RunID)
	})
}

func TestRunsTool_Errors(t *testing.T) {
	ctx := context.Background()

	noStore := newTestServer(t, nil)
	result, err := noStore.handleRuns(ctx, buildRequest("plancheck.runs", map[string]any{"resource": "runs"}))
	require.NoError(t, err)
	assert.True(t, result.IsError)

	s := newTestServer(t, newTestStore(t))
	tests := []struct {
		name string
		args map[string]any
	}{
		{"missing resource", map[string]any{}},
		{"unknown resource", map[string]any{"resource": "agents"}},
		{"run without id", map[string]any{"resource": "run"}},
		{"cases without run", map[string]any{"resource": "cases"}},
		{"history without model", map[string]any{"resource": "history"}},
		{"run not found", map[string]any{"resource": "run", "filter": map[string]any{"run_id": "missing"}}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			result, err := s.handleRuns(ctx, buildRequest("plancheck.runs", tc.args))
			require.NoError(t, err)
			assert.True(t, result.IsError)
		})
	}
}

// --- Diagram ---

func TestDiagramTool(t *testing.T) {
	s := newTestServer(t, nil)
	ctx := context.Background()

	t.Run("ascii", func(t *testing.T) {
		result, err := s.handleDiagram(ctx, buildRequest("plancheck.diagram", map[string]any{
			"scenario": "s1", "plan": s1Plan(), "format": "ascii",
		}))
		require.NoError(t, err)
		require.False(t, result.IsError)
		text := extractText(t, result)
		assert.Contains(t, text, "=== s1 ===")
		assert.Contains(t, text, "[OK]")
	})

	t.Run("mermaid", func(t *testing.T) {
		result, err := s.handleDiagram(ctx, buildRequest("plancheck.diagram", map[string]any{
			"scenario": "s1", "plan": s1Plan(), "format": "mermaid",
		}))
		require.NoError(t, err)
		assert.Contains(t, extractText(t, result), "graph TD")
	})

	t.Run("image", func(t *testing.T) {
		result, err := s.handleDiagram(ctx, buildRequest("plancheck.diagram", map[string]any{
			"scenario": "s1", "plan": s1Plan(), "format": "image",
		}))
		require.NoError(t, err)
		require.False(t, result.IsError)
		require.Len(t, result.Content, 2)
		assert.Equal(t, "accepted", extractText(t, result))
		img, ok := mcp.AsImageContent(result.Content[1])
		require.True(t, ok)
		assert.Equal(t, "image/png", img.MIMEType)
		png, err := base64.StdEncoding.DecodeString(img.Data)
		require.NoError(t, err)
		assert.Equal(t, []byte("\x89PNG"), png[:4])
	})

	t.Run("bad format", func(t *testing.T) {
		result, err := s.handleDiagram(ctx, buildRequest("plancheck.diagram", map[string]any{
			"scenario": "s1", "plan": s1Plan(), "format": "svg",
		}))
		require.NoError(t, err)
		assert.True(t, result.IsError)
	})
}

// --- Filter helpers ---

func TestExtractInt(t *testing.T) {
	f := map[string]any{"a": float64(3), "b": 4, "c": "5", "d": "x"}
	assert.Equal(t, 3, extractInt(f, "a", 0))
	assert.Equal(t, 4, extractInt(f, "b", 0))
	assert.Equal(t, 5, extractInt(f, "c", 0))
	assert.Equal(t, 9, extractInt(f, "d", 9))
	assert.Equal(t, 7, extractInt(nil, "a", 7))
}

// --- Test helpers ---

func extractText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, result.Content)
	return mcp.GetTextFromContent(result.Content[0])
}

func unmarshalResult(t *testing.T, result *mcp.CallToolResult, target any) {
	t.Helper()
	text := extractText(t, result)
	require.NoError(t, json.Unmarshal([]byte(text), target))
}
