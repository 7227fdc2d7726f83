package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/plancheck/internal/evaluation"
	"github.com/rendis/plancheck/internal/store"
	"github.com/rendis/plancheck/pkg/schema"
)

// execute runs the root command with an isolated home directory.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&bytes.Buffer{})
	rootCmd.SetArgs(args)
	t.Cleanup(func() { rootCmd.SetArgs(nil) })
	err := rootCmd.Execute()
	return out.String(), err
}

func s1Steps() []any {
	return []any{
		map[string]any{"action": "base.goto", "target": "Shelf.front.dock"},
		map[string]any{"action": "arm.pick", "object": "redbox", "from": "Shelf.red.slot"},
		map[string]any{"action": "base.goto", "target": "RedBin.dock"},
		map[string]any{"action": "arm.place", "object": "redbox", "to": "RedBin.slot"},
	}
}

func writeJSONFile(t *testing.T, path string, v any) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	data, err := json.Marshal(v)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestValidateCommand(t *testing.T) {
	dir := t.TempDir()
	good := writeJSONFile(t, filepath.Join(dir, "good.json"), map[string]any{"steps": s1Steps()})
	bad := writeJSONFile(t, filepath.Join(dir, "bad.json"), map[string]any{"steps": s1Steps()[1:]})

	out, err := execute(t, "validate", good, "--scenario", "s1", "--json")
	require.NoError(t, err)
	var v schema.Verdict
	require.NoError(t, json.Unmarshal([]byte(out), &v))
	assert.True(t, v.OK)
	assert.Equal(t, schema.PhaseAccepted, v.Phase)

	out, err = execute(t, "validate", bad, "--scenario", "s1", "--json")
	require.ErrorIs(t, err, errRejected)
	require.NoError(t, json.Unmarshal([]byte(out), &v))
	assert.Equal(t, schema.PhaseRejectedPrecondition, v.Phase)
	assert.Equal(t, 0, v.FailedStep)
}

func TestValidateCommand_MissingFile(t *testing.T) {
	_, err := execute(t, "validate", filepath.Join(t.TempDir(), "nope.json"), "--scenario", "s1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, errRejected)
}

func TestParseGoalFlags(t *testing.T) {
	goal, err := parseGoalFlags([]string{"RedBin.slot=redbox", "BlueBin.slot=bluebox"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"redbox": "RedBin.slot", "bluebox": "BlueBin.slot"}, goal.Placements)

	_, err = parseGoalFlags([]string{"RedBin.slot"})
	assert.Error(t, err)
}

func TestEvaluateAndRunsCommands(t *testing.T) {
	dataset := t.TempDir()
	writeJSONFile(t, filepath.Join(dataset, "gold", "c1.json"), map[string]any{"steps": s1Steps()})
	writeJSONFile(t, filepath.Join(dataset, "llm_outputs", "m1", "c1.json"), map[string]any{"steps": s1Steps()})
	db := filepath.Join(t.TempDir(), "runs.db")

	out, err := execute(t, "evaluate", dataset, "--scenario", "s1", "--save", "--json", "--db-path", db)
	require.NoError(t, err)
	var report evaluation.Report
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	require.Len(t, report.Models, 1)
	assert.Equal(t, "m1", report.Models[0].Model)
	assert.InDelta(t, 1.0, report.Models[0].TSR, 1e-9)
	assert.InDelta(t, 1.0, report.Models[0].PS, 1e-9)

	out, err = execute(t, "runs", "list", "--json", "--db-path", db)
	require.NoError(t, err)
	var runs []store.Run
	require.NoError(t, json.Unmarshal([]byte(out), &runs))
	require.Len(t, runs, 1)
	assert.Equal(t, report.RunID, runs[0].ID)
}

func TestEvaluateCommand_GoldWithoutGoal(t *testing.T) {
	assert.Contains(t, evaluateCmd.Long, `without a "goal" key is checked against the scenario goal`)

	dataset := t.TempDir()
	halfway := s1Steps()[:2]
	writeJSONFile(t, filepath.Join(dataset, "gold", "c1.json"), map[string]any{"steps": s1Steps()})
	writeJSONFile(t, filepath.Join(dataset, "gold", "c2.json"), map[string]any{"steps": s1Steps(), "goal": map[string]any{}})
	writeJSONFile(t, filepath.Join(dataset, "llm_outputs", "m1", "c1.json"), map[string]any{"steps": halfway})
	writeJSONFile(t, filepath.Join(dataset, "llm_outputs", "m1", "c2.json"), map[string]any{"steps": halfway})

	out, err := execute(t, "evaluate", dataset, "--scenario", "s1", "--json")
	require.NoError(t, err)
	var report evaluation.Report
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	require.Len(t, report.Models, 1)
	assert.InDelta(t, 1.0, report.Models[0].LVR, 1e-9)
	assert.InDelta(t, 0.5, report.Models[0].TSR, 1e-9)
}

func TestSchemaCommand(t *testing.T) {
	out, err := execute(t, "schema", "plan")
	require.NoError(t, err)
	assert.True(t, json.Valid([]byte(out)))
	assert.Contains(t, out, "plancheck plan v1")

	_, err = execute(t, "schema", "graph")
	assert.Error(t, err)
}

func TestDiagramCommand(t *testing.T) {
	plan := writeJSONFile(t, filepath.Join(t.TempDir(), "plan.json"), map[string]any{"steps": s1Steps()})
	out, err := execute(t, "diagram", plan, "--scenario", "s1", "--format", "mermaid")
	require.NoError(t, err)
	assert.Contains(t, out, "graph TD")
	assert.Contains(t, out, "class step_3 ok")
}
