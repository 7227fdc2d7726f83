package diagram

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Mermaid ---

func TestRenderMermaidLinear(t *testing.T) {
	output := RenderMermaid(Build(goodPlan(), Options{Title: "bench"}))

	assert.True(t, strings.HasPrefix(output, "graph TD\n"))
	assert.Contains(t, output, "%% bench")
	assert.Contains(t, output, `step_0>"0: base.goto target=DockX"]`)
	assert.Contains(t, output, `step_1["1: arm.pick from=SlotX, object=box"]`)
	assert.Contains(t, output, `__start__(("Start"))`)
	assert.Contains(t, output, `__goal__{{"Goal"}}`)
	assert.Contains(t, output, "__start__ --> step_0")
	assert.Contains(t, output, "step_3 --> __goal__")
	assert.Contains(t, output, "classDef failed")
	assert.NotContains(t, output, "subgraph")
	assert.NotContains(t, output, "class step_")
}

func TestRenderMermaidWithVerdict(t *testing.T) {
	p := brokenPlan()
	output := RenderMermaid(Build(p, Options{Verdict: verdictFor(t, p), Initial: benchWorld().Occupancy}))

	assert.Contains(t, output, "class step_0 ok")
	assert.Contains(t, output, "class step_2 failed")
	assert.Contains(t, output, "class __goal__ failed")
	assert.Contains(t, output, "<br/>SlotX=-")
}

func TestRenderMermaidLanes(t *testing.T) {
	output := RenderMermaid(Build(relayPlan(), Options{}))

	assert.Contains(t, output, `subgraph lane_robotA["robotA"]`)
	assert.Contains(t, output, `subgraph lane_robotB["robotB"]`)
	assert.Equal(t, 1, strings.Count(output, "step_1(["), "lane members are declared once")
	assert.Contains(t, output, `step_3[/"3: teleport to=SlotY"/]`)
}

func TestMermaidHelpers(t *testing.T) {
	assert.Equal(t, "Shelf_red_slot", mermaidSafeID("Shelf.red-slot"))
	assert.Equal(t, "say #quot;hi#quot;", mermaidEscapeLabel(`say "hi"`))
}

// --- ASCII ---

func TestRenderASCII(t *testing.T) {
	p := brokenPlan()
	output := RenderASCII(Build(p, Options{Title: "bench", Verdict: verdictFor(t, p)}))

	assert.Contains(t, output, "=== bench ===")
	assert.Contains(t, output, "│ 0: base.goto target=DockX │")
	assert.Contains(t, output, "[OK]")
	assert.Contains(t, output, "[FAIL]")
	assert.Contains(t, output, "▼")
	assert.NotContains(t, output, "--- agents ---")

	lines := strings.Split(strings.TrimSpace(output), "\n")
	assert.True(t, strings.HasPrefix(lines[len(lines)-1], "└"))
}

func TestRenderASCIILanes(t *testing.T) {
	output := RenderASCII(Build(relayPlan(), Options{}))

	assert.Contains(t, output, "robotA | 0: base.goto target=DockX")
	assert.Contains(t, output, "--- agents ---")
	assert.Contains(t, output, "  robotA: 0 2\n")
	assert.Contains(t, output, "  robotB: 1 3\n")
}

func TestStatusTag(t *testing.T) {
	assert.Equal(t, "[OK]", statusTag(StatusOK))
	assert.Equal(t, "[FAIL]", statusTag(StatusFailed))
	assert.Equal(t, "[SKIP]", statusTag(StatusSkipped))
	assert.Equal(t, "", statusTag("other"))
}

// --- Graphviz ---

func assertPNG(t *testing.T, png []byte) {
	t.Helper()
	require.True(t, len(png) > 8, "PNG should be larger than header")
	assert.Equal(t, byte(0x89), png[0])
	assert.Equal(t, byte('P'), png[1])
	assert.Equal(t, byte('N'), png[2])
	assert.Equal(t, byte('G'), png[3])
}

func TestRenderImageLinear(t *testing.T) {
	png, err := RenderImage(context.Background(), Build(goodPlan(), Options{}))
	require.NoError(t, err)
	assertPNG(t, png)
}

func TestRenderImageWithVerdictAndLanes(t *testing.T) {
	p := brokenPlan()
	png, err := RenderImage(context.Background(), Build(p, Options{Verdict: verdictFor(t, p)}))
	require.NoError(t, err)
	assertPNG(t, png)

	png, err = RenderImage(context.Background(), Build(relayPlan(), Options{}))
	require.NoError(t, err)
	assertPNG(t, png)
}
