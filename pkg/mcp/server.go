// Package mcp exposes plan validation, scenarios, actions, stored runs, and
// plan diagrams as MCP tools over stdio.
package mcp

import (
	"context"
	"log/slog"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/rendis/plancheck/internal/actions"
	"github.com/rendis/plancheck/internal/logging"
	"github.com/rendis/plancheck/internal/planio"
	"github.com/rendis/plancheck/internal/store"
	"github.com/rendis/plancheck/internal/validation"
	"github.com/rendis/plancheck/pkg/schema"
)

// ScenarioCatalog is the scenario lookup the server needs.
type ScenarioCatalog interface {
	Names() []string
	Resolve(ref string) (*schema.Scenario, error)
}

// ServerDeps holds the dependencies for creating a PlanServer. Store is
// optional; without it plancheck.runs reports an error.
type ServerDeps struct {
	Validator *validation.Validator
	Registry  actions.ActionRegistry
	Scenarios ScenarioCatalog
	Plans     *planio.Loader
	Store     store.Store
	Logger    *slog.Logger
	Version   string
}

// PlanServer wraps an MCP server with plancheck tool handlers.
type PlanServer struct {
	validator *validation.Validator
	registry  actions.ActionRegistry
	scenarios ScenarioCatalog
	plans     *planio.Loader
	store     store.Store
	logger    *slog.Logger
	mcpServer *server.MCPServer
}

// NewPlanServer creates a PlanServer with all tools registered.
func NewPlanServer(deps ServerDeps) (*PlanServer, error) {
	logger := deps.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	registry := deps.Registry
	if registry == nil {
		registry = actions.NewDefaultRegistry()
	}
	validator := deps.Validator
	if validator == nil {
		validator = validation.New(registry, validation.Config{Logger: logger})
	}
	plans := deps.Plans
	if plans == nil {
		var err error
		if plans, err = planio.NewLoader(planio.Config{}); err != nil {
			return nil, err
		}
	}
	version := deps.Version
	if version == "" {
		version = "dev"
	}

	s := &PlanServer{
		validator: validator,
		registry:  registry,
		scenarios: deps.Scenarios,
		plans:     plans,
		store:     deps.Store,
		logger:    logger,
	}

	mcpSrv := server.NewMCPServer(
		"plancheck",
		version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
		server.WithInstructions("plancheck validates symbolic pick-and-place plans against a world model. Use plancheck.scenarios to inspect worlds, plancheck.actions for the action vocabulary, plancheck.validate to check a plan, plancheck.diagram to draw it, and plancheck.runs to browse stored evaluation runs."),
	)

	mcpSrv.AddTools(s.tools()...)
	s.mcpServer = mcpSrv
	return s, nil
}

// Serve starts the stdio transport and blocks until ctx is cancelled or stdin closes.
func (s *PlanServer) Serve(ctx context.Context) error {
	stdio := server.NewStdioServer(s.mcpServer)
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

// MCPServer returns the underlying MCPServer for testing or custom transports.
func (s *PlanServer) MCPServer() *server.MCPServer {
	return s.mcpServer
}

func (s *PlanServer) tools() []server.ServerTool {
	return []server.ServerTool{
		{Tool: validateTool(), Handler: s.handleValidate},
		{Tool: scenariosTool(), Handler: s.handleScenarios},
		{Tool: actionsTool(), Handler: s.handleActions},
		{Tool: runsTool(), Handler: s.handleRuns},
		{Tool: diagramTool(), Handler: s.handleDiagram},
	}
}

// --- Tool definitions ---

func validateTool() mcp.Tool {
	return mcp.NewTool("plancheck.validate",
		mcp.WithDescription("Validate a plan against a scenario world, its constraints and goal"),
		mcp.WithString("scenario", mcp.Required(), mcp.Description("Built-in scenario name (s1..s4) or path to a scenario file")),
		mcp.WithObject("plan", mcp.Description("Plan document, e.g. {\"steps\": [...]}")),
		mcp.WithString("plan_text", mcp.Description("Raw plan text (JSON, YAML, or model output with a ```json block); used when plan is absent")),
		mcp.WithObject("goal", mcp.Description("Goal override as slot -> object; replaces the scenario goal placements")),
		mcp.WithBoolean("trace", mcp.Description("Include the per-step state trace")),
	)
}

func scenariosTool() mcp.Tool {
	return mcp.NewTool("plancheck.scenarios",
		mcp.WithDescription("List built-in scenarios, or show one scenario's world, goal and constraints"),
		mcp.WithString("name", mcp.Description("Scenario name or file path; omit to list")),
	)
}

func actionsTool() mcp.Tool {
	return mcp.NewTool("plancheck.actions",
		mcp.WithDescription("List the action vocabulary with fields, aliases, preconditions and effects"),
	)
}

func runsTool() mcp.Tool {
	return mcp.NewTool("plancheck.runs",
		mcp.WithDescription("Query stored evaluation runs, case outcomes, or a model's metric history"),
		mcp.WithString("resource", mcp.Required(),
			mcp.Enum("runs", "run", "cases", "history"),
			mcp.Description("What to query"),
		),
		mcp.WithObject("filter", mcp.Description("Filter criteria (run_id, scenario, model, since, limit, offset, failed_only)")),
	)
}

func diagramTool() mcp.Tool {
	return mcp.NewTool("plancheck.diagram",
		mcp.WithDescription("Draw a plan with its validation outcome. Returns ASCII art, Mermaid flowchart syntax, or a PNG image"),
		mcp.WithString("scenario", mcp.Required(), mcp.Description("Built-in scenario name or path to a scenario file")),
		mcp.WithObject("plan", mcp.Description("Plan document, e.g. {\"steps\": [...]}")),
		mcp.WithString("plan_text", mcp.Description("Raw plan text; used when plan is absent")),
		mcp.WithString("format", mcp.Required(),
			mcp.Enum("ascii", "mermaid", "image"),
			mcp.Description("Output format: ascii (text), mermaid (flowchart syntax), or image (PNG)"),
		),
	)
}
