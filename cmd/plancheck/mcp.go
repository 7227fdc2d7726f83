package main

import (
	"github.com/spf13/cobra"

	"github.com/rendis/plancheck/internal/store"
	pmcp "github.com/rendis/plancheck/pkg/mcp"
)

var mcpNoStore bool

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the plancheck tools over MCP stdio",
	Args:  cobra.NoArgs,
	RunE:  runMCP,
}

func init() {
	mcpCmd.Flags().BoolVar(&mcpNoStore, "no-store", false, "do not open the run database (disables plancheck.runs)")
}

func runMCP(cmd *cobra.Command, _ []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	ctx, stop := signalContext(cmd)
	defer stop()

	var st store.Store
	if !mcpNoStore {
		libsql, err := a.openStore(ctx)
		if err != nil {
			a.logger.Warn("run database unavailable, plancheck.runs disabled", "db", a.cfg.DBPath, "error", err)
		} else {
			defer libsql.Close()
			st = libsql
		}
	}

	srv, err := pmcp.NewPlanServer(pmcp.ServerDeps{
		Validator: a.validator,
		Registry:  a.registry,
		Scenarios: a.catalog,
		Plans:     a.plans,
		Store:     st,
		Logger:    a.logger,
		Version:   version,
	})
	if err != nil {
		return err
	}
	a.logger.Info("mcp server listening on stdio", "version", version)
	return srv.Serve(ctx)
}
