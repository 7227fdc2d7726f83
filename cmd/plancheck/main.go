package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rendis/plancheck/internal/actions"
	"github.com/rendis/plancheck/internal/evaluation"
	"github.com/rendis/plancheck/internal/expressions"
	"github.com/rendis/plancheck/internal/logging"
	"github.com/rendis/plancheck/internal/planio"
	"github.com/rendis/plancheck/internal/scenario"
	"github.com/rendis/plancheck/internal/store"
	"github.com/rendis/plancheck/internal/streaming"
	"github.com/rendis/plancheck/internal/validation"
)

// errRejected makes the process exit non-zero after a verdict was printed.
var errRejected = errors.New("plan rejected")

func main() {
	if err := rootCmd.Execute(); err != nil {
		if !errors.Is(err, errRejected) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

var (
	flagDBPath     string
	flagLogLevel   string
	flagPoolSize   int
	flagStepsQuery string
)

var rootCmd = &cobra.Command{
	Use:           "plancheck",
	Short:         "Symbolic validator for multi-agent pick-and-place plans",
	Long:          "plancheck checks robot action plans against a STRIPS-style world model, scores model outputs against gold plans, and keeps a history of evaluation runs.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flagDBPath, "db-path", "", "database path (default: ~/.plancheck/plancheck.db)")
	pf.StringVar(&flagLogLevel, "log-level", "", "log level: debug, info, warn, error")
	pf.IntVar(&flagPoolSize, "pool-size", 0, "evaluation worker pool size")
	pf.StringVar(&flagStepsQuery, "steps-query", "", "jq query locating the steps array in plan documents")

	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(evaluateCmd)
	rootCmd.AddCommand(scenariosCmd)
	rootCmd.AddCommand(actionsCmd)
	rootCmd.AddCommand(diagramCmd)
	rootCmd.AddCommand(runsCmd)
	rootCmd.AddCommand(schemaCmd)
	rootCmd.AddCommand(mcpCmd)
	rootCmd.AddCommand(versionCmd)
}

// --- wiring ---

// app is the dependency graph shared by the subcommands.
type app struct {
	cfg       Config
	logger    *slog.Logger
	registry  *actions.Registry
	validator *validation.Validator
	catalog   *scenario.Catalog
	plans     *planio.Loader
}

// resolveConfig layers command-line flags over loadConfig.
func resolveConfig(cmd *cobra.Command) Config {
	cfg := loadConfig()
	flags := cmd.Flags()
	if flags.Changed("db-path") {
		cfg.DBPath = flagDBPath
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = flagLogLevel
	}
	if flags.Changed("pool-size") && flagPoolSize > 0 {
		cfg.PoolSize = flagPoolSize
	}
	if flags.Changed("steps-query") {
		cfg.StepsQuery = flagStepsQuery
	}
	return cfg
}

func newApp(cmd *cobra.Command) (*app, error) {
	cfg := resolveConfig(cmd)

	level, err := parseLogLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	handler := slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level})
	logger := slog.New(logging.NewCorrelationHandler(handler))

	registry := actions.NewDefaultRegistry()
	validator := validation.New(registry, validation.Config{
		Logger: logger,
		Expr:   expressions.NewExprEngine(),
	})

	plans, err := planio.NewLoader(planio.Config{
		StepsQuery: cfg.StepsQuery,
		JQ:         expressions.NewGoJQEngine(),
	})
	if err != nil {
		return nil, err
	}

	loader, err := scenario.NewLoader(logger)
	if err != nil {
		return nil, err
	}
	catalog, err := scenario.NewCatalog(loader)
	if err != nil {
		return nil, err
	}

	return &app{
		cfg:       cfg,
		logger:    logger,
		registry:  registry,
		validator: validator,
		catalog:   catalog,
		plans:     plans,
	}, nil
}

func (a *app) evaluator() (*evaluation.Evaluator, error) {
	return a.evaluatorWithEvents(nil)
}

func (a *app) evaluatorWithEvents(hub *streaming.MemoryHub) (*evaluation.Evaluator, error) {
	cfg := evaluation.Config{
		PoolSize:  a.cfg.PoolSize,
		Logger:    a.logger,
		Validator: a.validator,
		Plans:     a.plans,
	}
	if hub != nil {
		cfg.Events = hub
	}
	return evaluation.New(cfg)
}

// openStore opens and migrates the run database.
func (a *app) openStore(ctx context.Context) (*store.LibSQLStore, error) {
	if dir := localDBDir(a.cfg.DBPath); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}
	st, err := store.NewLibSQLStore(a.cfg.dsn())
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, err
	}
	return st, nil
}

// localDBDir returns the directory holding a local database file, or "" for remote URLs.
func localDBDir(path string) string {
	if strings.Contains(path, "://") {
		return ""
	}
	return filepath.Dir(strings.TrimPrefix(path, "file:"))
}
