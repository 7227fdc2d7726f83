package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/rendis/plancheck/internal/evaluation"
	"github.com/rendis/plancheck/internal/logging"
	"github.com/rendis/plancheck/internal/scheduler"
	"github.com/rendis/plancheck/internal/store"
	"github.com/rendis/plancheck/internal/streaming"
)

var (
	evalScenario string
	evalModels   []string
	evalSave     bool
	evalSchedule string
	evalJSON     bool
	evalCases    bool
	evalProgress bool
)

var evaluateCmd = &cobra.Command{
	Use:   "evaluate [dataset-dir]",
	Short: "Score model plans against gold plans (TSR, LVR, PS)",
	Long: `Evaluate every model under <dataset>/llm_outputs/<model>/ against the gold
plans in <dataset>/gold/.

A case counts toward TSR when the state its plan leaves satisfies the goal.
The goal comes from the gold file's "goal" map (slot -> object). A gold
file without a "goal" key is checked against the scenario goal, so such a
case is not counted as goal-satisfied by default; add "goal": {} to skip the
goal check for it.

With --schedule the evaluation is registered as a cron schedule and the
command keeps running, storing a report on every firing.`,
	Args: cobra.ExactArgs(1),
	RunE: runEvaluate,
}

func init() {
	evaluateCmd.Flags().StringVar(&evalScenario, "scenario", "", "scenario name (s1..s4) or scenario file (default from config)")
	evaluateCmd.Flags().StringSliceVar(&evalModels, "model", nil, "model to evaluate, repeatable (default: every model in the dataset)")
	evaluateCmd.Flags().BoolVar(&evalSave, "save", false, "store the report in the run database")
	evaluateCmd.Flags().StringVar(&evalSchedule, "schedule", "", "cron expression for periodic re-evaluation (e.g. \"@daily\", \"0 */6 * * *\")")
	evaluateCmd.Flags().BoolVar(&evalJSON, "json", false, "print the report as JSON")
	evaluateCmd.Flags().BoolVar(&evalCases, "cases", false, "list per-case outcomes")
	evaluateCmd.Flags().BoolVar(&evalProgress, "progress", false, "print each case outcome to stderr as it is evaluated")
}

func runEvaluate(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	dataset, err := filepath.Abs(args[0])
	if err != nil {
		return err
	}
	scenarioRef := firstNonEmpty(evalScenario, a.cfg.Scenario)

	if evalSchedule != "" {
		return a.serveSchedule(cmd, dataset, scenarioRef)
	}

	sc, err := a.catalog.Resolve(scenarioRef)
	if err != nil {
		return err
	}
	var hub *streaming.MemoryHub
	if evalProgress {
		hub = streaming.NewMemoryHub()
		done, err := followProgress(cmd, hub)
		if err != nil {
			return err
		}
		defer done()
	}
	ev, err := a.evaluatorWithEvents(hub)
	if err != nil {
		return err
	}
	report, err := ev.Run(cmd.Context(), evaluation.Request{
		Dataset:      dataset,
		ScenarioName: scenarioRef,
		Scenario:     sc,
		Models:       evalModels,
	})
	if err != nil {
		return err
	}

	if evalSave {
		st, err := a.openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close()
		if err := st.SaveReport(cmd.Context(), report, ""); err != nil {
			return err
		}
		a.logger.Info("report stored", "run_id", report.RunID, "db", a.cfg.DBPath)
	}

	if evalJSON {
		return writeJSON(cmd.OutOrStdout(), report)
	}
	printReport(cmd.OutOrStdout(), report, evalCases)
	return nil
}

// serveSchedule registers the evaluation as a schedule and runs the
// scheduler until interrupted.
func (a *app) serveSchedule(cmd *cobra.Command, dataset, scenarioRef string) error {
	ctx, stop := signalContext(cmd)
	defer stop()

	// Fail early on a bad scenario instead of at the first firing.
	if _, err := a.catalog.Resolve(scenarioRef); err != nil {
		return err
	}

	st, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	ev, err := a.evaluator()
	if err != nil {
		return err
	}
	runner := &scheduler.EvaluationRunner{Evaluator: ev, Scenarios: a.catalog, Store: st}
	sched := scheduler.NewScheduler(st, runner, scheduler.Config{Logger: a.logger})

	created, err := sched.Add(ctx, &store.Schedule{
		Scenario:       scenarioRef,
		Dataset:        dataset,
		Models:         evalModels,
		CronExpression: evalSchedule,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "schedule %s registered, next run at %s\n",
		created.ID, created.NextRunAt.Format(time.RFC3339))

	return runScheduler(ctx, sched, a)
}

// runScheduler drives every enabled schedule in the store until ctx ends.
func runScheduler(ctx context.Context, sched *scheduler.Scheduler, a *app) error {
	if err := sched.RecoverMissed(ctx); err != nil {
		logging.LogWith(ctx, a.logger).Warn("recover missed schedules", "error", err)
	}
	if err := sched.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	return sched.Stop()
}

// followProgress prints case and model events until the returned func is called.
func followProgress(cmd *cobra.Command, hub streaming.EventHub) (func(), error) {
	ch, cancel, err := hub.Subscribe(cmd.Context(), streaming.EventFilter{
		EventTypes: []string{streaming.EventCaseEvaluated, streaming.EventModelFinished},
	})
	if err != nil {
		return nil, err
	}
	w := cmd.ErrOrStderr()
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		for evt := range ch {
			switch p := evt.Payload.(type) {
			case evaluation.CaseResult:
				mark := "✓"
				if !p.GoalOK {
					mark = "✗"
				}
				fmt.Fprintf(w, "  %s %s/%s %s\n", mark, evt.Model, evt.CaseID, p.Phase)
			case evaluation.ModelReport:
				fmt.Fprintf(w, "%s: TSR=%.2f LVR=%.2f PS=%.2f\n", evt.Model, p.TSR, p.LVR, p.PS)
			}
		}
	}()
	return func() {
		cancel()
		<-finished
	}, nil
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
}

func printReport(w io.Writer, r *evaluation.Report, cases bool) {
	fmt.Fprintf(w, "run %s  scenario=%s  dataset=%s  (%s)\n\n",
		r.RunID, r.Scenario, r.Dataset, r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond))

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "MODEL\tTSR\tLVR\tPS\tCASES\tSKIPPED")
	for _, m := range r.Models {
		if m.Missing {
			fmt.Fprintf(tw, "%s\t-\t-\t-\t0\t(missing)\n", m.Model)
			continue
		}
		fmt.Fprintf(tw, "%s\t%.2f\t%.2f\t%.2f\t%d\t%d\n", m.Model, m.TSR, m.LVR, m.PS, m.Cases, m.Skipped)
	}
	_ = tw.Flush()

	if !cases {
		return
	}
	for _, m := range r.Models {
		if len(m.Results) == 0 {
			continue
		}
		fmt.Fprintf(w, "\n%s\n", m.Model)
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "CASE\tLOGIC\tGOAL\tSIM\tPHASE\tDETAIL")
		for _, c := range m.Results {
			detail := c.EvalError
			if detail == "" && len(c.Errors) > 0 {
				detail = c.Errors[0]
			}
			fmt.Fprintf(tw, "%s\t%t\t%t\t%.2f\t%s\t%s\n", c.CaseID, c.LogicOK, c.GoalOK, c.Similarity, c.Phase, detail)
		}
		_ = tw.Flush()
	}
}
