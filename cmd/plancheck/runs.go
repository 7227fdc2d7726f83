package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/rendis/plancheck/internal/scheduler"
	"github.com/rendis/plancheck/internal/store"
)

var (
	runsScenario string
	runsModel    string
	runsSince    string
	runsLimit    int
	runsFailed   bool
	runsJSON     bool
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Browse stored evaluation runs and schedules",
}

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored runs, newest first",
	Args:  cobra.NoArgs,
	RunE:  runRunsList,
}

var runsShowCmd = &cobra.Command{
	Use:   "show [run-id]",
	Short: "Show a stored run report",
	Args:  cobra.ExactArgs(1),
	RunE:  runRunsShow,
}

var runsCasesCmd = &cobra.Command{
	Use:   "cases [run-id]",
	Short: "List per-case outcomes of a run",
	Args:  cobra.ExactArgs(1),
	RunE:  runRunsCases,
}

var runsHistoryCmd = &cobra.Command{
	Use:   "history [model]",
	Short: "Show a model's metrics across runs",
	Args:  cobra.ExactArgs(1),
	RunE:  runRunsHistory,
}

var runsDeleteCmd = &cobra.Command{
	Use:   "delete [run-id]",
	Short: "Delete a run and its case outcomes",
	Args:  cobra.ExactArgs(1),
	RunE:  runRunsDelete,
}

var runsSchedulesCmd = &cobra.Command{
	Use:   "schedules",
	Short: "List evaluation schedules",
	Args:  cobra.NoArgs,
	RunE:  runRunsSchedules,
}

var runsUnscheduleCmd = &cobra.Command{
	Use:   "unschedule [schedule-id]",
	Short: "Delete an evaluation schedule",
	Args:  cobra.ExactArgs(1),
	RunE:  runRunsUnschedule,
}

var runsServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run every enabled schedule until interrupted",
	Args:  cobra.NoArgs,
	RunE:  runRunsServe,
}

func init() {
	runsListCmd.Flags().StringVar(&runsScenario, "scenario", "", "only runs of this scenario")
	runsListCmd.Flags().StringVar(&runsModel, "model", "", "only runs that evaluated this model")
	runsListCmd.Flags().StringVar(&runsSince, "since", "", "only runs started after this RFC3339 time or duration ago (e.g. 24h)")
	runsListCmd.Flags().IntVar(&runsLimit, "limit", 20, "maximum number of runs")

	runsCasesCmd.Flags().StringVar(&runsModel, "model", "", "only cases of this model")
	runsCasesCmd.Flags().BoolVar(&runsFailed, "failed", false, "only cases with logic or goal failures")

	runsHistoryCmd.Flags().StringVar(&runsScenario, "scenario", "", "only runs of this scenario")
	runsHistoryCmd.Flags().IntVar(&runsLimit, "limit", 20, "maximum number of entries")

	runsCmd.PersistentFlags().BoolVar(&runsJSON, "json", false, "print as JSON")

	runsCmd.AddCommand(runsListCmd, runsShowCmd, runsCasesCmd, runsHistoryCmd, runsDeleteCmd,
		runsSchedulesCmd, runsUnscheduleCmd, runsServeCmd)
}

// withStore opens the run database for the duration of fn.
func withStore(cmd *cobra.Command, fn func(a *app, st store.Store) error) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	st, err := a.openStore(cmd.Context())
	if err != nil {
		return err
	}
	defer st.Close()
	return fn(a, st)
}

func runRunsList(cmd *cobra.Command, _ []string) error {
	since, err := parseSince(runsSince, time.Now())
	if err != nil {
		return err
	}
	return withStore(cmd, func(_ *app, st store.Store) error {
		runs, err := st.ListRuns(cmd.Context(), store.RunFilter{
			Scenario: runsScenario,
			Model:    runsModel,
			Since:    since,
			Limit:    runsLimit,
		})
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if runsJSON {
			return writeJSON(out, runs)
		}
		printRuns(out, runs)
		return nil
	})
}

func runRunsShow(cmd *cobra.Command, args []string) error {
	return withStore(cmd, func(_ *app, st store.Store) error {
		report, err := st.GetReport(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if runsJSON {
			return writeJSON(cmd.OutOrStdout(), report)
		}
		printReport(cmd.OutOrStdout(), report, true)
		return nil
	})
}

func runRunsCases(cmd *cobra.Command, args []string) error {
	return withStore(cmd, func(_ *app, st store.Store) error {
		cases, err := st.ListCaseResults(cmd.Context(), store.CaseFilter{
			RunID:      args[0],
			Model:      runsModel,
			FailedOnly: runsFailed,
		})
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if runsJSON {
			return writeJSON(out, cases)
		}
		tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "MODEL\tCASE\tLOGIC\tGOAL\tSIM\tPHASE\tSTEP")
		for _, c := range cases {
			fmt.Fprintf(tw, "%s\t%s\t%t\t%t\t%.2f\t%s\t%d\n",
				c.Model, c.CaseID, c.LogicOK, c.GoalOK, c.Similarity, c.Phase, c.FailedStep)
		}
		return tw.Flush()
	})
}

func runRunsHistory(cmd *cobra.Command, args []string) error {
	return withStore(cmd, func(_ *app, st store.Store) error {
		hist, err := st.ModelHistory(cmd.Context(), args[0], runsScenario, runsLimit)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if runsJSON {
			return writeJSON(out, hist)
		}
		tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "RUN\tTSR\tLVR\tPS\tCASES")
		for _, m := range hist {
			fmt.Fprintf(tw, "%s\t%.2f\t%.2f\t%.2f\t%d\n", m.RunID, m.TSR, m.LVR, m.PS, m.Cases)
		}
		return tw.Flush()
	})
}

func runRunsDelete(cmd *cobra.Command, args []string) error {
	return withStore(cmd, func(_ *app, st store.Store) error {
		if err := st.DeleteRun(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "deleted run %s\n", args[0])
		return nil
	})
}

func runRunsSchedules(cmd *cobra.Command, _ []string) error {
	return withStore(cmd, func(_ *app, st store.Store) error {
		scheds, err := st.ListSchedules(cmd.Context(), store.ScheduleFilter{})
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if runsJSON {
			return writeJSON(out, scheds)
		}
		tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tCRON\tSCENARIO\tENABLED\tNEXT RUN\tLAST STATUS")
		for _, s := range scheds {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%t\t%s\t%s\n",
				s.ID, s.CronExpression, s.Scenario, s.Enabled, formatTime(s.NextRunAt), s.LastRunStatus)
		}
		return tw.Flush()
	})
}

func runRunsUnschedule(cmd *cobra.Command, args []string) error {
	return withStore(cmd, func(_ *app, st store.Store) error {
		if err := st.DeleteSchedule(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "deleted schedule %s\n", args[0])
		return nil
	})
}

func runRunsServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signalContext(cmd)
	defer stop()
	return withStore(cmd, func(a *app, st store.Store) error {
		ev, err := a.evaluator()
		if err != nil {
			return err
		}
		runner := &scheduler.EvaluationRunner{Evaluator: ev, Scenarios: a.catalog, Store: st}
		sched := scheduler.NewScheduler(st, runner, scheduler.Config{Logger: a.logger})
		a.logger.Info("scheduler started", "db", a.cfg.DBPath)
		return runScheduler(ctx, sched, a)
	})
}

func printRuns(w io.Writer, runs []*store.Run) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN\tSTARTED\tSCENARIO\tMODELS")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\n", r.ID, r.StartedAt.Format(time.RFC3339), r.Scenario, len(r.Models))
	}
	_ = tw.Flush()
}

// parseSince accepts an RFC3339 timestamp or a duration counted back from now.
func parseSince(s string, now time.Time) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return &t, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return nil, fmt.Errorf("invalid --since %q: want RFC3339 time or duration", s)
	}
	t := now.Add(-d)
	return &t, nil
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Format(time.RFC3339)
}
