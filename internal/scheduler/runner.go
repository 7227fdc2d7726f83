package scheduler

import (
	"context"

	"github.com/rendis/plancheck/internal/evaluation"
	"github.com/rendis/plancheck/internal/store"
	"github.com/rendis/plancheck/pkg/schema"
)

// ScenarioSource resolves a scenario reference (built-in name or file path).
type ScenarioSource interface {
	Resolve(ref string) (*schema.Scenario, error)
}

// EvaluationRunner evaluates a schedule's dataset and stores the report.
type EvaluationRunner struct {
	Evaluator *evaluation.Evaluator
	Scenarios ScenarioSource
	Store     store.Store
}

// RunSchedule implements Runner.
func (r *EvaluationRunner) RunSchedule(ctx context.Context, sched *store.Schedule) (string, error) {
	sc, err := r.Scenarios.Resolve(sched.Scenario)
	if err != nil {
		return "", err
	}
	report, err := r.Evaluator.Run(ctx, evaluation.Request{
		Dataset:      sched.Dataset,
		ScenarioName: sched.Scenario,
		Scenario:     sc,
		Models:       sched.Models,
	})
	if err != nil {
		return "", err
	}
	if err := r.Store.SaveReport(ctx, report, sched.ID); err != nil {
		return report.RunID, err
	}
	return report.RunID, nil
}
