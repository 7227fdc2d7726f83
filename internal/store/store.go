// Package store persists evaluation runs, their per-model metrics and case
// outcomes, and cron schedules.
package store

import (
	"context"

	"github.com/rendis/plancheck/internal/evaluation"
)

// Store defines the persistence layer contract.
// All implementations must be safe for concurrent use.
type Store interface {
	// Runs
	SaveReport(ctx context.Context, report *evaluation.Report, scheduleID string) error
	GetRun(ctx context.Context, id string) (*Run, error)
	GetReport(ctx context.Context, id string) (*evaluation.Report, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]*Run, error)
	DeleteRun(ctx context.Context, id string) error

	// Case outcomes
	ListCaseResults(ctx context.Context, filter CaseFilter) ([]*CaseRecord, error)
	ModelHistory(ctx context.Context, model, scenario string, limit int) ([]*ModelResult, error)

	// Schedules
	CreateSchedule(ctx context.Context, sched *Schedule) error
	GetSchedule(ctx context.Context, id string) (*Schedule, error)
	UpdateSchedule(ctx context.Context, id string, update ScheduleUpdate) error
	ListSchedules(ctx context.Context, filter ScheduleFilter) ([]*Schedule, error)
	DeleteSchedule(ctx context.Context, id string) error

	// Maintenance
	Migrate(ctx context.Context) error
	Vacuum(ctx context.Context) error

	// Lifecycle
	Close() error
}
