package store

import (
	"time"

	"github.com/rendis/plancheck/pkg/schema"
)

// Run is a persisted evaluation run with its per-model aggregates.
type Run struct {
	ID         string         `json:"id"`
	Scenario   string         `json:"scenario"`
	Dataset    string         `json:"dataset"`
	ScheduleID string         `json:"schedule_id,omitempty"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
	Models     []*ModelResult `json:"models,omitempty"`
}

// ModelResult holds the metrics of one model within a run.
type ModelResult struct {
	RunID   string  `json:"run_id"`
	Model   string  `json:"model"`
	TSR     float64 `json:"TSR"`
	LVR     float64 `json:"LVR"`
	PS      float64 `json:"PS"`
	Cases   int     `json:"cases"`
	Skipped int     `json:"skipped,omitempty"`
	Missing bool    `json:"missing,omitempty"`
}

// CaseRecord is one stored case outcome.
type CaseRecord struct {
	RunID      string       `json:"run_id"`
	Model      string       `json:"model"`
	CaseID     string       `json:"case_id"`
	LogicOK    bool         `json:"logic_ok"`
	GoalOK     bool         `json:"goal_ok"`
	Similarity float64      `json:"similarity"`
	Phase      schema.Phase `json:"phase"`
	FailedStep int          `json:"failed_step"`
	Errors     []string     `json:"errors,omitempty"`
	EvalError  string       `json:"eval_error,omitempty"`
	DurationMS int64        `json:"duration_ms"`
}

// Schedule is a cron-triggered re-evaluation of a dataset.
type Schedule struct {
	ID             string     `json:"id"`
	Scenario       string     `json:"scenario"`
	Dataset        string     `json:"dataset"`
	Models         []string   `json:"models,omitempty"`
	CronExpression string     `json:"cron_expression"`
	Enabled        bool       `json:"enabled"`
	LastRunAt      *time.Time `json:"last_run_at,omitempty"`
	NextRunAt      *time.Time `json:"next_run_at,omitempty"`
	LastRunStatus  string     `json:"last_run_status,omitempty"`
	LastRunID      string     `json:"last_run_id,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// --- Filter and Update types ---

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Scenario string     `json:"scenario,omitempty"`
	Model    string     `json:"model,omitempty"`
	Since    *time.Time `json:"since,omitempty"`
	Limit    int        `json:"limit,omitempty"`
	Offset   int        `json:"offset,omitempty"`
}

// CaseFilter specifies criteria for listing case outcomes of a run.
type CaseFilter struct {
	RunID      string `json:"run_id"`
	Model      string `json:"model,omitempty"`
	FailedOnly bool   `json:"failed_only,omitempty"`
	Limit      int    `json:"limit,omitempty"`
}

// ScheduleUpdate specifies mutable fields of a schedule.
type ScheduleUpdate struct {
	Enabled       *bool      `json:"enabled,omitempty"`
	LastRunAt     *time.Time `json:"last_run_at,omitempty"`
	NextRunAt     *time.Time `json:"next_run_at,omitempty"`
	LastRunStatus string     `json:"last_run_status,omitempty"`
	LastRunID     string     `json:"last_run_id,omitempty"`
}

// ScheduleFilter specifies criteria for listing schedules.
type ScheduleFilter struct {
	Enabled  *bool  `json:"enabled,omitempty"`
	Scenario string `json:"scenario,omitempty"`
	Limit    int    `json:"limit,omitempty"`
}
