package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/tursodatabase/go-libsql"

	"github.com/rendis/plancheck/internal/evaluation"
	"github.com/rendis/plancheck/pkg/schema"
)

// LibSQLStore implements the Store interface using libSQL (embedded SQLite fork).
type LibSQLStore struct {
	db *sql.DB
}

// NewLibSQLStore opens a libSQL database at the given path and returns a Store.
// The path should be a file URI, e.g. "file:/path/to/db.db".
func NewLibSQLStore(dbPath string) (*LibSQLStore, error) {
	db, err := sql.Open("libsql", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open libsql: %w", err)
	}
	db.SetMaxOpenConns(1)

	// Some PRAGMAs return rows so we use QueryRow.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA cache_size=-20000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA temp_store=MEMORY",
	}
	for _, p := range pragmas {
		var result string
		_ = db.QueryRow(p).Scan(&result)
	}

	return &LibSQLStore{db: db}, nil
}

// DB returns the underlying *sql.DB.
func (s *LibSQLStore) DB() *sql.DB { return s.db }

// Close closes the database.
func (s *LibSQLStore) Close() error { return s.db.Close() }

// Migrate runs all pending database migrations.
func (s *LibSQLStore) Migrate(ctx context.Context) error {
	return runMigrations(ctx, s.db)
}

// Vacuum runs VACUUM on the database.
func (s *LibSQLStore) Vacuum(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "VACUUM")
	return err
}

// --- Runs ---

// SaveReport writes a run, its model aggregates and case outcomes in one
// transaction.
func (s *LibSQLStore) SaveReport(ctx context.Context, report *evaluation.Report, scheduleID string) error {
	if report == nil || report.RunID == "" {
		return schema.NewError(schema.ErrCodeValidation, "report must have a run id")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save report: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (id, scenario, dataset, schedule_id, started_at, finished_at) VALUES (?, ?, ?, ?, ?, ?)`,
		report.RunID, report.Scenario, report.Dataset, nullStr(scheduleID),
		timeOrNow(report.StartedAt), timeOrNow(report.FinishedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return schema.NewErrorf(schema.ErrCodeConflict, "run %q already stored", report.RunID).WithCause(err)
		}
		return storeError("insert run", err)
	}

	for _, mr := range report.Models {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO model_results (run_id, model, tsr, lvr, ps, cases, skipped, missing) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			report.RunID, mr.Model, mr.TSR, mr.LVR, mr.PS, mr.Cases, mr.Skipped, boolInt(mr.Missing),
		); err != nil {
			return storeError("insert model result", err)
		}
		for _, cr := range mr.Results {
			errs, err := nullableList(cr.Errors)
			if err != nil {
				return fmt.Errorf("marshal case errors: %w", err)
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO case_results (run_id, model, case_id, logic_ok, goal_ok, similarity, phase, failed_step, errors, eval_error, duration_ms)
				 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				report.RunID, mr.Model, cr.CaseID, boolInt(cr.LogicOK), boolInt(cr.GoalOK), cr.Similarity,
				string(cr.Phase), cr.FailedStep, errs, nullStr(cr.EvalError), cr.DurationMS,
			); err != nil {
				return storeError("insert case result", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return storeError("commit report", err)
	}
	return nil
}

func (s *LibSQLStore) GetRun(ctx context.Context, id string) (*Run, error) {
	run := &Run{}
	var scheduleID sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT id, scenario, dataset, schedule_id, started_at, finished_at FROM runs WHERE id = ?`, id,
	).Scan(&run.ID, &run.Scenario, &run.Dataset, &scheduleID, &run.StartedAt, &run.FinishedAt)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("run", id)
	}
	if err != nil {
		return nil, err
	}
	run.ScheduleID = scheduleID.String

	run.Models, err = s.listModelResults(ctx, id)
	if err != nil {
		return nil, err
	}
	return run, nil
}

// GetReport rebuilds the evaluation report of a stored run. Verdict details
// beyond the flattened messages are not persisted.
func (s *LibSQLStore) GetReport(ctx context.Context, id string) (*evaluation.Report, error) {
	run, err := s.GetRun(ctx, id)
	if err != nil {
		return nil, err
	}
	cases, err := s.ListCaseResults(ctx, CaseFilter{RunID: id})
	if err != nil {
		return nil, err
	}
	byModel := make(map[string][]evaluation.CaseResult)
	for _, c := range cases {
		byModel[c.Model] = append(byModel[c.Model], evaluation.CaseResult{
			Model:      c.Model,
			CaseID:     c.CaseID,
			LogicOK:    c.LogicOK,
			GoalOK:     c.GoalOK,
			Similarity: c.Similarity,
			Phase:      c.Phase,
			FailedStep: c.FailedStep,
			Errors:     c.Errors,
			EvalError:  c.EvalError,
			DurationMS: c.DurationMS,
		})
	}

	report := &evaluation.Report{
		RunID:      run.ID,
		Scenario:   run.Scenario,
		Dataset:    run.Dataset,
		StartedAt:  run.StartedAt,
		FinishedAt: run.FinishedAt,
	}
	for _, m := range run.Models {
		report.Models = append(report.Models, evaluation.ModelReport{
			Model:   m.Model,
			TSR:     m.TSR,
			LVR:     m.LVR,
			PS:      m.PS,
			Cases:   m.Cases,
			Skipped: m.Skipped,
			Missing: m.Missing,
			Results: byModel[m.Model],
		})
	}
	return report, nil
}

func (s *LibSQLStore) ListRuns(ctx context.Context, filter RunFilter) ([]*Run, error) {
	var where []string
	var args []any

	if filter.Scenario != "" {
		where = append(where, "scenario = ?")
		args = append(args, filter.Scenario)
	}
	if filter.Model != "" {
		where = append(where, "id IN (SELECT run_id FROM model_results WHERE model = ?)")
		args = append(args, filter.Model)
	}
	if filter.Since != nil {
		where = append(where, "started_at >= ?")
		args = append(args, *filter.Since)
	}

	query := "SELECT id, scenario, dataset, schedule_id, started_at, finished_at FROM runs"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY started_at DESC, id"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
		if filter.Offset > 0 {
			query += fmt.Sprintf(" OFFSET %d", filter.Offset)
		}
	}

	runs, err := s.queryRuns(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	// Single connection: rows must be closed before the follow-up queries.
	for _, run := range runs {
		if run.Models, err = s.listModelResults(ctx, run.ID); err != nil {
			return nil, err
		}
	}
	return runs, nil
}

func (s *LibSQLStore) queryRuns(ctx context.Context, query string, args ...any) ([]*Run, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run := &Run{}
		var scheduleID sql.NullString
		if err := rows.Scan(&run.ID, &run.Scenario, &run.Dataset, &scheduleID, &run.StartedAt, &run.FinishedAt); err != nil {
			return nil, err
		}
		run.ScheduleID = scheduleID.String
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func (s *LibSQLStore) DeleteRun(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "run", id)
}

// --- Case outcomes ---

func (s *LibSQLStore) ListCaseResults(ctx context.Context, filter CaseFilter) ([]*CaseRecord, error) {
	where := []string{"run_id = ?"}
	args := []any{filter.RunID}

	if filter.Model != "" {
		where = append(where, "model = ?")
		args = append(args, filter.Model)
	}
	if filter.FailedOnly {
		where = append(where, "(logic_ok = 0 OR goal_ok = 0)")
	}

	query := `SELECT run_id, model, case_id, logic_ok, goal_ok, similarity, phase, failed_step, errors, eval_error, duration_ms
		FROM case_results WHERE ` + strings.Join(where, " AND ") + " ORDER BY model, case_id"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*CaseRecord
	for rows.Next() {
		c := &CaseRecord{}
		var (
			phase      string
			errorsJSON sql.NullString
			evalError  sql.NullString
		)
		if err := rows.Scan(&c.RunID, &c.Model, &c.CaseID, &c.LogicOK, &c.GoalOK, &c.Similarity,
			&phase, &c.FailedStep, &errorsJSON, &evalError, &c.DurationMS); err != nil {
			return nil, err
		}
		c.Phase = schema.Phase(phase)
		c.EvalError = evalError.String
		if raw := jsonOrNil(errorsJSON); raw != nil {
			if err := json.Unmarshal(raw, &c.Errors); err != nil {
				return nil, fmt.Errorf("unmarshal case errors: %w", err)
			}
		}
		records = append(records, c)
	}
	return records, rows.Err()
}

// ModelHistory returns the most recent results of a model, newest first,
// optionally narrowed to one scenario.
func (s *LibSQLStore) ModelHistory(ctx context.Context, model, scenario string, limit int) ([]*ModelResult, error) {
	query := `SELECT m.run_id, m.model, m.tsr, m.lvr, m.ps, m.cases, m.skipped, m.missing
		FROM model_results m JOIN runs r ON r.id = m.run_id WHERE m.model = ?`
	args := []any{model}
	if scenario != "" {
		query += " AND r.scenario = ?"
		args = append(args, scenario)
	}
	query += " ORDER BY r.started_at DESC"
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}
	return s.queryModelResults(ctx, query, args...)
}

func (s *LibSQLStore) listModelResults(ctx context.Context, runID string) ([]*ModelResult, error) {
	return s.queryModelResults(ctx,
		`SELECT run_id, model, tsr, lvr, ps, cases, skipped, missing FROM model_results WHERE run_id = ? ORDER BY model`, runID)
}

func (s *LibSQLStore) queryModelResults(ctx context.Context, query string, args ...any) ([]*ModelResult, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []*ModelResult
	for rows.Next() {
		m := &ModelResult{}
		if err := rows.Scan(&m.RunID, &m.Model, &m.TSR, &m.LVR, &m.PS, &m.Cases, &m.Skipped, &m.Missing); err != nil {
			return nil, err
		}
		results = append(results, m)
	}
	return results, rows.Err()
}

// --- Schedules ---

func (s *LibSQLStore) CreateSchedule(ctx context.Context, sched *Schedule) error {
	models, err := nullableList(sched.Models)
	if err != nil {
		return fmt.Errorf("marshal schedule models: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO schedules (id, scenario, dataset, models, cron_expression, enabled, last_run_at, next_run_at, last_run_status, last_run_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sched.ID, sched.Scenario, sched.Dataset, models, sched.CronExpression, boolInt(sched.Enabled),
		nullTime(sched.LastRunAt), nullTime(sched.NextRunAt), nullStr(sched.LastRunStatus), nullStr(sched.LastRunID),
		timeOrNow(sched.CreatedAt),
	)
	if err != nil && isUniqueViolation(err) {
		return schema.NewErrorf(schema.ErrCodeConflict, "schedule %q already exists", sched.ID).WithCause(err)
	}
	return err
}

const scheduleColumns = `id, scenario, dataset, models, cron_expression, enabled, last_run_at, next_run_at, last_run_status, last_run_id, created_at`

func (s *LibSQLStore) GetSchedule(ctx context.Context, id string) (*Schedule, error) {
	scheds, err := s.querySchedules(ctx, `SELECT `+scheduleColumns+` FROM schedules WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	if len(scheds) == 0 {
		return nil, storeNotFound("schedule", id)
	}
	return scheds[0], nil
}

func (s *LibSQLStore) UpdateSchedule(ctx context.Context, id string, update ScheduleUpdate) error {
	var sets []string
	var args []any

	if update.Enabled != nil {
		sets = append(sets, "enabled = ?")
		args = append(args, boolInt(*update.Enabled))
	}
	if update.LastRunAt != nil {
		sets = append(sets, "last_run_at = ?")
		args = append(args, *update.LastRunAt)
	}
	if update.NextRunAt != nil {
		sets = append(sets, "next_run_at = ?")
		args = append(args, *update.NextRunAt)
	}
	if update.LastRunStatus != "" {
		sets = append(sets, "last_run_status = ?")
		args = append(args, update.LastRunStatus)
	}
	if update.LastRunID != "" {
		sets = append(sets, "last_run_id = ?")
		args = append(args, update.LastRunID)
	}
	if len(sets) == 0 {
		return nil
	}
	args = append(args, id)

	query := fmt.Sprintf("UPDATE schedules SET %s WHERE id = ?", strings.Join(sets, ", "))
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "schedule", id)
}

func (s *LibSQLStore) ListSchedules(ctx context.Context, filter ScheduleFilter) ([]*Schedule, error) {
	var where []string
	var args []any

	if filter.Enabled != nil {
		where = append(where, "enabled = ?")
		args = append(args, boolInt(*filter.Enabled))
	}
	if filter.Scenario != "" {
		where = append(where, "scenario = ?")
		args = append(args, filter.Scenario)
	}

	query := `SELECT ` + scheduleColumns + ` FROM schedules`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at, id"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}
	return s.querySchedules(ctx, query, args...)
}

func (s *LibSQLStore) querySchedules(ctx context.Context, query string, args ...any) ([]*Schedule, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var scheds []*Schedule
	for rows.Next() {
		sc := &Schedule{}
		var (
			models              sql.NullString
			lastRunAt, nextRun  sql.NullTime
			lastStatus, lastRun sql.NullString
		)
		if err := rows.Scan(&sc.ID, &sc.Scenario, &sc.Dataset, &models, &sc.CronExpression, &sc.Enabled,
			&lastRunAt, &nextRun, &lastStatus, &lastRun, &sc.CreatedAt); err != nil {
			return nil, err
		}
		if raw := jsonOrNil(models); raw != nil {
			if err := json.Unmarshal(raw, &sc.Models); err != nil {
				return nil, fmt.Errorf("unmarshal schedule models: %w", err)
			}
		}
		if lastRunAt.Valid {
			sc.LastRunAt = &lastRunAt.Time
		}
		if nextRun.Valid {
			sc.NextRunAt = &nextRun.Time
		}
		sc.LastRunStatus = lastStatus.String
		sc.LastRunID = lastRun.String
		scheds = append(scheds, sc)
	}
	return scheds, rows.Err()
}

func (s *LibSQLStore) DeleteSchedule(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM schedules WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "schedule", id)
}

// --- Helpers ---

func storeNotFound(resource, id string) *schema.PlanError {
	return schema.NewErrorf(schema.ErrCodeNotFound, "%s %q not found", resource, id)
}

func storeError(op string, err error) *schema.PlanError {
	return schema.NewErrorf(schema.ErrCodeStore, "%s: %s", op, err.Error()).WithCause(err)
}

func isUniqueViolation(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed")
}

func checkRowsAffected(res sql.Result, resource, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return storeNotFound(resource, id)
	}
	return nil
}

func timeOrNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func jsonOrNil(ns sql.NullString) json.RawMessage {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	return json.RawMessage(ns.String)
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullableList(items []string) (any, error) {
	if len(items) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(items)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}
