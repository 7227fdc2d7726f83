// Package scheduler re-runs stored evaluation schedules on their cron
// expressions.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/rendis/plancheck/internal/logging"
	"github.com/rendis/plancheck/internal/store"
	"github.com/rendis/plancheck/pkg/schema"
)

// Runner executes one scheduled evaluation and returns the stored run id.
type Runner interface {
	RunSchedule(ctx context.Context, sched *store.Schedule) (string, error)
}

// Config tunes the polling loop. Zero values get defaults.
type Config struct {
	Interval time.Duration
	Logger   *slog.Logger
}

// Scheduler polls the store for due schedules and runs them.
type Scheduler struct {
	store    store.Store
	runner   Runner
	parser   cron.Parser
	interval time.Duration
	logger   *slog.Logger
	cancel   context.CancelFunc
	done     chan struct{}
	mu       sync.Mutex

	inflightMu sync.Mutex
	inflight   map[string]struct{} // schedule IDs currently executing
}

// NewScheduler creates a new Scheduler.
func NewScheduler(s store.Store, runner Runner, cfg Config) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Discard()
	}
	return &Scheduler{
		store:    s,
		runner:   runner,
		parser:   cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		interval: cfg.Interval,
		logger:   cfg.Logger,
		inflight: make(map[string]struct{}),
	}
}

// Add validates the cron expression, computes the first run and persists a
// new enabled schedule.
func (s *Scheduler) Add(ctx context.Context, sched *store.Schedule) (*store.Schedule, error) {
	if sched.Scenario == "" || sched.Dataset == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "schedule needs a scenario and a dataset")
	}
	now := time.Now().UTC()
	next, err := s.CalculateNextRun(sched.CronExpression, now)
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeValidation, err.Error()).WithCause(err)
	}
	if sched.ID == "" {
		sched.ID = uuid.New().String()
	}
	sched.Enabled = true
	sched.NextRunAt = &next
	sched.CreatedAt = now
	if err := s.store.CreateSchedule(ctx, sched); err != nil {
		return nil, err
	}
	s.logger.Info("schedule added",
		slog.String("schedule_id", sched.ID),
		slog.String("cron", sched.CronExpression),
		slog.Time("next_run_at", next),
	)
	return sched, nil
}

// Start launches the background scheduling loop.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.done != nil {
		s.mu.Unlock()
		return fmt.Errorf("scheduler already started")
	}

	schedCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.mu.Unlock()

	go s.loop(schedCtx)
	s.logger.Info("scheduler started", slog.Duration("interval", s.interval))
	return nil
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// tick runs every enabled schedule that is due.
func (s *Scheduler) tick(ctx context.Context) {
	enabled := true
	scheds, err := s.store.ListSchedules(ctx, store.ScheduleFilter{Enabled: &enabled})
	if err != nil {
		s.logger.Error("failed to list schedules", slog.String("error", err.Error()))
		return
	}

	now := time.Now().UTC()
	for _, sched := range scheds {
		if sched.NextRunAt != nil && sched.NextRunAt.After(now) {
			continue
		}
		if !s.tryAcquire(sched.ID) {
			continue
		}
		if err := s.runSchedule(ctx, sched, now); err != nil {
			s.logger.Error("failed to run schedule",
				slog.String("schedule_id", sched.ID),
				slog.String("error", err.Error()),
			)
		}
		s.releaseSchedule(sched.ID)
	}
}

// runSchedule executes one evaluation and records its outcome.
func (s *Scheduler) runSchedule(ctx context.Context, sched *store.Schedule, now time.Time) error {
	s.logger.Info("running scheduled evaluation",
		slog.String("schedule_id", sched.ID),
		slog.String("scenario", sched.Scenario),
		slog.String("dataset", sched.Dataset),
	)

	runID, err := s.runner.RunSchedule(ctx, sched)
	status := "success"
	if err != nil {
		status = "error"
		s.logger.Error("scheduled evaluation failed",
			slog.String("schedule_id", sched.ID),
			slog.String("error", err.Error()),
		)
	}
	return s.updateStatus(ctx, sched, now, status, runID)
}

func (s *Scheduler) updateStatus(ctx context.Context, sched *store.Schedule, now time.Time, status, runID string) error {
	nextRun, err := s.CalculateNextRun(sched.CronExpression, now)
	if err != nil {
		return fmt.Errorf("calculate next run for schedule %q: %w", sched.ID, err)
	}

	return s.store.UpdateSchedule(ctx, sched.ID, store.ScheduleUpdate{
		LastRunAt:     &now,
		NextRunAt:     &nextRun,
		LastRunStatus: status,
		LastRunID:     runID,
	})
}

func (s *Scheduler) tryAcquire(id string) bool {
	s.inflightMu.Lock()
	defer s.inflightMu.Unlock()
	if _, ok := s.inflight[id]; ok {
		return false
	}
	s.inflight[id] = struct{}{}
	return true
}

func (s *Scheduler) releaseSchedule(id string) {
	s.inflightMu.Lock()
	defer s.inflightMu.Unlock()
	delete(s.inflight, id)
}

// CalculateNextRun computes the next run time for a cron expression.
func (s *Scheduler) CalculateNextRun(cronExpr string, from time.Time) (time.Time, error) {
	sched, err := s.parser.Parse(cronExpr)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse cron expression %q: %w", cronExpr, err)
	}
	return sched.Next(from), nil
}

// Stop gracefully shuts down the scheduler.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel == nil {
		return nil
	}

	s.cancel()
	<-s.done
	s.cancel = nil
	s.done = nil

	s.logger.Info("scheduler stopped")
	return nil
}

// RecoverMissed runs once every schedule whose next run passed while the
// process was down.
func (s *Scheduler) RecoverMissed(ctx context.Context) error {
	enabled := true
	scheds, err := s.store.ListSchedules(ctx, store.ScheduleFilter{Enabled: &enabled})
	if err != nil {
		return fmt.Errorf("list missed schedules: %w", err)
	}

	now := time.Now().UTC()
	recovered := 0
	for _, sched := range scheds {
		if sched.NextRunAt == nil || !sched.NextRunAt.Before(now) {
			continue
		}
		if !s.tryAcquire(sched.ID) {
			continue
		}
		err := s.runSchedule(ctx, sched, now)
		s.releaseSchedule(sched.ID)
		if err != nil {
			s.logger.Error("failed to recover missed schedule",
				slog.String("schedule_id", sched.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		recovered++
	}

	if recovered > 0 {
		s.logger.Info("recovered missed schedules", slog.Int("count", recovered))
	}
	return nil
}
