// Package evaluation scores model-generated plans against a benchmark
// dataset: task success rate (TSR), logical validity rate (LVR), and plan
// similarity (PS).
package evaluation

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rendis/plancheck/internal/logging"
	"github.com/rendis/plancheck/internal/planio"
	"github.com/rendis/plancheck/internal/streaming"
	"github.com/rendis/plancheck/internal/validation"
	"github.com/rendis/plancheck/pkg/schema"
)

// Config holds evaluator dependencies. Nil fields get defaults.
type Config struct {
	PoolSize  int
	Logger    *slog.Logger
	Validator *validation.Validator
	Plans     *planio.Loader
	Events    streaming.EventHub // optional progress events
}

// Evaluator runs batch evaluations. It is safe for concurrent use.
type Evaluator struct {
	poolSize  int
	logger    *slog.Logger
	validator *validation.Validator
	plans     *planio.Loader
	events    streaming.EventHub
}

// New creates an Evaluator.
func New(cfg Config) (*Evaluator, error) {
	e := &Evaluator{
		poolSize:  cfg.PoolSize,
		logger:    cfg.Logger,
		validator: cfg.Validator,
		plans:     cfg.Plans,
		events:    cfg.Events,
	}
	if e.poolSize <= 0 {
		e.poolSize = 4
	}
	if e.logger == nil {
		e.logger = logging.Discard()
	}
	if e.validator == nil {
		e.validator = validation.New(nil, validation.Config{Logger: e.logger})
	}
	if e.plans == nil {
		loader, err := planio.NewLoader(planio.Config{})
		if err != nil {
			return nil, err
		}
		e.plans = loader
	}
	return e, nil
}

// Request selects what to evaluate. Models defaults to every model directory
// found in the dataset.
type Request struct {
	Dataset      string
	ScenarioName string
	Scenario     *schema.Scenario
	Models       []string
}

// CaseResult is the outcome for one candidate plan.
type CaseResult struct {
	Model      string          `json:"model"`
	CaseID     string          `json:"case_id"`
	LogicOK    bool            `json:"logic_ok"`
	GoalOK     bool            `json:"goal_ok"`
	Similarity float64         `json:"similarity"`
	Phase      schema.Phase    `json:"phase"`
	FailedStep int             `json:"failed_step"`
	Errors     []string        `json:"errors,omitempty"`
	Verdict    *schema.Verdict `json:"-"`
	EvalError  string          `json:"eval_error,omitempty"`
	DurationMS int64           `json:"duration_ms"`
}

// ModelReport aggregates one model. Rates are rounded to two decimals.
type ModelReport struct {
	Model   string       `json:"model"`
	TSR     float64      `json:"TSR"`
	LVR     float64      `json:"LVR"`
	PS      float64      `json:"PS"`
	Cases   int          `json:"cases"`
	Skipped int          `json:"skipped,omitempty"`
	Missing bool         `json:"missing,omitempty"`
	Results []CaseResult `json:"results,omitempty"`
}

// Report is the result of one evaluation run.
type Report struct {
	RunID      string        `json:"run_id"`
	Scenario   string        `json:"scenario"`
	Dataset    string        `json:"dataset"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Models     []ModelReport `json:"models"`
}

// Run evaluates every requested model in order.
func (e *Evaluator) Run(ctx context.Context, req Request) (*Report, error) {
	if req.Scenario == nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "scenario is required")
	}
	ds := Dataset{Root: req.Dataset}
	models := req.Models
	if len(models) == 0 {
		found, err := ds.Models()
		if err != nil {
			return nil, schema.NewErrorf(schema.ErrCodeExecution, "list models: %s", err.Error()).WithCause(err)
		}
		models = found
	}

	report := &Report{
		RunID:     uuid.New().String(),
		Scenario:  req.ScenarioName,
		Dataset:   req.Dataset,
		StartedAt: time.Now().UTC(),
	}
	ctx = logging.WithRunID(ctx, report.RunID)
	log := logging.LogWith(ctx, e.logger)
	log.Info("evaluation started", "scenario", req.ScenarioName, "models", len(models))
	e.publish(ctx, streaming.StreamEvent{RunID: report.RunID, EventType: streaming.EventRunStarted,
		Payload: map[string]any{"scenario": req.ScenarioName, "models": models}})

	for _, model := range models {
		mr, err := e.EvaluateModel(ctx, ds, req.Scenario, model)
		if err != nil {
			return nil, err
		}
		report.Models = append(report.Models, *mr)
		log.Info("model evaluated", "model", model, "TSR", mr.TSR, "LVR", mr.LVR, "PS", mr.PS, "cases", mr.Cases)
		summary := *mr
		summary.Results = nil
		e.publish(ctx, streaming.StreamEvent{RunID: report.RunID, Model: model,
			EventType: streaming.EventModelFinished, Payload: summary})
	}
	report.FinishedAt = time.Now().UTC()
	e.publish(ctx, streaming.StreamEvent{RunID: report.RunID, EventType: streaming.EventRunFinished})
	return report, nil
}

// publish sends a progress event if a hub is configured. Delivery is best effort.
func (e *Evaluator) publish(ctx context.Context, event streaming.StreamEvent) {
	if e.events == nil {
		return
	}
	if err := e.events.Publish(ctx, event); err != nil {
		logging.LogWith(ctx, e.logger).Debug("progress event dropped", "event", event.EventType, "error", err)
	}
}

// EvaluateModel scores one model directory. A missing directory yields a
// zero report. Candidates without a gold file are skipped.
func (e *Evaluator) EvaluateModel(ctx context.Context, ds Dataset, sc *schema.Scenario, model string) (*ModelReport, error) {
	log := logging.LogWith(ctx, e.logger)
	mr := &ModelReport{Model: model}

	cands, ok, err := ds.Candidates(model)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeExecution, "list %s outputs: %s", model, err.Error()).WithCause(err)
	}
	if !ok {
		log.Warn("model folder not found", "path", ds.ModelDir(model))
		mr.Missing = true
		return mr, nil
	}

	pool := NewPool(e.poolSize)
	defer pool.Close()

	results := make([]CaseResult, len(cands))
	skipped := make([]bool, len(cands))
	var mu sync.Mutex
	var firstErr error

	for i, cand := range cands {
		err := pool.Submit(ctx, func(ctx context.Context) error {
			ctx = logging.WithCaseID(ctx, cand.CaseID)
			res, skip, err := e.evaluateCase(ctx, sc, model, cand)
			results[i], skipped[i] = res, skip
			if !skip && err == nil {
				e.publish(ctx, streaming.StreamEvent{RunID: logging.RunID(ctx), Model: model,
					CaseID: cand.CaseID, EventType: streaming.EventCaseEvaluated, Payload: res})
			}
			if err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
			}
			return err
		})
		if err != nil {
			pool.Wait()
			return nil, schema.NewErrorf(schema.ErrCodeExecution, "submit case %s: %s", cand.CaseID, err.Error()).WithCause(err)
		}
	}
	pool.Wait()

	if stats := pool.Stats(); stats.Panics > 0 {
		return nil, schema.NewErrorf(schema.ErrCodeExecution, "%d case evaluation(s) panicked", stats.Panics)
	}
	if firstErr != nil {
		return nil, firstErr
	}

	var success, valid int
	var simSum float64
	for i, res := range results {
		if skipped[i] {
			mr.Skipped++
			continue
		}
		mr.Cases++
		if res.GoalOK {
			success++
		}
		if res.LogicOK {
			valid++
		}
		simSum += res.Similarity
		mr.Results = append(mr.Results, res)
	}
	if mr.Cases == 0 {
		return mr, nil
	}
	mr.TSR = round2(float64(success) / float64(mr.Cases))
	mr.LVR = round2(float64(valid) / float64(mr.Cases))
	mr.PS = round2(simSum / float64(mr.Cases))
	return mr, nil
}

func (e *Evaluator) evaluateCase(ctx context.Context, sc *schema.Scenario, model string, cand Candidate) (CaseResult, bool, error) {
	log := logging.LogWith(ctx, e.logger)
	start := time.Now()

	gold, err := LoadGold(cand.GoldPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			log.Warn("missing gold file", "case", cand.CaseID)
			return CaseResult{}, true, nil
		}
		return CaseResult{}, false, err
	}

	doc, err := e.plans.LoadFile(ctx, cand.Path)
	if err != nil {
		return CaseResult{}, false, err
	}

	verdict := doc.Rejected
	if verdict == nil {
		verdict = e.validator.Validate(ctx, validation.Input{
			World:       &sc.World,
			Plan:        doc.Plan,
			Constraints: sc.Constraints,
			Goal:        gold.GoalOrDefault(sc.Goal),
		})
	}

	res := CaseResult{
		Model:      model,
		CaseID:     cand.CaseID,
		LogicOK:    verdict.LogicOK,
		GoalOK:     verdict.GoalOK,
		Phase:      verdict.Phase,
		FailedStep: verdict.FailedStep,
		Errors:     verdict.Messages(),
		Verdict:    verdict,
	}

	sim, err := Similarity(gold.Steps, candidateSteps(doc))
	if err != nil {
		res.EvalError = fmt.Sprintf("similarity: %s", err.Error())
	}
	res.Similarity = sim
	res.DurationMS = time.Since(start).Milliseconds()

	log.Debug("case evaluated", "phase", res.Phase, "similarity", res.Similarity)
	return res, false, nil
}

// candidateSteps is what the similarity metric compares: the located step
// list, else whatever sits under "steps", else an empty list.
func candidateSteps(doc *planio.Document) any {
	if doc.Steps != nil {
		return doc.Steps
	}
	if m, ok := doc.Raw.(map[string]any); ok {
		if steps, ok := m["steps"]; ok {
			return steps
		}
	}
	return []any{}
}
