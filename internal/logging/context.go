package logging

import (
	"context"
	"log/slog"
)

type ctxKey int

const (
	runIDKey ctxKey = iota
	caseIDKey
	stepKey
	agentKey
)

// WithRunID returns a context tagged with an evaluation run ID.
func WithRunID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, runIDKey, id)
}

// WithCaseID returns a context tagged with the plan/case being validated.
func WithCaseID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, caseIDKey, id)
}

// WithStep returns a context tagged with a plan step index.
func WithStep(ctx context.Context, index int) context.Context {
	return context.WithValue(ctx, stepKey, index)
}

// WithAgent returns a context tagged with the acting agent.
func WithAgent(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, agentKey, id)
}

// RunID extracts the run ID from the context, or "" if absent.
func RunID(ctx context.Context) string {
	v, _ := ctx.Value(runIDKey).(string)
	return v
}

// CaseID extracts the case ID from the context, or "" if absent.
func CaseID(ctx context.Context) string {
	v, _ := ctx.Value(caseIDKey).(string)
	return v
}

// Step extracts the step index from the context.
func Step(ctx context.Context) (int, bool) {
	v, ok := ctx.Value(stepKey).(int)
	return v, ok
}

// Agent extracts the agent from the context, or "" if absent.
func Agent(ctx context.Context) string {
	v, _ := ctx.Value(agentKey).(string)
	return v
}

func attrs(ctx context.Context) []slog.Attr {
	var out []slog.Attr
	if v := RunID(ctx); v != "" {
		out = append(out, slog.String("run_id", v))
	}
	if v := CaseID(ctx); v != "" {
		out = append(out, slog.String("case_id", v))
	}
	if v, ok := Step(ctx); ok {
		out = append(out, slog.Int("step", v))
	}
	if v := Agent(ctx); v != "" {
		out = append(out, slog.String("agent", v))
	}
	return out
}

// LogWith returns a logger enriched with correlation attributes from the context.
// Only values that are set are added.
func LogWith(ctx context.Context, logger *slog.Logger) *slog.Logger {
	for _, a := range attrs(ctx) {
		logger = logger.With(a)
	}
	return logger
}

// CorrelationHandler wraps an slog.Handler, injecting correlation attributes
// from the context into every record. Use with slog.New(NewCorrelationHandler(inner))
// so callers can log with logger.InfoContext(ctx, ...).
type CorrelationHandler struct {
	inner slog.Handler
}

// NewCorrelationHandler wraps the given handler.
func NewCorrelationHandler(inner slog.Handler) *CorrelationHandler {
	return &CorrelationHandler{inner: inner}
}

func (h *CorrelationHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *CorrelationHandler) Handle(ctx context.Context, r slog.Record) error {
	r.AddAttrs(attrs(ctx)...)
	return h.inner.Handle(ctx, r)
}

func (h *CorrelationHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &CorrelationHandler{inner: h.inner.WithAttrs(attrs)}
}

func (h *CorrelationHandler) WithGroup(name string) slog.Handler {
	return &CorrelationHandler{inner: h.inner.WithGroup(name)}
}

// Discard returns a logger that drops every record.
func Discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}
