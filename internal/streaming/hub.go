// Package streaming fans out evaluation progress events to live subscribers.
package streaming

import "context"

// Event types published during an evaluation run.
const (
	EventRunStarted    = "run.started"
	EventCaseEvaluated = "case.evaluated"
	EventModelFinished = "model.finished"
	EventRunFinished   = "run.finished"
)

// StreamEvent is a real-time event emitted during an evaluation run.
type StreamEvent struct {
	RunID     string `json:"run_id"`
	Model     string `json:"model,omitempty"`
	CaseID    string `json:"case_id,omitempty"`
	EventType string `json:"event_type"`
	Payload   any    `json:"payload,omitempty"`
}

// EventFilter specifies which events a subscriber wants to receive.
type EventFilter struct {
	RunID      string   `json:"run_id,omitempty"`
	Model      string   `json:"model,omitempty"`
	EventTypes []string `json:"event_types,omitempty"`
}

// EventHub provides pub/sub for evaluation progress.
type EventHub interface {
	Publish(ctx context.Context, event StreamEvent) error
	Subscribe(ctx context.Context, filter EventFilter) (<-chan StreamEvent, func(), error)
}
