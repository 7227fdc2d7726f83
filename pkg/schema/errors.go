package schema

import "fmt"

// Error codes for infrastructure failures (loading, persistence, wiring).
// Plan defects are never reported with these; they become Verdict diagnostics.
const (
	ErrCodeValidation = "VALIDATION_ERROR"
	ErrCodeExecution  = "EXECUTION_ERROR"
	ErrCodeNotFound   = "NOT_FOUND"
	ErrCodeConflict   = "CONFLICT"
	ErrCodeStore      = "STORE_ERROR"
)

// PlanError is the structured error type for all plancheck operations.
type PlanError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
	Step    *int           `json:"step,omitempty"`
	Cause   error          `json:"-"`
}

func (e *PlanError) Error() string {
	if e.Step != nil {
		return fmt.Sprintf("[%s] step %d: %s", e.Code, *e.Step, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *PlanError) Unwrap() error {
	return e.Cause
}

// NewError creates a new PlanError.
func NewError(code, message string) *PlanError {
	return &PlanError{Code: code, Message: message}
}

// NewErrorf creates a new PlanError with a formatted message.
func NewErrorf(code, format string, args ...any) *PlanError {
	return &PlanError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithStep attaches a plan step index to the error.
func (e *PlanError) WithStep(index int) *PlanError {
	e.Step = &index
	return e
}

// WithCause attaches an underlying cause.
func (e *PlanError) WithCause(err error) *PlanError {
	e.Cause = err
	return e
}

// WithDetails attaches key-value details.
func (e *PlanError) WithDetails(details map[string]any) *PlanError {
	e.Details = details
	return e
}
