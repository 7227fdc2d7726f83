package validation

import (
	"github.com/rendis/plancheck/internal/expressions"
	"github.com/rendis/plancheck/pkg/schema"
)

// ScenarioLinter orchestrates the two-stage scenario check:
// 1. Structural (JSON Schema on the raw document)
// 2. Semantic (world invariants, goal references, rule and condition compilation)
type ScenarioLinter struct {
	docs    *DocumentValidator
	matcher *Matcher
	cel     *expressions.CELEngine
}

// NewScenarioLinter creates a ScenarioLinter.
func NewScenarioLinter() (*ScenarioLinter, error) {
	docs, err := NewDocumentValidator()
	if err != nil {
		return nil, err
	}
	cel, err := expressions.NewCELEngine()
	if err != nil {
		return nil, err
	}
	return &ScenarioLinter{
		docs:    docs,
		matcher: NewMatcher(nil),
		cel:     cel,
	}, nil
}

// Documents exposes the underlying structural validator.
func (l *ScenarioLinter) Documents() *DocumentValidator {
	return l.docs
}

// LintDocument runs the structural stage on a decoded, untyped document.
func (l *ScenarioLinter) LintDocument(doc any) *schema.ValidationResult {
	return l.docs.ValidateScenarioDocument(doc)
}

// Lint runs the semantic stage on a typed scenario.
func (l *ScenarioLinter) Lint(s *schema.Scenario) *schema.ValidationResult {
	if s == nil {
		r := &schema.ValidationResult{}
		r.AddError("", schema.ErrCodeValidation, "scenario is nil")
		return r
	}
	return validateSemantic(s, l.matcher, l.cel)
}
