// Package scenario loads world scenarios from YAML or JSON documents and
// serves the built-in catalog.
package scenario

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/rendis/plancheck/internal/logging"
	"github.com/rendis/plancheck/internal/validation"
	"github.com/rendis/plancheck/pkg/schema"
)

// Loader decodes scenario documents. YAML is a superset of JSON, so one
// decoder serves both formats.
type Loader struct {
	linter *validation.ScenarioLinter
	logger *slog.Logger
}

// NewLoader creates a Loader. A nil logger discards lint warnings.
func NewLoader(logger *slog.Logger) (*Loader, error) {
	linter, err := validation.NewScenarioLinter()
	if err != nil {
		return nil, fmt.Errorf("scenario linter: %w", err)
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Loader{linter: linter, logger: logger}, nil
}

// LoadFile reads and validates a scenario file.
func (l *Loader) LoadFile(path string) (*schema.Scenario, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "open scenario: %s", err.Error()).WithCause(err)
	}
	defer f.Close()
	return l.Load(f)
}

// Load reads a scenario document in three passes: structural (JSON Schema on
// the untyped document), strict typed decode, then semantic lint.
func (l *Loader) Load(r io.Reader) (*schema.Scenario, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}
	return l.Decode(data)
}

// Decode is Load over an in-memory document.
func (l *Loader) Decode(data []byte) (*schema.Scenario, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "parse scenario: %s", err.Error()).WithCause(err)
	}
	if result := l.linter.LintDocument(doc); !result.Valid() {
		return nil, resultError("scenario document", result)
	}

	var s schema.Scenario
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "decode scenario: %s", err.Error()).WithCause(err)
	}

	result := l.linter.Lint(&s)
	for _, w := range result.Warnings {
		l.logger.Warn("scenario lint", "world", s.World.Name, "path", w.Path, "message", w.Message)
	}
	if !result.Valid() {
		return nil, resultError("scenario "+s.World.Name, result)
	}
	return &s, nil
}

func resultError(subject string, result *schema.ValidationResult) error {
	issues := make([]string, len(result.Errors))
	for i, e := range result.Errors {
		issues[i] = e.String()
	}
	return schema.NewErrorf(schema.ErrCodeValidation, "invalid %s: %s", subject, result.Summary()).
		WithDetails(map[string]any{"issues": issues})
}
