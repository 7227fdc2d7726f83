package planio

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/rendis/plancheck/internal/expressions"
	"github.com/rendis/plancheck/internal/validation"
	"github.com/rendis/plancheck/pkg/schema"
)

// DefaultStepsQuery locates the step list in a conventional plan document.
const DefaultStepsQuery = ".steps"

const missingSteps = "plan missing 'steps' list"

// Config configures a Loader. Zero values select defaults.
type Config struct {
	StepsQuery string
	JQ         *expressions.GoJQEngine
	Documents  *validation.DocumentValidator
}

// Loader parses plan documents. It is safe for concurrent use.
type Loader struct {
	query string
	jq    *expressions.GoJQEngine
	docs  *validation.DocumentValidator
}

// NewLoader creates a Loader and checks that the steps query compiles.
func NewLoader(cfg Config) (*Loader, error) {
	l := &Loader{query: cfg.StepsQuery, jq: cfg.JQ, docs: cfg.Documents}
	if l.query == "" {
		l.query = DefaultStepsQuery
	}
	if l.jq == nil {
		l.jq = expressions.NewGoJQEngine()
	}
	if l.docs == nil {
		docs, err := validation.NewDocumentValidator()
		if err != nil {
			return nil, err
		}
		l.docs = docs
	}
	if err := l.jq.Compile(l.query); err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "steps query %q: %s", l.query, err.Error()).WithCause(err)
	}
	return l, nil
}

// Query returns the configured steps query.
func (l *Loader) Query() string { return l.query }

// Document is a parsed plan document. Exactly one of Plan and Rejected is set.
type Document struct {
	// Raw is the decoded document, nil when the text did not parse.
	Raw any
	// Steps is the step list as located by the query, before typing.
	Steps []any
	// Plan is the typed plan.
	Plan *schema.Plan
	// Rejected explains why the document is not a plan.
	Rejected *schema.Verdict
}

// LoadFile reads and parses a plan file. Only I/O failures are errors.
func (l *Loader) LoadFile(ctx context.Context, path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "read plan: %s", err.Error()).WithCause(err)
	}
	return l.Parse(ctx, data), nil
}

// Parse decodes plan text: fenced model output, JSON, or YAML. A document
// that is not an object with a list of step objects yields a rejected verdict.
func (l *Loader) Parse(ctx context.Context, data []byte) *Document {
	raw, err := decode(ExtractJSON(string(data)))
	if err != nil {
		return &Document{Rejected: schema.RejectedDocument("plan is not valid JSON or YAML: " + err.Error())}
	}
	return l.FromValue(ctx, raw)
}

// FromValue types an already decoded document, such as MCP tool arguments.
func (l *Loader) FromValue(ctx context.Context, raw any) *Document {
	doc := &Document{Raw: raw}

	located, err := l.jq.Query(ctx, l.query, raw)
	if err != nil || located == nil {
		doc.Rejected = schema.RejectedDocument(missingSteps)
		return doc
	}
	if result := l.docs.ValidatePlanDocument(map[string]any{"steps": located}); !result.Valid() {
		doc.Rejected = rejectedStructure(result)
		return doc
	}
	doc.Steps, _ = located.([]any)

	plan, err := typedPlan(doc.Steps)
	if err != nil {
		doc.Rejected = schema.RejectedDocument(err.Error())
		return doc
	}
	doc.Plan = plan
	return doc
}

// decode tries strict JSON, then JSON around surrounding prose, then YAML.
func decode(text string) (any, error) {
	if text == "" {
		return nil, fmt.Errorf("empty document")
	}
	v, jsonErr := DecodeJSON([]byte(text))
	if jsonErr == nil {
		return v, nil
	}
	if trimmed := trimToObject(text); trimmed != text {
		if v, err := DecodeJSON([]byte(trimmed)); err == nil {
			return v, nil
		}
	}
	if err := yaml.Unmarshal([]byte(text), &v); err == nil {
		if _, isText := v.(string); !isText {
			return v, nil
		}
	}
	return nil, jsonErr
}

// DecodeJSON decodes exactly one JSON value, keeping numbers as json.Number
// so integer and float literals stay distinguishable.
func DecodeJSON(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("invalid character after top-level value")
	}
	return v, nil
}

func typedPlan(steps []any) (*schema.Plan, error) {
	data, err := json.Marshal(steps)
	if err != nil {
		return nil, fmt.Errorf("plan steps are not JSON-compatible: %w", err)
	}
	var out []schema.Step
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&out); err != nil {
		return nil, err
	}
	if out == nil {
		out = []schema.Step{}
	}
	return &schema.Plan{Steps: out}, nil
}

// rejectedStructure maps a failed document check to a verdict. Problems with
// the list itself are reported as a missing list; a bad element is
// attributed to its step index.
func rejectedStructure(result *schema.ValidationResult) *schema.Verdict {
	first := result.Errors[0]
	parts := strings.Split(strings.TrimPrefix(first.Path, "/"), "/")
	if len(parts) < 2 || parts[0] != "steps" {
		return schema.RejectedDocument(missingSteps)
	}
	idx, err := strconv.Atoi(parts[1])
	if err != nil {
		return schema.RejectedDocument(missingSteps)
	}
	v := schema.RejectedDocument("step must be an object: " + first.Message)
	v.Errors[0].Step = idx
	v.FailedStep = idx
	return v
}
