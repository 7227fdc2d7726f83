package validation

import (
	"encoding/json"
	"fmt"
	"strings"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/rendis/plancheck/pkg/schema"
)

const planDocumentSchemaURL = "https://github.com/rendis/plancheck/schemas/plan-document.json"

// planDocumentSchemaJSON is the structural contract of a plan document.
// Step fields are checked per step by the Validator.
const planDocumentSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "https://github.com/rendis/plancheck/schemas/plan-document.json",
  "type": "object",
  "required": ["steps"],
  "properties": {
    "steps": {
      "type": "array",
      "items": { "type": "object" }
    }
  }
}`

const scenarioSchemaURL = "https://github.com/rendis/plancheck/schemas/scenario-v1.json"

// DocumentValidator checks raw plan and scenario documents against JSON Schema
// Draft 2020-12 before they are decoded. It is safe for concurrent use.
type DocumentValidator struct {
	planSchema     *jsonschema.Schema
	scenarioSchema *jsonschema.Schema
}

// NewDocumentValidator compiles the plan document schema and the scenario
// schema generated from the Go types.
func NewDocumentValidator() (*DocumentValidator, error) {
	c := jsonschema.NewCompiler()
	c.AssertFormat()

	planDoc, err := jsonschema.UnmarshalJSON(strings.NewReader(planDocumentSchemaJSON))
	if err != nil {
		return nil, fmt.Errorf("unmarshal plan schema: %w", err)
	}
	if err := c.AddResource(planDocumentSchemaURL, planDoc); err != nil {
		return nil, fmt.Errorf("add plan schema resource: %w", err)
	}

	scenarioJSON, err := schema.GenerateScenarioJSONSchema()
	if err != nil {
		return nil, err
	}
	scenarioDoc, err := jsonschema.UnmarshalJSON(strings.NewReader(string(scenarioJSON)))
	if err != nil {
		return nil, fmt.Errorf("unmarshal scenario schema: %w", err)
	}
	if err := c.AddResource(scenarioSchemaURL, scenarioDoc); err != nil {
		return nil, fmt.Errorf("add scenario schema resource: %w", err)
	}

	planSchema, err := c.Compile(planDocumentSchemaURL)
	if err != nil {
		return nil, fmt.Errorf("compile plan schema: %w", err)
	}
	scenarioSchema, err := c.Compile(scenarioSchemaURL)
	if err != nil {
		return nil, fmt.Errorf("compile scenario schema: %w", err)
	}

	return &DocumentValidator{
		planSchema:     planSchema,
		scenarioSchema: scenarioSchema,
	}, nil
}

// ValidatePlanDocument checks that doc is an object carrying a list of step objects.
func (v *DocumentValidator) ValidatePlanDocument(doc any) *schema.ValidationResult {
	return validateDocument(v.planSchema, doc)
}

// ValidateScenarioDocument checks a decoded scenario document.
func (v *DocumentValidator) ValidateScenarioDocument(doc any) *schema.ValidationResult {
	return validateDocument(v.scenarioSchema, doc)
}

func validateDocument(sch *jsonschema.Schema, doc any) *schema.ValidationResult {
	result := &schema.ValidationResult{}

	value, err := toJSONValue(doc)
	if err != nil {
		result.AddError("", schema.ErrCodeValidation, "document is not JSON-compatible: "+err.Error())
		return result
	}

	if err := sch.Validate(value); err != nil {
		verr, ok := err.(*jsonschema.ValidationError)
		if !ok {
			result.AddError("", schema.ErrCodeValidation, err.Error())
			return result
		}
		for _, leaf := range collectViolations(verr) {
			result.AddError(leaf.path, schema.ErrCodeValidation, leaf.message)
		}
	}
	return result
}

// toJSONValue round-trips a Go value through JSON encoding/decoding so that
// numeric values become json.Number (required by the jsonschema library).
func toJSONValue(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return jsonschema.UnmarshalJSON(strings.NewReader(string(b)))
}

var printer = message.NewPrinter(language.English)

type violation struct {
	path    string
	message string
}

// collectViolations walks a ValidationError tree and collects leaf errors
// with their instance locations.
func collectViolations(verr *jsonschema.ValidationError) []violation {
	if len(verr.Causes) == 0 {
		loc := "/"
		if len(verr.InstanceLocation) > 0 {
			loc = "/" + strings.Join(verr.InstanceLocation, "/")
		}
		return []violation{{path: loc, message: verr.ErrorKind.LocalizedString(printer)}}
	}

	var out []violation
	for _, cause := range verr.Causes {
		out = append(out, collectViolations(cause)...)
	}
	return out
}
