package schema

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
)

// GenerateScenarioJSONSchema produces a JSON Schema Draft 2020-12 document
// for scenario files (world + goal + constraints).
func GenerateScenarioJSONSchema() ([]byte, error) {
	r := new(jsonschema.Reflector)
	r.DoNotReference = false

	s := r.Reflect(&Scenario{})
	s.ID = "https://github.com/rendis/plancheck/schemas/scenario-v1.json"
	s.Title = "plancheck scenario v1"
	s.Description = "World model, default goal, and placement constraints"

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal scenario schema: %w", err)
	}
	return data, nil
}

// GeneratePlanJSONSchema produces a JSON Schema Draft 2020-12 document for plans.
func GeneratePlanJSONSchema() ([]byte, error) {
	r := new(jsonschema.Reflector)
	r.DoNotReference = false

	s := r.Reflect(&Plan{})
	s.ID = "https://github.com/rendis/plancheck/schemas/plan-v1.json"
	s.Title = "plancheck plan v1"
	s.Description = "Ordered list of flat action steps"

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal plan schema: %w", err)
	}
	return data, nil
}
