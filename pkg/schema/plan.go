package schema

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/invopop/jsonschema"
	"gopkg.in/yaml.v3"
)

// Reserved step keys. Every other key of a step is an action parameter.
const (
	FieldAgent  = "agent"
	FieldAction = "action"
)

// Step is one action invocation. It is encoded flat:
//
//	{"agent":"robotA","action":"arm.pick","object":"redbox","from":"Shelf.red.slot"}
//
// Parameter values are kept as decoded; non-string values are rejected by the
// validator, not by decoding.
type Step struct {
	Agent  string
	Action string
	Params map[string]any
}

// NewStep builds a step from alternating parameter names and values.
func NewStep(action string, kv ...string) Step {
	s := Step{Action: action, Params: make(map[string]any, len(kv)/2)}
	for i := 0; i+1 < len(kv); i += 2 {
		s.Params[kv[i]] = kv[i+1]
	}
	return s
}

// WithAgent returns a copy of the step tagged with agent.
func (s Step) WithAgent(agent string) Step {
	s.Agent = agent
	return s
}

// StepFromMap converts a decoded document object into a Step. A non-string
// agent or action is rendered with fmt.Sprint so it surfaces in diagnostics.
func StepFromMap(m map[string]any) Step {
	s := Step{Params: make(map[string]any, len(m))}
	for k, v := range m {
		switch k {
		case FieldAgent:
			if v != nil {
				s.Agent = asString(v)
			}
		case FieldAction:
			if v != nil {
				s.Action = asString(v)
			}
		default:
			s.Params[k] = v
		}
	}
	return s
}

func asString(v any) string {
	if str, ok := v.(string); ok {
		return str
	}
	return fmt.Sprint(v)
}

// Map returns the flat document form of the step.
func (s Step) Map() map[string]any {
	m := make(map[string]any, len(s.Params)+2)
	for k, v := range s.Params {
		m[k] = v
	}
	if s.Agent != "" {
		m[FieldAgent] = s.Agent
	}
	m[FieldAction] = s.Action
	return m
}

// ParamNames returns the parameter names in sorted order.
func (s Step) ParamNames() []string {
	return sortedKeys(s.Params)
}

// Param returns a parameter as a string and whether it is present as one.
func (s Step) Param(name string) (string, bool) {
	v, ok := s.Params[name]
	if !ok {
		return "", false
	}
	str, ok := v.(string)
	return str, ok
}

func (s Step) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Map())
}

func (s *Step) UnmarshalJSON(data []byte) error {
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return fmt.Errorf("step must be an object: %w", err)
	}
	*s = StepFromMap(m)
	return nil
}

func (s Step) MarshalYAML() (any, error) {
	return s.Map(), nil
}

func (s *Step) UnmarshalYAML(node *yaml.Node) error {
	var m map[string]any
	if err := node.Decode(&m); err != nil {
		return fmt.Errorf("step must be a mapping: %w", err)
	}
	*s = StepFromMap(m)
	return nil
}

// JSONSchema describes the flat step encoding.
func (Step) JSONSchema() *jsonschema.Schema {
	props := jsonschema.NewProperties()
	props.Set(FieldAgent, &jsonschema.Schema{Type: "string", Description: "acting agent id"})
	props.Set(FieldAction, &jsonschema.Schema{Type: "string", Description: "action name or alias"})
	for _, p := range []string{"target", "object", "from", "to"} {
		props.Set(p, &jsonschema.Schema{Type: "string"})
	}
	return &jsonschema.Schema{
		Type:       "object",
		Properties: props,
		Required:   []string{FieldAction},
	}
}

func (s Step) String() string {
	out := s.Action + "("
	for i, k := range s.ParamNames() {
		if i > 0 {
			out += ", "
		}
		out += fmt.Sprintf("%s=%v", k, s.Params[k])
	}
	out += ")"
	if s.Agent != "" {
		out = s.Agent + ": " + out
	}
	return out
}

// Plan is an ordered sequence of steps.
type Plan struct {
	Steps []Step `json:"steps" yaml:"steps" jsonschema:"required"`
}

// Agents returns the distinct agent tags used by the plan, sorted.
func (p *Plan) Agents() []string {
	seen := make(map[string]bool)
	for _, s := range p.Steps {
		if s.Agent != "" {
			seen[s.Agent] = true
		}
	}
	out := make([]string, 0, len(seen))
	for a := range seen {
		out = append(out, a)
	}
	sort.Strings(out)
	return out
}
