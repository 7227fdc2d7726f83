package evaluation

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rendis/plancheck/internal/planio"
	"github.com/rendis/plancheck/pkg/schema"
)

// Dataset is a benchmark directory:
//
//	<root>/gold/<case>.json
//	<root>/llm_outputs/<model>/<case>.json
type Dataset struct {
	Root string
}

func (d Dataset) GoldDir() string { return filepath.Join(d.Root, "gold") }

func (d Dataset) ModelDir(model string) string {
	return filepath.Join(d.Root, "llm_outputs", model)
}

// Models lists the model directories under llm_outputs, sorted.
func (d Dataset) Models() ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(d.Root, "llm_outputs"))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var models []string
	for _, e := range entries {
		if e.IsDir() {
			models = append(models, e.Name())
		}
	}
	sort.Strings(models)
	return models, nil
}

// Candidate is one model output file and its gold counterpart.
type Candidate struct {
	CaseID   string
	Path     string
	GoldPath string
}

// Candidates lists the *.json files of a model, sorted by case id. ok is
// false when the model directory does not exist.
func (d Dataset) Candidates(model string) (cands []Candidate, ok bool, err error) {
	dir := d.ModelDir(model)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, err
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		id := strings.TrimSuffix(e.Name(), ".json")
		cands = append(cands, Candidate{
			CaseID:   id,
			Path:     filepath.Join(dir, e.Name()),
			GoldPath: filepath.Join(d.GoldDir(), id+".json"),
		})
	}
	sort.Slice(cands, func(i, j int) bool { return cands[i].CaseID < cands[j].CaseID })
	return cands, true, nil
}

// Gold is a reference plan. Goal, when present, maps slot to object.
type Gold struct {
	TaskID      string            `json:"task_id,omitempty"`
	Description string            `json:"description,omitempty"`
	Steps       any               `json:"steps"`
	Goal        map[string]string `json:"goal,omitempty"`
	HasGoal     bool              `json:"-"`
}

// LoadGold reads a gold file. A missing steps key reads as an empty list.
func LoadGold(path string) (*Gold, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	decoded, err := planio.DecodeJSON(data)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "gold %s: %s", filepath.Base(path), err.Error()).WithCause(err)
	}
	raw, ok := decoded.(map[string]any)
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "gold %s: not a JSON object", filepath.Base(path))
	}
	var g Gold
	if err := json.Unmarshal(data, &g); err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "gold %s: %s", filepath.Base(path), err.Error()).WithCause(err)
	}
	// Steps keep their number literals for the similarity text.
	g.Steps = []any{}
	if steps, ok := raw["steps"]; ok {
		g.Steps = steps
	}
	_, g.HasGoal = raw["goal"]
	return &g, nil
}

// GoalOrDefault inverts the gold goal to object -> slot, or returns fallback
// when the gold file declares none.
func (g *Gold) GoalOrDefault(fallback *schema.Goal) *schema.Goal {
	if !g.HasGoal {
		return fallback
	}
	return schema.GoalFromSlotMap(g.Goal)
}
