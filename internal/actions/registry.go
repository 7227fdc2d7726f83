package actions

import (
	"sort"
	"sync"

	"github.com/rendis/plancheck/pkg/schema"
)

// ActionRegistry is the lookup contract the validator depends on.
type ActionRegistry interface {
	Get(name string) (*ActionSchema, error)
	List() []ActionInfo
}

// Registry is the concrete thread-safe ActionRegistry implementation.
type Registry struct {
	mu      sync.RWMutex
	actions map[string]*ActionSchema
	aliases map[string]string
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		actions: make(map[string]*ActionSchema),
		aliases: make(map[string]string),
	}
}

// Register adds an action schema. Returns error on duplicate name.
func (r *Registry) Register(s *ActionSchema) error {
	if s == nil {
		return schema.NewError(schema.ErrCodeValidation, "action schema is nil")
	}
	if s.Name == "" {
		return schema.NewError(schema.ErrCodeValidation, "action name is empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.taken(s.Name) {
		return schema.NewErrorf(schema.ErrCodeConflict, "action %q already registered", s.Name)
	}

	r.actions[s.Name] = s
	return nil
}

// Alias makes alias resolve to the registered action name.
func (r *Registry) Alias(alias, name string) error {
	if alias == "" {
		return schema.NewError(schema.ErrCodeValidation, "alias is empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.actions[name]; !ok {
		return schema.NewErrorf(schema.ErrCodeNotFound, "action %q not registered", name)
	}
	if r.taken(alias) {
		return schema.NewErrorf(schema.ErrCodeConflict, "alias %q already registered", alias)
	}
	r.aliases[alias] = name
	return nil
}

func (r *Registry) taken(name string) bool {
	_, isAction := r.actions[name]
	_, isAlias := r.aliases[name]
	return isAction || isAlias
}

// Get retrieves an action schema by name or alias.
func (r *Registry) Get(name string) (*ActionSchema, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if target, ok := r.aliases[name]; ok {
		name = target
	}
	s, ok := r.actions[name]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "action %q not registered", name)
	}
	return s, nil
}

// List returns info for all registered actions, sorted by name.
func (r *Registry) List() []ActionInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	aliases := make(map[string][]string)
	for alias, name := range r.aliases {
		aliases[name] = append(aliases[name], alias)
	}

	infos := make([]ActionInfo, 0, len(r.actions))
	for _, s := range r.actions {
		info := ActionInfo{
			Name:          s.Name,
			Kind:          s.Kind.String(),
			Description:   s.Description,
			Required:      append([]string(nil), s.Required...),
			Allowed:       s.Allowed(),
			Aliases:       aliases[s.Name],
			Preconditions: make([]string, len(s.Preconditions)),
			Effects:       make([]string, len(s.Effects)),
		}
		sort.Strings(info.Aliases)
		for i, p := range s.Preconditions {
			info.Preconditions[i] = p.String()
		}
		for i, e := range s.Effects {
			info.Effects[i] = e.String()
		}
		infos = append(infos, info)
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].Name < infos[j].Name
	})
	return infos
}

// Has checks if a name or alias is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.taken(name)
}

// Count returns the number of registered actions, not counting aliases.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.actions)
}
