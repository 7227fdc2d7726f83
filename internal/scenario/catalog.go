package scenario

import (
	"embed"
	"os"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/rendis/plancheck/pkg/schema"
)

//go:embed scenarios/*.yaml
var builtinFS embed.FS

// Catalog maps scenario names to their source documents. Every Get decodes
// a fresh Scenario, so callers may mutate what they receive.
type Catalog struct {
	loader *Loader

	mu      sync.RWMutex
	sources map[string][]byte
}

// NewCatalog creates a catalog holding the built-in scenarios s1 to s4.
func NewCatalog(loader *Loader) (*Catalog, error) {
	c := &Catalog{loader: loader, sources: make(map[string][]byte)}

	entries, err := builtinFS.ReadDir("scenarios")
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeExecution, "read built-in scenarios: %s", err.Error()).WithCause(err)
	}
	for _, e := range entries {
		data, err := builtinFS.ReadFile(path.Join("scenarios", e.Name()))
		if err != nil {
			return nil, schema.NewErrorf(schema.ErrCodeExecution, "read %s: %s", e.Name(), err.Error()).WithCause(err)
		}
		if err := c.Add(strings.TrimSuffix(e.Name(), ".yaml"), data); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Add validates a scenario document and stores it under name.
func (c *Catalog) Add(name string, data []byte) error {
	if name == "" {
		return schema.NewError(schema.ErrCodeValidation, "scenario name is required")
	}
	if _, err := c.loader.Decode(data); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.sources[name]; exists {
		return schema.NewErrorf(schema.ErrCodeConflict, "scenario %q already registered", name)
	}
	c.sources[name] = data
	return nil
}

// Get decodes the named scenario.
func (c *Catalog) Get(name string) (*schema.Scenario, error) {
	c.mu.RLock()
	data, ok := c.sources[name]
	c.mu.RUnlock()
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "scenario %q not found", name).
			WithDetails(map[string]any{"available": c.Names()})
	}
	return c.loader.Decode(data)
}

// Source returns the raw document of the named scenario.
func (c *Catalog) Source(name string) ([]byte, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	data, ok := c.sources[name]
	return data, ok
}

// Names returns the registered scenario names, sorted.
func (c *Catalog) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.sources))
	for n := range c.sources {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Resolve accepts a catalog name or a path to a scenario file.
func (c *Catalog) Resolve(ref string) (*schema.Scenario, error) {
	c.mu.RLock()
	_, known := c.sources[ref]
	c.mu.RUnlock()
	if known {
		return c.Get(ref)
	}
	if _, err := os.Stat(ref); err == nil {
		return c.loader.LoadFile(ref)
	}
	return nil, schema.NewErrorf(schema.ErrCodeNotFound, "scenario %q is neither a built-in name nor a file", ref).
		WithDetails(map[string]any{"available": c.Names()})
}
