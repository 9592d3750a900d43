package tools

import (
	"fmt"
	"sort"
	"sync"

	"github.com/nextlevelbuilder/agentcore/internal/providers"
)

// Registry maps tool names to implementations. It is built once per run;
// duplicate names are a configuration error at construction time.
type Registry struct {
	tools map[string]Tool
	mu    sync.RWMutex
}

// NewRegistry builds a registry from the supplied tool list.
func NewRegistry(list ...Tool) (*Registry, error) {
	r := &Registry{tools: make(map[string]Tool, len(list))}
	for _, t := range list {
		if _, exists := r.tools[t.Name()]; exists {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateName, t.Name())
		}
		r.tools[t.Name()] = t
	}
	return r, nil
}

// Get returns a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// List returns all registered tool names, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Count returns the number of registered tools.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// ProviderDefs returns tool definitions for LLM provider APIs,
// in sorted name order so requests are deterministic.
func (r *Registry) ProviderDefs() []providers.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)

	defs := make([]providers.ToolDefinition, 0, len(names))
	for _, name := range names {
		defs = append(defs, ToProviderDef(r.tools[name]))
	}
	return defs
}
