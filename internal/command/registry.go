package command

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Registry holds command definitions indexed by name and alias.
type Registry struct {
	mu    sync.RWMutex
	defs  []Definition
	index map[string]int
}

// NewRegistry returns a registry holding defs. It panics on a name clash,
// which is a programming error.
func NewRegistry(defs ...Definition) *Registry {
	r := &Registry{index: make(map[string]int)}
	if err := r.Register(defs...); err != nil {
		panic(err)
	}
	return r
}

// Register adds definitions. Names and aliases are case-insensitive and
// must be unique across the registry.
func (r *Registry) Register(defs ...Definition) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, def := range defs {
		if def.Name == "" {
			return fmt.Errorf("command definition without a name")
		}
		if def.Handler == nil {
			return fmt.Errorf("command %q has no handler", def.Name)
		}
		keys := append([]string{def.Name}, def.Aliases...)
		for _, k := range keys {
			if owner, ok := r.index[strings.ToLower(k)]; ok {
				return fmt.Errorf("command %q: name %q already used by %q", def.Name, k, r.defs[owner].Name)
			}
		}
		r.defs = append(r.defs, def)
		for _, k := range keys {
			r.index[strings.ToLower(k)] = len(r.defs) - 1
		}
	}
	return nil
}

// Lookup finds a definition by name or alias.
func (r *Registry) Lookup(name string) (Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	i, ok := r.index[strings.ToLower(name)]
	if !ok {
		return Definition{}, false
	}
	return r.defs[i], true
}

// Definitions returns all definitions sorted by name.
func (r *Registry) Definitions() []Definition {
	r.mu.RLock()
	out := make([]Definition, len(r.defs))
	copy(out, r.defs)
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Names returns the primary command names, sorted.
func (r *Registry) Names() []string {
	defs := r.Definitions()
	names := make([]string, len(defs))
	for i, d := range defs {
		names[i] = d.Name
	}
	return names
}
