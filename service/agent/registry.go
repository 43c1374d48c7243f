package agent

import (
	"fmt"
	"strings"
	"sync"
)

// NotFoundError is returned when an agent reference resolves to nothing.
type NotFoundError struct {
	Ref string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("agent not found: %v", e.Ref)
}

// Registry resolves agent references to instances. Built-in agents are
// checked before user registrations; versioned references ("name@version")
// are cached under the versioned key after first resolution.
type Registry struct {
	mu      sync.RWMutex
	builtin map[string]Agent
	agents  map[string]Agent
	cache   map[string]Agent
}

// NewRegistry creates a registry seeded with the supplied built-in agents.
func NewRegistry(builtins ...Agent) *Registry {
	r := &Registry{
		builtin: map[string]Agent{},
		agents:  map[string]Agent{},
		cache:   map[string]Agent{},
	}
	for _, a := range builtins {
		r.builtin[a.Name()] = a
	}
	return r
}

// Register adds a user-defined agent, overriding a previous registration
// under the same name.
func (r *Registry) Register(a Agent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.agents[a.Name()] = a
	// Registration invalidates any versioned resolutions of the same name.
	for key := range r.cache {
		if strings.HasPrefix(key, a.Name()+"@") {
			delete(r.cache, key)
		}
	}
}

// Lookup resolves an agent reference, either "name" or "name@version".
func (r *Registry) Lookup(ref string) (Agent, error) {
	name, version := splitRef(ref)

	if version != "" {
		r.mu.RLock()
		cached, ok := r.cache[ref]
		r.mu.RUnlock()
		if ok {
			return cached, nil
		}
	}

	r.mu.RLock()
	resolved, ok := r.builtin[name]
	if !ok {
		resolved, ok = r.agents[name]
	}
	r.mu.RUnlock()
	if !ok {
		return nil, &NotFoundError{Ref: ref}
	}

	if version != "" {
		if versioned, ok := resolved.(Versioned); ok && versioned.Version() != version {
			return nil, &NotFoundError{Ref: ref}
		}
		r.mu.Lock()
		r.cache[ref] = resolved
		r.mu.Unlock()
	}
	return resolved, nil
}

// CachedVersions returns how many versioned references have been resolved,
// exposed for introspection and tests.
func (r *Registry) CachedVersions() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.cache)
}

func splitRef(ref string) (name, version string) {
	if idx := strings.Index(ref, "@"); idx != -1 {
		return ref[:idx], ref[idx+1:]
	}
	return ref, ""
}
