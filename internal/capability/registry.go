package capability

import (
	"log/slog"
	"sync"
)

// Registry is the keyed store of capability definitions.
//
// The registry is a process-lifetime object constructed once at startup
// and passed by reference; tests construct their own. Uniqueness is
// enforced at registration time with an explicit overwrite log rather
// than silent replacement.
//
// Thread-safety: all methods are safe for concurrent use. Concurrent
// re-registration of the same id is last-write-wins.
//
// INVARIANT: List() returns definitions in first-registration order;
// re-registering an id keeps its original position. Deterministic
// listing keeps plan validation output stable.
type Registry struct {
	mu    sync.RWMutex
	defs  map[string]Definition
	order []string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{defs: make(map[string]Definition)}
}

// Register stores a definition by id. A collision overwrites the
// previous definition wholesale and logs a warning - the registry never
// merges fields of the old and new definitions.
func (r *Registry) Register(def Definition) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.defs[def.ID]; exists {
		slog.Warn("capability re-registered, overwriting",
			"capability_id", def.ID,
			"integration_id", def.IntegrationID)
	} else {
		r.order = append(r.order, def.ID)
	}
	r.defs[def.ID] = def
}

// Get returns the definition for id, if registered.
func (r *Registry) Get(id string) (Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.defs[id]
	return def, ok
}

// List returns all definitions in first-registration order.
func (r *Registry) List() []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Definition, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.defs[id])
	}
	return out
}

// Len returns the number of registered definitions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.defs)
}

// Reset removes all definitions. Used between test runs.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.defs = make(map[string]Definition)
	r.order = nil
}
