package protocol

import (
	"fmt"
	"sync"

	"github.com/aixgo-dev/searchflow/agent"
)

// Registry is the stage registration table: stage name to stage instance.
// It is safe for concurrent use. Register order is kept for deterministic listing.
type Registry struct {
	mu     sync.RWMutex
	stages map[string]agent.Stage
	order  []string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		stages: make(map[string]agent.Stage),
		order:  make([]string, 0),
	}
}

// Register adds or replaces the stage under name. Replacing keeps the original position.
func (r *Registry) Register(name string, stage agent.Stage) error {
	if name == "" {
		return fmt.Errorf("stage name must not be empty")
	}
	if stage == nil {
		return fmt.Errorf("stage %s is nil", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.stages[name]; !exists {
		r.order = append(r.order, name)
	}
	r.stages[name] = stage
	return nil
}

// Get retrieves a registered stage by name.
func (r *Registry) Get(name string) (agent.Stage, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, exists := r.stages[name]
	if !exists {
		return nil, fmt.Errorf("%w: %s", agent.ErrStageNotFound, name)
	}
	return s, nil
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.stages[name]
	return ok
}

// List returns all registered stage names in registration order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, len(r.order))
	copy(names, r.order)
	return names
}

// Snapshot returns an independent copy. Later upserts on either registry do not affect the other.
func (r *Registry) Snapshot() *Registry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cp := &Registry{
		stages: make(map[string]agent.Stage, len(r.stages)),
		order:  make([]string, len(r.order)),
	}
	for k, v := range r.stages {
		cp.stages[k] = v
	}
	copy(cp.order, r.order)
	return cp
}
