package provider

import (
	"fmt"
	"os"
	"sort"
	"sync"
)

// Factory builds a provider from a loosely typed options map, typically the
// llm.options block of the configuration file.
type Factory func(config map[string]any) (Provider, error)

// Registry maps provider kinds to their factories.
type Registry struct {
	factories map[string]Factory
	mu        sync.RWMutex
}

// NewRegistry creates a new provider registry
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
	}
}

// RegisterFactory makes a provider kind constructible by name.
func (r *Registry) RegisterFactory(name string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = factory
}

// Create constructs a provider of the named kind.
func (r *Registry) Create(name string, config map[string]any) (Provider, error) {
	r.mu.RLock()
	factory, ok := r.factories[name]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unknown provider '%s' (available: %v)", name, r.Kinds())
	}
	if config == nil {
		config = map[string]any{}
	}
	return factory(config)
}

// Kinds returns the registered factory names, sorted.
func (r *Registry) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Global registry
var globalRegistry = NewRegistry()

// RegisterFactory registers a provider factory globally
func RegisterFactory(name string, factory Factory) {
	globalRegistry.RegisterFactory(name, factory)
}

// Create constructs a provider from the global registry
func Create(name string, config map[string]any) (Provider, error) {
	return globalRegistry.Create(name, config)
}

// Kinds returns the provider kinds known to the global registry
func Kinds() []string {
	return globalRegistry.Kinds()
}

// configString reads key from config, then from the environment variable env, then def.
func configString(config map[string]any, key, env, def string) string {
	if v, ok := config[key].(string); ok && v != "" {
		return v
	}
	if env != "" {
		if v := os.Getenv(env); v != "" {
			return v
		}
	}
	return def
}
