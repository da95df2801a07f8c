package agent

import (
	"sync"
	"time"

	"go.uber.org/zap"

	agentapi "github.com/aixgo-dev/searchflow/agent"
	"github.com/aixgo-dev/searchflow/internal/llm"
	"github.com/aixgo-dev/searchflow/internal/llm/prompt"
	"github.com/aixgo-dev/searchflow/internal/search"
)

// StageDef declares one pipeline stage in configuration.
type StageDef struct {
	Name    string                     `yaml:"name"`
	Role    string                     `yaml:"role"`
	Model   string                     `yaml:"model,omitempty"`
	Timeout Duration                   `yaml:"timeout,omitempty"`
	Prompts map[string]prompt.Template `yaml:"prompts,omitempty"`
	Extra   map[string]any             `yaml:",inline"`
}

// Duration is a time.Duration written in configuration as a Go duration string ("45s").
type Duration struct{ time.Duration }

// UnmarshalText parses a duration string.
func (d *Duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText formats the duration as a string.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// GetInt reads an integer extra. YAML decodes to int, JSON to float64; both are accepted.
func (d *StageDef) GetInt(key string, def int) int {
	switch v := d.Extra[key].(type) {
	case int:
		return v
	case float64:
		if v == float64(int(v)) {
			return int(v)
		}
	}
	return def
}

// Template resolves the named built-in prompt with this stage's override applied.
func (d *StageDef) Template(name string) (prompt.Template, error) {
	return prompt.Resolve(name, d.Prompts[name])
}

// Deps are the shared collaborators handed to every stage factory.
type Deps struct {
	Reasoner llm.Reasoner
	Searcher search.Searcher
	Logger   *zap.Logger
}

// ReasonerFor returns the reasoner to use for def, honouring a per-stage model.
func (d Deps) ReasonerFor(def StageDef) llm.Reasoner {
	if c, ok := d.Reasoner.(*llm.Client); ok && def.Model != "" {
		return c.WithModel(def.Model)
	}
	return d.Reasoner
}

// FactoryFunc builds a stage from its definition and the shared dependencies.
type FactoryFunc func(StageDef, Deps) (agentapi.Stage, error)

// Registry interface allows for testable registry implementations
type Registry interface {
	Register(role string, factory FactoryFunc)
	GetFactory(role string) (FactoryFunc, bool)
}

// DefaultRegistry is the global registry implementation
type DefaultRegistry struct {
	factories map[string]FactoryFunc
	mu        sync.RWMutex
}

var defaultRegistry = &DefaultRegistry{
	factories: make(map[string]FactoryFunc),
}

// NewRegistry creates a new registry instance (useful for testing)
func NewRegistry() *DefaultRegistry {
	return &DefaultRegistry{
		factories: make(map[string]FactoryFunc),
	}
}

func (r *DefaultRegistry) Register(role string, factory FactoryFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[role] = factory
}

func (r *DefaultRegistry) GetFactory(role string) (FactoryFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.factories[role]
	return f, ok
}

// Register registers a factory with the default registry
func Register(role string, factory FactoryFunc) {
	defaultRegistry.Register(role, factory)
}

// GetFactory retrieves a factory from the default registry
func GetFactory(role string) (FactoryFunc, bool) {
	return defaultRegistry.GetFactory(role)
}
