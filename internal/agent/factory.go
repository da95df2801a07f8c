package agent

import (
	"fmt"

	agentapi "github.com/aixgo-dev/searchflow/agent"
)

// CreateStage creates a stage using the default registry
func CreateStage(def StageDef, deps Deps) (agentapi.Stage, error) {
	return CreateStageWithRegistry(def, deps, defaultRegistry)
}

// CreateStageWithRegistry creates a stage using a custom registry (useful for testing)
func CreateStageWithRegistry(def StageDef, deps Deps, registry Registry) (agentapi.Stage, error) {
	if def.Name == "" {
		return nil, fmt.Errorf("stage definition missing name")
	}
	role := def.Role
	if role == "" {
		role = def.Name
	}
	if factory, ok := registry.GetFactory(role); ok {
		def.Role = role
		return factory(def, deps)
	}

	return nil, fmt.Errorf("unknown role: %s", role)
}
