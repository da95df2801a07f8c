package agent

import (
	"context"
	"errors"
	"strings"
	"testing"

	agentapi "github.com/aixgo-dev/searchflow/agent"
)

func echoFactory(def StageDef, deps Deps) (agentapi.Stage, error) {
	return &agentapi.StageFunc{
		StageName: def.Name,
		StageRole: agentapi.Role(def.Role),
		Fn: func(ctx context.Context, msg *agentapi.Message) (*agentapi.Message, error) {
			return msg.Derive(agentapi.Role(def.Role), msg.Content(), nil), nil
		},
	}, nil
}

func TestRegister(t *testing.T) {
	tests := []struct {
		name    string
		role    string
		factory FactoryFunc
	}{
		{name: "register simple factory", role: "test-role-unique-1", factory: echoFactory},
		{
			name: "register factory with error",
			role: "error-role-unique-2",
			factory: func(def StageDef, deps Deps) (agentapi.Stage, error) {
				return nil, errors.New("factory error")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			Register(tt.role, tt.factory)

			factory, ok := GetFactory(tt.role)
			if !ok {
				t.Errorf("Factory for role %q was not registered", tt.role)
			}
			if factory == nil {
				t.Error("Registered factory is nil")
			}
		})
	}
}

func TestCreateStageWithRegistry(t *testing.T) {
	reg := NewRegistry()
	reg.Register("assistant", echoFactory)
	reg.Register("broken", func(def StageDef, deps Deps) (agentapi.Stage, error) {
		return nil, errors.New("factory error")
	})

	t.Run("creates stage by role", func(t *testing.T) {
		stage, err := CreateStageWithRegistry(StageDef{Name: "echo", Role: "assistant"}, Deps{}, reg)
		if err != nil {
			t.Fatalf("CreateStageWithRegistry() error = %v", err)
		}
		if stage.Name() != "echo" || stage.Role() != agentapi.RoleAssistant {
			t.Errorf("unexpected stage %s/%s", stage.Name(), stage.Role())
		}
	})

	t.Run("role defaults to name", func(t *testing.T) {
		stage, err := CreateStageWithRegistry(StageDef{Name: "assistant"}, Deps{}, reg)
		if err != nil {
			t.Fatalf("CreateStageWithRegistry() error = %v", err)
		}
		if stage.Role() != agentapi.RoleAssistant {
			t.Errorf("Role = %s, want assistant", stage.Role())
		}
	})

	t.Run("unknown role", func(t *testing.T) {
		_, err := CreateStageWithRegistry(StageDef{Name: "x", Role: "planner"}, Deps{}, reg)
		if err == nil || !strings.Contains(err.Error(), "unknown role: planner") {
			t.Errorf("expected unknown role error, got %v", err)
		}
	})

	t.Run("missing name", func(t *testing.T) {
		if _, err := CreateStageWithRegistry(StageDef{Role: "assistant"}, Deps{}, reg); err == nil {
			t.Error("expected error for missing name")
		}
	})

	t.Run("factory error propagates", func(t *testing.T) {
		if _, err := CreateStageWithRegistry(StageDef{Name: "b", Role: "broken"}, Deps{}, reg); err == nil {
			t.Error("expected factory error")
		}
	})
}
