package agents

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aixgo-dev/searchflow/agent"
	agentdef "github.com/aixgo-dev/searchflow/internal/agent"
	"github.com/aixgo-dev/searchflow/internal/llm/prompt"
)

func TestRegisteredFactories(t *testing.T) {
	deps := agentdef.Deps{Reasoner: NewMockReasoner()}

	tests := []struct {
		role string
		want any
	}{
		{"researcher", &Researcher{}},
		{"analyzer", &Analyzer{}},
		{"formatter", &Formatter{}},
	}

	for _, tt := range tests {
		t.Run(tt.role, func(t *testing.T) {
			stage, err := agentdef.CreateStage(agentdef.StageDef{Name: tt.role + "-1", Role: tt.role}, deps)
			require.NoError(t, err)
			assert.IsType(t, tt.want, stage)
			assert.Equal(t, tt.role+"-1", stage.Name())
			assert.Equal(t, agent.Role(tt.role), stage.Role())
		})
	}
}

func TestFactory_AppliesStageDef(t *testing.T) {
	reasoner := NewMockReasoner()
	def := agentdef.StageDef{
		Name:    "researcher",
		Role:    "researcher",
		Timeout: agentdef.Duration{Duration: 5 * time.Second},
		Prompts: map[string]prompt.Template{
			prompt.NameMerge: {User: "custom merge {{.results}}"},
		},
		Extra: map[string]any{"fanout_limit": 2},
	}

	stage, err := agentdef.CreateStage(def, agentdef.Deps{Reasoner: reasoner})
	require.NoError(t, err)

	r := stage.(*Researcher)
	assert.Equal(t, 2, r.fanOutLimit)
	assert.Equal(t, 5*time.Second, r.timeout)
	assert.Equal(t, "custom merge {{.results}}", r.mergeTmpl.User)
	assert.Equal(t, prompt.NameMerge, r.mergeTmpl.Name)

	_, err = r.ProcessMessage(context.Background(), agent.NewMessage(agent.RoleUser, "q"))
	require.NoError(t, err)
}

func TestFactory_RejectsUnusedPrompt(t *testing.T) {
	def := agentdef.StageDef{
		Name:    "analyzer",
		Role:    "analyzer",
		Prompts: map[string]prompt.Template{prompt.NameFormat: {User: "x"}},
	}
	_, err := agentdef.CreateStage(def, agentdef.Deps{Reasoner: NewMockReasoner()})
	assert.Error(t, err)
}

func TestFactory_RequiresReasoner(t *testing.T) {
	_, err := agentdef.CreateStage(agentdef.StageDef{Name: "formatter", Role: "formatter"}, agentdef.Deps{})
	assert.Error(t, err)
}
