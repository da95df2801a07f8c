package agent

import (
	"testing"
	"time"

	"gopkg.in/yaml.v3"

	agentapi "github.com/aixgo-dev/searchflow/agent"
	"github.com/aixgo-dev/searchflow/internal/llm"
	"github.com/aixgo-dev/searchflow/internal/llm/prompt"
	"github.com/aixgo-dev/searchflow/internal/llm/provider"
)

func TestDuration_UnmarshalText(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected time.Duration
		wantErr  bool
	}{
		{"seconds", "30s", 30 * time.Second, false},
		{"minutes", "5m", 5 * time.Minute, false},
		{"complex", "1h30m", 90 * time.Minute, false},
		{"invalid", "invalid", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var d Duration
			err := d.UnmarshalText([]byte(tt.input))
			if (err != nil) != tt.wantErr {
				t.Errorf("UnmarshalText() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !tt.wantErr && d.Duration != tt.expected {
				t.Errorf("UnmarshalText() = %v, want %v", d.Duration, tt.expected)
			}
		})
	}
}

func TestStageDef_GetInt(t *testing.T) {
	def := StageDef{Extra: map[string]any{"a": 4, "b": float64(2), "c": 1.5, "d": "x"}}

	if got := def.GetInt("a", 0); got != 4 {
		t.Errorf("GetInt(a) = %d", got)
	}
	if got := def.GetInt("b", 0); got != 2 {
		t.Errorf("GetInt(b) = %d", got)
	}
	if got := def.GetInt("c", 7); got != 7 {
		t.Errorf("GetInt(c) = %d, want default", got)
	}
	if got := def.GetInt("d", 7); got != 7 {
		t.Errorf("GetInt(d) = %d, want default", got)
	}
}

func TestStageDef_YAMLUnmarshal(t *testing.T) {
	yamlData := `
name: researcher
role: researcher
model: gpt-4o
timeout: 45s
fanout_limit: 2
prompts:
  merge:
    user: "Merge for {{.query}}: {{.results}}"
`
	var def StageDef
	if err := yaml.Unmarshal([]byte(yamlData), &def); err != nil {
		t.Fatalf("yaml.Unmarshal() error = %v", err)
	}

	if def.Name != "researcher" || def.Role != "researcher" || def.Model != "gpt-4o" {
		t.Errorf("unexpected def %+v", def)
	}
	if def.Timeout.Duration != 45*time.Second {
		t.Errorf("Timeout = %v, want 45s", def.Timeout.Duration)
	}
	if got := def.GetInt("fanout_limit", 0); got != 2 {
		t.Errorf("fanout_limit = %d, want 2", got)
	}

	tmpl, err := def.Template(prompt.NameMerge)
	if err != nil {
		t.Fatalf("Template() error = %v", err)
	}
	if tmpl.User != "Merge for {{.query}}: {{.results}}" {
		t.Errorf("override not applied: %q", tmpl.User)
	}
	if tmpl.System != prompt.MustGet(prompt.NameMerge).System {
		t.Error("system prompt should come from the built-in")
	}
}

func TestDeps_ReasonerFor(t *testing.T) {
	client := llm.NewClient(provider.NewMockProvider("test"), llm.ClientConfig{DefaultModel: "base"})
	deps := Deps{Reasoner: client}

	if got := deps.ReasonerFor(StageDef{}); got != llm.Reasoner(client) {
		t.Error("expected shared client without a model override")
	}

	got, ok := deps.ReasonerFor(StageDef{Model: "other"}).(*llm.Client)
	if !ok || got.Model() != "other" {
		t.Errorf("expected client for model other, got %v", got)
	}
}

func TestRegistry(t *testing.T) {
	reg := NewRegistry()

	called := false
	factory := func(def StageDef, deps Deps) (agentapi.Stage, error) {
		called = true
		return nil, nil
	}

	reg.Register("test-role", factory)

	f, ok := reg.GetFactory("test-role")
	if !ok {
		t.Fatal("GetFactory() should find registered factory")
	}

	_, _ = f(StageDef{}, Deps{})
	if !called {
		t.Error("Factory should have been called")
	}

	if _, ok := reg.GetFactory("unknown"); ok {
		t.Error("GetFactory() should not find unregistered factory")
	}
}
