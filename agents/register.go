package agents

import (
	"fmt"

	"github.com/aixgo-dev/searchflow/agent"
	agentdef "github.com/aixgo-dev/searchflow/internal/agent"
	"github.com/aixgo-dev/searchflow/internal/llm/prompt"
)

func init() {
	agentdef.Register(string(agent.RoleResearcher), func(def agentdef.StageDef, deps agentdef.Deps) (agent.Stage, error) {
		opts, err := stageOptions(def, deps, prompt.NameExpand, prompt.NameSearch, prompt.NameMerge)
		if err != nil {
			return nil, err
		}
		if deps.Searcher != nil {
			opts = append(opts, WithSearcher(deps.Searcher))
		}
		opts = append(opts, WithFanOutLimit(def.GetInt("fanout_limit", 0)))
		return NewResearcher(def.Name, deps.ReasonerFor(def), opts...), nil
	})

	agentdef.Register(string(agent.RoleAnalyzer), func(def agentdef.StageDef, deps agentdef.Deps) (agent.Stage, error) {
		opts, err := stageOptions(def, deps, prompt.NameAnalyze)
		if err != nil {
			return nil, err
		}
		return NewAnalyzer(def.Name, deps.ReasonerFor(def), opts...), nil
	})

	agentdef.Register(string(agent.RoleFormatter), func(def agentdef.StageDef, deps agentdef.Deps) (agent.Stage, error) {
		opts, err := stageOptions(def, deps, prompt.NameFormat)
		if err != nil {
			return nil, err
		}
		return NewFormatter(def.Name, deps.ReasonerFor(def), opts...), nil
	})
}

// stageOptions turns the shared parts of a StageDef into options.
// Only templates the stage uses may be overridden.
func stageOptions(def agentdef.StageDef, deps agentdef.Deps, templates ...string) ([]Option, error) {
	if deps.Reasoner == nil {
		return nil, fmt.Errorf("stage %s: no reasoner configured", def.Name)
	}

	allowed := make(map[string]bool, len(templates))
	for _, name := range templates {
		allowed[name] = true
	}
	for name := range def.Prompts {
		if !allowed[name] {
			return nil, fmt.Errorf("stage %s: prompt %q is not used by role %s", def.Name, name, def.Role)
		}
	}

	opts := []Option{WithLogger(deps.Logger), WithTimeout(def.Timeout.Duration)}
	for name := range def.Prompts {
		tmpl, err := def.Template(name)
		if err != nil {
			return nil, fmt.Errorf("stage %s: %w", def.Name, err)
		}
		opts = append(opts, WithTemplate(tmpl))
	}
	return opts, nil
}
