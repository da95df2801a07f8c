package agents

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/aixgo-dev/searchflow/agent"
	"github.com/aixgo-dev/searchflow/internal/llm"
	"github.com/aixgo-dev/searchflow/internal/llm/prompt"
)

const defaultAnalysisType = "general"

// Analyzer synthesizes research text into a direct answer to the original query.
type Analyzer struct {
	*BaseStage
	reasoner llm.Reasoner
	tmpl     prompt.Template
}

// NewAnalyzer creates an analyzer stage
func NewAnalyzer(name string, reasoner llm.Reasoner, opts ...Option) *Analyzer {
	o := newOptions(opts)
	return &Analyzer{
		BaseStage: o.base(name, agent.RoleAnalyzer),
		reasoner:  reasoner,
		tmpl:      o.template(prompt.NameAnalyze),
	}
}

// ProcessMessage implements agent.Stage. The original query is read from metadata.
func (a *Analyzer) ProcessMessage(ctx context.Context, msg *agent.Message) (*agent.Message, error) {
	content := strings.TrimSpace(msg.Content())
	if content == "" {
		return a.finish(nil, agent.ErrEmptyInput)
	}

	ctx, cancel := a.begin(ctx, msg)
	defer cancel()

	query := msg.GetMetadataString(agent.KeyQuery, "")
	if query == "" {
		a.logger.Debug("analysis input carries no query metadata")
	}
	analysisType := msg.GetMetadataString(agent.KeyAnalysisType, defaultAnalysisType)

	answer, err := a.reasoner.Invoke(ctx, a.tmpl, map[string]any{
		"query":         query,
		"content":       content,
		"analysis_type": analysisType,
	})
	if err != nil {
		return a.finish(nil, fmt.Errorf("analyze: %w", err))
	}

	a.logger.Debug("analysis complete", zap.Int("input_len", len(content)), zap.Int("output_len", len(answer)))

	resp := agent.NewMessage(agent.RoleAnalyzer, answer, agent.WithMetadata(agent.Metadata{
		agent.KeyQuery:        query,
		agent.KeyAnalysisType: analysisType,
		agent.KeyReasoning:    fmt.Sprintf("Produced %s analysis of %d characters of research", analysisType, len(content)),
	}))
	return a.finish(resp, nil)
}
