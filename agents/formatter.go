package agents

import (
	"context"
	"fmt"
	"strings"

	"github.com/aixgo-dev/searchflow/agent"
	"github.com/aixgo-dev/searchflow/internal/llm"
	"github.com/aixgo-dev/searchflow/internal/llm/prompt"
)

// DefaultFormatType is the markup produced when the input does not ask for one.
const DefaultFormatType = "markdown"

// Formatter re-expresses its input as structured markup without changing the facts.
type Formatter struct {
	*BaseStage
	reasoner llm.Reasoner
	tmpl     prompt.Template
}

// NewFormatter creates a formatter stage
func NewFormatter(name string, reasoner llm.Reasoner, opts ...Option) *Formatter {
	o := newOptions(opts)
	return &Formatter{
		BaseStage: o.base(name, agent.RoleFormatter),
		reasoner:  reasoner,
		tmpl:      o.template(prompt.NameFormat),
	}
}

// ProcessMessage implements agent.Stage
func (f *Formatter) ProcessMessage(ctx context.Context, msg *agent.Message) (*agent.Message, error) {
	content := strings.TrimSpace(msg.Content())
	if content == "" {
		return f.finish(nil, agent.ErrEmptyInput)
	}

	ctx, cancel := f.begin(ctx, msg)
	defer cancel()

	formatType := msg.GetMetadataString(agent.KeyFormatType, DefaultFormatType)
	formatted, err := f.reasoner.Invoke(ctx, f.tmpl, map[string]any{
		"content":     content,
		"format_type": formatType,
		"query":       msg.GetMetadataString(agent.KeyQuery, ""),
	})
	if err != nil {
		return f.finish(nil, fmt.Errorf("format: %w", err))
	}

	md := agent.Metadata{
		agent.KeyFormatType: formatType,
		agent.KeyReasoning:  "Formatted the analysis as " + formatType,
	}
	if q := msg.GetMetadataString(agent.KeyQuery, ""); q != "" {
		md[agent.KeyQuery] = q
	}
	return f.finish(agent.NewMessage(agent.RoleFormatter, formatted, agent.WithMetadata(md)), nil)
}
