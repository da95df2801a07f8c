package agents

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/aixgo-dev/searchflow/agent"
	"github.com/aixgo-dev/searchflow/internal/llm/prompt"
	"github.com/aixgo-dev/searchflow/internal/search"
)

// stageHistoryLimit bounds the messages a stage keeps for introspection.
const stageHistoryLimit = 50

// BaseStage provides the identity and introspection state shared by all stages.
// Embed it and call begin/finish around each ProcessMessage.
type BaseStage struct {
	name    string
	role    agent.Role
	timeout time.Duration
	state   *agent.ConversationState
	logger  *zap.Logger
}

// NewBaseStage creates a new base stage
func NewBaseStage(name string, role agent.Role, logger *zap.Logger) *BaseStage {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BaseStage{
		name:   name,
		role:   role,
		state:  agent.NewConversationState(agent.WithMaxMessages(stageHistoryLimit)),
		logger: logger.With(zap.String("stage", name)),
	}
}

// Name returns the stage name
func (b *BaseStage) Name() string {
	return b.name
}

// Role returns the stage role
func (b *BaseStage) Role() agent.Role {
	return b.role
}

// State returns the stage-wide view: messages from every run that used this
// instance, bounded to the most recent ones. Per-run views come from the coordinator.
func (b *BaseStage) State() agent.StageState {
	return agent.StageState{ID: b.name, Role: b.role, State: b.state.Snapshot()}
}

// begin records msg and derives the per-call context.
func (b *BaseStage) begin(ctx context.Context, msg *agent.Message) (context.Context, context.CancelFunc) {
	b.state.Append(msg)
	b.state.SetStatus(agent.StatusRunning)
	if b.timeout > 0 {
		return context.WithTimeout(ctx, b.timeout)
	}
	return context.WithCancel(ctx)
}

// finish records the outcome of one call and converts err into a *agent.StageError.
func (b *BaseStage) finish(resp *agent.Message, err error) (*agent.Message, error) {
	if err != nil {
		b.state.SetStatus(agent.StatusError)
		b.logger.Debug("stage failed", zap.Error(err))
		return nil, agent.NewStageError(b.name, b.role, err)
	}
	b.state.Append(resp)
	b.state.SetStatus(agent.StatusDone)
	return resp, nil
}

// Option configures a stage
type Option func(*options)

type options struct {
	logger      *zap.Logger
	timeout     time.Duration
	templates   map[string]prompt.Template
	searcher    search.Searcher
	fanOutLimit int
}

func newOptions(opts []Option) *options {
	o := &options{templates: make(map[string]prompt.Template)}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// template returns the override for name, or the built-in.
func (o *options) template(name string) prompt.Template {
	if t, ok := o.templates[name]; ok {
		return t
	}
	return prompt.MustGet(name)
}

// WithLogger sets the stage logger
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithTimeout bounds each ProcessMessage call
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		o.timeout = d
	}
}

// WithTemplate replaces the named prompt template
func WithTemplate(tmpl prompt.Template) Option {
	return func(o *options) {
		o.templates[tmpl.Name] = tmpl
	}
}

// WithSearcher sets the sub-search backend used by the researcher
func WithSearcher(s search.Searcher) Option {
	return func(o *options) {
		o.searcher = s
	}
}

// WithFanOutLimit caps concurrent sub-searches (0 = one per variant)
func WithFanOutLimit(n int) Option {
	return func(o *options) {
		o.fanOutLimit = n
	}
}

func (o *options) base(name string, role agent.Role) *BaseStage {
	b := NewBaseStage(name, role, o.logger)
	b.timeout = o.timeout
	return b
}
