// Package protocol routes messages between named stages and owns the conversation
// state of one pipeline run.
package protocol

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/aixgo-dev/searchflow/agent"
	"github.com/aixgo-dev/searchflow/internal/observability"
	metrics "github.com/aixgo-dev/searchflow/pkg/observability"
)

// Sender names with a fixed role when they are not registered stages.
const (
	SenderUser   = "user"
	SenderSystem = "system"
)

// expectedInput is the role each stage role normally consumes. Mismatches are only logged.
var expectedInput = map[agent.Role]agent.Role{
	agent.RoleResearcher: agent.RoleUser,
	agent.RoleAnalyzer:   agent.RoleResearcher,
	agent.RoleFormatter:  agent.RoleAnalyzer,
}

// Coordinator directs messages between registered stages and records the conversation.
// Dispatch calls are serialized, so history always reflects call order.
// Besides the run history it keeps, per stage name, the messages that stage
// received and returned through this coordinator.
type Coordinator struct {
	stages *Registry
	state  *agent.ConversationState
	logger *zap.Logger

	viewsMu sync.Mutex
	views   map[string]*agent.ConversationState

	dispatchSlot chan struct{}
}

// Option configures a Coordinator
type Option func(*Coordinator)

// WithLogger sets the coordinator logger
func WithLogger(logger *zap.Logger) Option {
	return func(c *Coordinator) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithState uses state instead of a fresh ConversationState.
func WithState(state *agent.ConversationState) Option {
	return func(c *Coordinator) {
		if state != nil {
			c.state = state
		}
	}
}

// NewCoordinator creates a coordinator over a snapshot of stages.
// A nil registry starts empty.
func NewCoordinator(stages *Registry, opts ...Option) *Coordinator {
	if stages == nil {
		stages = NewRegistry()
	}
	c := &Coordinator{
		stages:       stages.Snapshot(),
		state:        agent.NewConversationState(),
		logger:       zap.NewNop(),
		views:        make(map[string]*agent.ConversationState),
		dispatchSlot: make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RegisterStage upserts a stage into this coordinator's table.
func (c *Coordinator) RegisterStage(name string, stage agent.Stage) error {
	return c.stages.Register(name, stage)
}

// Stages lists the registered stage names in registration order.
func (c *Coordinator) Stages() []string {
	return c.stages.List()
}

// Dispatch wraps content in a message from the sender named from, hands it to the stage
// named to and returns the stage's response. Both messages are appended to history.
// Unknown targets and invalid metadata fail before anything is appended.
func (c *Coordinator) Dispatch(ctx context.Context, from, to, content string, md agent.Metadata) (*agent.Message, error) {
	stage, err := c.stages.Get(to)
	if err != nil {
		return nil, err
	}
	if err := md.Validate(); err != nil {
		return nil, err
	}

	// acquire the dispatch slot, honouring cancellation while waiting
	select {
	case c.dispatchSlot <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { <-c.dispatchSlot }()

	role := c.inferRole(from)
	if want, ok := expectedInput[stage.Role()]; ok && want != role {
		c.logger.Debug("unexpected role for stage",
			zap.String("stage", to),
			zap.String("stage_role", string(stage.Role())),
			zap.String("message_role", string(role)),
			zap.String("expected", string(want)))
	}

	ctx, span := observability.StartSpanWithOtel(ctx, "protocol.dispatch."+to,
		trace.WithAttributes(
			attribute.String("protocol.from", from),
			attribute.String("protocol.to", to),
			attribute.String("protocol.role", string(role)),
		),
	)

	msg := agent.NewMessage(role, content, agent.WithMetadata(md))
	c.state.Append(msg)
	view := c.view(to)
	view.Append(msg)
	view.SetStatus(agent.StatusRunning)

	start := time.Now()
	resp, err := invoke(ctx, stage, msg)
	elapsed := time.Since(start)

	if err == nil && resp == nil {
		err = agent.NewStageError(to, stage.Role(), errors.New("stage returned no response"))
	}
	if err != nil {
		view.SetStatus(agent.StatusError)
		metrics.RecordStageDispatch(to, "error", elapsed)
		observability.EndSpan(span, err)
		c.logger.Warn("dispatch failed",
			zap.String("from", from),
			zap.String("to", to),
			zap.Duration("elapsed", elapsed),
			zap.Error(err))
		return nil, err
	}

	c.state.Append(resp)
	view.Append(resp)
	view.SetStatus(agent.StatusDone)
	metrics.RecordStageDispatch(to, "success", elapsed)
	span.SetAttributes(attribute.Int("protocol.response_len", len(resp.Content())))
	observability.EndSpan(span, nil)

	c.logger.Debug("dispatch complete",
		zap.String("from", from),
		zap.String("to", to),
		zap.String("message_id", msg.ID()),
		zap.String("response_id", resp.ID()),
		zap.Duration("elapsed", elapsed))
	return resp, nil
}

// invoke calls the stage, converting a panic into a stage error.
func invoke(ctx context.Context, stage agent.Stage, msg *agent.Message) (resp *agent.Message, err error) {
	defer func() {
		if r := recover(); r != nil {
			resp = nil
			err = agent.NewStageError(stage.Name(), stage.Role(), fmt.Errorf("panic: %v", r))
		}
	}()
	return stage.ProcessMessage(ctx, msg)
}

// inferRole returns the role of the registered sender stage, the fixed role of the
// user and system senders, and assistant otherwise.
func (c *Coordinator) inferRole(from string) agent.Role {
	if s, err := c.stages.Get(from); err == nil {
		return s.Role()
	}
	switch from {
	case SenderUser:
		return agent.RoleUser
	case SenderSystem:
		return agent.RoleSystem
	}
	return agent.RoleAssistant
}

// History returns the last limit messages, or all when limit <= 0.
func (c *Coordinator) History(limit int) []*agent.Message {
	return c.state.History(limit)
}

// UpdateContext merges partial into the shared context.
func (c *Coordinator) UpdateContext(partial map[string]any) {
	c.state.MergeContext(partial)
}

// ClearContext empties the shared context.
func (c *Coordinator) ClearContext() {
	c.state.ClearContext()
}

// Context returns a copy of the shared context.
func (c *Coordinator) Context() map[string]any {
	return c.state.Context()
}

// State returns the conversation state owned by this coordinator.
func (c *Coordinator) State() *agent.ConversationState {
	return c.state
}

// StageState returns the named stage as seen through this coordinator: only the
// messages it exchanged here and the status of its last dispatch here. A stage
// not yet dispatched to reports an empty idle state.
func (c *Coordinator) StageState(name string) (agent.StageState, error) {
	s, err := c.stages.Get(name)
	if err != nil {
		return agent.StageState{}, err
	}

	c.viewsMu.Lock()
	view, ok := c.views[name]
	c.viewsMu.Unlock()
	if !ok {
		view = agent.NewConversationState()
	}
	return agent.StageState{ID: name, Role: s.Role(), State: view.Snapshot()}, nil
}

func (c *Coordinator) view(name string) *agent.ConversationState {
	c.viewsMu.Lock()
	defer c.viewsMu.Unlock()
	v, ok := c.views[name]
	if !ok {
		v = agent.NewConversationState()
		c.views[name] = v
	}
	return v
}
