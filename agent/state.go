package agent

import "sync"

// Status is the lifecycle state of a conversation.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusRunning Status = "running"
	StatusDone    Status = "done"
	StatusError   Status = "error"
)

// ConversationState is the shared mutable context threaded through one pipeline run.
//
// Messages are append-only and kept in call order. Context is a side channel for structured
// intermediate artifacts (expanded queries, stage outputs) that do not belong in the history.
// All methods are safe for concurrent use.
type ConversationState struct {
	mu          sync.RWMutex
	messages    []*Message
	context     map[string]any
	status      Status
	maxMessages int
}

// StateOption configures a ConversationState.
type StateOption func(*ConversationState)

// WithMaxMessages bounds the retained history; older messages are dropped first.
// Zero means unbounded.
func WithMaxMessages(n int) StateOption {
	return func(s *ConversationState) {
		if n > 0 {
			s.maxMessages = n
		}
	}
}

// NewConversationState creates an idle state with empty history and context.
func NewConversationState(opts ...StateOption) *ConversationState {
	s := &ConversationState{
		messages: make([]*Message, 0),
		context:  make(map[string]any),
		status:   StatusIdle,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Append adds a message to the end of the history.
func (s *ConversationState) Append(msg *Message) {
	if msg == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.messages = append(s.messages, msg)
	if s.maxMessages > 0 && len(s.messages) > s.maxMessages {
		drop := len(s.messages) - s.maxMessages
		s.messages = append(s.messages[:0:0], s.messages[drop:]...)
	}
}

// History returns the last limit messages in order, or all of them when limit <= 0.
// The returned slice is a copy; messages themselves are immutable.
func (s *ConversationState) History(limit int) []*Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	start := 0
	if limit > 0 && limit < len(s.messages) {
		start = len(s.messages) - limit
	}
	out := make([]*Message, len(s.messages)-start)
	copy(out, s.messages[start:])
	return out
}

// Len returns the number of retained messages.
func (s *ConversationState) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages)
}

// MergeContext shallow-merges partial into the context, overwriting existing keys.
func (s *ConversationState) MergeContext(partial map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range partial {
		s.context[k] = v
	}
}

// ClearContext removes every context key.
func (s *ConversationState) ClearContext() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.context = make(map[string]any)
}

// Context returns a shallow copy of the context.
func (s *ConversationState) Context() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]any, len(s.context))
	for k, v := range s.context {
		out[k] = v
	}
	return out
}

// ContextValue returns a single context value.
func (s *ConversationState) ContextValue(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.context[key]
	return v, ok
}

// Status returns the current lifecycle status.
func (s *ConversationState) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// SetStatus updates the lifecycle status.
func (s *ConversationState) SetStatus(status Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = status
}

// StateSnapshot is a point-in-time copy of a ConversationState.
type StateSnapshot struct {
	Messages []*Message     `json:"messages"`
	Context  map[string]any `json:"context"`
	Status   Status         `json:"status"`
}

// Snapshot copies the state for introspection.
func (s *ConversationState) Snapshot() StateSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	msgs := make([]*Message, len(s.messages))
	copy(msgs, s.messages)
	ctx := make(map[string]any, len(s.context))
	for k, v := range s.context {
		ctx[k] = v
	}
	return StateSnapshot{Messages: msgs, Context: ctx, Status: s.status}
}
