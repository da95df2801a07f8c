package agents

import (
	"context"
	"fmt"
	"sync"

	"github.com/aixgo-dev/searchflow/internal/llm/prompt"
)

// ReasonerCall records one call made to MockReasoner.
type ReasonerCall struct {
	Template string
	Vars     map[string]any
}

// MockReasoner is a mock implementation of llm.Reasoner for testing.
// Responses are keyed by template name; unknown templates get a generated echo.
type MockReasoner struct {
	// Handler, when set, answers every call and takes precedence over queued responses.
	Handler func(ctx context.Context, tmpl prompt.Template, vars map[string]any) (string, error)

	responses map[string][]mockResult
	calls     []ReasonerCall
	mu        sync.Mutex
}

type mockResult struct {
	content string
	err     error
}

// NewMockReasoner creates a new mock reasoner
func NewMockReasoner() *MockReasoner {
	return &MockReasoner{responses: make(map[string][]mockResult)}
}

// Invoke implements llm.Reasoner
func (m *MockReasoner) Invoke(ctx context.Context, tmpl prompt.Template, vars map[string]any) (string, error) {
	m.mu.Lock()
	m.calls = append(m.calls, ReasonerCall{Template: tmpl.Name, Vars: vars})
	handler := m.Handler
	var next *mockResult
	if queue := m.responses[tmpl.Name]; len(queue) > 0 {
		next = &queue[0]
		m.responses[tmpl.Name] = queue[1:]
	}
	m.mu.Unlock()

	if handler != nil {
		return handler(ctx, tmpl, vars)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if next != nil {
		return next.content, next.err
	}
	return fmt.Sprintf("%s: %v", tmpl.Name, vars["query"]), nil
}

// AddResponse queues a response for the named template
func (m *MockReasoner) AddResponse(template, content string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses[template] = append(m.responses[template], mockResult{content: content})
}

// AddError queues an error for the named template
func (m *MockReasoner) AddError(template string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses[template] = append(m.responses[template], mockResult{err: err})
}

// Calls returns all recorded calls
func (m *MockReasoner) Calls() []ReasonerCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	calls := make([]ReasonerCall, len(m.calls))
	copy(calls, m.calls)
	return calls
}

// CallsFor returns the recorded calls for one template
func (m *MockReasoner) CallsFor(template string) []ReasonerCall {
	var out []ReasonerCall
	for _, c := range m.Calls() {
		if c.Template == template {
			out = append(out, c)
		}
	}
	return out
}

// Reset clears queued responses and recorded calls
func (m *MockReasoner) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = make(map[string][]mockResult)
	m.calls = nil
}
