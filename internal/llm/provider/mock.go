package provider

import (
	"context"
	"sync"
)

func init() {
	RegisterFactory("mock", func(config map[string]any) (Provider, error) {
		return NewMockProvider(configString(config, "name", "", "mock")), nil
	})
}

// MockProvider is a scripted provider for tests and offline runs.
// It is safe for concurrent use.
type MockProvider struct {
	name string

	mu sync.Mutex

	// Handler, when set, computes the response for every call and takes
	// precedence over the queued responses.
	Handler func(ctx context.Context, request CompletionRequest) (*CompletionResponse, error)

	// Responses to return for each request, in call order
	CompletionResponses []*CompletionResponse
	Errors              []error

	// Track calls
	CompletionCalls []CompletionRequest

	currentIndex int
}

// NewMockProvider creates a new mock provider
func NewMockProvider(name string) *MockProvider {
	return &MockProvider{
		name:                name,
		CompletionResponses: []*CompletionResponse{},
		Errors:              []error{},
		CompletionCalls:     []CompletionRequest{},
	}
}

// Name implements Provider
func (m *MockProvider) Name() string {
	return m.name
}

// CreateCompletion implements Provider
func (m *MockProvider) CreateCompletion(ctx context.Context, request CompletionRequest) (*CompletionResponse, error) {
	m.mu.Lock()
	m.CompletionCalls = append(m.CompletionCalls, request)
	handler := m.Handler
	if handler != nil {
		m.mu.Unlock()
		return handler(ctx, request)
	}
	defer m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Check for errors first
	if m.currentIndex < len(m.Errors) && m.Errors[m.currentIndex] != nil {
		err := m.Errors[m.currentIndex]
		m.currentIndex++
		return nil, err
	}

	if m.currentIndex < len(m.CompletionResponses) {
		response := m.CompletionResponses[m.currentIndex]
		m.currentIndex++
		return response, nil
	}

	// Default response
	return &CompletionResponse{
		Content:      "Mock response",
		FinishReason: "stop",
		Usage: Usage{
			PromptTokens:     10,
			CompletionTokens: 5,
			TotalTokens:      15,
		},
	}, nil
}

// AddResponse queues a response
func (m *MockProvider) AddResponse(content string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CompletionResponses = append(m.CompletionResponses, &CompletionResponse{Content: content, FinishReason: "stop"})
	m.Errors = append(m.Errors, nil)
}

// AddError queues an error
func (m *MockProvider) AddError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CompletionResponses = append(m.CompletionResponses, nil)
	m.Errors = append(m.Errors, err)
}

// Calls returns a copy of the recorded requests
func (m *MockProvider) Calls() []CompletionRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	calls := make([]CompletionRequest, len(m.CompletionCalls))
	copy(calls, m.CompletionCalls)
	return calls
}

// CallCount returns the number of recorded requests
func (m *MockProvider) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.CompletionCalls)
}

// Reset clears queued responses and recorded calls
func (m *MockProvider) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CompletionResponses = []*CompletionResponse{}
	m.Errors = []error{}
	m.CompletionCalls = []CompletionRequest{}
	m.currentIndex = 0
}
