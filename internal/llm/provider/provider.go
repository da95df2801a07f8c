package provider

import (
	"context"
	"errors"
)

// Provider defines the interface for reasoning capability backends.
// Implementations must be safe for concurrent use: the research stage
// issues several completions in parallel.
type Provider interface {
	// CreateCompletion creates a completion (unstructured text response)
	CreateCompletion(ctx context.Context, request CompletionRequest) (*CompletionResponse, error)

	// Name returns the provider name (e.g., "openai", "gemini")
	Name() string
}

// Message represents a chat message
type Message struct {
	Role    string `json:"role"`    // "system", "user", "assistant"
	Content string `json:"content"` // The message content
}

// CompletionRequest represents a completion request
type CompletionRequest struct {
	// Messages is the conversation history
	Messages []Message `json:"messages"`

	// Model is the model to use (e.g., "gpt-4o-mini", "gemini-2.0-flash")
	Model string `json:"model,omitempty"`

	// Temperature controls randomness (0.0-2.0)
	Temperature float64 `json:"temperature,omitempty"`

	// MaxTokens is the maximum number of tokens to generate
	MaxTokens int `json:"max_tokens,omitempty"`

	// JSONMode asks the backend to return a single JSON document
	JSONMode bool `json:"json_mode,omitempty"`
}

// CompletionResponse represents a completion response
type CompletionResponse struct {
	// Content is the generated text
	Content string `json:"content"`

	// FinishReason explains why generation stopped
	FinishReason string `json:"finish_reason"`

	// Usage contains token usage information
	Usage Usage `json:"usage"`

	// Cached is set when the response was served from the response cache
	Cached bool `json:"cached,omitempty"`
}

// Usage represents token usage information
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ProviderError represents a provider-specific error
type ProviderError struct {
	Provider      string `json:"provider"`
	Code          string `json:"code"`
	Message       string `json:"message"`
	StatusCode    int    `json:"status_code,omitempty"`
	IsRetryable   bool   `json:"is_retryable"`
	OriginalError error  `json:"-"`
}

// Error implements the error interface
func (e *ProviderError) Error() string {
	return e.Provider + " error: " + e.Message
}

// Unwrap returns the original error
func (e *ProviderError) Unwrap() error {
	return e.OriginalError
}

// Common error codes
const (
	ErrorCodeInvalidRequest  = "invalid_request"
	ErrorCodeAuthentication  = "authentication_error"
	ErrorCodeRateLimit       = "rate_limit_exceeded"
	ErrorCodeQuotaExceeded   = "quota_exceeded"
	ErrorCodeServerError     = "server_error"
	ErrorCodeTimeout         = "timeout"
	ErrorCodeModelNotFound   = "model_not_found"
	ErrorCodeContentFiltered = "content_filtered"
	ErrorCodeEmptyResponse   = "empty_response"
	ErrorCodeUnknown         = "unknown_error"
)

// NewProviderError creates a new provider error
func NewProviderError(provider, code, message string, original error) *ProviderError {
	return &ProviderError{
		Provider:      provider,
		Code:          code,
		Message:       message,
		OriginalError: original,
		IsRetryable:   isRetryableError(code),
	}
}

// IsRetryable reports whether err is a ProviderError marked retryable.
func IsRetryable(err error) bool {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.IsRetryable
	}
	return false
}

// isRetryableError determines if an error code is retryable
func isRetryableError(code string) bool {
	switch code {
	case ErrorCodeRateLimit, ErrorCodeServerError, ErrorCodeTimeout:
		return true
	default:
		return false
	}
}

// codeForStatus maps an HTTP status from a backend to an error code.
func codeForStatus(status int) string {
	switch {
	case status == 401 || status == 403:
		return ErrorCodeAuthentication
	case status == 404:
		return ErrorCodeModelNotFound
	case status == 408:
		return ErrorCodeTimeout
	case status == 429:
		return ErrorCodeRateLimit
	case status >= 500:
		return ErrorCodeServerError
	case status >= 400:
		return ErrorCodeInvalidRequest
	}
	return ErrorCodeUnknown
}
