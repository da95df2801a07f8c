package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
)

const (
	ollamaDefaultModel = "llama3.2"
	ollamaDefaultURL   = "http://localhost:11434"
)

func init() {
	RegisterFactory("ollama", func(config map[string]any) (Provider, error) {
		model := configString(config, "model", "OLLAMA_MODEL", ollamaDefaultModel)
		llm, err := ollama.New(
			ollama.WithModel(model),
			ollama.WithServerURL(configString(config, "base_url", "OLLAMA_HOST", ollamaDefaultURL)),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create ollama client: %w", err)
		}
		return NewOllamaProvider(llm), nil
	})
}

// OllamaProvider implements Provider for a local Ollama server through langchaingo.
type OllamaProvider struct {
	llm   llms.Model
	retry retryPolicy
}

// NewOllamaProvider wraps any langchaingo model; in production an *ollama.LLM.
func NewOllamaProvider(llm llms.Model) *OllamaProvider {
	return &OllamaProvider{llm: llm, retry: defaultRetryPolicy()}
}

// Name returns the provider name
func (p *OllamaProvider) Name() string {
	return "ollama"
}

// CreateCompletion implements Provider
func (p *OllamaProvider) CreateCompletion(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	messages := make([]llms.MessageContent, 0, len(req.Messages))
	for _, m := range req.Messages {
		role := llms.ChatMessageTypeHuman
		switch m.Role {
		case "system":
			role = llms.ChatMessageTypeSystem
		case "assistant":
			role = llms.ChatMessageTypeAI
		}
		messages = append(messages, llms.TextParts(role, m.Content))
	}

	opts := []llms.CallOption{llms.WithTemperature(req.Temperature)}
	if req.Model != "" {
		opts = append(opts, llms.WithModel(req.Model))
	}
	if req.MaxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(req.MaxTokens))
	}
	if req.JSONMode {
		opts = append(opts, llms.WithJSONMode())
	}

	var resp *llms.ContentResponse
	err := p.retry.do(ctx, func(ctx context.Context) error {
		var callErr error
		resp, callErr = p.llm.GenerateContent(ctx, messages, opts...)
		return p.wrapError(callErr)
	})
	if err != nil {
		return nil, err
	}
	if resp == nil || len(resp.Choices) == 0 {
		return nil, NewProviderError(p.Name(), ErrorCodeEmptyResponse, "no choices in response", nil)
	}

	choice := resp.Choices[0]
	out := &CompletionResponse{
		Content:      choice.Content,
		FinishReason: choice.StopReason,
	}
	out.Usage.PromptTokens = intFromInfo(choice.GenerationInfo, "PromptTokens")
	out.Usage.CompletionTokens = intFromInfo(choice.GenerationInfo, "CompletionTokens")
	out.Usage.TotalTokens = intFromInfo(choice.GenerationInfo, "TotalTokens")
	return out, nil
}

func intFromInfo(info map[string]any, key string) int {
	switch v := info[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}

func (p *OllamaProvider) wrapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}

	code := ErrorCodeUnknown
	errMsg := strings.ToLower(err.Error())
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		code = ErrorCodeTimeout
	case strings.Contains(errMsg, "connection refused") || strings.Contains(errMsg, "503"):
		code = ErrorCodeServerError
	case strings.Contains(errMsg, "not found"):
		code = ErrorCodeModelNotFound
	}
	return NewProviderError(p.Name(), code, err.Error(), err)
}
