package provider

import (
	"context"
	"errors"
	"fmt"

	"github.com/sashabaranov/go-openai"
)

const (
	openaiDefaultModel = "gpt-4o-mini"
)

func init() {
	RegisterFactory("openai", func(config map[string]any) (Provider, error) {
		apiKey := configString(config, "api_key", "OPENAI_API_KEY", "")
		if apiKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY not set")
		}

		cfg := openai.DefaultConfig(apiKey)
		if url := configString(config, "base_url", "OPENAI_BASE_URL", ""); url != "" {
			cfg.BaseURL = url
		}
		return NewOpenAIProvider(openai.NewClientWithConfig(cfg)), nil
	})
}

// ChatCompleter is the subset of the go-openai client used by OpenAIProvider.
// Any OpenAI-compatible endpoint reachable through go-openai can be used.
type ChatCompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// OpenAIProvider implements Provider for OpenAI-compatible chat completion APIs
type OpenAIProvider struct {
	client ChatCompleter
	retry  retryPolicy
}

// NewOpenAIProvider creates a new OpenAI provider around client.
func NewOpenAIProvider(client ChatCompleter) *OpenAIProvider {
	return &OpenAIProvider{client: client, retry: defaultRetryPolicy()}
}

// Name returns the provider name
func (p *OpenAIProvider) Name() string {
	return "openai"
}

// CreateCompletion implements Provider
func (p *OpenAIProvider) CreateCompletion(ctx context.Context, request CompletionRequest) (*CompletionResponse, error) {
	model := request.Model
	if model == "" {
		model = openaiDefaultModel
	}

	req := openai.ChatCompletionRequest{
		Model:       model,
		Messages:    make([]openai.ChatCompletionMessage, 0, len(request.Messages)),
		Temperature: float32(request.Temperature),
		MaxTokens:   request.MaxTokens,
	}
	for _, m := range request.Messages {
		req.Messages = append(req.Messages, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}
	if request.JSONMode {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject}
	}

	var resp openai.ChatCompletionResponse
	err := p.retry.do(ctx, func(ctx context.Context) error {
		var callErr error
		resp, callErr = p.client.CreateChatCompletion(ctx, req)
		return p.wrapError(callErr)
	})
	if err != nil {
		return nil, err
	}

	if len(resp.Choices) == 0 {
		return nil, NewProviderError(p.Name(), ErrorCodeEmptyResponse, "no choices in response", nil)
	}

	choice := resp.Choices[0]
	return &CompletionResponse{
		Content:      choice.Message.Content,
		FinishReason: string(choice.FinishReason),
		Usage: Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}, nil
}

// wrapError converts go-openai errors to ProviderError
func (p *OpenAIProvider) wrapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return NewProviderError(p.Name(), ErrorCodeTimeout, err.Error(), err)
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		pe := NewProviderError(p.Name(), codeForStatus(apiErr.HTTPStatusCode), apiErr.Message, err)
		pe.StatusCode = apiErr.HTTPStatusCode
		return pe
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		pe := NewProviderError(p.Name(), codeForStatus(reqErr.HTTPStatusCode), reqErr.Error(), err)
		pe.StatusCode = reqErr.HTTPStatusCode
		return pe
	}

	return NewProviderError(p.Name(), ErrorCodeUnknown, err.Error(), err)
}
