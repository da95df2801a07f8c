package provider

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"google.golang.org/genai"
)

const (
	geminiDefaultModel = "gemini-2.0-flash"
)

func init() {
	RegisterFactory("gemini", func(config map[string]any) (Provider, error) {
		apiKey := configString(config, "api_key", "GOOGLE_API_KEY", "")
		if apiKey == "" {
			return nil, fmt.Errorf("GOOGLE_API_KEY not set")
		}
		return NewGeminiProvider(context.Background(), &genai.ClientConfig{
			APIKey:  apiKey,
			Backend: genai.BackendGeminiAPI,
		})
	})

	RegisterFactory("vertexai", func(config map[string]any) (Provider, error) {
		projectID := configString(config, "project_id", "GOOGLE_CLOUD_PROJECT", "")
		if projectID == "" {
			return nil, fmt.Errorf("GOOGLE_CLOUD_PROJECT not set")
		}
		return NewGeminiProvider(context.Background(), &genai.ClientConfig{
			Project:  projectID,
			Location: configString(config, "location", "VERTEX_AI_LOCATION", "us-central1"),
			Backend:  genai.BackendVertexAI,
		})
	})
}

// ContentGenerator is the subset of genai.Models used by GeminiProvider.
type ContentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GeminiProvider implements Provider for Google Gemini through the Gen AI SDK,
// against either the Gemini API or Vertex AI.
type GeminiProvider struct {
	name   string
	models ContentGenerator
	retry  retryPolicy
}

// NewGeminiProvider creates a Gen AI client for cfg and wraps it.
func NewGeminiProvider(ctx context.Context, cfg *genai.ClientConfig) (*GeminiProvider, error) {
	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gen AI client: %w", err)
	}
	name := "gemini"
	if cfg.Backend == genai.BackendVertexAI {
		name = "vertexai"
	}
	return NewGeminiProviderWithModels(name, client.Models), nil
}

// NewGeminiProviderWithModels wraps an existing content generator.
func NewGeminiProviderWithModels(name string, models ContentGenerator) *GeminiProvider {
	return &GeminiProvider{name: name, models: models, retry: defaultRetryPolicy()}
}

// Name returns the provider name
func (p *GeminiProvider) Name() string {
	return p.name
}

// CreateCompletion implements Provider
func (p *GeminiProvider) CreateCompletion(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	model := req.Model
	if model == "" {
		model = geminiDefaultModel
	}

	config := &genai.GenerateContentConfig{}
	// 0 is a valid temperature for deterministic output
	config.Temperature = genai.Ptr(float32(req.Temperature))
	if req.MaxTokens > 0 && req.MaxTokens <= math.MaxInt32 {
		config.MaxOutputTokens = int32(req.MaxTokens)
	}
	if req.JSONMode {
		config.ResponseMIMEType = "application/json"
	}

	contents, systemInstruction := buildGeminiContents(req.Messages)
	if systemInstruction != nil {
		config.SystemInstruction = systemInstruction
	}

	var resp *genai.GenerateContentResponse
	err := p.retry.do(ctx, func(ctx context.Context) error {
		var callErr error
		resp, callErr = p.models.GenerateContent(ctx, model, contents, config)
		return p.wrapError(callErr)
	})
	if err != nil {
		return nil, err
	}

	return p.parseResponse(resp)
}

// buildGeminiContents converts messages to Gen AI content; system messages become the system instruction.
func buildGeminiContents(messages []Message) ([]*genai.Content, *genai.Content) {
	var systemInstruction *genai.Content
	contents := make([]*genai.Content, 0, len(messages))

	for _, m := range messages {
		if m.Role == "system" {
			systemInstruction = &genai.Content{
				Parts: []*genai.Part{{Text: m.Content}},
			}
			continue
		}

		role := "user"
		if m.Role == "assistant" {
			role = "model"
		}
		contents = append(contents, &genai.Content{
			Role:  role,
			Parts: []*genai.Part{{Text: m.Content}},
		})
	}

	return contents, systemInstruction
}

func (p *GeminiProvider) parseResponse(resp *genai.GenerateContentResponse) (*CompletionResponse, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return nil, NewProviderError(p.name, ErrorCodeEmptyResponse, "no candidates in response", nil)
	}

	candidate := resp.Candidates[0]
	var content strings.Builder
	if candidate.Content != nil {
		for _, part := range candidate.Content.Parts {
			content.WriteString(part.Text)
		}
	}

	finishReason := string(candidate.FinishReason)
	if finishReason == "STOP" || finishReason == "" {
		finishReason = "stop"
	}
	if finishReason == "SAFETY" {
		return nil, NewProviderError(p.name, ErrorCodeContentFiltered, "response blocked by safety filters", nil)
	}

	var usage Usage
	if resp.UsageMetadata != nil {
		usage.PromptTokens = int(resp.UsageMetadata.PromptTokenCount)
		usage.CompletionTokens = int(resp.UsageMetadata.CandidatesTokenCount)
		usage.TotalTokens = int(resp.UsageMetadata.TotalTokenCount)
	}

	return &CompletionResponse{
		Content:      content.String(),
		FinishReason: finishReason,
		Usage:        usage,
	}, nil
}

// wrapError converts Gen AI errors to ProviderError
func (p *GeminiProvider) wrapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}

	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		pe := NewProviderError(p.name, codeForStatus(apiErr.Code), apiErr.Message, err)
		pe.StatusCode = apiErr.Code
		return pe
	}

	code := ErrorCodeUnknown
	errMsg := strings.ToLower(err.Error())
	switch {
	case errors.Is(err, context.DeadlineExceeded) || strings.Contains(errMsg, "deadline"):
		code = ErrorCodeTimeout
	case strings.Contains(errMsg, "unavailable") || strings.Contains(errMsg, "503"):
		code = ErrorCodeServerError
	case strings.Contains(errMsg, "429") || strings.Contains(errMsg, "quota"):
		code = ErrorCodeRateLimit
	}
	return NewProviderError(p.name, code, err.Error(), err)
}
