// Package llm exposes the reasoning capability used by pipeline stages.
package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/aixgo-dev/searchflow/internal/llm/prompt"
	"github.com/aixgo-dev/searchflow/internal/llm/provider"
)

const (
	defaultCallTimeout = 60 * time.Second
	defaultTemperature = 0.7
)

// Reasoner is the capability stages depend on: render a template with variables and
// return the model's text.
type Reasoner interface {
	Invoke(ctx context.Context, tmpl prompt.Template, vars map[string]any) (string, error)
}

// Client provides high-level reasoning calls over a Provider
type Client struct {
	provider provider.Provider
	config   ClientConfig
	limiter  *rate.Limiter
	logger   *zap.Logger
}

// ClientConfig configures the reasoning client
type ClientConfig struct {
	// DefaultModel to use if the provider needs one
	DefaultModel string

	// DefaultTemperature used when the template does not set one
	DefaultTemperature float64

	// MaxTokens limits response length (0 = provider default)
	MaxTokens int

	// CallTimeout bounds every provider call (default: 60s)
	CallTimeout time.Duration

	// RateLimit is the sustained calls per second across all stages (0 = unlimited)
	RateLimit float64

	// Burst is the limiter bucket size (default: 1 when RateLimit is set)
	Burst int
}

// ClientOption configures a Client
type ClientOption func(*Client)

// WithLogger sets the client logger
func WithLogger(logger *zap.Logger) ClientOption {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewClient creates a new reasoning client
func NewClient(prov provider.Provider, config ClientConfig, opts ...ClientOption) *Client {
	if config.CallTimeout <= 0 {
		config.CallTimeout = defaultCallTimeout
	}
	if config.DefaultTemperature == 0 {
		config.DefaultTemperature = defaultTemperature
	}

	limit := rate.Inf
	if config.RateLimit > 0 {
		limit = rate.Limit(config.RateLimit)
		if config.Burst <= 0 {
			config.Burst = 1
		}
	}

	c := &Client{
		provider: prov,
		config:   config,
		limiter:  rate.NewLimiter(limit, config.Burst),
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// WithModel returns a client that uses model by default. The rate limiter is shared.
func (c *Client) WithModel(model string) *Client {
	if model == "" || model == c.config.DefaultModel {
		return c
	}
	clone := *c
	clone.config.DefaultModel = model
	return &clone
}

// Model returns the default model name
func (c *Client) Model() string {
	return c.config.DefaultModel
}

// Provider returns the underlying provider
func (c *Client) Provider() provider.Provider {
	return c.provider
}

// Invoke implements Reasoner
func (c *Client) Invoke(ctx context.Context, tmpl prompt.Template, vars map[string]any) (string, error) {
	rendered, err := tmpl.Render(vars)
	if err != nil {
		return "", err
	}

	messages := make([]provider.Message, 0, 2)
	if rendered.System != "" {
		messages = append(messages, provider.Message{Role: "system", Content: rendered.System})
	}
	messages = append(messages, provider.Message{Role: "user", Content: rendered.User})

	temperature := tmpl.Temperature
	if temperature == 0 {
		temperature = c.config.DefaultTemperature
	}

	request := provider.CompletionRequest{
		Messages:    messages,
		Model:       c.config.DefaultModel,
		Temperature: temperature,
		MaxTokens:   c.config.MaxTokens,
		JSONMode:    tmpl.JSONMode,
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limiter: %w", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, c.config.CallTimeout)
	defer cancel()

	start := time.Now()
	response, err := c.provider.CreateCompletion(callCtx, request)
	if err != nil {
		c.logger.Debug("reasoning call failed",
			zap.String("template", tmpl.Name),
			zap.String("provider", c.provider.Name()),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		return "", fmt.Errorf("provider error: %w", err)
	}

	content := strings.TrimSpace(response.Content)
	if content == "" {
		return "", provider.NewProviderError(c.provider.Name(), provider.ErrorCodeEmptyResponse,
			"empty completion for template "+tmpl.Name, nil)
	}

	c.logger.Debug("reasoning call completed",
		zap.String("template", tmpl.Name),
		zap.String("provider", c.provider.Name()),
		zap.Bool("cached", response.Cached),
		zap.Int("total_tokens", response.Usage.TotalTokens),
		zap.Duration("elapsed", time.Since(start)))

	return content, nil
}
