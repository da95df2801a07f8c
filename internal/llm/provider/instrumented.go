package provider

import (
	"context"
	"fmt"
	"time"

	"github.com/aixgo-dev/searchflow/internal/llm/cost"
	"github.com/aixgo-dev/searchflow/internal/observability"
	metrics "github.com/aixgo-dev/searchflow/pkg/observability"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// InstrumentedProvider wraps a Provider with automatic observability and cost tracking.
// Every call gets:
// - an OpenTelemetry span with llm.* attributes
// - Prometheus call, latency and token metrics
// - cost accounting into the run's cost.Tracker, when the context carries one
type InstrumentedProvider struct {
	provider   Provider
	calculator *cost.Calculator
	enabled    bool
}

// InstrumentedConfig contains configuration for instrumented providers
type InstrumentedConfig struct {
	// Calculator for cost tracking (defaults to cost.DefaultCalculator)
	Calculator *cost.Calculator

	// Enabled controls whether instrumentation is active
	Enabled bool
}

// NewInstrumentedProvider wraps a provider with automatic observability
func NewInstrumentedProvider(provider Provider, config *InstrumentedConfig) *InstrumentedProvider {
	if config == nil {
		config = &InstrumentedConfig{
			Calculator: cost.DefaultCalculator,
			Enabled:    true,
		}
	}

	if config.Calculator == nil {
		config.Calculator = cost.DefaultCalculator
	}

	return &InstrumentedProvider{
		provider:   provider,
		calculator: config.Calculator,
		enabled:    config.Enabled,
	}
}

// CreateCompletion creates a completion with automatic instrumentation
func (p *InstrumentedProvider) CreateCompletion(ctx context.Context, request CompletionRequest) (*CompletionResponse, error) {
	if !p.enabled {
		return p.provider.CreateCompletion(ctx, request)
	}

	ctx, span := observability.StartSpanWithOtel(ctx, fmt.Sprintf("llm.%s.completion", p.provider.Name()),
		trace.WithAttributes(
			attribute.String("llm.provider", p.provider.Name()),
			attribute.String("llm.model", request.Model),
			attribute.Float64("llm.temperature", request.Temperature),
			attribute.Int("llm.max_tokens", request.MaxTokens),
			attribute.Int("llm.messages_count", len(request.Messages)),
			attribute.Bool("llm.json_mode", request.JSONMode),
		),
	)

	startTime := time.Now()
	response, err := p.provider.CreateCompletion(ctx, request)
	duration := time.Since(startTime)

	span.SetAttributes(
		attribute.Int64("llm.duration_ms", duration.Milliseconds()),
		attribute.Bool("llm.success", err == nil),
	)

	if err != nil {
		metrics.RecordLLMCall(p.provider.Name(), request.Model, "error", duration)
		observability.EndSpan(span, err)
		return nil, err
	}
	defer observability.EndSpan(span, nil)

	metrics.RecordLLMCall(p.provider.Name(), request.Model, "success", duration)
	if response == nil || response.Cached {
		span.SetAttributes(attribute.Bool("llm.cached", response != nil))
		return response, nil
	}

	span.SetAttributes(
		attribute.Int("llm.usage.prompt_tokens", response.Usage.PromptTokens),
		attribute.Int("llm.usage.completion_tokens", response.Usage.CompletionTokens),
		attribute.Int("llm.usage.total_tokens", response.Usage.TotalTokens),
		attribute.String("llm.finish_reason", response.FinishReason),
	)
	metrics.RecordLLMTokens(p.provider.Name(), response.Usage.PromptTokens, response.Usage.CompletionTokens)

	usage := cost.Usage{
		Model:        request.Model,
		InputTokens:  response.Usage.PromptTokens,
		OutputTokens: response.Usage.CompletionTokens,
	}
	costResult, costErr := p.calculator.Calculate(usage)
	if costErr == nil {
		span.SetAttributes(
			attribute.Float64("llm.cost.input_usd", costResult.InputCost),
			attribute.Float64("llm.cost.output_usd", costResult.OutputCost),
			attribute.Float64("llm.cost.total_usd", costResult.TotalCost),
		)
	}
	if tracker := cost.TrackerFrom(ctx); tracker != nil {
		tracker.Record(usage, costResult, costErr == nil)
	}

	return response, nil
}

// Name returns the underlying provider name
func (p *InstrumentedProvider) Name() string {
	return p.provider.Name()
}

// WrapProvider wraps a provider with instrumentation if not already wrapped
func WrapProvider(provider Provider, calculator *cost.Calculator) Provider {
	if _, ok := provider.(*InstrumentedProvider); ok {
		return provider
	}

	return NewInstrumentedProvider(provider, &InstrumentedConfig{
		Calculator: calculator,
		Enabled:    true,
	})
}

// UnwrapProvider returns the underlying provider if wrapped, otherwise returns the provider as-is
func UnwrapProvider(provider Provider) Provider {
	if instrumented, ok := provider.(*InstrumentedProvider); ok {
		return instrumented.provider
	}
	return provider
}
