// Package cost prices reasoning capability usage and accumulates it per pipeline run.
package cost

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// ModelPricing contains pricing information for a specific model
type ModelPricing struct {
	Model       string  `yaml:"model"`
	InputPer1M  float64 `yaml:"input_per_1m"`  // Cost per 1M input tokens in USD
	OutputPer1M float64 `yaml:"output_per_1m"` // Cost per 1M output tokens in USD
}

// Usage represents token usage for a single reasoning call
type Usage struct {
	Model        string
	InputTokens  int
	OutputTokens int
}

// Cost represents the calculated cost for reasoning usage
type Cost struct {
	InputCost  float64 `json:"input_usd"`
	OutputCost float64 `json:"output_usd"`
	TotalCost  float64 `json:"total_usd"`
}

// Add accumulates other into c.
func (c *Cost) Add(other Cost) {
	c.InputCost += other.InputCost
	c.OutputCost += other.OutputCost
	c.TotalCost += other.TotalCost
}

// Calculator prices usage by model. Models are matched exactly, then by longest prefix.
type Calculator struct {
	pricing map[string]*ModelPricing
	mu      sync.RWMutex
}

// NewCalculator creates a new cost calculator with default pricing
func NewCalculator() *Calculator {
	c := &Calculator{
		pricing: make(map[string]*ModelPricing),
	}
	c.loadDefaultPricing()
	return c
}

// loadDefaultPricing covers the default model of every built-in provider.
func (c *Calculator) loadDefaultPricing() {
	models := []*ModelPricing{
		// OpenAI
		{Model: "gpt-4o", InputPer1M: 2.5, OutputPer1M: 10.0},
		{Model: "gpt-4o-mini", InputPer1M: 0.15, OutputPer1M: 0.60},
		{Model: "gpt-4.1", InputPer1M: 2.0, OutputPer1M: 8.0},
		{Model: "gpt-4.1-mini", InputPer1M: 0.4, OutputPer1M: 1.6},

		// Google Gemini
		{Model: "gemini-1.5-pro", InputPer1M: 1.25, OutputPer1M: 5.0},
		{Model: "gemini-1.5-flash", InputPer1M: 0.075, OutputPer1M: 0.3},
		{Model: "gemini-2.0-flash", InputPer1M: 0.10, OutputPer1M: 0.40},

		// Amazon Bedrock model IDs
		{Model: "anthropic.claude-3-5-haiku", InputPer1M: 0.8, OutputPer1M: 4.0},
		{Model: "anthropic.claude-3-5-sonnet", InputPer1M: 3.0, OutputPer1M: 15.0},
		{Model: "amazon.nova-lite", InputPer1M: 0.06, OutputPer1M: 0.24},

		// Local models
		{Model: "llama3", InputPer1M: 0.0, OutputPer1M: 0.0},
		{Model: "qwen2.5", InputPer1M: 0.0, OutputPer1M: 0.0},
		{Model: "mistral", InputPer1M: 0.0, OutputPer1M: 0.0},
	}

	for _, pricing := range models {
		c.pricing[pricing.Model] = pricing
	}
}

// AddPricing adds or updates pricing for a model
func (c *Calculator) AddPricing(pricing *ModelPricing) {
	if pricing == nil || pricing.Model == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	p := *pricing
	c.pricing[p.Model] = &p
}

// GetPricing retrieves pricing for a model
func (c *Calculator) GetPricing(model string) (*ModelPricing, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	pricing, ok := c.pricing[model]
	if !ok {
		keys := make([]string, 0, len(c.pricing))
		for k := range c.pricing {
			keys = append(keys, k)
		}
		// longest first, then lexical, for deterministic matching
		sort.Slice(keys, func(i, j int) bool {
			if len(keys[i]) != len(keys[j]) {
				return len(keys[i]) > len(keys[j])
			}
			return keys[i] < keys[j]
		})
		for _, key := range keys {
			if strings.HasPrefix(model, key) {
				pricing = c.pricing[key]
				break
			}
		}
	}

	if pricing == nil {
		return nil, false
	}

	pricingCopy := *pricing
	return &pricingCopy, true
}

// Calculate computes the cost for the given usage
func (c *Calculator) Calculate(usage Usage) (Cost, error) {
	pricing, ok := c.GetPricing(usage.Model)
	if !ok {
		return Cost{}, fmt.Errorf("no pricing found for model: %s", usage.Model)
	}

	var cost Cost
	if usage.InputTokens > 0 {
		cost.InputCost = (float64(usage.InputTokens) / 1_000_000) * pricing.InputPer1M
	}
	if usage.OutputTokens > 0 {
		cost.OutputCost = (float64(usage.OutputTokens) / 1_000_000) * pricing.OutputPer1M
	}
	cost.TotalCost = cost.InputCost + cost.OutputCost

	return cost, nil
}

// ListModels returns all models with pricing information, sorted.
func (c *Calculator) ListModels() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	models := make([]string, 0, len(c.pricing))
	for model := range c.pricing {
		models = append(models, model)
	}
	sort.Strings(models)
	return models
}

// DefaultCalculator is the global cost calculator instance
var DefaultCalculator = NewCalculator()

// Tracker accumulates usage and cost for one pipeline run.
// It is safe for concurrent use by parallel sub-searches.
type Tracker struct {
	mu           sync.Mutex
	calls        int
	inputTokens  int
	outputTokens int
	cost         Cost
	unpriced     int
}

// Summary is a point-in-time view of a Tracker.
type Summary struct {
	Calls        int  `json:"calls"`
	InputTokens  int  `json:"input_tokens"`
	OutputTokens int  `json:"output_tokens"`
	Cost         Cost `json:"cost"`
	// Unpriced counts calls to models with no pricing entry.
	Unpriced int `json:"unpriced,omitempty"`
}

// Record adds one call.
func (t *Tracker) Record(usage Usage, cost Cost, priced bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.calls++
	t.inputTokens += usage.InputTokens
	t.outputTokens += usage.OutputTokens
	if priced {
		t.cost.Add(cost)
	} else {
		t.unpriced++
	}
}

// Summary returns the accumulated totals.
func (t *Tracker) Summary() Summary {
	t.mu.Lock()
	defer t.mu.Unlock()
	return Summary{
		Calls:        t.calls,
		InputTokens:  t.inputTokens,
		OutputTokens: t.outputTokens,
		Cost:         t.cost,
		Unpriced:     t.unpriced,
	}
}

type trackerKey struct{}

// WithTracker attaches t to ctx so providers can report usage into it.
func WithTracker(ctx context.Context, t *Tracker) context.Context {
	return context.WithValue(ctx, trackerKey{}, t)
}

// TrackerFrom returns the tracker attached to ctx, or nil.
func TrackerFrom(ctx context.Context) *Tracker {
	t, _ := ctx.Value(trackerKey{}).(*Tracker)
	return t
}
