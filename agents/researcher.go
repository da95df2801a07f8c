package agents

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/aixgo-dev/searchflow/agent"
	"github.com/aixgo-dev/searchflow/internal/llm"
	"github.com/aixgo-dev/searchflow/internal/llm/parser"
	"github.com/aixgo-dev/searchflow/internal/llm/prompt"
	"github.com/aixgo-dev/searchflow/internal/orchestration"
	"github.com/aixgo-dev/searchflow/internal/search"
	metrics "github.com/aixgo-dev/searchflow/pkg/observability"
)

const (
	// VariantCount is the number of query variants requested from the reasoning capability.
	VariantCount = 3

	defaultResearchType = "general"

	expansionModel    = "model"
	expansionFallback = "fallback"

	// KeyExpansion records whether variants came from the model or the fallback templates.
	KeyExpansion = "expansion"
)

var fallbackSuffixes = []string{
	"overview and background",
	"latest developments and news",
	"key facts and statistics",
	"expert analysis and opinions",
}

// FallbackVariants returns the static query variants used when expansion fails.
func FallbackVariants(query string) []string {
	variants := make([]string, len(fallbackSuffixes))
	for i, suffix := range fallbackSuffixes {
		variants[i] = query + " " + suffix
	}
	return variants
}

// Researcher expands a query into variants, searches each concurrently and merges the results.
type Researcher struct {
	*BaseStage
	reasoner    llm.Reasoner
	searcher    search.Searcher
	expandTmpl  prompt.Template
	mergeTmpl   prompt.Template
	fanOutLimit int
}

// NewResearcher creates a researcher stage. Sub-searches go through the reasoning
// capability unless WithSearcher is given.
func NewResearcher(name string, reasoner llm.Reasoner, opts ...Option) *Researcher {
	o := newOptions(opts)
	searcher := o.searcher
	if searcher == nil {
		searcher = search.NewReasonerSearcher(reasoner).WithTemplate(o.template(prompt.NameSearch))
	}
	return &Researcher{
		BaseStage:   o.base(name, agent.RoleResearcher),
		reasoner:    reasoner,
		searcher:    searcher,
		expandTmpl:  o.template(prompt.NameExpand),
		mergeTmpl:   o.template(prompt.NameMerge),
		fanOutLimit: o.fanOutLimit,
	}
}

// ProcessMessage implements agent.Stage
func (r *Researcher) ProcessMessage(ctx context.Context, msg *agent.Message) (*agent.Message, error) {
	query := strings.TrimSpace(msg.Content())
	if query == "" {
		return r.finish(nil, agent.ErrEmptyInput)
	}

	ctx, cancel := r.begin(ctx, msg)
	defer cancel()

	variants, source := r.expand(ctx, query)
	if err := ctx.Err(); err != nil {
		return r.finish(nil, err)
	}

	results, err := orchestration.FanOut(ctx, len(variants), r.fanOutLimit, func(ctx context.Context, i int) (string, error) {
		out, err := r.searcher.Search(ctx, variants[i])
		if err != nil {
			metrics.RecordSubSearch("error")
			return "", err
		}
		metrics.RecordSubSearch("success")
		return out, nil
	})
	if err != nil {
		return r.finish(nil, fmt.Errorf("sub-search: %w", err))
	}

	merged, err := r.reasoner.Invoke(ctx, r.mergeTmpl, map[string]any{
		"query":    query,
		"variants": variants,
		"results":  orchestration.LabelResults(results),
	})
	if err != nil {
		return r.finish(nil, fmt.Errorf("merge: %w", err))
	}

	resp := agent.NewMessage(agent.RoleResearcher, merged, agent.WithMetadata(agent.Metadata{
		agent.KeyQuery:           query,
		agent.KeyResearchType:    msg.GetMetadataString(agent.KeyResearchType, defaultResearchType),
		agent.KeyExpandedQueries: variants,
		agent.KeyResultCount:     len(results),
		agent.KeyReasoning: fmt.Sprintf("Expanded query into %d variants and merged %d sub-search results",
			len(variants), len(results)),
		KeyExpansion: source,
	}))
	return r.finish(resp, nil)
}

// expand asks for VariantCount distinct variants, falling back to the static templates
// when the call fails, the output cannot be parsed, or fewer than VariantCount distinct
// variants come back.
func (r *Researcher) expand(ctx context.Context, query string) ([]string, string) {
	out, err := r.reasoner.Invoke(ctx, r.expandTmpl, map[string]any{
		"query": query,
		"count": VariantCount,
	})
	if err != nil {
		r.logger.Debug("query expansion failed, using fallback", zap.Error(err))
		return FallbackVariants(query), expansionFallback
	}

	parsed, err := parser.ParseVariations(out)
	if err != nil {
		r.logger.Debug("query expansion output malformed, using fallback",
			zap.Error(err), zap.Int("output_len", len(out)))
		return FallbackVariants(query), expansionFallback
	}

	variants := dedupe(parsed.Variations)
	if len(variants) < VariantCount {
		r.logger.Debug("query expansion returned too few distinct variants, using fallback",
			zap.Strings("variants", variants))
		return FallbackVariants(query), expansionFallback
	}
	variants = variants[:VariantCount]
	r.logger.Debug("query expanded",
		zap.Strings("variants", variants),
		zap.String("strategy", parsed.Strategy))
	return variants, expansionModel
}

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		key := strings.ToLower(strings.TrimSpace(s))
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, s)
	}
	return out
}
