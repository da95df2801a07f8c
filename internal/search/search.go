// Package search answers single sub-queries for the research stage.
package search

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aixgo-dev/searchflow/internal/llm"
	"github.com/aixgo-dev/searchflow/internal/llm/prompt"
)

// Searcher answers one query. Implementations must be safe for concurrent use.
type Searcher interface {
	Search(ctx context.Context, query string) (string, error)
}

// SearcherFunc adapts a function into a Searcher.
type SearcherFunc func(ctx context.Context, query string) (string, error)

// Search implements Searcher.
func (f SearcherFunc) Search(ctx context.Context, query string) (string, error) {
	return f(ctx, query)
}

// ReasonerSearcher answers queries through the reasoning capability.
// It holds no per-call state.
type ReasonerSearcher struct {
	reasoner llm.Reasoner
	template prompt.Template
}

// NewReasonerSearcher returns a searcher using the built-in search template.
func NewReasonerSearcher(reasoner llm.Reasoner) *ReasonerSearcher {
	return &ReasonerSearcher{reasoner: reasoner, template: prompt.MustGet(prompt.NameSearch)}
}

// WithTemplate returns a copy of s that renders tmpl instead.
func (s *ReasonerSearcher) WithTemplate(tmpl prompt.Template) *ReasonerSearcher {
	return &ReasonerSearcher{reasoner: s.reasoner, template: tmpl}
}

// Search implements Searcher.
func (s *ReasonerSearcher) Search(ctx context.Context, query string) (string, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return "", errors.New("search: empty query")
	}
	out, err := s.reasoner.Invoke(ctx, s.template, map[string]any{"query": query})
	if err != nil {
		return "", fmt.Errorf("search %q: %w", query, err)
	}
	return out, nil
}
