package search

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aixgo-dev/searchflow/internal/llm"
	"github.com/aixgo-dev/searchflow/internal/llm/prompt"
	"github.com/aixgo-dev/searchflow/internal/llm/provider"
)

func TestReasonerSearcher(t *testing.T) {
	mock := provider.NewMockProvider("test")
	mock.AddResponse("- sea levels are rising")

	s := NewReasonerSearcher(llm.NewClient(mock, llm.ClientConfig{}))
	out, err := s.Search(context.Background(), "  sea level rise  ")
	require.NoError(t, err)
	assert.Equal(t, "- sea levels are rising", out)

	calls := mock.Calls()
	require.Len(t, calls, 1)
	assert.Contains(t, calls[0].Messages[len(calls[0].Messages)-1].Content, "Search query: sea level rise")
}

func TestReasonerSearcher_EmptyQuery(t *testing.T) {
	mock := provider.NewMockProvider("test")
	s := NewReasonerSearcher(llm.NewClient(mock, llm.ClientConfig{}))

	_, err := s.Search(context.Background(), " ")
	assert.Error(t, err)
	assert.Equal(t, 0, mock.CallCount())
}

func TestReasonerSearcher_Error(t *testing.T) {
	mock := provider.NewMockProvider("test")
	mock.AddError(errors.New("unavailable"))

	s := NewReasonerSearcher(llm.NewClient(mock, llm.ClientConfig{}))
	_, err := s.Search(context.Background(), "q")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `search "q"`)
}

func TestReasonerSearcher_WithTemplate(t *testing.T) {
	mock := provider.NewMockProvider("test")
	s := NewReasonerSearcher(llm.NewClient(mock, llm.ClientConfig{})).
		WithTemplate(prompt.Template{Name: "custom", User: "Find: {{.query}}"})

	_, err := s.Search(context.Background(), "x")
	require.NoError(t, err)
	assert.Equal(t, "Find: x", mock.Calls()[0].Messages[0].Content)
}

func TestSearcherFunc(t *testing.T) {
	var s Searcher = SearcherFunc(func(ctx context.Context, q string) (string, error) {
		return "echo " + q, nil
	})
	out, err := s.Search(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, "echo hi", out)
}
