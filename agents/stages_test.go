package agents

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/aixgo-dev/searchflow/agent"
	"github.com/aixgo-dev/searchflow/internal/llm/prompt"
	"github.com/aixgo-dev/searchflow/internal/search"
)

func TestFallbackVariants(t *testing.T) {
	want := []string{
		"solar power overview and background",
		"solar power latest developments and news",
		"solar power key facts and statistics",
		"solar power expert analysis and opinions",
	}
	assert.Equal(t, want, FallbackVariants("solar power"))
	assert.Equal(t, FallbackVariants("solar power"), FallbackVariants("solar power"))
}

func TestResearcher_ModelExpansion(t *testing.T) {
	reasoner := NewMockReasoner()
	reasoner.AddResponse(prompt.NameExpand, `{"variations": ["climate economics", "climate health", "climate ecosystems"]}`)
	reasoner.AddResponse(prompt.NameMerge, "merged research")

	r := NewResearcher("researcher", reasoner, WithLogger(zaptest.NewLogger(t)))
	in := agent.NewMessage(agent.RoleUser, "climate change impacts",
		agent.WithMetadataValue(agent.KeyResearchType, "web_search"))

	resp, err := r.ProcessMessage(context.Background(), in)
	require.NoError(t, err)

	assert.Equal(t, agent.RoleResearcher, resp.Role())
	assert.Equal(t, "merged research", resp.Content())
	assert.Equal(t, []string{"climate economics", "climate health", "climate ecosystems"},
		resp.GetMetadataStrings(agent.KeyExpandedQueries))
	assert.Equal(t, "climate change impacts", resp.GetMetadataString(agent.KeyQuery, ""))
	assert.Equal(t, "web_search", resp.GetMetadataString(agent.KeyResearchType, ""))
	assert.Equal(t, 3, resp.GetMetadata(agent.KeyResultCount, 0))
	assert.Equal(t, "Expanded query into 3 variants and merged 3 sub-search results",
		resp.GetMetadataString(agent.KeyReasoning, ""))
	assert.Equal(t, expansionModel, resp.GetMetadataString(KeyExpansion, ""))
	require.NoError(t, resp.Metadata().Validate())

	searches := reasoner.CallsFor(prompt.NameSearch)
	require.Len(t, searches, 3)
	queried := make([]string, 0, 3)
	for _, c := range searches {
		queried = append(queried, c.Vars["query"].(string))
	}
	assert.ElementsMatch(t, []string{"climate economics", "climate health", "climate ecosystems"}, queried)

	merges := reasoner.CallsFor(prompt.NameMerge)
	require.Len(t, merges, 1)
	assert.Equal(t, "climate change impacts", merges[0].Vars["query"])
}

func TestResearcher_FallbackOnMalformedExpansion(t *testing.T) {
	for name, setup := range map[string]func(*MockReasoner){
		"prose":  func(m *MockReasoner) { m.AddResponse(prompt.NameExpand, "Here are some ideas about the topic.") },
		"error":  func(m *MockReasoner) { m.AddError(prompt.NameExpand, errors.New("capability timeout")) },
		"object": func(m *MockReasoner) { m.AddResponse(prompt.NameExpand, `{"queries": ["a"]}`) },
	} {
		t.Run(name, func(t *testing.T) {
			reasoner := NewMockReasoner()
			setup(reasoner)

			r := NewResearcher("researcher", reasoner)
			resp, err := r.ProcessMessage(context.Background(), agent.NewMessage(agent.RoleUser, "solar power"))
			require.NoError(t, err)

			assert.Equal(t, FallbackVariants("solar power"), resp.GetMetadataStrings(agent.KeyExpandedQueries))
			assert.Equal(t, expansionFallback, resp.GetMetadataString(KeyExpansion, ""))
			assert.Len(t, reasoner.CallsFor(prompt.NameSearch), 4)
		})
	}
}

func TestResearcher_FallbackOnTooFewVariants(t *testing.T) {
	tests := []struct {
		name   string
		output string
	}{
		{name: "case-only duplicates", output: `["climate change impacts", "Climate Change Impacts", "CLIMATE CHANGE IMPACTS"]`},
		{name: "single item", output: `["climate change impacts"]`},
		{name: "two distinct", output: `{"variations": ["climate economics", " Climate Economics ", "climate health"]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reasoner := NewMockReasoner()
			reasoner.AddResponse(prompt.NameExpand, tt.output)

			r := NewResearcher("researcher", reasoner)
			resp, err := r.ProcessMessage(context.Background(), agent.NewMessage(agent.RoleUser, "climate change impacts"))
			require.NoError(t, err)

			assert.Equal(t, FallbackVariants("climate change impacts"), resp.GetMetadataStrings(agent.KeyExpandedQueries))
			assert.Equal(t, expansionFallback, resp.GetMetadataString(KeyExpansion, ""))
			assert.Equal(t, 4, resp.GetMetadata(agent.KeyResultCount, 0))
			assert.Len(t, reasoner.CallsFor(prompt.NameSearch), 4)
		})
	}
}

func TestResearcher_TruncatesAndDedupes(t *testing.T) {
	reasoner := NewMockReasoner()
	reasoner.AddResponse(prompt.NameExpand, `["a", "A", "b", "c", "d"]`)

	r := NewResearcher("researcher", reasoner)
	resp, err := r.ProcessMessage(context.Background(), agent.NewMessage(agent.RoleUser, "q"))
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, resp.GetMetadataStrings(agent.KeyExpandedQueries))
}

func TestResearcher_MergeInputLabelsResultsInOrder(t *testing.T) {
	reasoner := NewMockReasoner()
	reasoner.AddResponse(prompt.NameExpand, `["v1", "v2", "v3"]`)

	searcher := search.SearcherFunc(func(ctx context.Context, q string) (string, error) {
		// finish in reverse order
		delay := map[string]time.Duration{"v1": 30, "v2": 15, "v3": 0}[q]
		time.Sleep(delay * time.Millisecond)
		return "found " + q, nil
	})

	r := NewResearcher("researcher", reasoner, WithSearcher(searcher))
	_, err := r.ProcessMessage(context.Background(), agent.NewMessage(agent.RoleUser, "q"))
	require.NoError(t, err)

	merges := reasoner.CallsFor(prompt.NameMerge)
	require.Len(t, merges, 1)
	assert.Equal(t, "Result 1:\nfound v1\n\nResult 2:\nfound v2\n\nResult 3:\nfound v3", merges[0].Vars["results"])
}

func TestResearcher_SubSearchesRunConcurrently(t *testing.T) {
	reasoner := NewMockReasoner()
	var started atomic.Int32
	allStarted := make(chan struct{})
	var once sync.Once

	searcher := search.SearcherFunc(func(ctx context.Context, q string) (string, error) {
		if started.Add(1) == 4 {
			once.Do(func() { close(allStarted) })
		}
		select {
		case <-allStarted:
			return q, nil
		case <-ctx.Done():
			return "", ctx.Err()
		}
	})

	r := NewResearcher("researcher", reasoner, WithSearcher(searcher), WithTimeout(2*time.Second))
	resp, err := r.ProcessMessage(context.Background(), agent.NewMessage(agent.RoleUser, "q"))
	require.NoError(t, err)
	assert.Equal(t, 4, resp.GetMetadata(agent.KeyResultCount, 0))
}

func TestResearcher_SubSearchFailureFailsStage(t *testing.T) {
	reasoner := NewMockReasoner()
	reasoner.AddResponse(prompt.NameExpand, `["ok", "bad", "ok2"]`)
	boom := errors.New("backend down")

	searcher := search.SearcherFunc(func(ctx context.Context, q string) (string, error) {
		if q == "bad" {
			return "", boom
		}
		return q, nil
	})

	r := NewResearcher("researcher", reasoner, WithSearcher(searcher))
	_, err := r.ProcessMessage(context.Background(), agent.NewMessage(agent.RoleUser, "q"))
	require.Error(t, err)

	var se *agent.StageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "researcher", se.Stage)
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, reasoner.CallsFor(prompt.NameMerge))
	assert.Equal(t, agent.StatusError, r.State().State.Status)
}

func TestResearcher_EmptyInput(t *testing.T) {
	r := NewResearcher("researcher", NewMockReasoner())
	_, err := r.ProcessMessage(context.Background(), agent.NewMessage(agent.RoleUser, "   "))
	assert.ErrorIs(t, err, agent.ErrEmptyInput)
}

func TestResearcher_Reentrant(t *testing.T) {
	reasoner := NewMockReasoner()
	r := NewResearcher("researcher", reasoner)

	var wg sync.WaitGroup
	errs := make([]error, 5)
	resps := make([]*agent.Message, 5)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resps[i], errs[i] = r.ProcessMessage(context.Background(),
				agent.NewMessage(agent.RoleUser, fmt.Sprintf("topic %d", i)))
		}()
	}
	wg.Wait()

	for i := 0; i < 5; i++ {
		require.NoError(t, errs[i])
		want := fmt.Sprintf("topic %d", i)
		assert.Equal(t, want, resps[i].GetMetadataString(agent.KeyQuery, ""))
		for _, v := range resps[i].GetMetadataStrings(agent.KeyExpandedQueries) {
			assert.True(t, strings.HasPrefix(v, want+" "), "variant %q does not belong to %q", v, want)
		}
	}
	assert.Len(t, r.State().State.Messages, 10)
}

func TestAnalyzer(t *testing.T) {
	reasoner := NewMockReasoner()
	reasoner.AddResponse(prompt.NameAnalyze, "Climate change affects economies and health.")

	a := NewAnalyzer("analyzer", reasoner)
	in := agent.NewMessage(agent.RoleResearcher, "merged research", agent.WithMetadata(agent.Metadata{
		agent.KeyQuery:        "climate change impacts",
		agent.KeyAnalysisType: "comprehensive",
	}))

	resp, err := a.ProcessMessage(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, agent.RoleAnalyzer, resp.Role())
	assert.Equal(t, "Climate change affects economies and health.", resp.Content())
	assert.Equal(t, "comprehensive", resp.GetMetadataString(agent.KeyAnalysisType, ""))
	assert.Equal(t, "climate change impacts", resp.GetMetadataString(agent.KeyQuery, ""))
	assert.NotEmpty(t, resp.GetMetadataString(agent.KeyReasoning, ""))

	calls := reasoner.CallsFor(prompt.NameAnalyze)
	require.Len(t, calls, 1)
	assert.Equal(t, "climate change impacts", calls[0].Vars["query"])
	assert.Equal(t, "merged research", calls[0].Vars["content"])
}

func TestAnalyzer_DefaultsAndErrors(t *testing.T) {
	reasoner := NewMockReasoner()
	reasoner.AddError(prompt.NameAnalyze, errors.New("capability error"))

	a := NewAnalyzer("analyzer", reasoner)
	_, err := a.ProcessMessage(context.Background(), agent.NewMessage(agent.RoleResearcher, "text"))
	var se *agent.StageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, agent.RoleAnalyzer, se.Role)

	resp, err := a.ProcessMessage(context.Background(), agent.NewMessage(agent.RoleResearcher, "text"))
	require.NoError(t, err)
	assert.Equal(t, defaultAnalysisType, resp.GetMetadataString(agent.KeyAnalysisType, ""))
}

func TestFormatter(t *testing.T) {
	reasoner := NewMockReasoner()
	reasoner.AddResponse(prompt.NameFormat, "# Impacts\n\n- economy\n- health")

	f := NewFormatter("formatter", reasoner)
	resp, err := f.ProcessMessage(context.Background(), agent.NewMessage(agent.RoleAnalyzer, "analysis",
		agent.WithMetadataValue(agent.KeyQuery, "q")))
	require.NoError(t, err)

	assert.Equal(t, agent.RoleFormatter, resp.Role())
	assert.Equal(t, DefaultFormatType, resp.GetMetadataString(agent.KeyFormatType, ""))
	assert.Equal(t, "q", resp.GetMetadataString(agent.KeyQuery, ""))
	assert.Equal(t, "markdown", reasoner.CallsFor(prompt.NameFormat)[0].Vars["format_type"])

	st := f.State()
	assert.Equal(t, "formatter", st.ID)
	assert.Equal(t, agent.StatusDone, st.State.Status)
	assert.Len(t, st.State.Messages, 2)
}

func TestStageTimeout(t *testing.T) {
	reasoner := NewMockReasoner()
	reasoner.Handler = func(ctx context.Context, tmpl prompt.Template, vars map[string]any) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}

	f := NewFormatter("formatter", reasoner, WithTimeout(10*time.Millisecond))
	_, err := f.ProcessMessage(context.Background(), agent.NewMessage(agent.RoleAnalyzer, "x"))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestWithTemplateOverride(t *testing.T) {
	reasoner := NewMockReasoner()
	custom := prompt.Template{Name: prompt.NameFormat, User: "as html: {{.content}}"}

	f := NewFormatter("formatter", reasoner, WithTemplate(custom))
	_, err := f.ProcessMessage(context.Background(), agent.NewMessage(agent.RoleAnalyzer, "x"))
	require.NoError(t, err)
	assert.Equal(t, custom, f.tmpl)
}
