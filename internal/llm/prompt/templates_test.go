package prompt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuiltinsRender(t *testing.T) {
	vars := map[string]any{
		"query":       "climate change impacts",
		"count":       3,
		"results":     "Result 1:\nfoo",
		"content":     "some text",
		"format_type": "markdown",
	}

	for _, name := range Names() {
		t.Run(name, func(t *testing.T) {
			tmpl := MustGet(name)
			out, err := tmpl.Render(vars)
			require.NoError(t, err)
			assert.NotEmpty(t, out.System)
			assert.NotEmpty(t, out.User)
		})
	}
}

func TestExpandTemplate(t *testing.T) {
	out, err := MustGet(NameExpand).Render(map[string]any{"query": "solar power", "count": 3})
	require.NoError(t, err)
	assert.Contains(t, out.User, "exactly 3")
	assert.Contains(t, out.User, "Query: solar power")
	assert.Contains(t, out.System, `"variations"`)
	assert.True(t, MustGet(NameExpand).JSONMode)
}

func TestRenderMissingVariable(t *testing.T) {
	_, err := MustGet(NameAnalyze).Render(map[string]any{"query": "q"})
	assert.Error(t, err)
}

func TestRenderEmptyUser(t *testing.T) {
	_, err := Template{Name: "blank", User: "{{.x}}"}.Render(map[string]any{"x": "  "})
	assert.Error(t, err)
}

func TestRenderFuncs(t *testing.T) {
	tmpl := Template{Name: "f", User: `{{join .items ", "}} / {{inc .n}} / {{upper .s}}`}
	out, err := tmpl.Render(map[string]any{"items": []string{"a", "b"}, "n": 1, "s": "md"})
	require.NoError(t, err)
	assert.Equal(t, "a, b / 2 / MD", out.User)
}

func TestResolve(t *testing.T) {
	t.Run("override replaces set fields only", func(t *testing.T) {
		tmpl, err := Resolve(NameFormat, Template{User: "Format: {{.content}}", Temperature: 0.9})
		require.NoError(t, err)
		assert.Equal(t, "Format: {{.content}}", tmpl.User)
		assert.Equal(t, MustGet(NameFormat).System, tmpl.System)
		assert.Equal(t, 0.9, tmpl.Temperature)
	})

	t.Run("unknown name without user prompt", func(t *testing.T) {
		_, err := Resolve("summarize", Template{})
		assert.Error(t, err)
	})

	t.Run("unknown name with user prompt", func(t *testing.T) {
		tmpl, err := Resolve("summarize", Template{User: "{{.content}}"})
		require.NoError(t, err)
		assert.Equal(t, "summarize", tmpl.Name)
	})
}

func TestMustGetPanics(t *testing.T) {
	assert.Panics(t, func() { MustGet("nope") })
}
