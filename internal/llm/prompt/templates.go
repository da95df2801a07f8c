// Package prompt holds the prompt templates each stage sends to the reasoning capability.
package prompt

import (
	"bytes"
	"fmt"
	"sort"
	"strings"
	"text/template"
)

// Built-in template names.
const (
	NameExpand  = "expand"
	NameSearch  = "search"
	NameMerge   = "merge"
	NameAnalyze = "analyze"
	NameFormat  = "format"
)

// Template is a system + user prompt pair rendered with text/template.
type Template struct {
	Name   string `yaml:"name" json:"name"`
	System string `yaml:"system" json:"system"`
	User   string `yaml:"user" json:"user"`

	// Temperature overrides the client default when non-zero.
	Temperature float64 `yaml:"temperature,omitempty" json:"temperature,omitempty"`

	// JSONMode asks the provider for a JSON object response.
	JSONMode bool `yaml:"json_mode,omitempty" json:"json_mode,omitempty"`
}

// Rendered is the output of Template.Render.
type Rendered struct {
	System string
	User   string
}

// Render executes both parts of the template against vars.
// A variable referenced by the template but missing from vars is an error.
func (t Template) Render(vars map[string]any) (Rendered, error) {
	system, err := execute(t.Name+".system", t.System, vars)
	if err != nil {
		return Rendered{}, err
	}
	user, err := execute(t.Name+".user", t.User, vars)
	if err != nil {
		return Rendered{}, err
	}
	if strings.TrimSpace(user) == "" {
		return Rendered{}, fmt.Errorf("template %s: empty user prompt", t.Name)
	}
	return Rendered{System: system, User: user}, nil
}

// Merge returns t with the non-empty fields of override applied.
func (t Template) Merge(override Template) Template {
	if override.System != "" {
		t.System = override.System
	}
	if override.User != "" {
		t.User = override.User
	}
	if override.Temperature != 0 {
		t.Temperature = override.Temperature
	}
	if override.JSONMode {
		t.JSONMode = true
	}
	return t
}

func execute(name, text string, vars map[string]any) (string, error) {
	if text == "" {
		return "", nil
	}
	tmpl, err := template.New(name).Option("missingkey=error").Funcs(funcs).Parse(text)
	if err != nil {
		return "", fmt.Errorf("parse template %s: %w", name, err)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, vars); err != nil {
		return "", fmt.Errorf("render template %s: %w", name, err)
	}
	return strings.TrimSpace(buf.String()), nil
}

var funcs = template.FuncMap{
	"join":  strings.Join,
	"inc":   func(i int) int { return i + 1 },
	"upper": strings.ToUpper,
}

var builtins = map[string]Template{
	NameExpand: {
		Name:        NameExpand,
		Temperature: 0.7,
		JSONMode:    true,
		System: `You are a research assistant that rewrites search queries.
Respond with a JSON object of the form {"variations": ["...", "...", "..."]} and nothing else.`,
		User: `Generate exactly {{.count}} semantically distinct variations of the following search query.
Each variation should explore a different angle of the topic.

Query: {{.query}}`,
	},
	NameSearch: {
		Name:        NameSearch,
		Temperature: 0.3,
		System: `You are a search engine. Answer the query with the most relevant facts you know,
as a short list of findings. Say so plainly when you are unsure.`,
		User: `Search query: {{.query}}`,
	},
	NameMerge: {
		Name:        NameMerge,
		Temperature: 0.3,
		System: `You combine search results into one ranked research summary.
Put the most relevant findings first, remove duplicates and keep every distinct fact.`,
		User: `Original query: {{.query}}

{{.results}}

Combine the results above into a single research summary for the original query.`,
	},
	NameAnalyze: {
		Name:        NameAnalyze,
		Temperature: 0.5,
		System: `You are an analyst. Answer the user's question directly using the research provided.
Be comprehensive and objective, and acknowledge any gaps or uncertainty in the information.`,
		User: `Question: {{.query}}

Research:
{{.content}}`,
	},
	NameFormat: {
		Name:        NameFormat,
		Temperature: 0.2,
		System: `You format answers as {{.format_type}}. Use headings, bullet lists, emphasis and tables
where they help. Do not add, remove or change any facts.`,
		User: `Format the following answer:

{{.content}}`,
	},
}

// Get returns the built-in template with the given name.
func Get(name string) (Template, bool) {
	t, ok := builtins[name]
	return t, ok
}

// MustGet is like Get but panics on an unknown name. Intended for package-level defaults.
func MustGet(name string) Template {
	t, ok := Get(name)
	if !ok {
		panic(fmt.Sprintf("prompt: unknown template %q", name))
	}
	return t
}

// Names lists the built-in templates in sorted order.
func Names() []string {
	names := make([]string, 0, len(builtins))
	for name := range builtins {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Resolve returns the built-in named template with override applied.
// Unknown names are accepted when override carries a user prompt.
func Resolve(name string, override Template) (Template, error) {
	base, ok := Get(name)
	if !ok {
		if override.User == "" {
			return Template{}, fmt.Errorf("unknown prompt template %q", name)
		}
		base = Template{Name: name}
	}
	return base.Merge(override), nil
}
