// Package parser decodes structured output from the reasoning capability.
package parser

import (
	"encoding/json"
	"errors"
	"regexp"
	"strings"
)

// ErrMalformedOutput is returned when no strategy can decode the text into the expected shape.
var ErrMalformedOutput = errors.New("malformed structured output")

// VariationsKey is the object key accepted as an alternative to a bare list.
const VariationsKey = "variations"

// ParseResult represents the decoded variants and how they were found.
type ParseResult struct {
	Variations []string `json:"variations"`
	Strategy   string   `json:"strategy"`
	Confidence float64  `json:"confidence"`
}

var codeFenceRe = regexp.MustCompile("(?s)```(?:json|JSON)?\\s*(.*?)```")

// ParseVariations decodes a list of strings, or an object whose "variations"
// key holds one, from text. Strategies are tried in order:
//  1. the whole text is JSON
//  2. the first fenced code block is JSON
//  3. the first balanced [...] or {...} span is JSON
//
// Blank entries are dropped; a result with no entries is malformed.
func ParseVariations(text string) (*ParseResult, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, ErrMalformedOutput
	}

	if v, ok := decodeVariations(trimmed); ok {
		return &ParseResult{Variations: v, Strategy: "direct", Confidence: 1.0}, nil
	}

	if m := codeFenceRe.FindStringSubmatch(trimmed); m != nil {
		if v, ok := decodeVariations(strings.TrimSpace(m[1])); ok {
			return &ParseResult{Variations: v, Strategy: "code_fence", Confidence: 0.9}, nil
		}
	}

	if span := firstJSONSpan(trimmed); span != "" {
		if v, ok := decodeVariations(span); ok {
			return &ParseResult{Variations: v, Strategy: "embedded", Confidence: 0.7}, nil
		}
	}

	return nil, ErrMalformedOutput
}

func decodeVariations(s string) ([]string, bool) {
	var raw any
	if err := json.Unmarshal([]byte(s), &raw); err != nil {
		return nil, false
	}

	if obj, ok := raw.(map[string]any); ok {
		raw, ok = obj[VariationsKey]
		if !ok {
			return nil, false
		}
	}

	list, ok := raw.([]any)
	if !ok {
		return nil, false
	}

	out := make([]string, 0, len(list))
	for _, item := range list {
		str, ok := item.(string)
		if !ok {
			return nil, false
		}
		if str = strings.TrimSpace(str); str != "" {
			out = append(out, str)
		}
	}
	if len(out) == 0 {
		return nil, false
	}
	return out, true
}

// firstJSONSpan returns the first balanced bracket span, honouring string literals.
func firstJSONSpan(s string) string {
	start := strings.IndexAny(s, "[{")
	if start < 0 {
		return ""
	}

	depth := 0
	inString, escaped := false, false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '[', '{':
			depth++
		case ']', '}':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}
