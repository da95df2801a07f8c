package agent

import (
	"fmt"
	"sort"
)

// Recognized metadata keys. Stages read and write these; any other key is carried through untouched.
const (
	KeyQuery           = "query"
	KeyExpandedQueries = "expanded_queries"
	KeyAnalysisType    = "analysis_type"
	KeyFormatType      = "format_type"
	KeyReasoning       = "reasoning"
	KeyResearchType    = "research_type"
	KeyQueryType       = "query_type"
	KeyResultCount     = "result_count"
)

type valueKind int

const (
	kindString valueKind = iota
	kindStrings
	kindInt
)

var recognizedKeys = map[string]valueKind{
	KeyQuery:           kindString,
	KeyExpandedQueries: kindStrings,
	KeyAnalysisType:    kindString,
	KeyFormatType:      kindString,
	KeyReasoning:       kindString,
	KeyResearchType:    kindString,
	KeyQueryType:       kindString,
	KeyResultCount:     kindInt,
}

// Metadata is the open-ended key/value side data carried by a message.
type Metadata map[string]any

// Clone returns a shallow copy. A nil receiver yields an empty map.
func (md Metadata) Clone() Metadata {
	out := make(Metadata, len(md))
	for k, v := range md {
		out[k] = v
	}
	return out
}

// String returns the string stored under key, or def when absent or of another type.
func (md Metadata) String(key, def string) string {
	if s, ok := md[key].(string); ok {
		return s
	}
	return def
}

// Strings returns the string list stored under key. Lists decoded from JSON ([]any) are accepted.
func (md Metadata) Strings(key string) []string {
	switch v := md[key].(type) {
	case []string:
		out := make([]string, len(v))
		copy(out, v)
		return out
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil
			}
			out = append(out, s)
		}
		return out
	}
	return nil
}

// Int returns the integer stored under key, or def.
func (md Metadata) Int(key string, def int) int {
	switch v := md[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return def
}

// Validate checks that every recognized key holds a value of the documented type.
// Unknown keys are accepted.
func (md Metadata) Validate() error {
	keys := make([]string, 0, len(md))
	for k := range md {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		kind, ok := recognizedKeys[k]
		if !ok {
			continue
		}
		v := md[k]
		valid := false
		switch kind {
		case kindString:
			_, valid = v.(string)
		case kindStrings:
			switch v.(type) {
			case []string:
				valid = true
			case []any:
				valid = md.Strings(k) != nil
			}
		case kindInt:
			switch v.(type) {
			case int, int64:
				valid = true
			case float64:
				valid = v.(float64) == float64(int64(v.(float64)))
			}
		}
		if !valid {
			return fmt.Errorf("%w: key %q has unexpected type %T", ErrInvalidMetadata, k, v)
		}
	}
	return nil
}
