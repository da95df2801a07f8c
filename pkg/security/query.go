package security

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

var (
	// ErrQueryTooLong is returned for queries above QueryGuard.MaxLength
	ErrQueryTooLong = errors.New("query too long")

	// ErrQueryInvalid is returned for queries that are not clean UTF-8 text
	ErrQueryInvalid = errors.New("query contains invalid characters")

	// ErrPromptInjection is returned when a query looks like an attempt to override the prompts
	ErrPromptInjection = errors.New("query rejected as a prompt injection attempt")
)

// DefaultMaxQueryLength is used when QueryGuard.MaxLength is zero
const DefaultMaxQueryLength = 2000

// QueryGuard validates user queries before a run is started
type QueryGuard struct {
	// MaxLength in bytes (default DefaultMaxQueryLength)
	MaxLength int

	// Detector, when set, rejects suspected prompt injection
	Detector *InjectionDetector
}

// Check validates query. Leading and trailing whitespace is ignored.
func (g *QueryGuard) Check(query string) error {
	query = strings.TrimSpace(query)

	max := g.MaxLength
	if max <= 0 {
		max = DefaultMaxQueryLength
	}
	if len(query) > max {
		return fmt.Errorf("%w: %d bytes (max %d)", ErrQueryTooLong, len(query), max)
	}

	if !utf8.ValidString(query) {
		return ErrQueryInvalid
	}
	for _, r := range query {
		if unicode.IsControl(r) && r != '\n' && r != '\t' && r != '\r' {
			return ErrQueryInvalid
		}
	}

	if g.Detector != nil {
		if d := g.Detector.Detect(query); d.Detected {
			return fmt.Errorf("%w (%s)", ErrPromptInjection, d.Category)
		}
	}
	return nil
}
