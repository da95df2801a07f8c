package security

import (
	"regexp"
	"strings"
)

// Sensitivity selects how aggressive injection detection is
type Sensitivity int

const (
	// SensitivityLow catches obvious injection attempts
	SensitivityLow Sensitivity = iota
	// SensitivityMedium also catches delimiter and role-marker tricks
	SensitivityMedium
	// SensitivityHigh catches subtle attempts (may have higher false positives)
	SensitivityHigh
)

// ParseSensitivity maps "low", "medium" or "high" to a Sensitivity. Unknown names map to medium.
func ParseSensitivity(s string) Sensitivity {
	switch strings.ToLower(s) {
	case "low":
		return SensitivityLow
	case "high":
		return SensitivityHigh
	}
	return SensitivityMedium
}

// Category is the kind of injection a pattern detects
type Category string

const (
	CategoryOverride  Category = "instruction_override"
	CategoryRole      Category = "role_hijacking"
	CategoryDelimiter Category = "delimiter_injection"
	CategoryExfil     Category = "prompt_exfiltration"
)

// Detection is the outcome of screening one input
type Detection struct {
	Detected bool     `json:"detected"`
	Category Category `json:"category,omitempty"`
	Matched  []string `json:"matched,omitempty"`
}

type injectionPattern struct {
	re       *regexp.Regexp
	category Category
	name     string
	level    Sensitivity
}

var injectionPatterns = []injectionPattern{
	{regexp.MustCompile(`(?i)ignore\s+(all\s+)?(the\s+)?(previous|prior|above)\s+instructions?`), CategoryOverride, "ignore previous instructions", SensitivityLow},
	{regexp.MustCompile(`(?i)disregard\s+(your\s+|all\s+|the\s+)?(instructions?|rules)`), CategoryOverride, "disregard instructions", SensitivityLow},
	{regexp.MustCompile(`(?i)forget\s+(everything|all\s+(your\s+)?instructions?|your\s+instructions?)`), CategoryOverride, "forget instructions", SensitivityLow},
	{regexp.MustCompile(`(?i)you\s+are\s+now\s+(a|an|the)\b`), CategoryRole, "you are now", SensitivityLow},
	{regexp.MustCompile(`(?i)(reveal|print|show|repeat)\s+(me\s+)?(your|the)\s+(system\s+)?(prompt|instructions)`), CategoryExfil, "reveal system prompt", SensitivityLow},
	{regexp.MustCompile(`(?i)new\s+instructions?\s*:`), CategoryOverride, "new instructions", SensitivityMedium},
	{regexp.MustCompile(`(?i)(^|\n)\s*(system|assistant)\s*:`), CategoryDelimiter, "role marker", SensitivityMedium},
	{regexp.MustCompile(`(?i)<\|?(im_start|im_end|system|endoftext)\|?>`), CategoryDelimiter, "chat template token", SensitivityMedium},
	{regexp.MustCompile(`(?i)pretend\s+(to\s+be|you\s+are)`), CategoryRole, "pretend to be", SensitivityHigh},
	{regexp.MustCompile(`(?i)\bjailbreak\b|\bDAN\s+mode\b`), CategoryRole, "jailbreak", SensitivityHigh},
}

// zero-width characters used to split trigger words
var invisible = strings.NewReplacer("\u200b", "", "\u200c", "", "\u200d", "", "\ufeff", "", "\u00ad", "", "\u2060", "")

// InjectionDetector screens text for attempts to override the reasoning prompts
type InjectionDetector struct {
	sensitivity Sensitivity
}

// NewInjectionDetector creates a detector at the given sensitivity
func NewInjectionDetector(sensitivity Sensitivity) *InjectionDetector {
	return &InjectionDetector{sensitivity: sensitivity}
}

// Detect reports every pattern enabled at the detector's sensitivity that matches input.
// The category is the one of the first match.
func (d *InjectionDetector) Detect(input string) Detection {
	var result Detection
	if input == "" {
		return result
	}
	if len(input) > maxScreenedInput {
		input = input[:maxScreenedInput]
	}
	normalized := invisible.Replace(input)

	for _, p := range injectionPatterns {
		if p.level > d.sensitivity || !p.re.MatchString(normalized) {
			continue
		}
		if !result.Detected {
			result.Detected = true
			result.Category = p.category
		}
		result.Matched = append(result.Matched, p.name)
	}
	return result
}

// maxScreenedInput bounds regex work per input.
const maxScreenedInput = 10 * 1024
