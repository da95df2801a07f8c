package security

import (
	"regexp"
	"strings"
)

var (
	pathPattern      = regexp.MustCompile(`(?:/(?:Users|home|var|etc|opt|tmp|root)/\S+)|(?:[A-Z]:\\\S+)`)
	ipPattern        = regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}(?::\d+)?\b`)
	secretPattern    = regexp.MustCompile(`(?:sk-|xai-|hf_|AKIA)[A-Za-z0-9_\-]{8,}|(?i:(?:api_key|apikey|token|password)=)\S+|Bearer\s+\S+`)
	goroutinePattern = regexp.MustCompile(`goroutine \d+ \[[^\]]+\]:[\s\S]*?(?:\n\n|\z)`)
	fileLinePattern  = regexp.MustCompile(`\S+\.go:\d+`)
	addrPattern      = regexp.MustCompile(`0x[0-9a-fA-F]{4,}`)
)

// Redact removes file paths, IP addresses, credentials and stack traces from msg.
func Redact(msg string) string {
	msg = goroutinePattern.ReplaceAllString(msg, "[STACK_TRACE_REMOVED]")
	msg = secretPattern.ReplaceAllString(msg, "[REDACTED]")
	msg = fileLinePattern.ReplaceAllString(msg, "[FILE:LINE]")
	msg = pathPattern.ReplaceAllString(msg, "[PATH]")
	msg = ipPattern.ReplaceAllString(msg, "[IP_ADDRESS]")
	msg = addrPattern.ReplaceAllString(msg, "[ADDR]")
	return strings.TrimSpace(msg)
}

// MaskSecret masks a secret for logging purposes
func MaskSecret(secret string) string {
	if secret == "" {
		return ""
	}

	if len(secret) <= 8 {
		return "****"
	}

	return secret[:4] + "****" + secret[len(secret)-4:]
}
