// Package redact removes credentials from strings before they are logged or
// written to run summaries. Error messages from database drivers and remote
// APIs can echo connection strings and keys back to the caller.
package redact

import (
	"regexp"
)

// Constants for redaction placeholders
const (
	RedactedCredentialPlaceholder = "[REDACTED_CREDENTIAL]"
	RedactedKeyPlaceholder        = "[REDACTED_KEY]"
	RedactedJWTPlaceholder        = "[REDACTED_JWT]"
)

type rule struct {
	pattern     *regexp.Regexp
	replacement string
}

// rules are applied in order.
var rules = []rule{
	// user:password in database connection URLs
	{
		pattern:     regexp.MustCompile(`(?i)\b(postgres(?:ql)?|mysql|mongodb)://[^@\s/]+@`),
		replacement: "${1}://" + RedactedCredentialPlaceholder + "@",
	},
	// password=... in key/value connection strings and query parameters
	{
		pattern:     regexp.MustCompile(`(?i)\b(password|passwd|pwd)=[^&\s'"]+`),
		replacement: "${1}=" + RedactedCredentialPlaceholder,
	},
	// api_key=..., access_token: ..., secret "..."
	{
		pattern:     regexp.MustCompile(`(?i)\b(api[_-]?key|access[_-]?token|secret)(["'\s:=]+)[A-Za-z0-9_\-.~+/]{8,}`),
		replacement: "${1}${2}" + RedactedKeyPlaceholder,
	},
	// Google API keys
	{
		pattern:     regexp.MustCompile(`AIza[0-9A-Za-z_\-]{35}`),
		replacement: RedactedKeyPlaceholder,
	},
	// JWT bearer tokens
	{
		pattern:     regexp.MustCompile(`eyJ[a-zA-Z0-9_-]+\.eyJ[a-zA-Z0-9_-]+\.[a-zA-Z0-9_-]+`),
		replacement: RedactedJWTPlaceholder,
	},
}

// String redacts credentials from the input string.
func String(input string) string {
	if input == "" {
		return input
	}
	result := input
	for _, r := range rules {
		result = r.pattern.ReplaceAllString(result, r.replacement)
	}
	return result
}

// Error redacts credentials from an error's Error() output.
func Error(err error) string {
	if err == nil {
		return ""
	}
	return String(err.Error())
}
