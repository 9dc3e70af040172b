package logging

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	// MaxSnippetLength is the longest fragment of journal text a log line
	// may carry.
	MaxSnippetLength = 48
	// RedactedText is the replacement text for sensitive data.
	RedactedText = "[REDACTED]"
)

var (
	// Matches password values in connection strings: password=xxx, pwd=xxx,
	// pass=xxx (until next delimiter).
	passwordPattern = regexp.MustCompile(`(?i)(password|pwd|pass)=[^;&\s]+`)

	// Matches potential API keys.
	apiKeyPattern = regexp.MustCompile(`(?i)(api[_-]?key|apikey)=[A-Za-z0-9-_]{20,}`)

	// Matches connection string credentials (user:pass@host format).
	connStringPattern = regexp.MustCompile(`://[^:]+:[^@]+@[^/\s]+`)
)

// SanitizeConnectionString removes credentials from connection strings.
// Use this before logging any connection string.
func SanitizeConnectionString(connStr string) string {
	if connStr == "" {
		return ""
	}
	sanitized := passwordPattern.ReplaceAllString(connStr, "${1}="+RedactedText)
	sanitized = apiKeyPattern.ReplaceAllString(sanitized, "${1}="+RedactedText)
	sanitized = connStringPattern.ReplaceAllString(sanitized, "://"+RedactedText+"@"+RedactedText)
	return sanitized
}

// Snippet truncates journal text to a short preview for log lines. Entry
// content is personal writing; full text never belongs in logs, only
// enough of a fragment to correlate a log line with an entry.
func Snippet(content string) string {
	content = strings.Join(strings.Fields(content), " ")
	if utf8.RuneCountInString(content) <= MaxSnippetLength {
		return content
	}
	runes := []rune(content)
	return string(runes[:MaxSnippetLength]) + "…"
}
