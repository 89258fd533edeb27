package logging

import (
	"regexp"
	"unicode/utf8"
)

const (
	// MaxPromptLogLength is the maximum length of a prompt or model reply to log
	MaxPromptLogLength = 200
	// RedactedText is the replacement text for sensitive data
	RedactedText = "[REDACTED]"
)

var (
	// Pattern to match potential passwords in connection strings
	passwordPattern = regexp.MustCompile(`(?i)(password|pwd|pass)=[^;&\s]+`)

	// Pattern to match bearer tokens (JWTs and opaque OAuth access tokens)
	bearerPattern = regexp.MustCompile(`Bearer\s+[A-Za-z0-9\-_.~+/]+=*`)

	// Pattern to match API keys passed as parameters
	apiKeyPattern = regexp.MustCompile(`(?i)(api[_-]?key|apikey|key|access_token|refresh_token)=[A-Za-z0-9\-_./]{16,}`)

	// Provider key shapes that show up inside SDK error messages
	providerKeyPattern = regexp.MustCompile(`\b(sk-[A-Za-z0-9\-_]{16,}|sk-ant-[A-Za-z0-9\-_]{16,}|AIza[0-9A-Za-z\-_]{30,}|ya29\.[0-9A-Za-z\-_.]+)`)

	// Pattern to match connection string credentials (user:pass@host format)
	connStringPattern = regexp.MustCompile(`://[^:/\s]+:[^@\s]+@[^/\s]+`)
)

// SanitizeConnectionString removes credentials from a database or Redis URL.
func SanitizeConnectionString(connStr string) string {
	if connStr == "" {
		return ""
	}
	sanitized := passwordPattern.ReplaceAllString(connStr, "${1}="+RedactedText)
	sanitized = connStringPattern.ReplaceAllString(sanitized, "://"+RedactedText+"@"+RedactedText)
	return sanitized
}

// SanitizeError sanitizes error messages that might contain API keys or mail tokens.
// Use this before logging or surfacing any gateway or mail error.
func SanitizeError(err error) string {
	if err == nil {
		return ""
	}
	return SanitizeSecret(err.Error())
}

// SanitizeSecret redacts every known secret shape from s.
func SanitizeSecret(s string) string {
	sanitized := passwordPattern.ReplaceAllString(s, "${1}="+RedactedText)
	sanitized = bearerPattern.ReplaceAllString(sanitized, "Bearer "+RedactedText)
	sanitized = apiKeyPattern.ReplaceAllString(sanitized, "${1}="+RedactedText)
	sanitized = providerKeyPattern.ReplaceAllString(sanitized, RedactedText)
	sanitized = connStringPattern.ReplaceAllString(sanitized, "://"+RedactedText+"@"+RedactedText)
	return sanitized
}

// TruncatePrompt shortens a prompt or model reply for debug logging.
func TruncatePrompt(s string) string {
	return TruncateString(s, MaxPromptLogLength)
}

// TruncateString truncates s to at most maxLen bytes without splitting a UTF-8
// sequence, adding an ellipsis if needed.
func TruncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	cut := maxLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
