// Package redact removes credentials from strings before they are logged.
// Database errors and connection failures routinely echo the connection URL
// or the bearer token that was presented; both end up in structured logs.
package redact

import "regexp"

// Placeholders substituted for redacted fragments
const (
	CredentialPlaceholder = "[REDACTED_CREDENTIAL]"
	TokenPlaceholder      = "[REDACTED_JWT]"
	KeyPlaceholder        = "[REDACTED_KEY]"
)

type rule struct {
	pattern     *regexp.Regexp
	replacement string
}

// rules are applied in order; URLs go first so their passwords are not
// partially matched by the key rule.
var rules = []rule{
	{
		// user:password@ in postgres://, postgresql:// and similar URLs
		pattern:     regexp.MustCompile(`(?i)\b([a-z][a-z0-9+.-]*://)[^/@\s]+@`),
		replacement: "${1}" + CredentialPlaceholder + "@",
	},
	{
		// password=... in keyword/value connection strings
		pattern:     regexp.MustCompile(`(?i)\b(password|passwd|pwd)\s*([=:])\s*['"]?[^'"\s&]+`),
		replacement: "${1}${2}" + CredentialPlaceholder,
	},
	{
		pattern:     regexp.MustCompile(`eyJ[a-zA-Z0-9_-]+\.eyJ[a-zA-Z0-9_-]+\.[a-zA-Z0-9_-]+`),
		replacement: TokenPlaceholder,
	},
	{
		pattern:     regexp.MustCompile(`(?i)\b(bearer)\s+[A-Za-z0-9_\-.~+/]{8,}=*`),
		replacement: "${1} " + KeyPlaceholder,
	},
	{
		pattern:     regexp.MustCompile(`(?i)\b(jwt_secret|secret|api[_-]?key|token)(\s*[=:]\s*['"]?)[A-Za-z0-9_\-.~+/]{8,}`),
		replacement: "${1}${2}" + KeyPlaceholder,
	},
}

// String redacts credentials from s.
func String(s string) string {
	if s == "" {
		return s
	}
	for _, r := range rules {
		s = r.pattern.ReplaceAllString(s, r.replacement)
	}
	return s
}

// Error redacts credentials from err's message. A nil error yields "".
func Error(err error) string {
	if err == nil {
		return ""
	}
	return String(err.Error())
}
