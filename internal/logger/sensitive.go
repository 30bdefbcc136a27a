package logger

import (
	"regexp"
	"strings"
)

// SensitiveDataPatterns match credentials that should never reach log output
var SensitiveDataPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(bearer\s+)([A-Za-z0-9-._~+/]+=*)`),
	regexp.MustCompile(`(?i)((api|access|auth|token|secret|passw(or)?d)[0-9a-z\-_\.]*[\s:=]+)([^;,\s]{5,})`),
}

// RedactSensitiveData replaces sensitive information with "[REDACTED]"
func RedactSensitiveData(input string) string {
	if input == "" || !mayContainSecret(input) {
		return input
	}

	for _, pattern := range SensitiveDataPatterns {
		input = pattern.ReplaceAllString(input, "$1[REDACTED]")
	}

	return input
}

// mayContainSecret is a cheap prefilter to keep the regexes off the hot path
func mayContainSecret(s string) bool {
	lower := strings.ToLower(s)
	for _, kw := range []string{"bearer", "api", "access", "auth", "token", "secret", "pass"} {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}
