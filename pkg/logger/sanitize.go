package logger

import (
	"net/url"
	"strings"
)

const redacted = "[REDACTED]"

// Query parameters whose values are credentials or personal data
var sensitiveParams = []string{"password", "token", "secret", "api_key", "apikey", "email", "auth", "csrf", "session"}

// MaskEmail keeps the first character of the local part and the TLD
// ("jane@example.com" -> "j***@*******.com")
func MaskEmail(email string) string {
	at := strings.LastIndexByte(email, '@')
	if at <= 0 || at == len(email)-1 {
		return "[invalid-email]"
	}
	local, domain := email[:at], email[at+1:]

	masked := local[:1] + strings.Repeat("*", len(local)-1)

	if dot := strings.LastIndexByte(domain, '.'); dot > 0 {
		domain = strings.Map(func(r rune) rune {
			if r == '.' {
				return r
			}
			return '*'
		}, domain[:dot]) + domain[dot:]
	}

	return masked + "@" + domain
}

// TokenPrefix returns the first 8 characters of a secret token so log lines
// can be correlated without leaking a usable credential
func TokenPrefix(token string) string {
	if len(token) <= 8 {
		return redacted
	}
	return token[:8] + "..."
}

// RedactQuery replaces the values of sensitive parameters in rawQuery and
// keeps everything else in its original order
func RedactQuery(rawQuery string) string {
	if rawQuery == "" {
		return ""
	}

	parts := strings.Split(rawQuery, "&")
	for i, part := range parts {
		key, _, _ := strings.Cut(part, "=")
		name, err := url.QueryUnescape(key)
		if err != nil {
			// Cannot tell what it is
			parts[i] = redacted
			continue
		}
		if isSensitiveParam(name) {
			parts[i] = key + "=" + redacted
		}
	}
	return strings.Join(parts, "&")
}

func isSensitiveParam(name string) bool {
	name = strings.ToLower(name)
	for _, param := range sensitiveParams {
		if strings.Contains(name, param) {
			return true
		}
	}
	return false
}
