package gateway

import (
	"html"

	"github.com/microcosm-cc/bluemonday"
)

// maxSanitizePasses bounds how many layers of entity-escaped markup are peeled
const maxSanitizePasses = 8

// Sanitizer strips every HTML element and attribute from string values. Text
// content is kept as plain text except inside script and style elements,
// which is dropped entirely.
type Sanitizer struct {
	policy *bluemonday.Policy
}

// NewSanitizer creates a sanitizer backed by the bluemonday strict policy
func NewSanitizer() *Sanitizer {
	return &Sanitizer{policy: bluemonday.StrictPolicy()}
}

// String sanitizes a single string. bluemonday escapes the text it keeps, so
// the result is unescaped again; markup that only appears after unescaping
// ("&lt;script&gt;") goes through another pass until nothing changes.
func (s *Sanitizer) String(in string) string {
	out := in
	for i := 0; i < maxSanitizePasses; i++ {
		next := html.UnescapeString(s.policy.Sanitize(out))
		if next == out {
			return next
		}
		out = next
	}
	// Still changing: keep bluemonday's escaped form
	return s.policy.Sanitize(out)
}

// Value sanitizes every string leaf of v
func (s *Sanitizer) Value(v Value) Value {
	return v.MapStrings(s.String)
}
