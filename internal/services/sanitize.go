package services

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var strictPolicy = bluemonday.StrictPolicy()

// sanitizeText strips markup from free-text input. The strict policy removes tags and
// escapes what remains; unescaping afterwards keeps plain punctuation intact, and any
// angle brackets that survive are dropped outright.
func sanitizeText(value string) string {
	cleaned := html.UnescapeString(strictPolicy.Sanitize(value))
	cleaned = strings.NewReplacer("<", "", ">", "").Replace(cleaned)
	return strings.TrimSpace(cleaned)
}

// alphanumeric reduces a value to its letters and digits.
func alphanumeric(value string) string {
	var b strings.Builder
	for _, r := range value {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// digitsOnly reduces a value to its decimal digits.
func digitsOnly(value string) string {
	var b strings.Builder
	for _, r := range value {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
