package utils

import (
	"html"
	"regexp"
	"strings"
)

// Control characters (except common whitespace)
var controlCharPattern = regexp.MustCompile(`[\x00-\x08\x0B\x0C\x0E-\x1F\x7F]`)

// SanitizeText truncates value to maxLen runes, strips control characters
// and HTML-escapes the rest
func SanitizeText(value string, maxLen int) string {
	if maxLen > 0 {
		if r := []rune(value); len(r) > maxLen {
			value = string(r[:maxLen])
		}
	}
	value = controlCharPattern.ReplaceAllString(value, "")
	return html.EscapeString(value)
}

// SanitizeKey bounds a map key to maxLen bytes without splitting a rune
func SanitizeKey(key string, maxLen int) string {
	if len(key) <= maxLen {
		return key
	}
	r := []rune(key)
	for len(string(r)) > maxLen {
		r = r[:len(r)-1]
	}
	return string(r)
}

// EscapeForLogging escapes sensitive content for safe logging
func EscapeForLogging(text string, maxLen int) string {
	// Truncate
	if len(text) > maxLen {
		text = text[:maxLen] + "..."
	}

	// Remove newlines for single-line logging
	text = strings.ReplaceAll(text, "\n", "\\n")
	text = strings.ReplaceAll(text, "\r", "\\r")
	text = strings.ReplaceAll(text, "\t", "\\t")

	return text
}
