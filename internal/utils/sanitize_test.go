package utils

import (
	"strings"
	"testing"
)

func TestSanitizeText(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		maxLen   int
		expected string
	}{
		{"clean input", "Model output drifted", 100, "Model output drifted"},
		{"empty input", "", 100, ""},
		{"control characters", "Hello\x00World\x07", 100, "HelloWorld"},
		{"keeps whitespace", "a\tb\nc", 100, "a\tb\nc"},
		{"html escaped", `<script>"x"</script>`, 100, "&lt;script&gt;&#34;x&#34;&lt;/script&gt;"},
		{"truncated", "abcdefgh", 4, "abcd"},
		{"truncates runes", "żółwie", 3, "żół"},
		{"no limit", "abcdefgh", 0, "abcdefgh"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SanitizeText(tt.input, tt.maxLen); got != tt.expected {
				t.Errorf("SanitizeText(%q, %d) = %q; want %q", tt.input, tt.maxLen, got, tt.expected)
			}
		})
	}
}

func TestSanitizeKey(t *testing.T) {
	if got := SanitizeKey("risk_id", 128); got != "risk_id" {
		t.Errorf("expected key unchanged, got %q", got)
	}
	long := strings.Repeat("k", 200)
	if got := SanitizeKey(long, 128); len(got) != 128 {
		t.Errorf("expected 128 bytes, got %d", len(got))
	}
	if got := SanitizeKey("ééé", 5); got != "éé" {
		t.Errorf("expected rune boundary cut, got %q", got)
	}
}

func TestEscapeForLogging(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		maxLen   int
		expected string
	}{
		{"simple", "hello", 10, "hello"},
		{"with newline", "hello\nworld", 20, "hello\\nworld"},
		{"with tabs", "hello\tworld", 20, "hello\\tworld"},
		{"truncated", "hello world this is long", 10, "hello worl..."},
		{"all escapes", "a\nb\rc\td", 20, "a\\nb\\rc\\td"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := EscapeForLogging(tt.text, tt.maxLen)
			if result != tt.expected {
				t.Errorf("EscapeForLogging(%q, %d) = %q; want %q",
					tt.text, tt.maxLen, result, tt.expected)
			}
		})
	}
}
