package utils

import (
	"fmt"
	"math"
	"strings"
)

// TruncateText flattens text to one line and cuts it to maxLen runes,
// marking the cut with "..."
func TruncateText(text string, maxLen int) string {
	text = strings.TrimSpace(strings.ReplaceAll(text, "\n", " "))

	r := []rune(text)
	if len(r) <= maxLen {
		return text
	}
	if maxLen <= 3 {
		return "..."
	}
	return string(r[:maxLen-3]) + "..."
}

// FormatDays formats a fractional day count as whole days and hours
// Examples: 1.5 -> "1d 12h", -0.25 -> "0d 6h"
func FormatDays(days float64) string {
	hours := int(math.Round(math.Abs(days) * 24))
	return fmt.Sprintf("%dd %dh", hours/24, hours%24)
}
