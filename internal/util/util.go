// Package util holds small text helpers shared by logging and the CLI.
package util

import (
	"strings"
	"unicode"
)

// TruncateString shortens s to at most maxLen runes, ending in "..." when cut.
// With preserveWords the cut moves back to the last whitespace when there is one.
func TruncateString(s string, maxLen int, preserveWords bool) string {
	if maxLen <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return "..."[:maxLen]
	}
	cut := maxLen - 3
	if preserveWords {
		if idx := lastSpaceBefore(runes, cut); idx > 0 {
			cut = idx
		}
	}
	return string(runes[:cut]) + "..."
}

// Preview collapses runs of whitespace and truncates at a word boundary.
// It is meant for one-line log fields and table cells.
func Preview(s string, maxLen int) string {
	return TruncateString(strings.Join(strings.Fields(s), " "), maxLen, true)
}

func lastSpaceBefore(runes []rune, pos int) int {
	if pos > len(runes) {
		pos = len(runes)
	}
	for i := pos - 1; i >= 0; i-- {
		if unicode.IsSpace(runes[i]) {
			return i
		}
	}
	return -1
}
