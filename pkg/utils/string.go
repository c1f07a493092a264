package utils

import "strings"

const ellipsis = "..."

// Truncate shortens s to at most maxLen runes, ending in "..." when cut.
func Truncate(s string, maxLen int) string {
	if maxLen <= 0 {
		return ""
	}
	n := 0
	for i := range s {
		if n == maxLen {
			if maxLen <= len(ellipsis) {
				return s[:i]
			}
			runes := []rune(s[:i])
			return string(runes[:maxLen-len(ellipsis)]) + ellipsis
		}
		n++
	}
	return s
}

// Preview renders chat text as a single line for log fields.
func Preview(s string, maxLen int) string {
	return Truncate(strings.Join(strings.Fields(s), " "), maxLen)
}
