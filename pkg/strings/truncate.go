// Package strings holds text helpers for output that has to fit provider or
// terminal limits.
package strings

import (
	"strings"
)

// StatusDescriptionMaxLen is the longest commit status description every
// supported provider accepts. GitHub rejects anything above 140 characters.
const StatusDescriptionMaxLen = 140

// minTruncateLen leaves room for one character plus "...".
const minTruncateLen = 4

// Truncate collapses s onto one line and shortens it to at most maxLen
// runes, ending in "..." when anything was cut. maxLen below 4 is treated
// as 4.
func Truncate(s string, maxLen int) string {
	if maxLen < minTruncateLen {
		maxLen = minTruncateLen
	}

	s = strings.Join(strings.Fields(s), " ")

	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen-3]) + "..."
}

// StatusDescription formats a commit status description that fits
// StatusDescriptionMaxLen.
func StatusDescription(summary string, err error) string {
	if err == nil {
		return Truncate(summary, StatusDescriptionMaxLen)
	}
	return Truncate(summary+": "+err.Error(), StatusDescriptionMaxLen)
}
