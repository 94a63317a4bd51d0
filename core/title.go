package core

import (
	"strings"
	"unicode"
)

// MaxTitleLength is the longest generated title, ellipsis excluded, in runes.
const MaxTitleLength = 80

// Ellipsis marks a generated title that was cut short.
const Ellipsis = "..."

// GenerateTitle derives a title from the first non-blank line of normalized text.
// Lines longer than MaxTitleLength are cut at the last word boundary and marked
// with Ellipsis.
func GenerateTitle(text string) string {
	line := ""
	for _, l := range strings.Split(text, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			line = l
			break
		}
	}
	line = strings.Join(strings.Fields(line), " ")

	runes := []rune(line)
	if len(runes) <= MaxTitleLength {
		return line
	}

	cut := MaxTitleLength
	for i := MaxTitleLength; i > MaxTitleLength/2; i-- {
		if unicode.IsSpace(runes[i]) {
			cut = i
			break
		}
	}
	return strings.TrimRightFunc(string(runes[:cut]), func(r rune) bool {
		return unicode.IsSpace(r) || unicode.IsPunct(r)
	}) + Ellipsis
}
