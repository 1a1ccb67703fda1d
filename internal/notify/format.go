package notify

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// DefaultMaxBodyLength bounds the formatted notice body, in runes.
const DefaultMaxBodyLength = 200

const ellipsis = "..."

var (
	markdownLink     = regexp.MustCompile(`\[([^\]]*)\]\([^)]*\)`)
	markdownHeading  = regexp.MustCompile(`(?m)^[ \t]{0,3}#{1,6}[ \t]*`)
	markdownEmphasis = regexp.MustCompile("[*_`~]+")
	newlines         = regexp.MustCompile(`\s*\n\s*`)
	spaces           = regexp.MustCompile(`[ \t]{2,}`)
)

// FormatContent turns prompt markdown into a single plain-text line of at
// most maxLen runes. Links keep their label. Truncated text ends in "...".
func FormatContent(content string, maxLen int) string {
	if maxLen <= 0 {
		maxLen = DefaultMaxBodyLength
	}
	s := markdownLink.ReplaceAllString(content, "$1")
	s = markdownHeading.ReplaceAllString(s, "")
	s = markdownEmphasis.ReplaceAllString(s, "")
	s = newlines.ReplaceAllString(strings.TrimSpace(s), " ")
	s = spaces.ReplaceAllString(s, " ")

	if utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	keep := maxLen - len(ellipsis)
	if keep < 0 {
		keep = 0
	}
	runes := []rune(s)
	return strings.TrimRight(string(runes[:keep]), " ") + ellipsis
}
