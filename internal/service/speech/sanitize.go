package speech

import (
	"regexp"
	"strings"
)

var (
	emphasisMarks = regexp.MustCompile("[*_~`]")
	unspokenMarks = regexp.MustCompile(`[#@$%^&+=<>\[\]{}|\\]`)
	whitespaceRun = regexp.MustCompile(`\s+`)
)

// Sanitize strips markdown emphasis and symbols that should not be pronounced,
// then collapses whitespace.
func Sanitize(text string) string {
	text = emphasisMarks.ReplaceAllString(text, "")
	text = unspokenMarks.ReplaceAllString(text, "")
	text = whitespaceRun.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}
