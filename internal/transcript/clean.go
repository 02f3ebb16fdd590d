package transcript

import (
	"regexp"
	"strings"
)

var (
	noiseRe = regexp.MustCompile(`(?is)<noise>.*?</noise>`)
	tagRe   = regexp.MustCompile(`<[^>]*>`)
	spaceRe = regexp.MustCompile(`\s+`)
)

// Clean prepares stored transcript text for display. It removes noise markers
// and any other inline tags, then collapses whitespace. Stored text is never
// rewritten.
func Clean(text string) string {
	text = noiseRe.ReplaceAllString(text, "")
	text = tagRe.ReplaceAllString(text, "")
	return strings.TrimSpace(spaceRe.ReplaceAllString(text, " "))
}

// Cleaned returns items with their text passed through Clean.
func Cleaned(items []Item) []Item {
	out := make([]Item, len(items))
	for i, it := range items {
		it.Text = Clean(it.Text)
		out[i] = it
	}
	return out
}
