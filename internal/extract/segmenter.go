package extract

import (
	"html"
	"regexp"
	"strings"
)

// Marketing mail HTML is routinely malformed, so fragments are carved out
// with a permissive tag-level split instead of a DOM parse. A fragment never
// crosses a block-level tag boundary and fragment order follows document
// order; the coupon lookahead and the nearby-link search both rely on that.
var (
	styleRe    = regexp.MustCompile(`(?is)<style.*?</style>`)
	scriptRe   = regexp.MustCompile(`(?is)<script.*?</script>`)
	blockTagRe = regexp.MustCompile(`(?i)</?(?:p|div|li|tr|td|table|br|center)[^>]*>`)

	brRe         = regexp.MustCompile(`(?i)<br\s*/?>`)
	pCloseRe     = regexp.MustCompile(`(?i)</p>`)
	anyTagRe     = regexp.MustCompile(`<[^>]+>`)
	trailingWSRe = regexp.MustCompile(`[ \t]+\n`)
	multiSpaceRe = regexp.MustCompile(`[ \t]{2,}`)
	multiNLRe    = regexp.MustCompile(`\n{3,}`)
)

// Segment splits a raw HTML or plain-text blob into an ordered sequence of
// non-empty trimmed fragments, cut at block-level tag boundaries. Style and
// script content is removed before splitting. A blob with no recognizable
// markup yields zero or one fragment, never an error.
func Segment(body string) []string {
	cleaned := scriptRe.ReplaceAllString(styleRe.ReplaceAllString(body, ""), "")
	parts := blockTagRe.Split(cleaned, -1)

	fragments := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part != "" {
			fragments = append(fragments, part)
		}
	}
	return fragments
}

// CleanText renders a fragment's HTML to human-readable text: line breaks
// and paragraph closers become newlines, remaining tags become spaces,
// entities are decoded, and runs of whitespace are collapsed.
func CleanText(fragment string) string {
	if fragment == "" {
		return ""
	}
	s := brRe.ReplaceAllString(fragment, "\n")
	s = pCloseRe.ReplaceAllString(s, "\n")
	s = styleRe.ReplaceAllString(s, "")
	s = scriptRe.ReplaceAllString(s, "")
	s = anyTagRe.ReplaceAllString(s, " ")
	s = html.UnescapeString(s)
	s = strings.ReplaceAll(s, "\u00a0", " ")
	s = strings.ReplaceAll(s, "\r", "")
	s = trailingWSRe.ReplaceAllString(s, "\n")
	s = multiSpaceRe.ReplaceAllString(s, " ")
	s = multiNLRe.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}
