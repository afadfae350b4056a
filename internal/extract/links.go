package extract

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	hrefRe    = regexp.MustCompile(`(?i)<a[^>]+href=["']([^"']+)["'][^>]*>`)
	bareURLRe = regexp.MustCompile(`(?i)https?://[^\s"'<)]+`)
)

// LinkFinder locates plausible outbound product URLs near a price fragment.
// Only URLs whose text matches one of the configured storefront/redirect
// host patterns are considered.
type LinkFinder struct {
	hostRe *regexp.Regexp
}

// NewLinkFinder compiles the host patterns into a single matcher.
func NewLinkFinder(patterns []string) (*LinkFinder, error) {
	if len(patterns) == 0 {
		return nil, fmt.Errorf("at least one link host pattern is required")
	}
	re, err := regexp.Compile(`(?i)(?:` + strings.Join(patterns, "|") + `)`)
	if err != nil {
		return nil, fmt.Errorf("invalid link host pattern: %w", err)
	}
	return &LinkFinder{hostRe: re}, nil
}

// cleanURL strips trailing punctuation that mail clients and copywriters
// glue onto URLs.
func cleanURL(u string) string {
	return strings.TrimRight(u, ")].,")
}

// fromFragment collects matching URLs from one fragment: anchor hrefs
// first, then bare URLs in the rendered text as a fallback. Order follows
// appearance order.
func (f *LinkFinder) fromFragment(fragment string) []string {
	var urls []string
	seen := make(map[string]bool)

	for _, m := range hrefRe.FindAllStringSubmatch(fragment, -1) {
		u := cleanURL(m[1])
		if f.hostRe.MatchString(u) && !seen[u] {
			seen[u] = true
			urls = append(urls, u)
		}
	}
	if len(urls) > 0 {
		return urls
	}

	for _, m := range bareURLRe.FindAllString(CleanText(fragment), -1) {
		u := cleanURL(m)
		if f.hostRe.MatchString(u) && !seen[u] {
			seen[u] = true
			urls = append(urls, u)
		}
	}
	return urls
}

// Nearby returns the first matching URL for the fragment at idx, preferring
// the fragment itself, then the previous neighbor, then the next. An empty
// string means no plausible link was found.
func (f *LinkFinder) Nearby(fragments []string, idx int) string {
	urls := f.fromFragment(fragments[idx])
	if len(urls) == 0 && idx > 0 {
		urls = f.fromFragment(fragments[idx-1])
	}
	if len(urls) == 0 && idx+1 < len(fragments) {
		urls = f.fromFragment(fragments[idx+1])
	}
	if len(urls) == 0 {
		return ""
	}
	return urls[0]
}
