package enrich

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// titleStopwords are generic hardware/colour/size terms that carry no
// product identity and would inflate the match score.
var titleStopwords = map[string]bool{
	"black": true, "grey": true, "size": true, "disc": true, "boost": true,
	"shimano": true, "sram": true, "fork": true, "wheel": true, "rear": true,
	"front": true, "pair": true, "set": true, "mm": true, "inch": true,
	"post": true, "mount": true, "tapered": true, "factory": true,
	"performance": true, "elite": true, "pro": true, "pos": true, "adj": true,
	"pm": true, "fm": true, "silver": true, "orange": true, "brown": true,
	"blue": true, "green": true, "red": true,
}

// foldDiacritics lowers a string to its unaccented form.
func foldDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// Tokens tokenizes a description or page title: lowercased, diacritics
// stripped, alphanumeric tokens of length >= 3, stop-listed terms removed.
func Tokens(s string) []string {
	folded := foldDiacritics(strings.ToLower(s))

	var b strings.Builder
	for _, r := range folded {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteByte(' ')
		}
	}

	var tokens []string
	for _, tok := range strings.Fields(b.String()) {
		if len(tok) >= 3 && !titleStopwords[tok] {
			tokens = append(tokens, tok)
		}
	}
	return tokens
}

// TitleMatchScore compares a mail-derived description against a fetched
// page title: |intersection| / min(|tokensA|, |tokensB|) over the token
// sets, 0 when either set is empty. This is a safety gate for image
// attachment, not a ranking signal.
func TitleMatchScore(mailDesc, pageTitle string) float64 {
	a := make(map[string]bool)
	for _, tok := range Tokens(mailDesc) {
		a[tok] = true
	}
	b := make(map[string]bool)
	for _, tok := range Tokens(pageTitle) {
		b[tok] = true
	}
	if len(a) == 0 || len(b) == 0 {
		return 0
	}

	inter := 0
	for tok := range a {
		if b[tok] {
			inter++
		}
	}

	min := len(a)
	if len(b) < min {
		min = len(b)
	}
	return float64(inter) / float64(min)
}
