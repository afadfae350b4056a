package extract

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

// priceLineRe matches "<description> / <new price> € <was-marker> <old price> €".
// The "was" markers cover the French, English and German phrasings used by
// the newsletters this pipeline ingests.
var priceLineRe = regexp.MustCompile(`(?i)(.+?)\s*/\s*([\d.,\s]+)\s*€\s*(?:instead of|au lieu de|statt|UVP)\s*([\d.,\s]+)\s*€`)

// PriceMatch is a successfully parsed price line.
type PriceMatch struct {
	Description string
	PriceNew    float64
	PriceOld    float64
}

// MatchPriceLine attempts the price-line pattern against a fragment's
// rendered text. The match is rejected when either price fails to parse or
// when the old price is not strictly greater than the new one; marketing
// copy that superficially matches but encodes a non-discount must not
// produce a candidate.
func MatchPriceLine(text string) (PriceMatch, bool) {
	m := priceLineRe.FindStringSubmatch(text)
	if m == nil {
		return PriceMatch{}, false
	}

	priceNew, okNew := parseAmount(m[2])
	priceOld, okOld := parseAmount(m[3])
	if !okNew || !okOld {
		return PriceMatch{}, false
	}
	if priceOld <= priceNew {
		return PriceMatch{}, false
	}

	return PriceMatch{
		Description: strings.TrimSpace(m[1]),
		PriceNew:    priceNew,
		PriceOld:    priceOld,
	}, true
}

// parseAmount parses a locale-tolerant price: whitespace thousands
// separators are stripped and both "," and "." are accepted as the decimal
// separator.
func parseAmount(s string) (float64, bool) {
	cleaned := strings.Map(func(r rune) rune {
		if r == ' ' || r == '\t' || r == '\u00a0' {
			return -1
		}
		return r
	}, s)
	cleaned = strings.ReplaceAll(cleaned, ",", ".")
	if cleaned == "" {
		return 0, false
	}

	v, err := strconv.ParseFloat(cleaned, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// DiscountPercent derives the rounded discount percentage from a validated
// price pair, clamped to [0, maxPercent]. The upper clamp defends against
// clearly bogus discounts from mis-parsed fragments.
func DiscountPercent(priceNew, priceOld float64, maxPercent int) int {
	pct := int(math.Round((1 - priceNew/priceOld) * 100))
	if pct < 0 {
		pct = 0
	}
	if pct > maxPercent {
		pct = maxPercent
	}
	return pct
}
