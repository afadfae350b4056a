package extract

import (
	"regexp"
	"strings"
)

var (
	// codeIntroRe matches the phrasings newsletters use to introduce a
	// coupon code, in French and English, followed by the code itself.
	codeIntroRe = regexp.MustCompile(`(?i)(?:veuillez\s+mettre\s+le\s+code|please\s+enter\s+(?:the\s+)?code|utilisez\s+le\s+code|use\s+code|code)\s*:\s*([A-Za-z0-9][A-Za-z0-9_.-]{2,})`)

	// Exclusion patterns, applied to the candidate substring itself: long
	// purely numeric strings are order/tracking numbers, dotted
	// multi-segment tokens are version numbers or SKUs.
	numericCodeRe = regexp.MustCompile(`^\d{6,}$`)
	dottedCodeRe  = regexp.MustCompile(`^[A-Z0-9_-]+(?:\.[A-Z0-9_-]+){2,}$`)
)

// FindCouponCandidate looks for a coupon-introduction phrase in a fragment's
// rendered text and returns the candidate code, uppercased with trailing
// punctuation trimmed. The candidate still has to pass ValidCouponCode.
func FindCouponCandidate(text string) (string, bool) {
	m := codeIntroRe.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	code := strings.ToUpper(strings.TrimRight(strings.TrimSpace(m[1]), "."))
	if code == "" {
		return "", false
	}
	return code, true
}

// ValidCouponCode reports whether a candidate code passes the false-positive
// exclusion rules.
func ValidCouponCode(code string) bool {
	return !numericCodeRe.MatchString(code) && !dottedCodeRe.MatchString(code)
}
