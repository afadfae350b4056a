// Package extract turns loosely structured newsletter HTML into discounted
// price records.
//
// The body is split into ordered block-level fragments, each fragment is
// tried against the price-line pattern, and a successful match is combined
// with metadata borrowed from neighboring fragments: the most recently seen
// coupon code ("sticky" semantics, codes apply until superseded, with a
// bounded forward lookahead for codes stated after their price line) and
// the nearest plausible storefront URL.
//
// Extraction fails soft throughout: malformed price lines and suspect
// coupon codes are logged and skipped, and a message that yields zero
// candidates is a valid terminal state, not an error.
package extract

import (
	"github.com/ldelaire/dealsniper/internal/logger"
	"github.com/ldelaire/dealsniper/internal/models"
)

// Options configures an Extractor.
type Options struct {
	// Lookahead is how many fragments past a price line are scanned for a
	// coupon code when no sticky code is active.
	Lookahead int
	// MaxItems caps the number of candidates per message, as a safety net.
	MaxItems int
	// MaxDiscountPercent is the upper clamp for derived discounts.
	MaxDiscountPercent int
	// LinkHostPatterns are the storefront/redirect host patterns accepted
	// by the link search.
	LinkHostPatterns []string
}

// Extractor orchestrates segmentation, price matching, coupon propagation
// and link association for one message body.
type Extractor struct {
	opts  Options
	links *LinkFinder
}

// New creates an Extractor.
func New(opts Options) (*Extractor, error) {
	if opts.Lookahead < 0 {
		opts.Lookahead = 0
	}
	if opts.MaxItems <= 0 {
		opts.MaxItems = 9999
	}
	if opts.MaxDiscountPercent <= 0 {
		opts.MaxDiscountPercent = 95
	}

	links, err := NewLinkFinder(opts.LinkHostPatterns)
	if err != nil {
		return nil, err
	}
	return &Extractor{opts: opts, links: links}, nil
}

// Extract walks the message's fragments in order and returns the promo
// candidates it finds, in document order.
func (e *Extractor) Extract(body string) []models.Promo {
	fragments := Segment(body)
	logger.Debug("extract: %d fragments from %d chars", len(fragments), len(body))

	var promos []models.Promo
	lastCode := ""

	for i, fragment := range fragments {
		if len(promos) >= e.opts.MaxItems {
			break
		}
		text := CleanText(fragment)

		// Sticky coupon state: a stated code applies to everything that
		// follows until a new one is stated.
		if cand, ok := FindCouponCandidate(text); ok {
			if ValidCouponCode(cand) {
				lastCode = cand
				logger.Debug("extract: coupon code %q seen at fragment %d", cand, i)
			} else {
				logger.Debug("extract: suspect coupon code %q ignored at fragment %d", cand, i)
			}
		}

		match, ok := MatchPriceLine(text)
		if !ok {
			if priceLineRe.MatchString(text) {
				logger.Warn("extract: rejected price line at fragment %d: %q", i, truncate(text, 120))
			}
			continue
		}

		code := lastCode
		if code == "" {
			if ahead, ok := e.scanCodeAhead(fragments, i); ok {
				code = ahead
				lastCode = ahead
			}
		}

		promo := models.Promo{
			RawDescription:  match.Description,
			PriceNew:        match.PriceNew,
			PriceOld:        match.PriceOld,
			DiscountPercent: DiscountPercent(match.PriceNew, match.PriceOld, e.opts.MaxDiscountPercent),
			CouponCode:      code,
			Link:            e.links.Nearby(fragments, i),
		}
		if err := promo.Validate(); err != nil {
			logger.Warn("extract: dropping invalid candidate at fragment %d: %v", i, err)
			continue
		}
		promos = append(promos, promo)
	}

	logger.Debug("extract: %d candidates", len(promos))
	return promos
}

// scanCodeAhead searches the bounded lookahead window after fromIdx for a
// valid coupon code.
func (e *Extractor) scanCodeAhead(fragments []string, fromIdx int) (string, bool) {
	end := fromIdx + e.opts.Lookahead
	if end > len(fragments)-1 {
		end = len(fragments) - 1
	}
	for j := fromIdx + 1; j <= end; j++ {
		if cand, ok := FindCouponCandidate(CleanText(fragments[j])); ok && ValidCouponCode(cand) {
			logger.Debug("extract: coupon code %q found in lookahead at fragment %d", cand, j)
			return cand, true
		}
	}
	return "", false
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}
