package models

import (
	"errors"
	"math"
)

// Promo represents one discounted offer extracted from a newsletter body.
// The raw fields come straight from the mail; the enrichment fields are
// filled in later from the product page and the classifier, and must never
// feed back into identity keys derived from the raw fields.
type Promo struct {
	RawDescription  string  `json:"raw_description"`
	PriceNew        float64 `json:"price_new"`
	PriceOld        float64 `json:"price_old"`
	DiscountPercent int     `json:"discount_percent"`
	CouponCode      string  `json:"coupon_code,omitempty"`
	Link            string  `json:"link,omitempty"`

	// Enrichment fields, attached after the pre-key stage.
	Canonical       string         `json:"canonical,omitempty"`
	Title           string         `json:"title,omitempty"`
	PageDescription string         `json:"page_description,omitempty"`
	Image           string         `json:"image,omitempty"`
	Classification  Classification `json:"classification,omitempty"`
}

// Validate checks that the raw promo fields are consistent
func (p *Promo) Validate() error {
	if p.RawDescription == "" {
		return errors.New("raw description must not be empty")
	}
	if math.IsNaN(p.PriceNew) || math.IsInf(p.PriceNew, 0) {
		return errors.New("new price must be finite")
	}
	if math.IsNaN(p.PriceOld) || math.IsInf(p.PriceOld, 0) {
		return errors.New("old price must be finite")
	}
	if p.PriceOld <= p.PriceNew {
		return errors.New("old price must be greater than new price")
	}
	if p.DiscountPercent < 0 || p.DiscountPercent > 100 {
		return errors.New("discount percent must be between 0 and 100")
	}
	return nil
}

// Classification is the structured result of the product classifier.
type Classification struct {
	Usage   string `json:"usage"`
	Type    string `json:"type"`
	Summary string `json:"summary"`
}
