package models

import (
	"errors"
	"time"
)

// Deal is the fully enriched record persisted to the deal store and sent to
// notification channels. ID is the stable identity chosen by the pipeline
// (canonical URL when available, content key otherwise); Token is an opaque
// random access token for the presentation layer.
type Deal struct {
	ID              string     `json:"id"`
	Title           string     `json:"title"`
	URL             string     `json:"url"`
	PriceCurrent    float64    `json:"price_current"`
	PriceOriginal   float64    `json:"price_original"`
	DiscountPercent int        `json:"prct_discount"`
	CouponCode      string     `json:"coupon_code,omitempty"`
	Category        string     `json:"category,omitempty"`
	ItemType        string     `json:"item_type,omitempty"`
	Description     string     `json:"description,omitempty"`
	Summary         string     `json:"summary,omitempty"`
	Image           string     `json:"image,omitempty"`
	Token           string     `json:"token"`
	Available       bool       `json:"available"`
	AvailableSince  *time.Time `json:"available_since,omitempty"`
	AvailableUntil  *time.Time `json:"available_until,omitempty"`
}

// Validate checks that all deal fields required for persistence are present
func (d *Deal) Validate() error {
	if d.ID == "" {
		return errors.New("deal ID must not be empty")
	}
	if d.Title == "" {
		return errors.New("deal title must not be empty")
	}
	if d.Token == "" {
		return errors.New("deal token must not be empty")
	}
	if d.PriceCurrent <= 0 {
		return errors.New("current price must be positive")
	}
	if d.PriceOriginal <= d.PriceCurrent {
		return errors.New("original price must be greater than current price")
	}
	if d.DiscountPercent < 0 || d.DiscountPercent > 100 {
		return errors.New("discount percent must be between 0 and 100")
	}
	return nil
}
