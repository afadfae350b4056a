// Package dedup derives stable identity keys for promo candidates and keeps
// the persisted ledger of previously emitted keys.
//
// A candidate has two key sets over its lifecycle. Pre-enrichment keys
// depend only on the mail content (link variants plus a content fallback),
// so they are available before any external lookup and survive pipeline
// crashes mid-batch. Post-enrichment keys add the canonical URL resolved
// from the product page. Post keys are built on top of pre keys, so the
// post set is always a superset: a candidate first filtered as unseen under
// its pre keys can later register itself under additional keys without
// orphaning the original identity.
//
// Any single key overlap with the ledger means "same promotion". Duplicate
// suppression is deliberately aggressive while recording is additive.
package dedup

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/ldelaire/dealsniper/internal/models"
)

// Kind tags the provenance of a key value.
type Kind string

const (
	KindRawLink        Kind = "rawLink"
	KindCleanLink      Kind = "cleanLink"
	KindNormalizedLink Kind = "normalizedLink"
	KindContent        Kind = "content"
	KindCanonical      Kind = "canonical"
	KindCanonicalAbs   Kind = "canonicalAbs"
)

// Key is one identity fingerprint of a candidate.
type Key struct {
	Kind  Kind
	Value string
}

// Values returns the key values in order.
func Values(keys []Key) []string {
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = k.Value
	}
	return out
}

// contentKeyMaxLen bounds the description prefix used in content keys.
const contentKeyMaxLen = 160

// Generator derives dedup keys for promo candidates.
type Generator struct {
	storeHostRe    *regexp.Regexp
	trackingParams []string
	locale         string
	baseOrigin     string
}

// NewGenerator creates a Generator. storeHostPatterns identify links that
// can be dry-normalized without a fetch; trackingParams are stripped during
// normalization; locale is the default path segment inserted into storefront
// URLs; baseOrigin absolutizes relative canonical URLs.
func NewGenerator(storeHostPatterns, trackingParams []string, locale, baseOrigin string) (*Generator, error) {
	if len(storeHostPatterns) == 0 {
		return nil, fmt.Errorf("at least one store host pattern is required")
	}
	re, err := regexp.Compile(`(?i)(?:` + strings.Join(storeHostPatterns, "|") + `)`)
	if err != nil {
		return nil, fmt.Errorf("invalid store host pattern: %w", err)
	}
	return &Generator{
		storeHostRe:    re,
		trackingParams: trackingParams,
		locale:         locale,
		baseOrigin:     baseOrigin,
	}, nil
}

// IsStoreLink reports whether the URL points at a configured storefront
// host and can therefore be dry-normalized.
func (g *Generator) IsStoreLink(raw string) bool {
	return raw != "" && g.storeHostRe.MatchString(raw)
}

// keyset accumulates keys while deduplicating by value.
type keyset struct {
	keys []Key
	seen map[string]bool
}

func newKeyset() *keyset {
	return &keyset{seen: make(map[string]bool)}
}

func (ks *keyset) add(kind Kind, value string) {
	value = strings.TrimSpace(value)
	if value == "" || ks.seen[value] {
		return
	}
	ks.seen[value] = true
	ks.keys = append(ks.keys, Key{Kind: kind, Value: value})
}

// PreKeys derives the identity keys that depend only on the mail content.
func (g *Generator) PreKeys(p *models.Promo) []Key {
	ks := newKeyset()
	g.addPreKeys(ks, p)
	return ks.keys
}

// PostKeys derives the full key set after enrichment: the pre keys plus the
// canonical URL variants. The result is always a superset of PreKeys.
func (g *Generator) PostKeys(p *models.Promo) []Key {
	ks := newKeyset()
	g.addPreKeys(ks, p)

	canonical := strings.ToLower(strings.TrimSpace(p.Canonical))
	ks.add(KindCanonical, canonical)
	if canonical != "" {
		ks.add(KindCanonicalAbs, strings.ToLower(Absolutize(canonical, g.baseOrigin)))
	}
	return ks.keys
}

func (g *Generator) addPreKeys(ks *keyset, p *models.Promo) {
	raw := strings.ToLower(strings.TrimSpace(p.Link))
	ks.add(KindRawLink, raw)
	ks.add(KindCleanLink, strings.TrimRight(raw, ")].,"))

	if raw != "" && g.storeHostRe.MatchString(raw) {
		if norm, ok := g.NormalizeStoreURL(raw); ok {
			ks.add(KindNormalizedLink, strings.ToLower(strings.TrimSpace(norm)))
		}
	}

	if content, ok := ContentKey(p); ok {
		ks.add(KindContent, content)
	}
}

// ContentKey builds the fallback identity for candidates with no usable
// link: the first 160 characters of the lowercased description plus both
// prices formatted to two decimals, joined by "|".
func ContentKey(p *models.Promo) (string, bool) {
	desc := strings.ToLower(strings.TrimSpace(p.RawDescription))
	if runes := []rune(desc); len(runes) > contentKeyMaxLen {
		desc = string(runes[:contentKeyMaxLen])
	}

	var parts []string
	if desc != "" {
		parts = append(parts, desc)
	}
	parts = append(parts, fmt.Sprintf("%.2f", p.PriceNew), fmt.Sprintf("%.2f", p.PriceOld))

	key := strings.Join(parts, "|")
	if key == "" {
		return "", false
	}
	return key, true
}

var localePathRe = regexp.MustCompile(`(?i)^/(fr|en|de)/`)

// NormalizeStoreURL performs a best-effort "dry" normalization of a
// storefront URL without fetching it: redirect-service links are returned
// unchanged (they cannot be resolved without a fetch), known tracking query
// parameters are stripped, and the default locale path segment is inserted
// when missing. Returns false when the URL does not parse.
func (g *Generator) NormalizeStoreURL(raw string) (string, bool) {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw, false
	}
	if strings.Contains(strings.ToLower(u.Host), "go.mail-coach.com") {
		return raw, true
	}

	if !localePathRe.MatchString(u.Path) {
		locale := g.locale
		if locale == "" {
			locale = "fr"
		}
		u.Path = "/" + locale + "/" + strings.TrimLeft(u.Path, "/")
	}

	q := u.Query()
	for _, param := range g.trackingParams {
		q.Del(param)
	}
	u.RawQuery = q.Encode()

	return u.String(), true
}

// Absolutize resolves ref against base, returning ref unchanged when either
// fails to parse.
func Absolutize(ref, base string) string {
	if ref == "" {
		return ""
	}
	b, err := url.Parse(base)
	if err != nil {
		return ref
	}
	r, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return b.ResolveReference(r).String()
}
