package enrich

import (
	"encoding/json"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// PageMeta is the product metadata resolved from a fetched page.
type PageMeta struct {
	Title       string
	Description string
	Image       string
	Canonical   string
}

var (
	// galleryJSONRe targets the Magento gallery widget's inline JSON; its
	// "data" array carries the real product photos, which are more reliable
	// than any meta tag on this storefront.
	galleryJSONRe = regexp.MustCompile(`(?i)"mage/gallery/gallery"\s*:\s*\{[\s\S]*?"data"\s*:\s*(\[[\s\S]*?\])\s*,`)

	metaScriptRe    = regexp.MustCompile(`(?is)<script.*?</script>`)
	metaStyleRe     = regexp.MustCompile(`(?is)<style.*?</style>`)
	attrStripRe     = regexp.MustCompile(`<(\w+)\s+[^>]*?>`)
	anyTagOpenRe    = regexp.MustCompile(`(?i)</?([a-z0-9]+)[^>]*>`)
	blankLineRunsRe = regexp.MustCompile(`\n{3,}`)
)

// ScrapeMeta resolves product metadata from a fetched page using a
// prioritized fallback chain: structured data (JSON-LD Product), then Open
// Graph tags, then heuristic document scraping. Marketing sites get all
// three layers wrong often enough that every layer must stay.
func ScrapeMeta(html, baseURL string) PageMeta {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return PageMeta{Canonical: baseURL}
	}

	canonical := strings.TrimSpace(doc.Find(`link[rel="canonical"]`).First().AttrOr("href", ""))
	if canonical == "" {
		canonical = baseURL
	}

	ld := findLDProduct(doc)

	title := ""
	description := ""
	if ld != nil {
		title = stringField(ld, "name")
		if title == "" {
			title = stringField(ld, "title")
		}
		description = stringField(ld, "description")
	}

	if title == "" {
		title = strings.TrimSpace(doc.Find(`meta[property="og:title"]`).First().AttrOr("content", ""))
	}
	if title == "" {
		title = headingText(doc, "h1")
	}
	if title == "" {
		title = headingText(doc, "title")
	}

	if description == "" {
		description = strings.TrimSpace(doc.Find(`meta[property="og:description"]`).First().AttrOr("content", ""))
	}
	if description == "" {
		description = strings.TrimSpace(doc.Find(`meta[name="description"]`).First().AttrOr("content", ""))
	}

	image := extractProductImage(html, doc, canonical)

	return PageMeta{
		Title:       strings.TrimSpace(title),
		Description: sanitizeDescriptionHTML(description),
		Image:       absolutize(image, canonical, baseURL),
		Canonical:   canonical,
	}
}

// findLDProduct returns the first JSON-LD item whose @type mentions
// Product, or nil. Broken JSON-LD blocks are skipped.
func findLDProduct(doc *goquery.Document) map[string]any {
	var product map[string]any

	doc.Find(`script[type="application/ld+json"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		var parsed any
		if err := json.Unmarshal([]byte(s.Text()), &parsed); err != nil {
			return true
		}

		items, ok := parsed.([]any)
		if !ok {
			items = []any{parsed}
		}
		for _, item := range items {
			obj, ok := item.(map[string]any)
			if !ok {
				continue
			}
			if ldTypeContains(obj["@type"], "product") {
				product = obj
				return false
			}
		}
		return true
	})

	return product
}

func ldTypeContains(typeField any, want string) bool {
	switch t := typeField.(type) {
	case string:
		return strings.Contains(strings.ToLower(t), want)
	case []any:
		for _, v := range t {
			if s, ok := v.(string); ok && strings.Contains(strings.ToLower(s), want) {
				return true
			}
		}
	}
	return false
}

func stringField(obj map[string]any, key string) string {
	if s, ok := obj[key].(string); ok {
		return strings.TrimSpace(s)
	}
	return ""
}

// headingText returns the first element's text if it has a plausible length.
func headingText(doc *goquery.Document, selector string) string {
	text := strings.TrimSpace(doc.Find(selector).First().Text())
	if len(text) < 3 || len(text) > 200 {
		return ""
	}
	return text
}

// extractProductImage walks the image fallback chain: Magento gallery JSON,
// gallery placeholder, JSON-LD image, og:image, product-classed <img>.
func extractProductImage(html string, doc *goquery.Document, canonical string) string {
	if m := galleryJSONRe.FindStringSubmatch(html); m != nil {
		raw := strings.ReplaceAll(m[1], `\/`, `/`)
		var entries []map[string]any
		if err := json.Unmarshal([]byte(raw), &entries); err == nil && len(entries) > 0 {
			main := entries[0]
			for _, e := range entries {
				if isMain, ok := e["isMain"].(bool); ok && isMain {
					main = e
					break
				}
			}
			for _, key := range []string{"full", "img", "thumb"} {
				if u, ok := main[key].(string); ok && u != "" {
					return u
				}
			}
		}
	}

	if u := doc.Find(`div[class*="gallery-placeholder"] img`).First().AttrOr("src", ""); u != "" {
		return u
	}

	if ld := findLDProduct(doc); ld != nil {
		if u := pickImageFromLD(ld["image"]); u != "" {
			return u
		}
	}

	if u := doc.Find(`meta[property="og:image"]`).First().AttrOr("content", ""); u != "" {
		return u
	}

	u := ""
	doc.Find(`img[class*="product"], img[class*="gallery"], img[class*="image"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		u = s.AttrOr("src", "")
		return u == ""
	})
	return u
}

// pickImageFromLD digs an image URL out of the JSON-LD image field, which
// may be a string, a list, or an ImageObject.
func pickImageFromLD(image any) string {
	switch v := image.(type) {
	case string:
		return v
	case []any:
		for _, item := range v {
			if u := pickImageFromLD(item); u != "" {
				return u
			}
		}
	case map[string]any:
		if u, ok := v["url"].(string); ok {
			return u
		}
	}
	return ""
}

// sanitizeDescriptionHTML strips scripts, styles, attributes, and all tags
// outside a small formatting whitelist.
func sanitizeDescriptionHTML(html string) string {
	if html == "" {
		return ""
	}
	allowed := map[string]bool{
		"p": true, "br": true, "ul": true, "ol": true, "li": true,
		"b": true, "strong": true, "i": true, "em": true,
	}

	s := metaScriptRe.ReplaceAllString(html, "")
	s = metaStyleRe.ReplaceAllString(s, "")
	s = attrStripRe.ReplaceAllString(s, "<$1>")
	s = anyTagOpenRe.ReplaceAllStringFunc(s, func(tag string) string {
		m := anyTagOpenRe.FindStringSubmatch(tag)
		if m != nil && allowed[strings.ToLower(m[1])] {
			return tag
		}
		return ""
	})
	s = blankLineRunsRe.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

// absolutize resolves a possibly relative URL against the canonical URL,
// falling back to the page URL.
func absolutize(ref, canonical, baseURL string) string {
	if ref == "" {
		return ""
	}
	base := canonical
	if base == "" {
		base = baseURL
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
