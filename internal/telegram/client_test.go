package telegram

import (
	"strings"
	"testing"

	"github.com/ldelaire/dealsniper/internal/models"
)

func testDeal() *models.Deal {
	return &models.Deal{
		ID:              "https://www.rczbikeshop.com/fr/fourche-fox-36.html",
		Title:           "Fourche Fox 36 Float <2026>",
		URL:             "https://www.rczbikeshop.com/fr/fourche-fox-36.html",
		PriceCurrent:    389.99,
		PriceOriginal:   799.00,
		DiscountPercent: 51,
		CouponCode:      "RCZFOX",
		Category:        "Enduro",
		Summary:         "Fourche 160mm à moitié prix.",
		Token:           "tok",
		Available:       true,
	}
}

func TestFormatCaption(t *testing.T) {
	caption := FormatCaption(testDeal(), 3)

	if !strings.Contains(caption, "<b>3. Fourche Fox 36 Float &lt;2026&gt;</b>") {
		t.Errorf("Expected numbered, escaped title, got:\n%s", caption)
	}
	if !strings.Contains(caption, "<b>389.99 €</b> <s>799.00 €</s> (-51%)") {
		t.Errorf("Expected price line, got:\n%s", caption)
	}
	if !strings.Contains(caption, "<code>RCZFOX</code>") {
		t.Errorf("Expected coupon code, got:\n%s", caption)
	}
	if !strings.Contains(caption, "Fourche 160mm à moitié prix.") {
		t.Errorf("Expected summary, got:\n%s", caption)
	}
	if !strings.Contains(caption, "#Enduro") {
		t.Errorf("Expected category hashtag, got:\n%s", caption)
	}
}

func TestFormatCaption_OptionalFieldsOmitted(t *testing.T) {
	deal := testDeal()
	deal.CouponCode = ""
	deal.Summary = ""
	deal.Category = ""

	caption := FormatCaption(deal, 1)
	if strings.Contains(caption, "<code>") {
		t.Errorf("Expected no coupon block, got:\n%s", caption)
	}
	if strings.Contains(caption, "#") {
		t.Errorf("Expected no hashtag, got:\n%s", caption)
	}
}

func TestDealKeyboard(t *testing.T) {
	if kb := dealKeyboard(""); kb != nil {
		t.Errorf("Expected no keyboard for a deal without a URL, got %+v", kb)
	}

	kb := dealKeyboard("https://www.rczbikeshop.com/fr/fourche-fox-36.html")
	if kb == nil {
		t.Fatalf("expected a keyboard")
	}
	if len(kb.InlineKeyboard) != 1 || len(kb.InlineKeyboard[0]) != 1 {
		t.Fatalf("Expected a single button row, got %+v", kb.InlineKeyboard)
	}
	button := kb.InlineKeyboard[0][0]
	if button.Text != "Voir le deal" {
		t.Errorf("unexpected button text: %q", button.Text)
	}
	if button.URL == nil || *button.URL != "https://www.rczbikeshop.com/fr/fourche-fox-36.html" {
		t.Errorf("unexpected button URL: %v", button.URL)
	}
}

func TestSendDeal_UnroutedCategorySkipped(t *testing.T) {
	// No bot is wired: a routeless category must return before any API call.
	c := &Client{routes: map[string][]int64{"enduro": {-100123}}}

	deal := testDeal()
	deal.Category = "Gravel"

	if err := c.SendDeal(deal, 1); err != nil {
		t.Errorf("Expected unrouted category to be skipped without error, got %v", err)
	}
}

func TestEscapeHTML(t *testing.T) {
	got := escapeHTML(`Fox <36> & "Friends"`)
	want := `Fox &lt;36&gt; &amp; "Friends"`
	if got != want {
		t.Errorf("escapeHTML = %q, want %q", got, want)
	}
}

func TestHashtag(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Enduro", "Enduro"},
		{"DH / Bike Park", "DHBikePark"},
		{"Trail / All-Mountain", "TrailAllMountain"},
		{"Accessoires génériques", "Accessoiresgénériques"},
	}

	for _, tt := range tests {
		if got := hashtag(tt.in); got != tt.want {
			t.Errorf("hashtag(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
