package extract

import "testing"

func TestMatchPriceLine_Basic(t *testing.T) {
	m, ok := MatchPriceLine("Fourche Fox 36 / 389.99 € instead of 799.00 €")
	if !ok {
		t.Fatalf("expected a match")
	}
	if m.Description != "Fourche Fox 36" {
		t.Errorf("Expected description %q, got %q", "Fourche Fox 36", m.Description)
	}
	if m.PriceNew != 389.99 {
		t.Errorf("Expected new price 389.99, got %v", m.PriceNew)
	}
	if m.PriceOld != 799.00 {
		t.Errorf("Expected old price 799.00, got %v", m.PriceOld)
	}
}

func TestMatchPriceLine_Markers(t *testing.T) {
	tests := []struct {
		name string
		text string
		ok   bool
	}{
		{"french marker", "Pneu Maxxis / 30,00 € au lieu de 50,00 €", true},
		{"german marker", "Sattel / 25.00 € statt 60.00 €", true},
		{"uvp marker", "Lenker / 19.90 € UVP 49.90 €", true},
		{"comma decimals", "Roue DT Swiss / 199,50 € au lieu de 420,00 €", true},
		{"inverted prices", "Casque MET / 50,00 € au lieu de 40,00 €", false},
		{"equal prices", "Casque MET / 40,00 € au lieu de 40,00 €", false},
		{"no marker", "Casque MET / 40,00 € 80,00 €", false},
		{"plain prose", "Profitez de nos offres exceptionnelles", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ok := MatchPriceLine(tt.text)
			if ok != tt.ok {
				t.Errorf("MatchPriceLine(%q) ok = %v, want %v", tt.text, ok, tt.ok)
			}
		})
	}
}

func TestMatchPriceLine_ThousandsSeparator(t *testing.T) {
	m, ok := MatchPriceLine("Cadre carbone / 1 299.00 € au lieu de 2 599.00 €")
	if !ok {
		t.Fatalf("expected a match")
	}
	if m.PriceNew != 1299.00 {
		t.Errorf("Expected new price 1299.00, got %v", m.PriceNew)
	}
	if m.PriceOld != 2599.00 {
		t.Errorf("Expected old price 2599.00, got %v", m.PriceOld)
	}
}

func TestDiscountPercent(t *testing.T) {
	tests := []struct {
		name       string
		priceNew   float64
		priceOld   float64
		maxPercent int
		want       int
	}{
		{"half off", 50, 100, 95, 50},
		{"rounding", 389.99, 799.00, 95, 51},
		{"clamped high", 1, 100, 95, 95},
		{"small discount", 95, 100, 95, 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DiscountPercent(tt.priceNew, tt.priceOld, tt.maxPercent)
			if got != tt.want {
				t.Errorf("DiscountPercent(%v, %v, %d) = %d, want %d",
					tt.priceNew, tt.priceOld, tt.maxPercent, got, tt.want)
			}
		})
	}
}
