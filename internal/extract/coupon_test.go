package extract

import "testing"

func TestFindCouponCandidate(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
		ok   bool
	}{
		{"french intro", "Veuillez mettre le code : RCZFOX", "RCZFOX", true},
		{"english intro", "Please enter the code: SUMMER24", "SUMMER24", true},
		{"bare code intro", "code: promo10", "PROMO10", true},
		{"trailing period", "Use code: RCZDT.", "RCZDT", true},
		{"no intro", "Une offre incroyable vous attend", "", false},
		{"colon missing", "utilisez le code RCZ", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := FindCouponCandidate(tt.text)
			if ok != tt.ok {
				t.Fatalf("FindCouponCandidate(%q) ok = %v, want %v", tt.text, ok, tt.ok)
			}
			if got != tt.want {
				t.Errorf("FindCouponCandidate(%q) = %q, want %q", tt.text, got, tt.want)
			}
		})
	}
}

func TestValidCouponCode(t *testing.T) {
	tests := []struct {
		code string
		want bool
	}{
		{"RCZFOX", true},
		{"SUMMER24", true},
		{"1234567", false},  // order number
		{"A.B.C", false},    // dotted SKU
		{"V1.2.3", false},   // version string
		{"RCZ.FOX", true},   // single dot is still plausible
		{"12345", true},     // short numerics pass
	}

	for _, tt := range tests {
		if got := ValidCouponCode(tt.code); got != tt.want {
			t.Errorf("ValidCouponCode(%q) = %v, want %v", tt.code, got, tt.want)
		}
	}
}
