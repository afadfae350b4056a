package enrich

import "testing"

func TestScrapeMeta_JSONLDProduct(t *testing.T) {
	html := `<html><head>
		<link rel="canonical" href="https://www.rczbikeshop.com/fr/fourche-fox-36.html">
		<script type="application/ld+json">
		{"@type": "Product", "name": "Fourche Fox 36 Float", "description": "Fourche 160mm", "image": "https://cdn/img.jpg"}
		</script>
	</head><body></body></html>`

	meta := ScrapeMeta(html, "https://www.rczbikeshop.com/fourche.html")

	if meta.Canonical != "https://www.rczbikeshop.com/fr/fourche-fox-36.html" {
		t.Errorf("unexpected canonical: %q", meta.Canonical)
	}
	if meta.Title != "Fourche Fox 36 Float" {
		t.Errorf("unexpected title: %q", meta.Title)
	}
	if meta.Description != "Fourche 160mm" {
		t.Errorf("unexpected description: %q", meta.Description)
	}
	if meta.Image != "https://cdn/img.jpg" {
		t.Errorf("unexpected image: %q", meta.Image)
	}
}

func TestScrapeMeta_OpenGraphFallback(t *testing.T) {
	html := `<html><head>
		<meta property="og:title" content="Roue DT Swiss XR1700">
		<meta property="og:description" content="Paire de roues 29">
		<meta property="og:image" content="/media/roue.jpg">
	</head><body></body></html>`

	meta := ScrapeMeta(html, "https://www.rczbikeshop.com/fr/roue.html")

	if meta.Title != "Roue DT Swiss XR1700" {
		t.Errorf("unexpected title: %q", meta.Title)
	}
	if meta.Canonical != "https://www.rczbikeshop.com/fr/roue.html" {
		t.Errorf("Expected page URL as canonical fallback, got %q", meta.Canonical)
	}
	if meta.Image != "https://www.rczbikeshop.com/media/roue.jpg" {
		t.Errorf("Expected absolutized image, got %q", meta.Image)
	}
}

func TestScrapeMeta_GalleryJSONWins(t *testing.T) {
	html := `<html><head>
		<meta property="og:image" content="https://cdn/og.jpg">
	</head><body>
	<script>
	{"[data-gallery-role=gallery]": {"mage/gallery/gallery": {"mixins": [], "data": [
		{"thumb": "https:\/\/cdn\/thumb.jpg", "img": "https:\/\/cdn\/img.jpg", "full": "https:\/\/cdn\/full.jpg", "isMain": true}
	], "options": {}}}}
	</script>
	</body></html>`

	meta := ScrapeMeta(html, "https://www.rczbikeshop.com/fr/x.html")
	if meta.Image != "https://cdn/full.jpg" {
		t.Errorf("Expected gallery image to win, got %q", meta.Image)
	}
}

func TestScrapeMeta_H1TitleFallback(t *testing.T) {
	html := `<html><head><title>RCZ Bike Shop</title></head>
	<body><h1>Pneu Maxxis Minion DHF</h1></body></html>`

	meta := ScrapeMeta(html, "https://www.rczbikeshop.com/fr/pneu.html")
	if meta.Title != "Pneu Maxxis Minion DHF" {
		t.Errorf("Expected h1 fallback title, got %q", meta.Title)
	}
}

func TestScrapeMeta_EmptyPage(t *testing.T) {
	meta := ScrapeMeta("", "https://www.rczbikeshop.com/fr/x.html")
	if meta.Canonical != "https://www.rczbikeshop.com/fr/x.html" {
		t.Errorf("Expected base URL as canonical, got %q", meta.Canonical)
	}
	if meta.Title != "" || meta.Image != "" {
		t.Errorf("Expected empty metadata, got %+v", meta)
	}
}

func TestSanitizeDescriptionHTML(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"allowed tags kept", "<p>bon <b>plan</b></p>", "<p>bon <b>plan</b></p>"},
		{"attributes stripped", `<p style="color:red">texte</p>`, "<p>texte</p>"},
		{"disallowed tags removed", `<div><span>texte</span></div>`, "texte"},
		{"script removed", `avant<script>alert(1)</script>après`, "avantaprès"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := sanitizeDescriptionHTML(tt.in); got != tt.want {
				t.Errorf("sanitizeDescriptionHTML(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
