package transform

import (
	"encoding/json"
	"math/rand"
	"regexp"
	"testing"
	"time"

	"storefront/internal/model"
)

var fixed = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestTransformer() *Transformer {
	return New(WithRand(rand.New(rand.NewSource(7))), WithClock(func() time.Time { return fixed }))
}

func decode(t *testing.T, s string) model.RawRecord {
	t.Helper()
	var r model.RawRecord
	if err := json.Unmarshal([]byte(s), &r); err != nil {
		t.Fatalf("decode %s: %v", s, err)
	}
	return r
}

func TestTransform_DefaultsForEmptyRecord(t *testing.T) {
	p := newTestTransformer().Transform(model.RawRecord{})

	if p.Name != DefaultName || p.Description != DefaultName+"." {
		t.Fatalf("name/description: %q %q", p.Name, p.Description)
	}
	if p.Category != Uncategorized {
		t.Fatalf("category=%q", p.Category)
	}
	if p.Price != 0 || p.OriginalPrice != 0 || p.InStock != 0 || p.Reviews != 0 {
		t.Fatalf("numeric defaults: %+v", p)
	}
	if p.Rating != DefaultRating || p.Length != DefaultLength || p.Size != DefaultLength || p.Weight != DefaultWeight {
		t.Fatalf("dimension defaults: %+v", p)
	}
	if p.Images == nil || len(p.Images) != 0 || p.Image != "" {
		t.Fatalf("images: %#v %q", p.Images, p.Image)
	}
	if p.Colors == nil || len(p.Colors) != 0 {
		t.Fatalf("colors: %#v", p.Colors)
	}
	if !p.BlouseIncluded || p.Featured {
		t.Fatalf("flags: %+v", p)
	}
	if !p.CreatedAt.Equal(fixed) || !p.UpdatedAt.Equal(fixed) || p.Popularity != 0 {
		t.Fatalf("timestamps/popularity: %+v", p)
	}
	if !regexp.MustCompile(`^SKU-[0-9A-Z]+-[0-9A-Z]{6}$`).MatchString(p.SKU) {
		t.Fatalf("fallback sku=%q", p.SKU)
	}
}

func TestTransform_PriceFallback(t *testing.T) {
	tr := newTestTransformer()
	a := tr.Transform(model.RawRecord{Name: model.Str("A"), Price: model.Num(100)})
	b := tr.Transform(model.RawRecord{Name: model.Str("B")})
	if a.Price != 100 || a.OriginalPrice != 100 {
		t.Fatalf("A: price=%v original=%v", a.Price, a.OriginalPrice)
	}
	if b.Price != 0 || b.OriginalPrice != 0 {
		t.Fatalf("B: price=%v original=%v", b.Price, b.OriginalPrice)
	}
	if a.SKU == b.SKU {
		t.Fatalf("generated skus collide: %s", a.SKU)
	}

	neg := tr.Transform(model.RawRecord{Price: model.Num(-5), OriginalPrice: model.Num(-1)})
	if neg.Price != 0 || neg.OriginalPrice != 0 {
		t.Fatalf("negative prices: %+v", neg)
	}
}

func TestTransform_FullRecord(t *testing.T) {
	p := newTestTransformer().Transform(decode(t, `{
		"name": "  royal blue kanjivaram ",
		"category": "Silk Sarees",
		"fabric": "Pure Silk",
		"occasion": "weddings",
		"price": "8,499",
		"originalPrice": 9999,
		"image": "legacy.jpg",
		"images": "hero.jpg",
		"inStock": "12",
		"rating": 7,
		"reviews": 20,
		"color": "Blue, Gold ,blue",
		"size": 6.3,
		"weight": 0,
		"featured": true,
		"blouseIncluded": "no"
	}`))

	if p.Name != "royal blue kanjivaram" || p.Category != "silk" {
		t.Fatalf("name/category: %q %q", p.Name, p.Category)
	}
	if p.Description != "royal blue kanjivaram crafted in Pure Silk, perfect for weddings." {
		t.Fatalf("description=%q", p.Description)
	}
	if p.Price != 8499 || p.OriginalPrice != 9999 || p.InStock != 12 {
		t.Fatalf("numbers: %+v", p)
	}
	if len(p.Images) != 1 || p.Image != "hero.jpg" {
		t.Fatalf("images: %v %q", p.Images, p.Image)
	}
	if p.Rating != MaxRating || p.Popularity != 100 {
		t.Fatalf("rating=%v popularity=%v", p.Rating, p.Popularity)
	}
	if len(p.Colors) != 2 || p.Colors[0] != "Blue" || p.Colors[1] != "Gold" {
		t.Fatalf("colors=%v", p.Colors)
	}
	if p.Length != 6.3 || p.Size != 6.3 || p.Weight != DefaultWeight {
		t.Fatalf("dimensions: %+v", p)
	}
	if !p.Featured || p.BlouseIncluded {
		t.Fatalf("flags: %+v", p)
	}
	if !regexp.MustCompile(`^SLK-RBK-\d{4}$`).MatchString(p.SKU) {
		t.Fatalf("sku=%q", p.SKU)
	}
}

func TestTransform_ImageShapes(t *testing.T) {
	tr := newTestTransformer()
	cases := []struct {
		in   string
		want []string
	}{
		{`{"images": ["a.jpg", "b.jpg"]}`, []string{"a.jpg", "b.jpg"}},
		{`{"images": "a.jpg"}`, []string{"a.jpg"}},
		{`{"image": "legacy.jpg"}`, []string{"legacy.jpg"}},
		{`{"images": [], "image": "legacy.jpg"}`, []string{"legacy.jpg"}},
		{`{"images": [" ", ""]}`, []string{}},
	}
	for _, tc := range cases {
		p := tr.Transform(decode(t, tc.in))
		if len(p.Images) != len(tc.want) {
			t.Fatalf("%s: images=%v want %v", tc.in, p.Images, tc.want)
		}
		for i := range tc.want {
			if p.Images[i] != tc.want[i] {
				t.Fatalf("%s: images=%v want %v", tc.in, p.Images, tc.want)
			}
		}
	}
}

func TestTransform_ExplicitSKUKept(t *testing.T) {
	p := newTestTransformer().Transform(model.RawRecord{SKU: model.Str(" SLK-AB-0001 "), Category: model.Str("silk")})
	if p.SKU != "SLK-AB-0001" {
		t.Fatalf("sku=%q", p.SKU)
	}
}

func TestNormalizeCategory(t *testing.T) {
	cases := map[string]string{
		"":                Uncategorized,
		"Cotton Sarees":   "cotton",
		"KANCHIPURAM":     "kanjivaram",
		"Party Wear":      "party-wear",
		"Organza Special": "Organza Special",
	}
	for in, want := range cases {
		if got := NormalizeCategory(in); got != want {
			t.Fatalf("NormalizeCategory(%q)=%q want %q", in, got, want)
		}
	}
	if _, ok := CategoryCode(Uncategorized); ok {
		t.Fatalf("uncategorized must not have a code")
	}
	if code, ok := CategoryCode("bridal"); !ok || code != "BRD" {
		t.Fatalf("bridal code=%q %v", code, ok)
	}
}

func TestInitials(t *testing.T) {
	cases := map[string]string{
		"royal blue kanjivaram":   "RBK",
		"a b c d e":               "ABCD",
		"!!! ???":                 "X",
		"(new) maroon silk saree": "NMSS",
	}
	for in, want := range cases {
		if got := initials(in); got != want {
			t.Fatalf("initials(%q)=%q want %q", in, got, want)
		}
	}
}
