package transform

import (
	"strings"

	"github.com/gosimple/slug"
)

// Uncategorized is assigned to records without a category.
const Uncategorized = "uncategorized"

type category struct {
	target string
	code   string
}

// categories maps source vocabulary (as slugs) onto catalog categories.
var categories = map[string]category{
	"silk":              {"silk", "SLK"},
	"silk-saree":        {"silk", "SLK"},
	"silk-sarees":       {"silk", "SLK"},
	"pure-silk":         {"silk", "SLK"},
	"cotton":            {"cotton", "CTN"},
	"cotton-saree":      {"cotton", "CTN"},
	"cotton-sarees":     {"cotton", "CTN"},
	"handloom":          {"cotton", "CTN"},
	"banarasi":          {"banarasi", "BNR"},
	"banarasi-saree":    {"banarasi", "BNR"},
	"banarasi-sarees":   {"banarasi", "BNR"},
	"benarasi":          {"banarasi", "BNR"},
	"kanjivaram":        {"kanjivaram", "KNJ"},
	"kanjeevaram":       {"kanjivaram", "KNJ"},
	"kanchipuram":       {"kanjivaram", "KNJ"},
	"designer":          {"designer", "DSG"},
	"designer-saree":    {"designer", "DSG"},
	"designer-sarees":   {"designer", "DSG"},
	"bridal":            {"bridal", "BRD"},
	"wedding":           {"bridal", "BRD"},
	"bridal-collection": {"bridal", "BRD"},
	"georgette":         {"georgette", "GRG"},
	"chiffon":           {"chiffon", "CHF"},
	"linen":             {"linen", "LNN"},
	"party-wear":        {"party-wear", "PTY"},
	"party":             {"party-wear", "PTY"},
	"partywear":         {"party-wear", "PTY"},
	"casual":            {"casual", "CSL"},
	"daily-wear":        {"casual", "CSL"},
	"everyday":          {"casual", "CSL"},
}

func lookupCategory(raw string) (category, bool) {
	c, ok := categories[slug.Make(raw)]
	return c, ok
}

// NormalizeCategory maps a source category onto the catalog vocabulary.
// Unknown categories are returned unchanged and an empty one becomes
// Uncategorized.
func NormalizeCategory(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Uncategorized
	}
	if c, ok := lookupCategory(raw); ok {
		return c.target
	}
	return raw
}

// CategoryCode returns the SKU prefix of a catalog category.
func CategoryCode(cat string) (string, bool) {
	c, ok := lookupCategory(cat)
	if !ok {
		return "", false
	}
	return c.code, true
}
