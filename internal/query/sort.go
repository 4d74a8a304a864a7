package query

import (
	"cmp"
	"slices"

	"storefront/internal/docstore"
	"storefront/internal/model"
)

type SortMode string

const (
	SortNone       SortMode = ""
	SortPopularity SortMode = "popularity"
	SortNewest     SortMode = "newest"
	SortPriceLow   SortMode = "price-low"
	SortPriceHigh  SortMode = "price-high"
	SortRating     SortMode = "rating"
	SortDiscount   SortMode = "discount"
)

// sortSpec describes one sort mode. field is empty for modes the store
// cannot order by.
type sortSpec struct {
	field string
	dir   docstore.Direction
	less  func(a, b *model.Product) int
}

var sorts = map[SortMode]sortSpec{
	SortPopularity: {"popularity", docstore.Desc, func(a, b *model.Product) int { return cmp.Compare(b.Popularity, a.Popularity) }},
	SortNewest:     {"createdAt", docstore.Desc, func(a, b *model.Product) int { return b.CreatedAt.Compare(a.CreatedAt) }},
	SortPriceLow:   {"price", docstore.Asc, func(a, b *model.Product) int { return cmp.Compare(a.Price, b.Price) }},
	SortPriceHigh:  {"price", docstore.Desc, func(a, b *model.Product) int { return cmp.Compare(b.Price, a.Price) }},
	SortRating:     {"rating", docstore.Desc, func(a, b *model.Product) int { return cmp.Compare(b.Rating, a.Rating) }},
	SortDiscount:   {"", docstore.Desc, func(a, b *model.Product) int { return cmp.Compare(b.Discount(), a.Discount()) }},
}

// ValidSort reports whether mode names a known sort.
func ValidSort(mode SortMode) bool {
	if mode == SortNone {
		return true
	}
	_, ok := sorts[mode]
	return ok
}

// Sort orders products in place by mode, breaking ties by id so the result
// matches the store's ordering for the same mode.
func Sort(products []model.Product, mode SortMode) {
	order, ok := sorts[mode]
	if !ok {
		return
	}
	slices.SortStableFunc(products, func(a, b model.Product) int {
		if c := order.less(&a, &b); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
}
