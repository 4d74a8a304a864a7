// Package dedupe decides which incoming records are already in the catalog.
//
// A Set is a point-in-time snapshot of the catalog SKUs taken before a run
// starts, extended in memory as the run writes. Separate runs do not see each
// other's writes, so two concurrent imports can still store the same SKU.
package dedupe

import (
	"context"
	"fmt"
	"strings"

	"storefront/internal/docstore"
)

// Source streams the documents whose "sku" field seeds a Set.
type Source interface {
	Stream(ctx context.Context, fn func(docstore.Document) error) error
}

type Set struct {
	skus map[string]struct{}
}

func NewSet(skus ...string) *Set {
	s := &Set{skus: make(map[string]struct{}, len(skus))}
	for _, sku := range skus {
		s.Add(sku)
	}
	return s
}

// Load reads every existing SKU with a single streaming pass.
func Load(ctx context.Context, src Source) (*Set, error) {
	s := NewSet()
	err := src.Stream(ctx, func(d docstore.Document) error {
		if sku, ok := d.Fields["sku"].(string); ok {
			s.Add(sku)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("load known skus: %w", err)
	}
	return s, nil
}

func normalize(sku string) string { return strings.TrimSpace(sku) }

func (s *Set) ShouldSkip(sku string) bool {
	_, ok := s.skus[normalize(sku)]
	return ok
}

func (s *Set) Add(sku string) {
	if sku = normalize(sku); sku != "" {
		s.skus[sku] = struct{}{}
	}
}

// Remove releases a SKU whose write did not land.
func (s *Set) Remove(sku string) { delete(s.skus, normalize(sku)) }

func (s *Set) Len() int { return len(s.skus) }
