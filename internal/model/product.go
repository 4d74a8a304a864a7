package model

import (
	"fmt"
	"time"

	"storefront/internal/docstore"
)

// Product is the canonical catalog record as persisted in the store.
type Product struct {
	ID             string    `json:"id,omitempty"`
	Name           string    `json:"name"`
	Description    string    `json:"description"`
	Category       string    `json:"category"`
	Fabric         string    `json:"fabric,omitempty"`
	Occasion       string    `json:"occasion,omitempty"`
	Price          float64   `json:"price"`
	OriginalPrice  float64   `json:"originalPrice"`
	Images         []string  `json:"images"`
	Image          string    `json:"image"`
	InStock        int       `json:"inStock"`
	Rating         float64   `json:"rating"`
	Reviews        int       `json:"reviews"`
	Colors         []string  `json:"colors"`
	Length         float64   `json:"length"`
	Size           float64   `json:"size"`
	Weight         float64   `json:"weight"`
	SKU            string    `json:"sku"`
	BlouseIncluded bool      `json:"blouseIncluded"`
	Featured       bool      `json:"featured"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
	Popularity     float64   `json:"popularity"`
}

// Refresh recomputes the derived fields after any mutation.
func (p *Product) Refresh() {
	if p.Images == nil {
		p.Images = []string{}
	}
	if p.Colors == nil {
		p.Colors = []string{}
	}
	p.Image = ""
	if len(p.Images) > 0 {
		p.Image = p.Images[0]
	}
	p.Popularity = 0
	if p.Reviews > 0 {
		p.Popularity = float64(p.Reviews) * p.Rating
	}
}

// Discount is the fractional markdown from OriginalPrice, never negative.
func (p Product) Discount() float64 {
	if p.OriginalPrice <= 0 {
		return 0
	}
	d := (p.OriginalPrice - p.Price) / p.OriginalPrice
	if d < 0 {
		return 0
	}
	return d
}

// ToFields converts p into a store document body. The id is the document
// key and is not stored in the body.
func (p Product) ToFields() (docstore.Fields, error) {
	f, err := docstore.Encode(p)
	if err != nil {
		return nil, fmt.Errorf("encode product: %w", err)
	}
	delete(f, "id")
	return f, nil
}

// FromFields decodes a stored document body.
func FromFields(id string, f map[string]any) (Product, error) {
	var p Product
	if err := (docstore.Document{ID: id, Fields: f}).Decode(&p); err != nil {
		return Product{}, err
	}
	p.ID = id
	if p.Images == nil {
		p.Images = []string{}
	}
	if p.Colors == nil {
		p.Colors = []string{}
	}
	return p, nil
}
