// Package catalog is the product surface used by presentation code: listing,
// lookup, search and administrative writes over the products collection.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"storefront/internal/changelog"
	"storefront/internal/docstore"
	"storefront/internal/metrics"
	"storefront/internal/model"
	"storefront/internal/query"
	"storefront/internal/transform"
)

const DefaultCollection = "products"

var (
	ErrNotFound = errors.New("product not found")
	ErrInvalid  = errors.New("invalid product")
)

// DefaultIndexes are the composite indexes declared for the products
// collection unless WithIndexes overrides them.
var DefaultIndexes = []docstore.Index{
	{Fields: []string{"featured"}, OrderBy: "createdAt"},
	{Fields: []string{"featured"}, OrderBy: "popularity"},
}

// ListCache caches listing pages. Any write invalidates every entry.
type ListCache interface {
	Get(ctx context.Context, key string) (query.Page, bool, error)
	Set(ctx context.Context, key string, page query.Page) error
	Invalidate(ctx context.Context) error
}

type Option func(*Catalog)

func WithCollection(name string) Option {
	return func(c *Catalog) { c.collection = name }
}

func WithCache(lc ListCache) Option {
	return func(c *Catalog) { c.cache = lc }
}

func WithChangelog(w changelog.Writer) Option {
	return func(c *Catalog) { c.events = w }
}

func WithIndexes(idx ...docstore.Index) Option {
	return func(c *Catalog) { c.indexes = idx }
}

func WithDefaultLimit(n int) Option {
	return func(c *Catalog) { c.defaultLimit = n }
}

func WithLogger(l *zap.Logger) Option {
	return func(c *Catalog) { c.log = l }
}

func WithMetrics(m *metrics.Registry) Option {
	return func(c *Catalog) { c.metrics = m }
}

type Catalog struct {
	store        *docstore.Store
	collection   string
	coll         *docstore.Collection
	planner      *query.Planner
	cache        ListCache
	events       changelog.Writer
	indexes      []docstore.Index
	defaultLimit int
	log          *zap.Logger
	metrics      *metrics.Registry
}

func New(store *docstore.Store, opts ...Option) *Catalog {
	c := &Catalog{
		store:      store,
		collection: DefaultCollection,
		indexes:    DefaultIndexes,
		log:        zap.NewNop(),
	}
	for _, o := range opts {
		o(c)
	}
	for _, idx := range c.indexes {
		store.DeclareIndex(c.collection, idx)
	}
	c.coll = store.Collection(c.collection)
	c.planner = query.NewPlanner(c.coll,
		query.WithLogger(c.log),
		query.WithMetrics(c.metrics),
		query.WithDefaultLimit(c.defaultLimit),
	)
	return c
}

// List returns one page of products matching req.
func (c *Catalog) List(ctx context.Context, req query.Request) (query.Page, error) {
	if req.Category != "" {
		req.Category = transform.NormalizeCategory(req.Category)
	}
	key := cacheKey(req)
	if c.cache != nil {
		page, ok, err := c.cache.Get(ctx, key)
		switch {
		case err != nil:
			c.metrics.CacheLookup("error")
			c.log.Warn("list cache read failed", zap.Error(err))
		case ok:
			c.metrics.CacheLookup("hit")
			return page, nil
		default:
			c.metrics.CacheLookup("miss")
		}
	}

	page, err := c.planner.Plan(ctx, req)
	if err != nil {
		return query.Page{}, err
	}
	if c.cache != nil {
		if err := c.cache.Set(ctx, key, page); err != nil {
			c.log.Warn("list cache write failed", zap.Error(err))
		}
	}
	return page, nil
}

func (c *Catalog) ByCategory(ctx context.Context, category string, limit int) (query.Page, error) {
	return c.List(ctx, query.Request{Category: category, Limit: limit})
}

// Search filters by a case-insensitive substring of name, description or
// category on top of the other request filters.
func (c *Catalog) Search(ctx context.Context, term string, req query.Request) (query.Page, error) {
	req.Search = term
	return c.List(ctx, req)
}

func (c *Catalog) Get(ctx context.Context, id string) (model.Product, error) {
	doc, err := c.coll.Get(ctx, id)
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return model.Product{}, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return model.Product{}, fmt.Errorf("get product %s: %w", id, err)
	}
	return model.FromFields(doc.ID, doc.Fields)
}

// Create stores a new product under a generated id with store timestamps.
func (c *Catalog) Create(ctx context.Context, p model.Product) (model.Product, error) {
	if err := validate(p); err != nil {
		return model.Product{}, err
	}
	p.Category = transform.NormalizeCategory(p.Category)
	now := c.store.Now()
	p.CreatedAt, p.UpdatedAt = now, now
	p.Refresh()
	f, err := p.ToFields()
	if err != nil {
		return model.Product{}, err
	}
	id, err := c.coll.Add(ctx, f)
	if err != nil {
		return model.Product{}, fmt.Errorf("create product: %w", err)
	}
	p.ID = id
	c.written(ctx, changelog.OpCreate, p)
	return p, nil
}

// readOnly lists fields an update may not set.
var readOnly = map[string]bool{"id": true, "createdAt": true}

// Update merges patch into the stored product. A patched category is mapped
// onto the catalog vocabulary, derived fields are recomputed and updatedAt is
// stamped by the store.
func (c *Catalog) Update(ctx context.Context, id string, patch map[string]any) (model.Product, error) {
	for k := range patch {
		if readOnly[k] {
			return model.Product{}, fmt.Errorf("%w: field %q is read-only", ErrInvalid, k)
		}
	}
	cur, err := c.Get(ctx, id)
	if err != nil {
		return model.Product{}, err
	}
	f, err := cur.ToFields()
	if err != nil {
		return model.Product{}, err
	}
	for k, v := range patch {
		f[k] = v
	}
	if cat, ok := patch["category"].(string); ok {
		f["category"] = transform.NormalizeCategory(cat)
	}
	p, err := model.FromFields(id, f)
	if err != nil {
		return model.Product{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if err := validate(p); err != nil {
		return model.Product{}, err
	}
	return c.save(ctx, p)
}

// AdjustStock adds delta to the stock level, clamping at zero.
func (c *Catalog) AdjustStock(ctx context.Context, id string, delta int) (model.Product, error) {
	p, err := c.Get(ctx, id)
	if err != nil {
		return model.Product{}, err
	}
	p.InStock += delta
	if p.InStock < 0 {
		p.InStock = 0
	}
	return c.save(ctx, p)
}

// save merges the recomputed fields of p into its stored document. Fields
// the product model does not know about are left in place.
func (c *Catalog) save(ctx context.Context, p model.Product) (model.Product, error) {
	p.UpdatedAt = c.store.Now()
	p.Refresh()
	f, err := p.ToFields()
	if err != nil {
		return model.Product{}, err
	}
	doc, err := c.coll.Update(ctx, p.ID, f)
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return model.Product{}, fmt.Errorf("%w: %s", ErrNotFound, p.ID)
		}
		return model.Product{}, fmt.Errorf("update product %s: %w", p.ID, err)
	}
	saved, err := model.FromFields(doc.ID, doc.Fields)
	if err != nil {
		return model.Product{}, err
	}
	c.written(ctx, changelog.OpUpdate, saved)
	return saved, nil
}

// Delete removes the product permanently.
func (c *Catalog) Delete(ctx context.Context, id string) error {
	if err := c.coll.Delete(ctx, id); err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return fmt.Errorf("delete product %s: %w", id, err)
	}
	c.written(ctx, changelog.OpDelete, model.Product{ID: id})
	return nil
}

// InvalidateCache drops cached listings after writes made outside the
// facade, such as a bulk load.
func (c *Catalog) InvalidateCache(ctx context.Context) error {
	if c.cache == nil {
		return nil
	}
	return c.cache.Invalidate(ctx)
}

// written invalidates cached listings and appends the change event. Neither
// failure fails the write that already happened.
func (c *Catalog) written(ctx context.Context, op changelog.Op, p model.Product) {
	if c.cache != nil {
		if err := c.cache.Invalidate(ctx); err != nil {
			c.log.Warn("list cache invalidation failed", zap.Error(err))
		}
	}
	if c.events == nil {
		return
	}
	e := changelog.Event{Op: op, ID: p.ID, SKU: p.SKU, TS: c.store.Now().UnixMilli()}
	if op != changelog.OpDelete {
		e.Product = &p
	}
	err := c.events.Append(ctx, e)
	c.metrics.EventAppended(err)
	if err != nil {
		c.log.Warn("changelog append failed", zap.String("op", string(op)), zap.String("id", p.ID), zap.Error(err))
	}
}

func validate(p model.Product) error {
	switch {
	case strings.TrimSpace(p.Name) == "":
		return fmt.Errorf("%w: name is required", ErrInvalid)
	case strings.TrimSpace(p.SKU) == "":
		return fmt.Errorf("%w: sku is required", ErrInvalid)
	case p.Price < 0 || p.OriginalPrice < 0:
		return fmt.Errorf("%w: prices must not be negative", ErrInvalid)
	case p.InStock < 0 || p.Reviews < 0:
		return fmt.Errorf("%w: counts must not be negative", ErrInvalid)
	}
	return nil
}

func cacheKey(req query.Request) string {
	featured := "-"
	if req.Featured != nil {
		featured = strconv.FormatBool(*req.Featured)
	}
	return strings.Join([]string{
		"c=" + req.Category,
		"f=" + featured,
		"s=" + strconv.FormatBool(req.InStockOnly),
		"q=" + strings.ToLower(strings.TrimSpace(req.Search)),
		"o=" + string(req.SortBy),
		"l=" + strconv.Itoa(req.Limit),
		"k=" + req.Cursor,
	}, "|")
}
