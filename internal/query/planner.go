// Package query plans catalog listings against the document store.
//
// Equality filters are always pushed down. Ordering is pushed down only when
// no category filter is present; otherwise, and whenever the store rejects a
// query for lack of a composite index, sorting happens in process over the
// fetched page.
package query

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"storefront/internal/docstore"
	"storefront/internal/metrics"
	"storefront/internal/model"
)

const DefaultLimit = 20

var ErrUnavailable = errors.New("unable to fetch products")

var tracer = otel.Tracer("storefront/internal/query")

// Source is the query primitive of a collection.
type Source interface {
	Query(ctx context.Context, q docstore.Query) (docstore.Result, error)
}

type Request struct {
	Category    string   `json:"category,omitempty"`
	Featured    *bool    `json:"featured,omitempty"`
	InStockOnly bool     `json:"inStockOnly,omitempty"`
	Search      string   `json:"search,omitempty"`
	SortBy      SortMode `json:"sortBy,omitempty"`
	Limit       int      `json:"limit,omitempty"`
	Cursor      string   `json:"cursor,omitempty"`
}

// Strategy records how a page was produced.
type Strategy string

const (
	// StrategyServer: filters and ordering ran in the store.
	StrategyServer Strategy = "server"
	// StrategyClientSort: filters ran in the store, ordering in process.
	StrategyClientSort Strategy = "client-sort"
	// StrategyFallback: the store rejected the query; only the category
	// filter ran there.
	StrategyFallback Strategy = "fallback"
)

type Page struct {
	Products []model.Product `json:"products"`
	HasMore  bool            `json:"hasMore"`
	Cursor   string          `json:"cursor,omitempty"`
	Strategy Strategy        `json:"strategy"`
}

type Option func(*Planner)

func WithLogger(l *zap.Logger) Option {
	return func(p *Planner) { p.log = l }
}

func WithMetrics(m *metrics.Registry) Option {
	return func(p *Planner) { p.metrics = m }
}

func WithDefaultLimit(n int) Option {
	return func(p *Planner) {
		if n > 0 {
			p.defaultLimit = n
		}
	}
}

type Planner struct {
	src          Source
	log          *zap.Logger
	metrics      *metrics.Registry
	defaultLimit int
}

func NewPlanner(src Source, opts ...Option) *Planner {
	p := &Planner{src: src, log: zap.NewNop(), defaultLimit: DefaultLimit}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Plan returns one page for req. Unknown sort modes are ignored. An empty
// result is not an error.
func (p *Planner) Plan(ctx context.Context, req Request) (Page, error) {
	ctx, span := tracer.Start(ctx, "query.Plan")
	defer span.End()

	limit := req.Limit
	if limit <= 0 {
		limit = p.defaultLimit
	}
	order, sorted := sorts[req.SortBy]

	q := docstore.Query{Filters: filters(req), Limit: limit, StartAfter: req.Cursor}
	strategy := StrategyClientSort
	if sorted && order.field != "" && req.Category == "" {
		q.OrderBy, q.Direction = order.field, order.dir
		strategy = StrategyServer
	}
	if !sorted {
		strategy = StrategyServer
	}

	res, err := p.src.Query(ctx, q)
	if errors.Is(err, docstore.ErrIndexUnavailable) {
		p.log.Warn("index unavailable, falling back to client-side filtering",
			zap.String("category", req.Category), zap.String("sortBy", string(req.SortBy)), zap.Error(err))
		strategy = StrategyFallback
		fq := docstore.Query{Limit: limit, StartAfter: req.Cursor}
		if req.Category != "" {
			fq.Filters = []docstore.Filter{{Field: "category", Op: docstore.OpEqual, Value: req.Category}}
		}
		res, err = p.src.Query(ctx, fq)
		if err != nil {
			p.metrics.QueryUnavailable()
			span.RecordError(err)
			return Page{}, fmt.Errorf("%w: %w", ErrUnavailable, err)
		}
	} else if err != nil {
		span.RecordError(err)
		return Page{}, fmt.Errorf("query products: %w", err)
	}

	products := make([]model.Product, 0, len(res.Docs))
	for _, d := range res.Docs {
		prod, err := model.FromFields(d.ID, d.Fields)
		if err != nil {
			p.log.Warn("skipping undecodable product", zap.String("id", d.ID), zap.Error(err))
			continue
		}
		if strategy == StrategyFallback && !matchesFilters(prod, req) {
			continue
		}
		if !matchesSearch(prod, req.Search) {
			continue
		}
		products = append(products, prod)
	}
	if strategy != StrategyServer {
		Sort(products, req.SortBy)
	}

	p.metrics.QueryPlanned(string(strategy))
	span.SetAttributes(attribute.String("strategy", string(strategy)), attribute.Int("results", len(products)))
	return Page{
		Products: products,
		HasMore:  len(products) == limit,
		Cursor:   res.Cursor,
		Strategy: strategy,
	}, nil
}

func filters(req Request) []docstore.Filter {
	var fs []docstore.Filter
	if req.Category != "" {
		fs = append(fs, docstore.Filter{Field: "category", Op: docstore.OpEqual, Value: req.Category})
	}
	if req.Featured != nil {
		fs = append(fs, docstore.Filter{Field: "featured", Op: docstore.OpEqual, Value: *req.Featured})
	}
	if req.InStockOnly {
		fs = append(fs, docstore.Filter{Field: "inStock", Op: docstore.OpGreaterThan, Value: 0})
	}
	return fs
}

func matchesFilters(p model.Product, req Request) bool {
	if req.Category != "" && p.Category != req.Category {
		return false
	}
	if req.Featured != nil && p.Featured != *req.Featured {
		return false
	}
	if req.InStockOnly && p.InStock <= 0 {
		return false
	}
	return true
}

func matchesSearch(p model.Product, term string) bool {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return true
	}
	return strings.Contains(strings.ToLower(p.Name), term) ||
		strings.Contains(strings.ToLower(p.Description), term) ||
		strings.Contains(strings.ToLower(p.Category), term)
}
