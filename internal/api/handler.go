// Package api serves the catalog over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"storefront/internal/catalog"
	"storefront/internal/docstore"
	"storefront/internal/ingest"
	"storefront/internal/model"
	"storefront/internal/query"
	"storefront/internal/source"
	"storefront/internal/transform"
)

// MaxLimit caps the page size a client may ask for.
const MaxLimit = 100

type Handler struct {
	catalog     *catalog.Catalog
	uploader    *ingest.Uploader
	transformer *transform.Transformer
	log         *zap.Logger
}

func NewHandler(c *catalog.Catalog, u *ingest.Uploader, t *transform.Transformer, log *zap.Logger) *Handler {
	if t == nil {
		t = transform.New()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{catalog: c, uploader: u, transformer: t, log: log}
}

func (h *Handler) Register(r gin.IRouter) {
	r.GET("/products", h.list)
	r.POST("/products", h.create)
	r.GET("/products/:id", h.get)
	r.PATCH("/products/:id", h.update)
	r.DELETE("/products/:id", h.remove)
	r.POST("/products/:id/stock", h.adjustStock)
	r.GET("/categories/:category/products", h.byCategory)
	r.GET("/search", h.search)
	if h.uploader != nil {
		r.POST("/ingest", h.ingest)
	}
}

// listRequest reads the listing query string.
func listRequest(c *gin.Context) (query.Request, error) {
	req := query.Request{
		Category:    c.Query("category"),
		Search:      c.Query("q"),
		SortBy:      query.SortMode(c.Query("sortBy")),
		Cursor:      c.Query("cursor"),
		InStockOnly: c.Query("inStock") == "true",
	}
	if !query.ValidSort(req.SortBy) {
		return req, fmt.Errorf("unknown sortBy %q", req.SortBy)
	}
	if v := c.Query("featured"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return req, errors.New("featured must be true or false")
		}
		req.Featured = &b
	}
	limit, err := limitParam(c)
	if err != nil {
		return req, err
	}
	req.Limit = limit
	return req, nil
}

func limitParam(c *gin.Context) (int, error) {
	v := c.Query("limit")
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, errors.New("limit must be a positive integer")
	}
	return min(n, MaxLimit), nil
}

func (h *Handler) list(c *gin.Context) {
	req, err := listRequest(c)
	if err != nil {
		Error(c, http.StatusBadRequest, err.Error())
		return
	}
	page, err := h.catalog.List(c.Request.Context(), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	Success(c, page)
}

func (h *Handler) search(c *gin.Context) {
	req, err := listRequest(c)
	if err != nil {
		Error(c, http.StatusBadRequest, err.Error())
		return
	}
	page, err := h.catalog.Search(c.Request.Context(), req.Search, req)
	if err != nil {
		h.fail(c, err)
		return
	}
	Success(c, page)
}

func (h *Handler) byCategory(c *gin.Context) {
	limit, err := limitParam(c)
	if err != nil {
		Error(c, http.StatusBadRequest, err.Error())
		return
	}
	page, err := h.catalog.ByCategory(c.Request.Context(), c.Param("category"), limit)
	if err != nil {
		h.fail(c, err)
		return
	}
	Success(c, page)
}

func (h *Handler) get(c *gin.Context) {
	p, err := h.catalog.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	Success(c, p)
}

// create accepts a raw record and stores its normalised form.
func (h *Handler) create(c *gin.Context) {
	var raw model.RawRecord
	if err := c.ShouldBindJSON(&raw); err != nil {
		Error(c, http.StatusBadRequest, err.Error())
		return
	}
	p, err := h.catalog.Create(c.Request.Context(), h.transformer.Transform(raw))
	if err != nil {
		h.fail(c, err)
		return
	}
	Created(c, p)
}

func (h *Handler) update(c *gin.Context) {
	var patch map[string]any
	if err := c.ShouldBindJSON(&patch); err != nil {
		Error(c, http.StatusBadRequest, err.Error())
		return
	}
	p, err := h.catalog.Update(c.Request.Context(), c.Param("id"), patch)
	if err != nil {
		h.fail(c, err)
		return
	}
	Success(c, p)
}

func (h *Handler) remove(c *gin.Context) {
	if err := h.catalog.Delete(c.Request.Context(), c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	Success(c, gin.H{"id": c.Param("id")})
}

func (h *Handler) adjustStock(c *gin.Context) {
	var body struct {
		Delta *int `json:"delta" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		Error(c, http.StatusBadRequest, err.Error())
		return
	}
	p, err := h.catalog.AdjustStock(c.Request.Context(), c.Param("id"), *body.Delta)
	if err != nil {
		h.fail(c, err)
		return
	}
	Success(c, p)
}

// ingest bulk-loads a JSON array (or stream) of raw records. batched=true
// groups the writes into atomic commits.
func (h *Handler) ingest(c *gin.Context) {
	records, err := source.Decode(c.Request.Body)
	if err != nil {
		Error(c, http.StatusBadRequest, err.Error())
		return
	}
	ctx := c.Request.Context()
	run := h.uploader.Upload
	if c.Query("batched") == "true" {
		run = h.uploader.UploadBatched
	}
	sum, err := run(ctx, records, nil)
	if err != nil {
		h.fail(c, err)
		return
	}
	if sum.Uploaded > 0 {
		h.invalidate(ctx)
	}
	Success(c, sum)
}

func (h *Handler) invalidate(ctx context.Context) {
	if err := h.catalog.InvalidateCache(ctx); err != nil {
		h.log.Warn("list cache invalidation failed", zap.Error(err))
	}
}

// fail maps domain errors to HTTP statuses.
func (h *Handler) fail(c *gin.Context, err error) {
	_ = c.Error(err)
	switch {
	case errors.Is(err, catalog.ErrNotFound):
		Error(c, http.StatusNotFound, err.Error())
	case errors.Is(err, catalog.ErrInvalid),
		errors.Is(err, docstore.ErrInvalidCursor),
		errors.Is(err, docstore.ErrInvalidQuery):
		Error(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, query.ErrUnavailable):
		Error(c, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, context.Canceled):
		Error(c, 499, "request cancelled")
	default:
		h.log.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
		Error(c, http.StatusInternalServerError, "internal error")
	}
}
