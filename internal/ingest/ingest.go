// Package ingest bulk-loads raw product records into the catalog.
//
// Every record is transformed, checked against the SKUs already known to the
// run and written. A failed write is tallied and the run continues; the
// summary always accounts for every input record.
package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"storefront/internal/changelog"
	"storefront/internal/dedupe"
	"storefront/internal/docstore"
	"storefront/internal/metrics"
	"storefront/internal/model"
	"storefront/internal/transform"
)

const (
	DefaultCollection = "products"
	DefaultDelay      = 100 * time.Millisecond
)

var tracer = otel.Tracer("storefront/internal/ingest")

// Progress is reported after every attempted record, in input order.
type Progress struct {
	Uploaded int    `json:"uploaded"`
	Total    int    `json:"total"`
	Skipped  int    `json:"skipped"`
	Errors   int    `json:"errors"`
	Current  string `json:"current"`
}

type ProgressFunc func(Progress)

// Result is the outcome of one input record.
type Result struct {
	Name    string `json:"name"`
	SKU     string `json:"sku"`
	ID      string `json:"id,omitempty"`
	Success bool   `json:"success"`
	Skipped bool   `json:"skipped,omitempty"`
	Error   string `json:"error,omitempty"`
}

type Summary struct {
	Uploaded int      `json:"uploaded"`
	Skipped  int      `json:"skipped"`
	Errors   int      `json:"errors"`
	Total    int      `json:"total"`
	Results  []Result `json:"results,omitempty"`
}

func (s *Summary) progress(current string) Progress {
	return Progress{Uploaded: s.Uploaded, Total: s.Total, Skipped: s.Skipped, Errors: s.Errors, Current: current}
}

type Option func(*Uploader)

func WithCollection(name string) Option {
	return func(u *Uploader) { u.collection = name }
}

func WithTransformer(t *transform.Transformer) Option {
	return func(u *Uploader) { u.transformer = t }
}

// WithDelay sets the pause between successive writes. Zero disables it.
func WithDelay(d time.Duration) Option {
	return func(u *Uploader) { u.delay = d }
}

// WithBatchSize bounds the commits of UploadBatched. It is capped at the
// store maximum.
func WithBatchSize(n int) Option {
	return func(u *Uploader) { u.batchSize = n }
}

func WithChangelog(w changelog.Writer) Option {
	return func(u *Uploader) { u.events = w }
}

func WithLogger(l *zap.Logger) Option {
	return func(u *Uploader) { u.log = l }
}

func WithMetrics(m *metrics.Registry) Option {
	return func(u *Uploader) { u.metrics = m }
}

type Uploader struct {
	store       *docstore.Store
	collection  string
	transformer *transform.Transformer
	delay       time.Duration
	batchSize   int
	events      changelog.Writer
	log         *zap.Logger
	metrics     *metrics.Registry
}

func New(store *docstore.Store, opts ...Option) *Uploader {
	u := &Uploader{
		store:      store,
		collection: DefaultCollection,
		delay:      DefaultDelay,
		log:        zap.NewNop(),
	}
	for _, o := range opts {
		o(u)
	}
	if u.transformer == nil {
		u.transformer = transform.New()
	}
	if u.batchSize <= 0 || u.batchSize > store.MaxBatchSize() {
		u.batchSize = store.MaxBatchSize()
	}
	return u
}

// Upload writes records one at a time. The returned error is non-nil only
// when the known SKUs could not be loaded, in which case nothing is written.
func (u *Uploader) Upload(ctx context.Context, records []model.RawRecord, onProgress ProgressFunc) (Summary, error) {
	ctx, span := tracer.Start(ctx, "ingest.Upload")
	defer span.End()
	span.SetAttributes(attribute.Int("records", len(records)))
	start := time.Now()

	coll := u.store.Collection(u.collection)
	known, err := dedupe.Load(ctx, coll)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return Summary{Total: len(records)}, err
	}

	sum := Summary{Total: len(records), Results: make([]Result, 0, len(records))}
	attempted := false
	for _, raw := range records {
		p := u.transformer.Transform(raw)
		if known.ShouldSkip(p.SKU) {
			u.skip(&sum, p)
			continue
		}
		if attempted {
			wait(ctx, u.delay)
		}
		attempted = true

		if err := u.writeOne(ctx, coll, &p); err != nil {
			u.fail(&sum, p, err)
		} else {
			known.Add(p.SKU)
			u.succeed(ctx, &sum, p)
		}
		if onProgress != nil {
			onProgress(sum.progress(p.Name))
		}
	}

	u.finish(span, sum, start)
	return sum, nil
}

func (u *Uploader) writeOne(ctx context.Context, coll *docstore.Collection, p *model.Product) error {
	stamp(p, u.store.Now())
	f, err := p.ToFields()
	if err != nil {
		return err
	}
	id, err := coll.Add(ctx, f)
	if err != nil {
		return err
	}
	p.ID = id
	return nil
}

// pending is a queued write, or a skip decided while writes were queued
// ahead of it. Skips ride in the queue so results and tallies stay in input
// order.
type pending struct {
	product model.Product
	fields  docstore.Fields
	skip    bool
}

// UploadBatched has the semantics of Upload but groups writes into atomic
// commits. A failed commit fails every record in it and releases their SKUs.
func (u *Uploader) UploadBatched(ctx context.Context, records []model.RawRecord, onProgress ProgressFunc) (Summary, error) {
	ctx, span := tracer.Start(ctx, "ingest.UploadBatched")
	defer span.End()
	span.SetAttributes(attribute.Int("records", len(records)), attribute.Int("batch_size", u.batchSize))
	start := time.Now()

	known, err := dedupe.Load(ctx, u.store.Collection(u.collection))
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return Summary{Total: len(records)}, err
	}

	sum := Summary{Total: len(records), Results: make([]Result, 0, len(records))}
	var queue []pending
	writes, commits := 0, 0
	flush := func() {
		if writes == 0 {
			return
		}
		if commits > 0 {
			wait(ctx, u.delay)
		}
		commits++
		err := u.commit(ctx, queue)
		if err != nil {
			u.metrics.IngestBatch("failed")
			u.log.Error("batch commit failed", zap.Int("records", writes), zap.Error(err))
		} else {
			u.metrics.IngestBatch("committed")
		}
		for _, pw := range queue {
			switch {
			case pw.skip:
				u.skip(&sum, pw.product)
				continue
			case err != nil:
				known.Remove(pw.product.SKU)
				u.fail(&sum, pw.product, err)
			default:
				u.succeed(ctx, &sum, pw.product)
			}
			if onProgress != nil {
				onProgress(sum.progress(pw.product.Name))
			}
		}
		queue = queue[:0]
		writes = 0
	}

	for _, raw := range records {
		p := u.transformer.Transform(raw)
		if known.ShouldSkip(p.SKU) {
			if writes == 0 {
				u.skip(&sum, p)
			} else {
				queue = append(queue, pending{product: p, skip: true})
			}
			continue
		}
		stamp(&p, u.store.Now())
		p.ID = uuid.NewString()
		f, err := p.ToFields()
		if err != nil {
			flush()
			u.fail(&sum, p, err)
			if onProgress != nil {
				onProgress(sum.progress(p.Name))
			}
			continue
		}
		known.Add(p.SKU)
		queue = append(queue, pending{product: p, fields: f})
		writes++
		if writes == u.batchSize {
			flush()
		}
	}
	flush()

	u.finish(span, sum, start)
	return sum, nil
}

func (u *Uploader) commit(ctx context.Context, queue []pending) error {
	b := u.store.Batch()
	n := 0
	for _, pw := range queue {
		if pw.skip {
			continue
		}
		b.Set(u.collection, pw.product.ID, pw.fields)
		n++
	}
	if err := b.Commit(ctx); err != nil {
		return fmt.Errorf("commit %d records: %w", n, err)
	}
	return nil
}

func stamp(p *model.Product, now time.Time) {
	p.CreatedAt = now
	p.UpdatedAt = now
	p.Refresh()
}

func (u *Uploader) skip(sum *Summary, p model.Product) {
	sum.Skipped++
	sum.Results = append(sum.Results, Result{Name: p.Name, SKU: p.SKU, Skipped: true})
	u.metrics.IngestRecord("skipped")
	u.log.Info("skipping existing sku", zap.String("sku", p.SKU), zap.String("name", p.Name))
}

func (u *Uploader) fail(sum *Summary, p model.Product, err error) {
	sum.Errors++
	sum.Results = append(sum.Results, Result{Name: p.Name, SKU: p.SKU, Error: err.Error()})
	u.metrics.IngestRecord("error")
	u.log.Error("upload failed", zap.String("sku", p.SKU), zap.String("name", p.Name), zap.Error(err))
}

func (u *Uploader) succeed(ctx context.Context, sum *Summary, p model.Product) {
	sum.Uploaded++
	sum.Results = append(sum.Results, Result{Name: p.Name, SKU: p.SKU, ID: p.ID, Success: true})
	u.metrics.IngestRecord("uploaded")
	u.log.Debug("uploaded", zap.String("sku", p.SKU), zap.String("id", p.ID))
	if u.events == nil {
		return
	}
	err := u.events.Append(ctx, changelog.Event{
		Op:      changelog.OpImport,
		ID:      p.ID,
		SKU:     p.SKU,
		Product: &p,
		TS:      p.CreatedAt.UnixMilli(),
	})
	u.metrics.EventAppended(err)
	if err != nil {
		u.log.Warn("changelog append failed", zap.String("id", p.ID), zap.Error(err))
	}
}

func (u *Uploader) finish(span trace.Span, sum Summary, start time.Time) {
	u.metrics.IngestRun(time.Since(start))
	span.SetAttributes(
		attribute.Int("uploaded", sum.Uploaded),
		attribute.Int("skipped", sum.Skipped),
		attribute.Int("errors", sum.Errors),
	)
	u.log.Info("ingestion finished",
		zap.Int("total", sum.Total),
		zap.Int("uploaded", sum.Uploaded),
		zap.Int("skipped", sum.Skipped),
		zap.Int("errors", sum.Errors),
		zap.Duration("elapsed", time.Since(start)),
	)
}

// wait pauses between writes unless ctx ends first.
func wait(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
