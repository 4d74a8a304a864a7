// Package restore rebuilds the catalog collection from the latest snapshot
// and replays the change log written after it.
package restore

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"storefront/internal/changelog"
	"storefront/internal/docstore"
	"storefront/internal/manifest"
	"storefront/internal/metrics"
	"storefront/internal/model"
	"storefront/internal/snapshot"
)

// Result counts replayed events. Events at or before the start offset are
// not counted.
type Result struct {
	Applied    int
	Skipped    int
	Bytes      int64
	LastOffset int64
}

// kafkaMessageReader abstracts kafka.Reader for testability.
type kafkaMessageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

type Option func(*Restorer)

func WithCollection(name string) Option {
	return func(r *Restorer) { r.collection = name }
}

func WithLogger(l *zap.Logger) Option {
	return func(r *Restorer) { r.log = l }
}

func WithMetrics(m *metrics.Registry) Option {
	return func(r *Restorer) { r.metrics = m }
}

// WithIdleTimeout ends a Kafka replay after this long without messages.
func WithIdleTimeout(d time.Duration) Option {
	return func(r *Restorer) { r.idle = d }
}

type Restorer struct {
	store      *docstore.Store
	collection string
	manifest   manifest.Reader
	snapshots  *snapshot.FilesystemSnapshotter
	log        *zap.Logger
	metrics    *metrics.Registry
	idle       time.Duration
	newReader  func(brokers []string, topic string) kafkaMessageReader
}

func NewRestorer(store *docstore.Store, mr manifest.Reader, snapshots *snapshot.FilesystemSnapshotter, opts ...Option) *Restorer {
	r := &Restorer{
		store:      store,
		collection: "products",
		manifest:   mr,
		snapshots:  snapshots,
		log:        zap.NewNop(),
		idle:       5 * time.Second,
		newReader: func(brokers []string, topic string) kafkaMessageReader {
			return kafka.NewReader(kafka.ReaderConfig{
				Brokers:   brokers,
				Topic:     topic,
				Partition: 0,
				MinBytes:  1,
				MaxBytes:  10e6,
			})
		},
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// RestoreFromSnapshot replaces the collection with the snapshot contents. A
// missing snapshot leaves the collection untouched.
func (r *Restorer) RestoreFromSnapshot(ctx context.Context, snapshotID string) (int, error) {
	if snapshotID == "" {
		return 0, nil
	}
	path := r.snapshots.Path(snapshotID)
	dump, err := snapshot.Read(path)
	if err != nil {
		if os.IsNotExist(err) {
			r.log.Warn("snapshot not found, skipping", zap.String("path", path))
			return 0, nil
		}
		return 0, fmt.Errorf("read snapshot: %w", err)
	}

	coll := r.store.Collection(r.collection)
	var stale []string
	if err := coll.Stream(ctx, func(d docstore.Document) error {
		if _, keep := dump.Documents[d.ID]; !keep {
			stale = append(stale, d.ID)
		}
		return nil
	}); err != nil {
		return 0, fmt.Errorf("scan collection: %w", err)
	}

	limit := r.store.MaxBatchSize()
	b := r.store.Batch()
	flush := func() error {
		if b.Len() == 0 {
			return nil
		}
		err := b.Commit(ctx)
		b = r.store.Batch()
		return err
	}
	for _, id := range stale {
		b.Delete(r.collection, id)
		if b.Len() == limit {
			if err := flush(); err != nil {
				return 0, fmt.Errorf("clear stale documents: %w", err)
			}
		}
	}
	for id, f := range dump.Documents {
		b.Set(r.collection, id, f)
		if b.Len() == limit {
			if err := flush(); err != nil {
				return 0, fmt.Errorf("load snapshot: %w", err)
			}
		}
	}
	if err := flush(); err != nil {
		return 0, fmt.Errorf("load snapshot: %w", err)
	}
	r.log.Info("restored snapshot", zap.String("snapshot", snapshotID),
		zap.Int("documents", len(dump.Documents)), zap.Int("removed", len(stale)))
	return len(dump.Documents), nil
}

// apply replays one event. Upserts older than the stored document and
// deletes of missing documents are skipped, so replay is idempotent.
func (r *Restorer) apply(ctx context.Context, e changelog.Event) (bool, error) {
	coll := r.store.Collection(r.collection)
	switch e.Op {
	case changelog.OpCreate, changelog.OpUpdate, changelog.OpImport:
		if e.Product == nil || e.ID == "" {
			return false, fmt.Errorf("%s event without product", e.Op)
		}
		cur, err := coll.Get(ctx, e.ID)
		switch {
		case err == nil:
			stored, derr := model.FromFields(cur.ID, cur.Fields)
			if derr == nil && !stored.UpdatedAt.Before(e.Product.UpdatedAt) {
				return false, nil
			}
		case !errors.Is(err, docstore.ErrNotFound):
			return false, err
		}
		f, err := e.Product.ToFields()
		if err != nil {
			return false, err
		}
		return true, coll.Set(ctx, e.ID, f)
	case changelog.OpDelete:
		err := coll.Delete(ctx, e.ID)
		if errors.Is(err, docstore.ErrNotFound) {
			return false, nil
		}
		return err == nil, err
	default:
		return false, fmt.Errorf("unknown op %q", e.Op)
	}
}

// ReplayFile applies the JSONL change log after line fromOffset.
func (r *Restorer) ReplayFile(ctx context.Context, path string, fromOffset int64) (Result, error) {
	file, err := os.Open(path)
	if err != nil {
		return Result{}, fmt.Errorf("open changelog: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	res := Result{LastOffset: fromOffset}
	var line int64
	for scanner.Scan() {
		line++
		if line <= fromOffset {
			continue
		}
		var e changelog.Event
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			return res, fmt.Errorf("unmarshal line %d: %w", line, err)
		}
		ok, err := r.apply(ctx, e)
		if err != nil {
			return res, fmt.Errorf("apply line %d: %w", line, err)
		}
		res.count(ok, len(scanner.Bytes()), line)
	}
	if err := scanner.Err(); err != nil {
		return res, fmt.Errorf("scan changelog: %w", err)
	}
	r.metrics.Replayed(res.Applied, res.Skipped, res.Bytes)
	return res, nil
}

// ReplayKafka applies events from partition 0 of topic after message index
// fromOffset. It returns once the topic has been idle for the idle timeout.
func (r *Restorer) ReplayKafka(ctx context.Context, brokers []string, topic string, fromOffset int64) (Result, error) {
	rd := r.newReader(brokers, topic)
	defer rd.Close()

	res := Result{LastOffset: fromOffset}
	var idx int64
	for {
		rctx, cancel := context.WithTimeout(ctx, r.idle)
		m, err := rd.ReadMessage(rctx)
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			if errors.Is(err, context.DeadlineExceeded) {
				break
			}
			return res, fmt.Errorf("read kafka: %w", err)
		}
		idx++
		if idx <= fromOffset {
			continue
		}
		var e changelog.Event
		if err := json.Unmarshal(m.Value, &e); err != nil {
			return res, fmt.Errorf("unmarshal event %d: %w", idx, err)
		}
		ok, err := r.apply(ctx, e)
		if err != nil {
			return res, fmt.Errorf("apply event %d: %w", idx, err)
		}
		res.count(ok, len(m.Value), idx)
	}
	r.metrics.Replayed(res.Applied, res.Skipped, res.Bytes)
	return res, nil
}

func (res *Result) count(applied bool, n int, offset int64) {
	if applied {
		res.Applied++
	} else {
		res.Skipped++
	}
	res.Bytes += int64(n)
	res.LastOffset = offset
}

// RestoreAndReplay loads the latest manifest's snapshot and replays the file
// change log after the manifest offset.
func (r *Restorer) RestoreAndReplay(ctx context.Context, changelogPath string) (Result, error) {
	start := time.Now()
	m, err := r.manifest.ReadLatest(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("read manifest: %w", err)
	}
	n, err := r.RestoreFromSnapshot(ctx, m.SnapshotID)
	if err != nil {
		return Result{}, fmt.Errorf("restore snapshot: %w", err)
	}
	res, err := r.ReplayFile(ctx, changelogPath, m.LastChangelogOffset)
	if err != nil {
		return res, err
	}
	r.Observe(m, n, start)
	return res, nil
}

// Observe records recovery timings for a restore that began at start.
func (r *Restorer) Observe(m manifest.Manifest, docs int, start time.Time) {
	if r.metrics == nil {
		return
	}
	r.metrics.TTRSec.Set(time.Since(start).Seconds())
	r.metrics.LastManifestAgeSec.Set(m.Age(time.Now()).Seconds())
	r.metrics.SnapshotDocs.Set(float64(docs))
}
