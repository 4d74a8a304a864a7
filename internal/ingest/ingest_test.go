package ingest

import (
	"bytes"
	"context"
	"errors"
	"math/rand"
	"sync"
	"testing"
	"time"

	"storefront/internal/changelog"
	"storefront/internal/docstore"
	"storefront/internal/model"
	"storefront/internal/transform"
)

var errInjected = errors.New("injected write failure")

// flakyEngine fails any Apply whose mutations contain marker.
type flakyEngine struct {
	docstore.Engine
	marker  []byte
	scanErr error
}

func (f *flakyEngine) Apply(muts []docstore.Mutation) error {
	for _, m := range muts {
		if f.marker != nil && bytes.Contains(m.Value, f.marker) {
			return errInjected
		}
	}
	return f.Engine.Apply(muts)
}

func (f *flakyEngine) Scan(prefix []byte, fn func(k, v []byte) error) error {
	if f.scanErr != nil {
		return f.scanErr
	}
	return f.Engine.Scan(prefix, fn)
}

type recordingWriter struct {
	mu     sync.Mutex
	events []changelog.Event
}

func (w *recordingWriter) Append(_ context.Context, e changelog.Event) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.events = append(w.events, e)
	return nil
}

func newUploader(t *testing.T, engine docstore.Engine, opts ...Option) (*Uploader, *docstore.Store) {
	t.Helper()
	store := docstore.New(engine)
	tr := transform.New(
		transform.WithRand(rand.New(rand.NewSource(1))),
		transform.WithClock(func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }),
	)
	base := []Option{WithDelay(0), WithTransformer(tr)}
	return New(store, append(base, opts...)...), store
}

func rec(name, sku string) model.RawRecord {
	r := model.RawRecord{Name: model.Str(name), Category: model.Str("silk"), Price: model.Num(100)}
	if sku != "" {
		r.SKU = model.Str(sku)
	}
	return r
}

func storedProducts(t *testing.T, store *docstore.Store) map[string]model.Product {
	t.Helper()
	out := map[string]model.Product{}
	err := store.Collection(DefaultCollection).Stream(context.Background(), func(d docstore.Document) error {
		p, err := model.FromFields(d.ID, d.Fields)
		if err != nil {
			return err
		}
		out[p.Name] = p
		return nil
	})
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	return out
}

func TestUpload_Scenario(t *testing.T) {
	u, store := newUploader(t, docstore.NewMemoryEngine())
	in := []model.RawRecord{
		{Name: model.Str("A"), Price: model.Num(100)},
		{Name: model.Str("B")},
	}
	sum, err := u.Upload(context.Background(), in, nil)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if sum.Uploaded != 2 || sum.Skipped != 0 || sum.Errors != 0 || sum.Total != 2 {
		t.Fatalf("summary=%+v", sum)
	}
	got := storedProducts(t, store)
	if a := got["A"]; a.Price != 100 || a.OriginalPrice != 100 {
		t.Fatalf("A stored as %+v", a)
	}
	if b := got["B"]; b.Price != 0 || b.OriginalPrice != 0 {
		t.Fatalf("B stored as %+v", b)
	}
}

func TestUpload_Idempotent(t *testing.T) {
	u, _ := newUploader(t, docstore.NewMemoryEngine())
	in := []model.RawRecord{rec("A", "SLK-A-0001"), rec("B", "SLK-B-0002"), rec("C", "SLK-C-0003")}

	first, err := u.Upload(context.Background(), in, nil)
	if err != nil || first.Uploaded != 3 {
		t.Fatalf("first run: %+v %v", first, err)
	}
	second, err := u.Upload(context.Background(), in, nil)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if second.Uploaded != 0 || second.Skipped != 3 || second.Errors != 0 {
		t.Fatalf("second run summary=%+v", second)
	}
}

func TestUpload_DuplicateWithinRun(t *testing.T) {
	for _, order := range [][]string{{"first", "second"}, {"second", "first"}} {
		u, store := newUploader(t, docstore.NewMemoryEngine())
		in := []model.RawRecord{rec(order[0], "SLK-DUP-0001"), rec(order[1], "SLK-DUP-0001")}
		sum, err := u.Upload(context.Background(), in, nil)
		if err != nil {
			t.Fatalf("upload: %v", err)
		}
		if sum.Uploaded != 1 || sum.Skipped != 1 {
			t.Fatalf("order %v: summary=%+v", order, sum)
		}
		if got := storedProducts(t, store); len(got) != 1 || got[order[0]].SKU != "SLK-DUP-0001" {
			t.Fatalf("order %v: stored=%v", order, got)
		}
	}
}

func TestUpload_PartialFailureContinues(t *testing.T) {
	engine := &flakyEngine{Engine: docstore.NewMemoryEngine(), marker: []byte(`"sku":"SLK-K-FAIL"`)}
	u, store := newUploader(t, engine)
	in := []model.RawRecord{
		rec("one", "SLK-1"),
		rec("k", "SLK-K-FAIL"),
		rec("three", "SLK-3"),
		rec("four", "SLK-4"),
		rec("one again", "SLK-1"),
	}
	sum, err := u.Upload(context.Background(), in, nil)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if sum.Errors != 1 || sum.Skipped != 1 || sum.Uploaded != sum.Total-sum.Errors-sum.Skipped {
		t.Fatalf("summary=%+v", sum)
	}
	if len(sum.Results) != len(in) {
		t.Fatalf("results=%d", len(sum.Results))
	}
	if r := sum.Results[1]; r.Success || r.Error == "" || r.SKU != "SLK-K-FAIL" {
		t.Fatalf("failed result=%+v", r)
	}
	if !sum.Results[3].Success {
		t.Fatalf("records after the failure must still be attempted: %+v", sum.Results[3])
	}
	if got := storedProducts(t, store); len(got) != 3 {
		t.Fatalf("stored %d products", len(got))
	}
}

func TestUpload_ProgressInOrder(t *testing.T) {
	engine := &flakyEngine{Engine: docstore.NewMemoryEngine(), marker: []byte(`"sku":"SLK-BAD"`)}
	u, _ := newUploader(t, engine)
	in := []model.RawRecord{rec("a", "SLK-A"), rec("dup", "SLK-A"), rec("bad", "SLK-BAD"), rec("c", "SLK-C")}

	var got []Progress
	sum, err := u.Upload(context.Background(), in, func(p Progress) { got = append(got, p) })
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	want := []Progress{
		{Uploaded: 1, Total: 4, Current: "a"},
		{Uploaded: 1, Total: 4, Skipped: 1, Errors: 1, Current: "bad"},
		{Uploaded: 2, Total: 4, Skipped: 1, Errors: 1, Current: "c"},
	}
	if len(got) != len(want) {
		t.Fatalf("progress events=%+v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("progress[%d]=%+v want %+v", i, got[i], want[i])
		}
	}
	if last := got[len(got)-1]; last.Uploaded != sum.Uploaded || last.Errors != sum.Errors {
		t.Fatalf("final progress %+v disagrees with summary %+v", last, sum)
	}
}

func TestUpload_LoadFailureWritesNothing(t *testing.T) {
	engine := &flakyEngine{Engine: docstore.NewMemoryEngine(), scanErr: errors.New("store down")}
	u, _ := newUploader(t, engine)
	calls := 0
	sum, err := u.Upload(context.Background(), []model.RawRecord{rec("a", "SLK-A")}, func(Progress) { calls++ })
	if err == nil {
		t.Fatalf("expected load error")
	}
	if sum.Uploaded != 0 || calls != 0 || sum.Total != 1 {
		t.Fatalf("summary=%+v calls=%d", sum, calls)
	}
}

func TestUpload_CancelledMidRun(t *testing.T) {
	u, _ := newUploader(t, docstore.NewMemoryEngine())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	in := []model.RawRecord{rec("a", "SLK-A"), rec("b", "SLK-B"), rec("c", "SLK-C")}
	sum, err := u.Upload(ctx, in, func(Progress) { cancel() })
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if sum.Uploaded != 1 || sum.Errors != 2 || sum.Total != 3 {
		t.Fatalf("summary=%+v", sum)
	}
}

func TestUpload_EmitsImportEvents(t *testing.T) {
	w := &recordingWriter{}
	u, _ := newUploader(t, docstore.NewMemoryEngine(), WithChangelog(w))
	sum, err := u.Upload(context.Background(), []model.RawRecord{rec("a", "SLK-A"), rec("a2", "SLK-A"), rec("b", "SLK-B")}, nil)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if len(w.events) != sum.Uploaded {
		t.Fatalf("events=%d uploaded=%d", len(w.events), sum.Uploaded)
	}
	for i, e := range w.events {
		if e.Op != changelog.OpImport || e.ID == "" || e.Product == nil || e.Product.ID != e.ID {
			t.Fatalf("event[%d]=%+v", i, e)
		}
	}
}

func TestUploadBatched_FailedBatchCountsEveryRecord(t *testing.T) {
	engine := &flakyEngine{Engine: docstore.NewMemoryEngine(), marker: []byte(`"sku":"SLK-BAD"`)}
	u, store := newUploader(t, engine, WithBatchSize(2))
	in := []model.RawRecord{
		rec("a", "SLK-A"), rec("b", "SLK-B"),
		rec("c", "SLK-C"), rec("bad", "SLK-BAD"),
		rec("d", "SLK-D"), rec("a again", "SLK-A"),
	}
	var events []Progress
	sum, err := u.UploadBatched(context.Background(), in, func(p Progress) { events = append(events, p) })
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if sum.Uploaded != 3 || sum.Errors != 2 || sum.Skipped != 1 || sum.Total != 6 {
		t.Fatalf("summary=%+v", sum)
	}
	if len(events) != 5 {
		t.Fatalf("progress events=%d", len(events))
	}
	got := storedProducts(t, store)
	if _, ok := got["c"]; ok {
		t.Fatalf("record sharing a failed batch must not be stored")
	}
	if len(got) != 3 {
		t.Fatalf("stored=%d", len(got))
	}

	// released SKUs are importable by a later run once the cause is gone
	engine.marker = nil
	retry, err := u.UploadBatched(context.Background(), in, nil)
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if retry.Uploaded != 2 || retry.Skipped != 4 {
		t.Fatalf("retry summary=%+v", retry)
	}
}

func TestUploadBatched_ProgressMatchesUpload(t *testing.T) {
	in := []model.RawRecord{rec("a", "SLK-A"), rec("dup", "SLK-A"), rec("c", "SLK-C")}
	run := func(batched bool) (Summary, []Progress) {
		u, _ := newUploader(t, docstore.NewMemoryEngine(), WithBatchSize(10))
		upload := u.Upload
		if batched {
			upload = u.UploadBatched
		}
		var events []Progress
		sum, err := upload(context.Background(), in, func(p Progress) { events = append(events, p) })
		if err != nil {
			t.Fatalf("upload batched=%v: %v", batched, err)
		}
		return sum, events
	}

	seqSum, seqEvents := run(false)
	batSum, batEvents := run(true)
	want := []Progress{
		{Uploaded: 1, Total: 3, Current: "a"},
		{Uploaded: 2, Total: 3, Skipped: 1, Current: "c"},
	}
	for name, got := range map[string][]Progress{"sequential": seqEvents, "batched": batEvents} {
		if len(got) != len(want) {
			t.Fatalf("%s progress=%+v", name, got)
		}
		for i := range want {
			if got[i] != want[i] {
				t.Fatalf("%s progress[%d]=%+v want %+v", name, i, got[i], want[i])
			}
		}
	}
	for i, r := range batSum.Results {
		if r.Name != seqSum.Results[i].Name || r.Skipped != seqSum.Results[i].Skipped {
			t.Fatalf("result[%d] batched=%+v sequential=%+v", i, r, seqSum.Results[i])
		}
	}
}

func TestUploadBatched_BatchSizeCappedAtStoreMax(t *testing.T) {
	store := docstore.New(docstore.NewMemoryEngine(), docstore.WithMaxBatchSize(3))
	u := New(store, WithDelay(0), WithBatchSize(1000))
	if u.batchSize != 3 {
		t.Fatalf("batch size=%d", u.batchSize)
	}
	var in []model.RawRecord
	for _, sku := range []string{"S1", "S2", "S3", "S4", "S5", "S6", "S7"} {
		in = append(in, rec(sku, sku))
	}
	sum, err := u.UploadBatched(context.Background(), in, nil)
	if err != nil || sum.Uploaded != 7 {
		t.Fatalf("summary=%+v err=%v", sum, err)
	}
}

func TestWait_ReturnsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	start := time.Now()
	wait(ctx, time.Minute)
	if time.Since(start) > time.Second {
		t.Fatalf("wait ignored cancellation")
	}
}
