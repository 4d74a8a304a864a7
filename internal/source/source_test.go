package source

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	ck "github.com/confluentinc/confluent-kafka-go/v2/kafka"

	"storefront/internal/model"
)

func TestDecode_ArrayAndStream(t *testing.T) {
	cases := map[string]string{
		"array":  ` [ {"name":"A","price":"1,200"}, {"name":"B","featured":"yes"} ]`,
		"stream": "{\"name\":\"A\",\"price\":\"1,200\"}\n{\"name\":\"B\",\"featured\":\"yes\"}\n",
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			recs, err := Decode(strings.NewReader(in))
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			if len(recs) != 2 || recs[0].Price.Value != 1200 || !recs[1].Featured.Or(false) {
				t.Fatalf("recs=%+v", recs)
			}
		})
	}
	if recs, err := Decode(strings.NewReader("  \n")); err != nil || len(recs) != 0 {
		t.Fatalf("empty input: %v %v", recs, err)
	}
	if _, err := Decode(strings.NewReader(`[{"name":`)); err == nil {
		t.Fatalf("expected error for truncated array")
	}
}

func TestFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "records.json")
	if err := os.WriteFile(path, []byte(`[{"name":"Silk","category":"silk"}]`), 0o644); err != nil {
		t.Fatal(err)
	}
	recs, err := File{Path: path}.Records(context.Background())
	if err != nil || len(recs) != 1 || recs[0].Category.String() != "silk" {
		t.Fatalf("recs=%+v err=%v", recs, err)
	}
	if _, err := (File{Path: path + ".missing"}).Records(context.Background()); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestHTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/broken" {
			http.Error(w, "upstream down", http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"name":"Remote","price":499}]`))
	}))
	defer srv.Close()

	recs, err := HTTP{URL: srv.URL + "/records"}.Records(context.Background())
	if err != nil || len(recs) != 1 || recs[0].Name.String() != "Remote" {
		t.Fatalf("recs=%+v err=%v", recs, err)
	}
	_, err = HTTP{URL: srv.URL + "/broken", Client: srv.Client()}.Records(context.Background())
	if err == nil || !strings.Contains(err.Error(), "upstream down") {
		t.Fatalf("want status error, got %v", err)
	}
}

func TestSample(t *testing.T) {
	recs, err := Sample().Records(context.Background())
	if err != nil || len(recs) == 0 {
		t.Fatalf("sample: %d %v", len(recs), err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := Sample().Records(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("want context.Canceled, got %v", err)
	}
}

type fakeConsumer struct {
	msgs      []*ck.Message
	commits   int
	closed    bool
	failAfter error
}

func (f *fakeConsumer) ReadMessage(time.Duration) (*ck.Message, error) {
	if len(f.msgs) == 0 {
		if f.failAfter != nil {
			return nil, f.failAfter
		}
		return nil, ck.NewError(ck.ErrTimedOut, "timed out", false)
	}
	m := f.msgs[0]
	f.msgs = f.msgs[1:]
	return m, nil
}

func (f *fakeConsumer) Commit() ([]ck.TopicPartition, error) {
	f.commits++
	return nil, nil
}

func (f *fakeConsumer) Close() error {
	f.closed = true
	return nil
}

func msgs(values ...string) []*ck.Message {
	out := make([]*ck.Message, len(values))
	for i, v := range values {
		out[i] = &ck.Message{Value: []byte(v)}
	}
	return out
}

func TestKafka_DrainsUntilIdle(t *testing.T) {
	fc := &fakeConsumer{msgs: msgs(`{"name":"A"}`, `not json`, `{"name":"B","sku":"B-1"}`)}
	k := NewKafkaWith(fc)
	recs, err := k.Records(context.Background())
	if err != nil {
		t.Fatalf("records: %v", err)
	}
	if len(recs) != 2 || recs[1].SKU.String() != "B-1" {
		t.Fatalf("recs=%+v", recs)
	}
	if fc.commits != 1 {
		t.Fatalf("commits=%d", fc.commits)
	}
	_ = k.Close()
	if !fc.closed {
		t.Fatalf("consumer not closed")
	}
}

func TestKafka_MaxAndErrors(t *testing.T) {
	fc := &fakeConsumer{msgs: msgs(`{"name":"A"}`, `{"name":"B"}`, `{"name":"C"}`)}
	k := NewKafkaWith(fc)
	k.Max = 2
	recs, err := k.Records(context.Background())
	if err != nil || len(recs) != 2 || len(fc.msgs) != 1 {
		t.Fatalf("max not honoured: %d records, %d left, err=%v", len(recs), len(fc.msgs), err)
	}

	broken := &fakeConsumer{failAfter: ck.NewError(ck.ErrAllBrokersDown, "all brokers down", false)}
	if _, err := NewKafkaWith(broken).Records(context.Background()); err == nil {
		t.Fatalf("expected broker error")
	}
	if broken.commits != 0 {
		t.Fatalf("nothing read, nothing to commit")
	}
}

type fakeProducer struct {
	sent    []*ck.Message
	flushed bool
}

func (f *fakeProducer) Produce(m *ck.Message, _ chan ck.Event) error {
	f.sent = append(f.sent, m)
	return nil
}

func (f *fakeProducer) Flush(int) int {
	f.flushed = true
	return 0
}

func (f *fakeProducer) Close() {}

func TestPublisher(t *testing.T) {
	fp := &fakeProducer{}
	p := NewPublisherWith(fp, "catalog.raw-records")
	_ = p.Publish(model.RawRecord{Name: model.Str("A"), SKU: model.Str("A-1")})
	_ = p.Publish(model.RawRecord{Name: model.Str("B")})
	if left := p.Close(time.Second); left != 0 || !fp.flushed {
		t.Fatalf("close: left=%d flushed=%v", left, fp.flushed)
	}
	if len(fp.sent) != 2 || string(fp.sent[0].Key) != "A-1" || fp.sent[1].Key != nil {
		t.Fatalf("sent=%+v", fp.sent)
	}
	if *fp.sent[0].TopicPartition.Topic != "catalog.raw-records" {
		t.Fatalf("topic=%s", *fp.sent[0].TopicPartition.Topic)
	}
	recs, err := Decode(strings.NewReader(string(fp.sent[0].Value)))
	if err != nil || recs[0].Name.String() != "A" {
		t.Fatalf("published value does not decode: %v", err)
	}
}
