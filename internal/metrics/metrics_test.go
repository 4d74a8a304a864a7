package metrics

import (
	"errors"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRegistry_Helpers(t *testing.T) {
	r := NewRegistry()
	r.IngestRecord("uploaded")
	r.IngestRecord("uploaded")
	r.IngestRecord("skipped")
	r.QueryPlanned("fallback")
	r.EventAppended(nil)
	r.EventAppended(errors.New("boom"))
	r.Replayed(3, 1, 120)

	if got := testutil.ToFloat64(r.IngestRecords.WithLabelValues("uploaded")); got != 2 {
		t.Fatalf("uploaded=%v", got)
	}
	if got := testutil.ToFloat64(r.QueryStrategy.WithLabelValues("fallback")); got != 1 {
		t.Fatalf("fallback=%v", got)
	}
	if testutil.ToFloat64(r.EventsAppended) != 1 || testutil.ToFloat64(r.EventErrors) != 1 {
		t.Fatalf("event counters wrong")
	}
	if testutil.ToFloat64(r.ReplayBytes) != 120 {
		t.Fatalf("replay bytes wrong")
	}

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if !strings.Contains(rec.Body.String(), "catalog_ingest_records_total") {
		t.Fatalf("exposition missing ingest counter")
	}
}

func TestRegistry_NilSafe(t *testing.T) {
	var r *Registry
	r.IngestRecord("error")
	r.IngestBatch("failed")
	r.QueryPlanned("server")
	r.QueryUnavailable()
	r.CacheLookup("hit")
	r.EventAppended(nil)
	r.Replayed(1, 1, 1)
}
