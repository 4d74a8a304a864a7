// Package metrics holds the Prometheus collectors of the catalog services.
// Every helper is safe to call on a nil *Registry.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Registry struct {
	reg            *prometheus.Registry
	IngestRecords  *prometheus.CounterVec
	IngestBatches  *prometheus.CounterVec
	IngestDuration prometheus.Histogram
	QueryStrategy  *prometheus.CounterVec
	QueryErrors    prometheus.Counter
	CacheLookups   *prometheus.CounterVec
	EventsAppended prometheus.Counter
	EventErrors    prometheus.Counter

	// restore
	ReplayApplied      prometheus.Counter
	ReplaySkipped      prometheus.Counter
	ReplayBytes        prometheus.Counter
	TTRSec             prometheus.Gauge
	LastManifestAgeSec prometheus.Gauge
	SnapshotDocs       prometheus.Gauge
}

func NewRegistry() *Registry {
	r := prometheus.NewRegistry()
	ingestRecords := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_ingest_records_total",
		Help: "Ingested records by outcome (uploaded, skipped, error).",
	}, []string{"outcome"})
	ingestBatches := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_ingest_batches_total",
		Help: "Batch commits by result (committed, failed).",
	}, []string{"result"})
	ingestDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "catalog_ingest_run_seconds",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
	})
	queryStrategy := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_query_plans_total",
		Help: "Listing queries by execution strategy.",
	}, []string{"strategy"})
	queryErrors := prometheus.NewCounter(prometheus.CounterOpts{Name: "catalog_query_unavailable_total"})
	cacheLookups := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_list_cache_lookups_total",
	}, []string{"result"})
	eventsAppended := prometheus.NewCounter(prometheus.CounterOpts{Name: "catalog_changelog_appended_total"})
	eventErrors := prometheus.NewCounter(prometheus.CounterOpts{Name: "catalog_changelog_errors_total"})

	applied := prometheus.NewCounter(prometheus.CounterOpts{Name: "catalog_replay_applied_total"})
	skipped := prometheus.NewCounter(prometheus.CounterOpts{Name: "catalog_replay_skipped_total"})
	replayBytes := prometheus.NewCounter(prometheus.CounterOpts{Name: "catalog_replay_bytes_total"})
	ttr := prometheus.NewGauge(prometheus.GaugeOpts{Name: "catalog_recovery_ttr_seconds"})
	lastAge := prometheus.NewGauge(prometheus.GaugeOpts{Name: "catalog_last_manifest_age_seconds"})
	snapshotDocs := prometheus.NewGauge(prometheus.GaugeOpts{Name: "catalog_snapshot_documents"})

	r.MustRegister(ingestRecords, ingestBatches, ingestDuration, queryStrategy, queryErrors,
		cacheLookups, eventsAppended, eventErrors,
		applied, skipped, replayBytes, ttr, lastAge, snapshotDocs)
	return &Registry{
		reg:                r,
		IngestRecords:      ingestRecords,
		IngestBatches:      ingestBatches,
		IngestDuration:     ingestDuration,
		QueryStrategy:      queryStrategy,
		QueryErrors:        queryErrors,
		CacheLookups:       cacheLookups,
		EventsAppended:     eventsAppended,
		EventErrors:        eventErrors,
		ReplayApplied:      applied,
		ReplaySkipped:      skipped,
		ReplayBytes:        replayBytes,
		TTRSec:             ttr,
		LastManifestAgeSec: lastAge,
		SnapshotDocs:       snapshotDocs,
	}
}

func (r *Registry) Handler() http.Handler { return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{}) }

func (r *Registry) IngestRecord(outcome string) {
	if r != nil {
		r.IngestRecords.WithLabelValues(outcome).Inc()
	}
}

func (r *Registry) IngestBatch(result string) {
	if r != nil {
		r.IngestBatches.WithLabelValues(result).Inc()
	}
}

func (r *Registry) IngestRun(d time.Duration) {
	if r != nil {
		r.IngestDuration.Observe(d.Seconds())
	}
}

func (r *Registry) QueryPlanned(strategy string) {
	if r != nil {
		r.QueryStrategy.WithLabelValues(strategy).Inc()
	}
}

func (r *Registry) QueryUnavailable() {
	if r != nil {
		r.QueryErrors.Inc()
	}
}

func (r *Registry) CacheLookup(result string) {
	if r != nil {
		r.CacheLookups.WithLabelValues(result).Inc()
	}
}

func (r *Registry) EventAppended(err error) {
	if r == nil {
		return
	}
	if err != nil {
		r.EventErrors.Inc()
		return
	}
	r.EventsAppended.Inc()
}

func (r *Registry) Replayed(applied, skipped int, bytes int64) {
	if r != nil {
		r.ReplayApplied.Add(float64(applied))
		r.ReplaySkipped.Add(float64(skipped))
		r.ReplayBytes.Add(float64(bytes))
	}
}
