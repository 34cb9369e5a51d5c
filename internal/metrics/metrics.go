// Package metrics exposes ingest and enrichment counters for Prometheus.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "crashreports"

type Metrics struct {
	registry *prometheus.Registry

	feedFetches     *prometheus.CounterVec
	feedItems       prometheus.Counter
	candidates      *prometheus.CounterVec
	upserts         *prometheus.CounterVec
	ingestRuns      *prometheus.CounterVec
	enrichments     *prometheus.CounterVec
	enrichDuration  prometheus.Histogram
	jobsEnqueued    *prometheus.CounterVec
	lastIngestEpoch prometheus.Gauge
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		feedFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feed_fetches_total",
			Help:      "Feed fetch attempts by result.",
		}, []string{"result"}),
		feedItems: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feed_items_total",
			Help:      "Raw feed items read.",
		}),
		candidates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "candidates_total",
			Help:      "Feed items by normalization outcome.",
		}, []string{"outcome"}),
		upserts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "incident_upserts_total",
			Help:      "Upsert outcomes: created, source_added, skipped, error.",
		}, []string{"outcome"}),
		ingestRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingest_runs_total",
			Help:      "Ingest runs by final status.",
		}, []string{"status"}),
		enrichments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "enrichments_total",
			Help:      "Enrichment attempts by article quality status.",
		}, []string{"status"}),
		enrichDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "enrichment_duration_seconds",
			Help:      "Wall time of one incident enrichment.",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300},
		}),
		jobsEnqueued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "enrichment_jobs_enqueued_total",
			Help:      "Enrichment jobs handed to the queue by reason and result.",
		}, []string{"reason", "result"}),
		lastIngestEpoch: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_ingest_run_timestamp_seconds",
			Help:      "Unix time the last ingest run finished.",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.feedFetches,
		m.feedItems,
		m.candidates,
		m.upserts,
		m.ingestRuns,
		m.enrichments,
		m.enrichDuration,
		m.jobsEnqueued,
		m.lastIngestEpoch,
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// FeedsFetched records one multi-feed fetch.
func (m *Metrics) FeedsFetched(ok, failed, items int) {
	if m == nil {
		return
	}
	if ok > 0 {
		m.feedFetches.WithLabelValues("ok").Add(float64(ok))
	}
	if failed > 0 {
		m.feedFetches.WithLabelValues("error").Add(float64(failed))
	}
	if items > 0 {
		m.feedItems.Add(float64(items))
	}
}

func (m *Metrics) Candidates(outcome string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.candidates.WithLabelValues(outcome).Add(float64(n))
}

func (m *Metrics) Upsert(outcome string) {
	if m == nil {
		return
	}
	m.upserts.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IngestRun(status string, finishedAt time.Time) {
	if m == nil {
		return
	}
	m.ingestRuns.WithLabelValues(status).Inc()
	m.lastIngestEpoch.Set(float64(finishedAt.Unix()))
}

func (m *Metrics) Enrichment(status string, took time.Duration) {
	if m == nil {
		return
	}
	m.enrichments.WithLabelValues(status).Inc()
	m.enrichDuration.Observe(took.Seconds())
}

func (m *Metrics) JobEnqueued(reason string, ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "error"
	}
	m.jobsEnqueued.WithLabelValues(reason, result).Inc()
}

// JobDropped counts jobs refused by a full queue.
func (m *Metrics) JobDropped(reason string) {
	if m == nil {
		return
	}
	m.jobsEnqueued.WithLabelValues(reason, "dropped").Inc()
}
