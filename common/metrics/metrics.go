// Package metrics exposes the service's Prometheus instrumentation. All
// recording methods are safe on a nil receiver so packages can accept an
// optional *Metrics without guarding every call site.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every collector the service registers
type Metrics struct {
	registry *prometheus.Registry

	admissionDecisions *prometheus.CounterVec
	quotaViolations    *prometheus.CounterVec
	jobsTotal          *prometheus.CounterVec
	jobRetries         prometheus.Counter
	queueDepth         prometheus.Gauge
	processingDuration prometheus.Histogram
	cacheHits          prometheus.Counter
	cacheMisses        prometheus.Counter
}

// New creates a metrics set on its own registry
func New() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		admissionDecisions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "mediahost_admission_decisions_total",
			Help: "Rate limit admission decisions by outcome and deciding window",
		}, []string{"decision", "window"}),
		quotaViolations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "mediahost_quota_violations_total",
			Help: "Quota check violations by kind",
		}, []string{"kind"}),
		jobsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "mediahost_processing_jobs_total",
			Help: "Processing jobs by terminal or intermediate status",
		}, []string{"status"}),
		jobRetries: factory.NewCounter(prometheus.CounterOpts{
			Name: "mediahost_processing_job_retries_total",
			Help: "Processing job retry dispatches",
		}),
		queueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Name: "mediahost_processing_queue_depth",
			Help: "Jobs waiting in the processing queue",
		}),
		processingDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "mediahost_processing_duration_seconds",
			Help:    "Wall time of processing attempts",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		}),
		cacheHits: factory.NewCounter(prometheus.CounterOpts{
			Name: "mediahost_cache_hits_total",
			Help: "Transform cache hits",
		}),
		cacheMisses: factory.NewCounter(prometheus.CounterOpts{
			Name: "mediahost_cache_misses_total",
			Help: "Transform cache misses",
		}),
	}
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordAdmission counts one rate limit decision
func (m *Metrics) RecordAdmission(decision, window string) {
	if m == nil {
		return
	}
	m.admissionDecisions.WithLabelValues(decision, window).Inc()
}

// RecordQuotaViolation counts one failed quota check dimension
func (m *Metrics) RecordQuotaViolation(kind string) {
	if m == nil {
		return
	}
	m.quotaViolations.WithLabelValues(kind).Inc()
}

// JobStatusChanged counts a job entering the given status
func (m *Metrics) JobStatusChanged(status string) {
	if m == nil {
		return
	}
	m.jobsTotal.WithLabelValues(status).Inc()
}

// JobRetried counts one retry dispatch
func (m *Metrics) JobRetried() {
	if m == nil {
		return
	}
	m.jobRetries.Inc()
}

// SetQueueDepth records the current queue backlog
func (m *Metrics) SetQueueDepth(depth int) {
	if m == nil {
		return
	}
	m.queueDepth.Set(float64(depth))
}

// ObserveProcessing records the wall time of one processing attempt
func (m *Metrics) ObserveProcessing(seconds float64) {
	if m == nil {
		return
	}
	m.processingDuration.Observe(seconds)
}

// CacheHit counts a transform cache hit
func (m *Metrics) CacheHit() {
	if m == nil {
		return
	}
	m.cacheHits.Inc()
}

// CacheMiss counts a transform cache miss
func (m *Metrics) CacheMiss() {
	if m == nil {
		return
	}
	m.cacheMisses.Inc()
}
