package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "search",
		Name:      "http_requests_total",
		Help:      "Total HTTP requests by method, path and status code.",
	}, []string{"method", "path", "status"})

	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "search",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration in seconds.",
		Buckets:   []float64{0.05, 0.1, 0.3, 0.5, 1, 2, 5, 10, 20},
	}, []string{"method", "path"})

	SourceRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "search",
		Name:      "source_requests_total",
		Help:      "Total source invocations by source key, kind and result status.",
	}, []string{"source", "kind", "status"})

	SourceRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "search",
		Name:      "source_request_duration_seconds",
		Help:      "Source invocation duration in seconds.",
		Buckets:   []float64{0.05, 0.1, 0.5, 1, 2, 3, 5, 8, 10},
	}, []string{"source"})

	SchedulerRunningTasks = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "search",
		Name:      "scheduler_running_tasks",
		Help:      "Number of source tasks currently executing.",
	})

	AggregationDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "search",
		Name:      "aggregation_duration_seconds",
		Help:      "End-to-end aggregation duration by mode (batch or stream).",
		Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 15, 20, 30},
	}, []string{"mode"})

	StreamEventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "search",
		Name:      "stream_events_total",
		Help:      "Total stream events written by event type.",
	}, []string{"type"})

	StreamClosedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "search",
		Name:      "stream_closed_total",
		Help:      "Total streams terminated early by a failed write or client disconnect.",
	})

	ContentCacheHitsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "search",
		Name:      "content_cache_hits_total",
		Help:      "Total number of content-API response cache hits.",
	})

	ContentCacheMissesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "search",
		Name:      "content_cache_misses_total",
		Help:      "Total number of content-API response cache misses.",
	})

	CatalogEntries = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "search",
		Name:      "local_catalog_entries",
		Help:      "Number of entries in the local catalog index.",
	})

	CatalogRebuildDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "search",
		Name:      "local_catalog_rebuild_duration_seconds",
		Help:      "Local catalog rebuild duration in seconds.",
		Buckets:   []float64{1, 5, 10, 30, 60, 120, 300},
	})
)

func Register(reg prometheus.Registerer) {
	reg.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		SourceRequestsTotal,
		SourceRequestDuration,
		SchedulerRunningTasks,
		AggregationDuration,
		StreamEventsTotal,
		StreamClosedTotal,
		ContentCacheHitsTotal,
		ContentCacheMissesTotal,
		CatalogEntries,
		CatalogRebuildDuration,
	)
}
