package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "wonderfilm",
		Name:      "http_requests_total",
		Help:      "Total HTTP requests by method, route and status code.",
	}, []string{"method", "path", "status"})

	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "wonderfilm",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration in seconds.",
		Buckets:   []float64{0.005, 0.05, 0.1, 0.5, 1, 5, 30, 120, 600},
	}, []string{"method", "path"})

	ActiveStreams = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "wonderfilm",
		Name:      "active_streams",
		Help:      "Number of media responses currently being streamed.",
	})

	StreamedBytesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "wonderfilm",
		Name:      "streamed_bytes_total",
		Help:      "Total media bytes written to clients.",
	})

	PlayRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "wonderfilm",
		Name:      "play_requests_total",
		Help:      "Media requests by outcome (full, partial, not_found, traversal, bad_range, busy, missing_param, error).",
	}, []string{"outcome"})

	CatalogEntries = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "wonderfilm",
		Name:      "catalog_entries",
		Help:      "Number of entries in the most recent catalog scan.",
	})

	CatalogScanDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "wonderfilm",
		Name:      "catalog_scan_duration_seconds",
		Help:      "Duration of media root scans in seconds.",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
	})

	CatalogCacheHitsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "wonderfilm",
		Name:      "catalog_cache_hits_total",
		Help:      "Catalog requests answered from a stored snapshot.",
	})
)

func Register(reg prometheus.Registerer) {
	reg.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		ActiveStreams,
		StreamedBytesTotal,
		PlayRequestsTotal,
		CatalogEntries,
		CatalogScanDuration,
		CatalogCacheHitsTotal,
	)
}
