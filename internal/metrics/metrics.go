package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	LoadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mobilitydash_loads_total",
			Help: "Dataset loads by source kind and outcome",
		},
		[]string{"kind", "outcome"},
	)

	LoadDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mobilitydash_load_duration_seconds",
			Help:    "Time to fetch, parse and index a dataset",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind"},
	)

	RowsLoaded = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "mobilitydash_rows_loaded",
			Help: "Rows in the most recently loaded table",
		},
	)

	LocalitiesLoaded = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "mobilitydash_localities_loaded",
			Help: "Distinct localities in the most recently loaded table",
		},
	)

	FetchAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mobilitydash_fetch_attempts_total",
			Help: "Remote source fetch attempts by scheme and status",
		},
		[]string{"scheme", "status"},
	)

	FilterRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mobilitydash_filter_requests_total",
			Help: "Filter requests served, by endpoint",
		},
		[]string{"endpoint"},
	)

	FilterRows = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "mobilitydash_filter_rows",
			Help:    "Rows returned per filter request",
			Buckets: prometheus.ExponentialBuckets(1, 4, 8),
		},
	)

	ChartRenders = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mobilitydash_chart_renders_total",
			Help: "Rendered images by kind and status",
		},
		[]string{"kind", "status"},
	)
)
