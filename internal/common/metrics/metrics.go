// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assistant_requests_total",
			Help: "Total number of queries handled, by intent",
		},
		[]string{"intent"},
	)

	StageFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assistant_stage_failures_total",
			Help: "Total number of stage failures, by stage and error code",
		},
		[]string{"stage", "error_code"},
	)

	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "assistant_request_duration_seconds",
			Help: "Duration of request handling in seconds",
		},
		[]string{"intent"},
	)

	SQLAttempts = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "assistant_sql_attempts",
			Help:    "Attempts consumed per analysis request",
			Buckets: []float64{1, 2, 3},
		},
	)

	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assistant_cache_events_total",
			Help: "Analysis cache hits and misses",
		},
		[]string{"outcome"},
	)
)
