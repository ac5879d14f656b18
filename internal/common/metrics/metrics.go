// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	GenerateRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "astro_generate_requests_total",
			Help: "Total number of generate requests by outcome",
		},
		[]string{"outcome"},
	)

	GenerateErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "astro_generate_errors_total",
			Help: "Total number of failed generate requests by error code",
		},
		[]string{"error_code"},
	)

	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "astro_llm_stage_duration_seconds",
			Help:    "Duration of each LLM stage in seconds",
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 20, 40, 60, 120},
		},
		[]string{"stage"},
	)

	ParserAttempts = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "astro_parser_attempts",
			Help:    "Number of structured extraction attempts per request",
			Buckets: []float64{1, 2, 3, 4, 5},
		},
	)

	RequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "astro_generate_requests_in_flight",
			Help: "Number of generate requests currently being processed",
		},
	)

	RateLimited = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "astro_rate_limited_total",
			Help: "Total number of requests rejected or passed through by the rate limiter",
		},
		[]string{"result"},
	)
)
