package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PriceComputations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pricing_computations_total",
			Help: "Total number of price computations by caller type and outcome",
		},
		[]string{"caller_type", "outcome"},
	)

	UpstreamLogins = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "upstream_logins_total",
			Help: "Total number of upstream login calls by outcome",
		},
		[]string{"outcome"},
	)

	UpstreamTokenInvalidations = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "upstream_token_invalidations_total",
			Help: "Total number of times the cached upstream token was discarded after a 401",
		},
	)

	UpstreamRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "upstream_request_retries_total",
			Help: "Total number of upstream requests replayed with a fresh token",
		},
	)

	UpstreamRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "upstream_requests_total",
			Help: "Total number of upstream API attempts by status class",
		},
		[]string{"class"},
	)

	UpstreamRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "upstream_request_duration_seconds",
			Help:    "Duration of upstream API attempts",
			Buckets: []float64{.05, .1, .25, .5, 1, 2, 5, 10},
		},
		[]string{"method"},
	)

	AuditEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "audit_events_total",
			Help: "Total number of audit events by outcome",
		},
		[]string{"outcome"},
	)
)

// StatusClass buckets an HTTP status code as 2xx, 4xx, 5xx and so on.
func StatusClass(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	case code >= 200:
		return "2xx"
	default:
		return "other"
	}
}
