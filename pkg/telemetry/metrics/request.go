package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// RequestMetrics tracks metrics related to proxied HTTP requests.
//
// Metrics:
//   - incipit_http_requests_total: Total request count by target and status code
//   - incipit_http_request_duration_seconds: Request duration histogram
//   - incipit_http_upstream_errors_total: Failed upstream exchanges by phase
//   - incipit_routing_resolutions_total: Routing decisions by target kind
type RequestMetrics struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	upstreamErrors  *prometheus.CounterVec
	resolutions     *prometheus.CounterVec
}

// NewRequestMetrics creates and registers request metrics with the provided registry.
func NewRequestMetrics(namespace string, registry *prometheus.Registry) *RequestMetrics {
	rm := &RequestMetrics{
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total number of HTTP requests handled",
			},
			[]string{"target", "code"},
		),

		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "Duration of HTTP requests in seconds",
				Buckets:   DurationBuckets,
			},
			[]string{"target"},
		),

		upstreamErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "upstream_errors_total",
				Help:      "Total number of failed upstream exchanges",
			},
			[]string{"target", "phase"},
		),

		resolutions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "routing",
				Name:      "resolutions_total",
				Help:      "Total number of host resolutions by target kind",
			},
			[]string{"kind"},
		),
	}

	registry.MustRegister(
		rm.requestsTotal,
		rm.requestDuration,
		rm.upstreamErrors,
		rm.resolutions,
	)

	return rm
}

// RecordRequest records metrics for a completed request.
func (rm *RequestMetrics) RecordRequest(target string, code int, duration time.Duration) {
	rm.requestsTotal.WithLabelValues(target, strconv.Itoa(code)).Inc()
	rm.requestDuration.WithLabelValues(target).Observe(duration.Seconds())
}

// RecordUpstreamError records a failed upstream exchange.
func (rm *RequestMetrics) RecordUpstreamError(target, phase string) {
	rm.upstreamErrors.WithLabelValues(target, phase).Inc()
}

// RecordResolution records a routing decision.
func (rm *RequestMetrics) RecordResolution(kind string) {
	rm.resolutions.WithLabelValues(kind).Inc()
}
