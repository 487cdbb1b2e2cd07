package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// TunnelMetrics tracks WebSocket tunnels.
//
// Metrics:
//   - incipit_tunnel_active: Currently open tunnels
//   - incipit_tunnel_opened_total: Tunnels established by target
//   - incipit_tunnel_duration_seconds: Tunnel lifetime histogram
//   - incipit_tunnel_messages_total: Relayed messages by direction
//   - incipit_tunnel_bytes_total: Relayed payload bytes by direction
type TunnelMetrics struct {
	active   prometheus.Gauge
	opened   *prometheus.CounterVec
	duration *prometheus.HistogramVec
	messages *prometheus.CounterVec
	bytes    *prometheus.CounterVec
}

// NewTunnelMetrics creates and registers tunnel metrics with the provided registry.
func NewTunnelMetrics(namespace string, registry *prometheus.Registry) *TunnelMetrics {
	tm := &TunnelMetrics{
		active: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "tunnel",
				Name:      "active",
				Help:      "Number of open WebSocket tunnels",
			},
		),

		opened: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "tunnel",
				Name:      "opened_total",
				Help:      "Total number of WebSocket tunnels established",
			},
			[]string{"target"},
		),

		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "tunnel",
				Name:      "duration_seconds",
				Help:      "Lifetime of WebSocket tunnels in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.1, 4, 10), // 100ms to ~7h
			},
			[]string{"target"},
		),

		messages: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "tunnel",
				Name:      "messages_total",
				Help:      "Total number of relayed WebSocket messages",
			},
			[]string{"direction"},
		),

		bytes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "tunnel",
				Name:      "bytes_total",
				Help:      "Total relayed WebSocket payload bytes",
			},
			[]string{"direction"},
		),
	}

	registry.MustRegister(
		tm.active,
		tm.opened,
		tm.duration,
		tm.messages,
		tm.bytes,
	)

	return tm
}

// Opened records a new tunnel.
func (tm *TunnelMetrics) Opened(target string) {
	tm.active.Inc()
	tm.opened.WithLabelValues(target).Inc()
}

// Closed records the end of a tunnel.
func (tm *TunnelMetrics) Closed(target string, duration time.Duration) {
	tm.active.Dec()
	tm.duration.WithLabelValues(target).Observe(duration.Seconds())
}

// RecordMessage records one relayed message.
func (tm *TunnelMetrics) RecordMessage(direction string, size int) {
	tm.messages.WithLabelValues(direction).Inc()
	if size > 0 {
		tm.bytes.WithLabelValues(direction).Add(float64(size))
	}
}
