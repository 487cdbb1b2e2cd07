package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// ConfigMetrics tracks configuration reloads.
//
// Metrics:
//   - incipit_config_reloads_total: Reload attempts by result
//   - incipit_config_version: Version of the active configuration snapshot
//   - incipit_config_services: Number of services in the active configuration
type ConfigMetrics struct {
	reloads  *prometheus.CounterVec
	version  prometheus.Gauge
	services prometheus.Gauge
}

// NewConfigMetrics creates and registers configuration metrics with the provided registry.
func NewConfigMetrics(namespace string, registry *prometheus.Registry) *ConfigMetrics {
	cm := &ConfigMetrics{
		reloads: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "config",
				Name:      "reloads_total",
				Help:      "Total number of configuration reload attempts",
			},
			[]string{"result"},
		),

		version: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "config",
				Name:      "version",
				Help:      "Version of the active configuration snapshot",
			},
		),

		services: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "config",
				Name:      "services",
				Help:      "Number of services in the active configuration",
			},
		),
	}

	registry.MustRegister(
		cm.reloads,
		cm.version,
		cm.services,
	)

	return cm
}

// ObserveReload records a reload attempt and the resulting active version.
func (cm *ConfigMetrics) ObserveReload(result string, version uint64) {
	cm.reloads.WithLabelValues(result).Inc()
	cm.version.Set(float64(version))
}

// SetInfo records the active version and service count.
func (cm *ConfigMetrics) SetInfo(version uint64, services int) {
	cm.version.Set(float64(version))
	cm.services.Set(float64(services))
}
