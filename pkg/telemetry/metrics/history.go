package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// HistoryMetrics tracks the request history recorder.
//
// Metrics:
//   - incipit_history_records_written_total: Records persisted
//   - incipit_history_records_dropped_total: Records lost, by reason
//   - incipit_history_records_pruned_total: Records removed by retention
type HistoryMetrics struct {
	written prometheus.Counter
	dropped *prometheus.CounterVec
	pruned  prometheus.Counter
}

// NewHistoryMetrics creates and registers history metrics with the provided registry.
func NewHistoryMetrics(namespace string, registry *prometheus.Registry) *HistoryMetrics {
	hm := &HistoryMetrics{
		written: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "history",
				Name:      "records_written_total",
				Help:      "Total number of history records persisted",
			},
		),

		dropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "history",
				Name:      "records_dropped_total",
				Help:      "Total number of history records dropped",
			},
			[]string{"reason"},
		),

		pruned: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "history",
				Name:      "records_pruned_total",
				Help:      "Total number of history records removed by retention",
			},
		),
	}

	registry.MustRegister(
		hm.written,
		hm.dropped,
		hm.pruned,
	)

	return hm
}

// RecordWritten records persisted records.
func (hm *HistoryMetrics) RecordWritten(n int) {
	hm.written.Add(float64(n))
}

// RecordDropped records dropped records.
func (hm *HistoryMetrics) RecordDropped(reason string, n int) {
	hm.dropped.WithLabelValues(reason).Add(float64(n))
}

// RecordPruned records pruned records.
func (hm *HistoryMetrics) RecordPruned(n int64) {
	hm.pruned.Add(float64(n))
}
