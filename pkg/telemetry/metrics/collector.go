package metrics

import (
	"sync"
	"time"

	"incipit-hq/incipit/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Collector is the main orchestrator for all Prometheus metrics in incipit.
// It manages metric registration, collection, and provides a unified interface
// for recording metrics across all components.
//
// All methods are safe to call on a nil *Collector, which records nothing.
// Components therefore accept an optional collector without nil checks.
type Collector struct {
	config   *config.MetricsConfig
	registry *prometheus.Registry

	requestMetrics *RequestMetrics
	tunnelMetrics  *TunnelMetrics
	configMetrics  *ConfigMetrics
	historyMetrics *HistoryMetrics

	// Cardinality tracking for target labels, which grow with reloads.
	cardinalityLimiter *CardinalityLimiter
}

// DurationBuckets are the request duration histogram buckets in seconds,
// from sub-millisecond passthroughs to slow backends.
var DurationBuckets = []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30}

// NewCollector creates a new metrics collector with the specified configuration
// and Prometheus registry. If registry is nil, a new registry is created.
// Process and Go runtime collectors are registered alongside incipit's own.
//
// Example:
//
//	collector := metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
//	mux.Handle("/metrics", collector.Handler())
func NewCollector(cfg *config.MetricsConfig, registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	if cfg == nil {
		cfg = &config.MetricsConfig{}
	}
	if cfg.Namespace == "" {
		cfg.Namespace = config.DefaultMetricsNamespace
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	c := &Collector{
		config:             cfg,
		registry:           registry,
		cardinalityLimiter: NewCardinalityLimiter(1000),
	}

	c.requestMetrics = NewRequestMetrics(cfg.Namespace, registry)
	c.tunnelMetrics = NewTunnelMetrics(cfg.Namespace, registry)
	c.configMetrics = NewConfigMetrics(cfg.Namespace, registry)
	c.historyMetrics = NewHistoryMetrics(cfg.Namespace, registry)

	return c
}

func (c *Collector) enabled() bool {
	return c != nil && c.config.IsEnabled()
}

// target bounds the target label. Targets past the cardinality limit are
// aggregated into "other".
func (c *Collector) target(target string) string {
	if !c.cardinalityLimiter.Allow(target) {
		return "other"
	}
	return target
}

// RecordRequest records metrics for a completed proxied request.
//
// Parameters:
//   - target: resolved target ("backend(0.0.0.0:3000)", "dashboard", "unknown")
//   - code: HTTP status code sent to the client
//   - duration: total request duration
func (c *Collector) RecordRequest(target string, code int, duration time.Duration) {
	if !c.enabled() {
		return
	}
	c.requestMetrics.RecordRequest(c.target(target), code, duration)
}

// RecordResolution records one routing decision by target kind.
func (c *Collector) RecordResolution(kind string) {
	if !c.enabled() {
		return
	}
	c.requestMetrics.RecordResolution(kind)
}

// RecordUpstreamError records a failed upstream exchange.
//
// Parameters:
//   - target: resolved target
//   - phase: where it failed ("connect", "handshake", "response")
func (c *Collector) RecordUpstreamError(target, phase string) {
	if !c.enabled() {
		return
	}
	c.requestMetrics.RecordUpstreamError(c.target(target), phase)
}

// TunnelOpened records a newly established WebSocket tunnel.
func (c *Collector) TunnelOpened(target string) {
	if !c.enabled() {
		return
	}
	c.tunnelMetrics.Opened(c.target(target))
}

// TunnelClosed records the end of a WebSocket tunnel.
func (c *Collector) TunnelClosed(target string, duration time.Duration) {
	if !c.enabled() {
		return
	}
	c.tunnelMetrics.Closed(c.target(target), duration)
}

// RecordTunnelMessage records one relayed WebSocket message.
//
// Parameters:
//   - direction: "upstream" (client to backend) or "downstream"
//   - size: payload size in bytes
func (c *Collector) RecordTunnelMessage(direction string, size int) {
	if !c.enabled() {
		return
	}
	c.tunnelMetrics.RecordMessage(direction, size)
}

// ObserveReload records a configuration reload attempt. It implements
// config.ReloadObserver.
func (c *Collector) ObserveReload(result string, version uint64) {
	if !c.enabled() {
		return
	}
	c.configMetrics.ObserveReload(result, version)
}

// SetConfigInfo records the active configuration version and size.
func (c *Collector) SetConfigInfo(version uint64, services int) {
	if !c.enabled() {
		return
	}
	c.configMetrics.SetInfo(version, services)
}

// RecordHistoryWritten records history records persisted to storage.
func (c *Collector) RecordHistoryWritten(n int) {
	if !c.enabled() {
		return
	}
	c.historyMetrics.RecordWritten(n)
}

// RecordHistoryDropped records history records that could not be queued or
// stored.
func (c *Collector) RecordHistoryDropped(reason string, n int) {
	if !c.enabled() {
		return
	}
	c.historyMetrics.RecordDropped(reason, n)
}

// RecordHistoryPruned records history records removed by retention.
func (c *Collector) RecordHistoryPruned(n int64) {
	if !c.enabled() {
		return
	}
	c.historyMetrics.RecordPruned(n)
}

// Registry returns the Prometheus registry used by this collector.
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

// CardinalityLimiter prevents metric cardinality explosion by limiting
// the number of unique label combinations per metric.
type CardinalityLimiter struct {
	maxCardinality int
	current        map[string]struct{}
	mu             sync.RWMutex
}

// NewCardinalityLimiter creates a new cardinality limiter with the specified
// maximum cardinality.
func NewCardinalityLimiter(maxCardinality int) *CardinalityLimiter {
	return &CardinalityLimiter{
		maxCardinality: maxCardinality,
		current:        make(map[string]struct{}),
	}
}

// Allow checks if a label set is allowed. Returns true if the label set
// already exists or if we haven't reached the cardinality limit yet.
// Returns false if adding this label set would exceed the limit.
func (cl *CardinalityLimiter) Allow(labelSet string) bool {
	cl.mu.RLock()
	if _, exists := cl.current[labelSet]; exists {
		cl.mu.RUnlock()
		return true
	}
	cl.mu.RUnlock()

	cl.mu.Lock()
	defer cl.mu.Unlock()

	// Double-check after acquiring write lock
	if _, exists := cl.current[labelSet]; exists {
		return true
	}

	if len(cl.current) >= cl.maxCardinality {
		return false
	}

	cl.current[labelSet] = struct{}{}
	return true
}

// Count returns the current cardinality.
func (cl *CardinalityLimiter) Count() int {
	cl.mu.RLock()
	defer cl.mu.RUnlock()
	return len(cl.current)
}
