// Package metrics provides Prometheus metrics collection for incipit.
//
// # Metrics Categories
//
//   - Request Metrics: request count and duration by target, upstream errors,
//     routing decisions by target kind
//   - Tunnel Metrics: open tunnels, lifetimes, relayed messages and bytes
//   - Config Metrics: reload attempts by result, active snapshot version
//   - History Metrics: records written, dropped, and pruned
//
// Process and Go runtime metrics are registered as well.
//
// # Usage
//
//	collector := metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
//
//	collector.RecordRequest("backend(0.0.0.0:3000)", 200, 12*time.Millisecond)
//	collector.TunnelOpened("backend(0.0.0.0:4455)")
//
//	// Served on the dashboard host
//	mux.Handle("/metrics", collector.Handler())
//
// A nil *Collector is valid and records nothing.
//
// # Prometheus Endpoint
//
//	# HELP incipit_http_requests_total Total number of HTTP requests handled
//	# TYPE incipit_http_requests_total counter
//	incipit_http_requests_total{code="200",target="backend(0.0.0.0:3000)"} 1234
//
// # Cardinality Management
//
// Target labels change as services are reloaded. The collector tracks at
// most 1,000 distinct targets; later ones are aggregated into "other".
package metrics
