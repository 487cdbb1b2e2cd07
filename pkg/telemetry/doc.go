// Package telemetry groups the observability packages of incipit.
//
//   - logging: slog construction and request-scoped log fields
//   - metrics: Prometheus collector for requests, tunnels, reloads and history
//   - health: liveness, readiness and version endpoints
//
// All three are served or configured from the telemetry section of the
// configuration file; metrics and health are mounted on the incipit host by
// the dashboard package.
package telemetry
