// Package dashboard serves requests addressed to incipit_host.
//
// Routes:
//
//	GET /              status summary (build, uptime, config version, tunnels)
//	GET /health        liveness
//	GET /ready         readiness: configuration loaded, history storage reachable
//	GET /version       build information
//	GET /metrics       Prometheus metrics (telemetry.metrics.path)
//	GET /api/services  routing table of the current snapshot
//	GET /api/history   recorded exchanges, newest first
//
// /api/history accepts limit, offset, host, backend, websocket, since and
// until (RFC 3339) and answers 404 when history is disabled.
//
// All responses are JSON except /metrics.
package dashboard
