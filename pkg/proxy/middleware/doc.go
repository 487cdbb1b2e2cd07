// Package middleware provides the HTTP middleware wrapped around the incipit
// frontend.
//
// # Middleware Chain
//
//	handler = Chain(frontend,
//	    RecoveryMiddleware(logger),
//	    RequestIDMiddleware,
//	    LoggingMiddleware(logger),
//	)
//
// Order (outermost first):
//  1. Recovery: recover from panics, answer 500
//  2. RequestID: assign or propagate X-Request-ID
//  3. Logging: log method, path, status, latency and bytes
//
// There is no per-request timeout middleware. Proxied responses are streamed
// and tunnels are long lived; deadlines apply to the upstream dial and
// handshake instead.
//
// # ResponseWriter
//
// All middleware share one *ResponseWriter per request. It records the status
// and byte count and passes Flush and Hijack through to the connection, which
// WebSocket upgrades depend on.
package middleware
