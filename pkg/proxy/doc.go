// Package proxy forwards requests to backend services selected by the Host
// header.
//
// # Architecture
//
//   - Frontend: the http.Handler on the listening socket; resolves the host
//     and dispatches
//   - Tunnel: relays WebSocket upgrades to the backend
//   - Forwarder: proxies plain HTTP to the backend, serves the dashboard
//     target, answers unknown hosts
//
// # Request Flow
//
//  1. The Frontend resolves r.Host through a routing.Router
//  2. WebSocket upgrades go to the Tunnel
//  3. Everything else goes to the Forwarder
//  4. Metrics and a history record are emitted for the exchange
//
// # Responses Written by the Proxy
//
//	404 - Host not known by incipit     unknown host
//	500 - <error>                       backend unreachable or failed before
//	                                    response headers (proxy.expose_errors)
//	500 - Incipit error                 same, with expose_errors disabled
//
// Everything else comes from the backend unmodified.
//
// # Backend Connections
//
// Each forwarded HTTP request opens a new TCP connection to the backend and
// closes it afterwards; there is no pooling and no retry. Responses are
// streamed with immediate flushes so server-sent events and long polls
// work.
//
// # WebSocket Tunnels
//
// The backend is dialled before the client is upgraded, so a backend that
// is down produces an HTTP error instead of a broken socket, and the
// subprotocol the backend picks is the one the client sees. Once both legs
// are open, one goroutine per leg reads frames and a relay goroutine writes
// each to the other leg in order. Text and binary messages are forwarded
// verbatim, ping and pong are forwarded as control frames, and a close
// frame is mirrored with the same code and reason. The tunnel ends when
// either leg ends; both connections are then closed.
package proxy
