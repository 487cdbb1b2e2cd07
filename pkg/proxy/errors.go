package proxy

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"incipit-hq/incipit/pkg/routing"
)

// Response bodies written by the proxy itself.
const (
	UnknownHostBody  = "404 - Host not known by incipit"
	GenericErrorBody = "500 - Incipit error"
)

// Upstream failure phases, used as metric labels.
const (
	PhaseConnect   = "connect"
	PhaseHandshake = "handshake"
	PhaseResponse  = "response"
)

// ErrInvalidTarget is returned when a WebSocket upgrade resolves to a target
// that cannot be tunneled, such as the dashboard.
var ErrInvalidTarget = errors.New("invalid target for websocket")

// UpstreamError describes a failed exchange with a backend.
type UpstreamError struct {
	Target routing.Target
	Phase  string
	Err    error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Phase, e.Target.Addr(), e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// dialError marks errors from the transport's dialer so they can be told
// apart from failures after the connection was established.
type dialError struct {
	err error
}

func (e *dialError) Error() string { return e.err.Error() }
func (e *dialError) Unwrap() error { return e.err }

// phaseOf classifies an error returned by the transport.
func phaseOf(err error) string {
	var de *dialError
	if errors.As(err, &de) {
		return PhaseConnect
	}
	return PhaseResponse
}

// writeUnknownHost answers a request for a host with no route.
func writeUnknownHost(w http.ResponseWriter) {
	writeText(w, http.StatusNotFound, UnknownHostBody)
}

// writeError answers 500. The error text is included only when expose is
// set.
func writeError(w http.ResponseWriter, err error, expose bool) {
	body := GenericErrorBody
	if expose {
		body = "500 - " + err.Error()
	}
	writeText(w, http.StatusInternalServerError, body)
}

func writeText(w http.ResponseWriter, code int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(code)
	_, _ = w.Write([]byte(body))
}

// requestState carries the routing decision and any upstream failure
// between the frontend and the forwarder or tunnel handling one request.
type requestState struct {
	target routing.Target
	err    error
}

type stateKey struct{}

func withState(ctx context.Context, target routing.Target) (context.Context, *requestState) {
	st := &requestState{target: target}
	return context.WithValue(ctx, stateKey{}, st), st
}

func stateFrom(ctx context.Context) *requestState {
	st, _ := ctx.Value(stateKey{}).(*requestState)
	return st
}
