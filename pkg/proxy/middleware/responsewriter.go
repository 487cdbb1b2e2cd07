package middleware

import (
	"bufio"
	"errors"
	"net"
	"net/http"
)

// ErrHijackUnsupported is returned by Hijack when the wrapped writer cannot
// hand over its connection.
var ErrHijackUnsupported = errors.New("response writer does not support hijacking")

// ResponseWriter wraps http.ResponseWriter to capture the status code and the
// number of body bytes written. It passes Flush and Hijack through so that
// streamed responses and WebSocket upgrades keep working behind it.
type ResponseWriter struct {
	http.ResponseWriter
	statusCode int
	written    int64
	hijacked   bool
}

// NewResponseWriter wraps w. If w is already a *ResponseWriter it is returned
// unchanged.
func NewResponseWriter(w http.ResponseWriter) *ResponseWriter {
	if rw, ok := w.(*ResponseWriter); ok {
		return rw
	}
	return &ResponseWriter{ResponseWriter: w}
}

// WriteHeader captures the first status code written.
func (rw *ResponseWriter) WriteHeader(code int) {
	if rw.statusCode == 0 {
		rw.statusCode = code
	}
	rw.ResponseWriter.WriteHeader(code)
}

// Write records an implicit 200 and counts body bytes.
func (rw *ResponseWriter) Write(b []byte) (int, error) {
	if rw.statusCode == 0 {
		rw.statusCode = http.StatusOK
	}
	n, err := rw.ResponseWriter.Write(b)
	rw.written += int64(n)
	return n, err
}

// Flush sends buffered data to the client.
func (rw *ResponseWriter) Flush() {
	if rw.statusCode == 0 {
		rw.statusCode = http.StatusOK
	}
	_ = http.NewResponseController(rw.ResponseWriter).Flush()
}

// Hijack takes over the underlying connection. A hijacked exchange that
// reached this point is reported as 101 Switching Protocols.
func (rw *ResponseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	conn, brw, err := http.NewResponseController(rw.ResponseWriter).Hijack()
	if err != nil {
		if errors.Is(err, http.ErrNotSupported) {
			return nil, nil, ErrHijackUnsupported
		}
		return nil, nil, err
	}
	rw.hijacked = true
	if rw.statusCode == 0 {
		rw.statusCode = http.StatusSwitchingProtocols
	}
	return conn, brw, nil
}

// Unwrap exposes the wrapped writer to http.ResponseController.
func (rw *ResponseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// Status returns the status code sent, or 200 if nothing was written.
func (rw *ResponseWriter) Status() int {
	if rw.statusCode == 0 {
		return http.StatusOK
	}
	return rw.statusCode
}

// Written reports whether headers have been sent.
func (rw *ResponseWriter) Written() bool {
	return rw.statusCode != 0
}

// BytesWritten returns the number of body bytes written.
func (rw *ResponseWriter) BytesWritten() int64 {
	return rw.written
}

// Hijacked reports whether the connection was taken over.
func (rw *ResponseWriter) Hijacked() bool {
	return rw.hijacked
}
