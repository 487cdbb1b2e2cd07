package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"incipit-hq/incipit/pkg/telemetry/logging"
)

// RequestIDHeader carries the request ID on responses.
const RequestIDHeader = "X-Request-ID"

// MaxRequestIDLength is the longest client-supplied request ID that is kept.
const MaxRequestIDLength = 128

// RequestIDMiddleware tags every request with an ID for logs and history.
// A well-formed X-Request-ID from the client is reused; otherwise a UUID is
// generated. The ID is echoed on the response.
//
// The inbound header is not rewritten, so backends see exactly what the
// client sent.
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(RequestIDHeader)
		if !validRequestID(requestID) {
			requestID = uuid.NewString()
		}

		w.Header().Set(RequestIDHeader, requestID)
		next.ServeHTTP(w, r.WithContext(logging.WithRequestID(r.Context(), requestID)))
	})
}

func validRequestID(id string) bool {
	if id == "" || len(id) > MaxRequestIDLength {
		return false
	}
	for i := 0; i < len(id); i++ {
		if c := id[i]; c < 0x21 || c > 0x7e {
			return false
		}
	}
	return true
}

// GetRequestID returns the request ID stored in ctx, or "".
func GetRequestID(ctx context.Context) string {
	return logging.GetRequestID(ctx)
}
