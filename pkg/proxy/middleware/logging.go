package middleware

import (
	"log/slog"
	"net/http"
	"time"

	"incipit-hq/incipit/pkg/telemetry/logging"
)

// LoggingMiddleware logs every request with structured logging once the
// handler returns. The level follows the status: 5xx at error, 4xx at warn,
// everything else at info. At debug level the redacted request headers are
// included as well.
//
// Log format (JSON):
//
//	{
//	  "time": "2025-11-16T10:30:00Z",
//	  "level": "INFO",
//	  "msg": "request completed",
//	  "host": "service0.example.com",
//	  "method": "GET",
//	  "path": "/",
//	  "status": 200,
//	  "latency_ms": 3,
//	  "bytes": 11,
//	  "request_id": "550e8400-e29b-41d4-a716-446655440000"
//	}
func LoggingMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ctx := logging.WithHost(r.Context(), r.Host)
			rw := NewResponseWriter(w)

			if logger.Enabled(ctx, slog.LevelDebug) {
				logger.DebugContext(ctx, "request started",
					"method", r.Method,
					"path", r.URL.Path,
					"remote_addr", r.RemoteAddr,
					logging.HeadersAttr(r.Header),
				)
			}

			next.ServeHTTP(rw, r.WithContext(ctx))

			level := slog.LevelInfo
			switch {
			case rw.Status() >= 500:
				level = slog.LevelError
			case rw.Status() >= 400:
				level = slog.LevelWarn
			}

			logger.Log(ctx, level, "request completed",
				"method", r.Method,
				"path", r.URL.Path,
				"status", rw.Status(),
				"latency_ms", time.Since(start).Milliseconds(),
				"bytes", rw.BytesWritten(),
				"websocket", rw.Hijacked(),
				"remote_addr", r.RemoteAddr,
				"user_agent", r.UserAgent(),
			)
		})
	}
}
