// Package logging builds the structured loggers used across incipit.
//
// # Overview
//
// The logging package wraps Go's standard log/slog package to provide:
//   - JSON and text output with configurable level
//   - Context-aware records: request_id, host, and target stored in the
//     request context are added to every record logged with that context
//   - Redaction of credentials and cookies when request headers are logged
//
// # Usage
//
//	logger, err := logging.New(logging.Config{
//	    Level:  "info",
//	    Format: "json",
//	})
//
//	ctx := logging.WithRequestID(r.Context(), "2f1c...")
//	logger.InfoContext(ctx, "Forwarding request", "path", r.URL.Path)
//	// {"level":"INFO","msg":"Forwarding request","path":"/","request_id":"2f1c..."}
//
//	logger.DebugContext(ctx, "Inbound headers", logging.HeadersAttr(r.Header))
package logging
