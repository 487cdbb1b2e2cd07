package logging

import (
	"log/slog"
	"net/http"
	"regexp"
	"strings"
)

// sensitiveHeaders are replaced entirely when headers are logged.
var sensitiveHeaders = map[string]bool{
	"Authorization":       true,
	"Proxy-Authorization": true,
	"Cookie":              true,
	"Set-Cookie":          true,
	"X-Api-Key":           true,
}

var (
	bearerPattern = regexp.MustCompile(`Bearer\s+[a-zA-Z0-9\-._~+/]+=*`)
	tokenPattern  = regexp.MustCompile(`(?i)((?:token|api[-_]?key|password|secret)=)[^&\s]+`)
)

// RedactHeaders returns a copy of h suitable for logging. Credentials and
// cookies are replaced with "***".
func RedactHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for name, values := range h {
		if sensitiveHeaders[http.CanonicalHeaderKey(name)] {
			out[name] = "***"
			continue
		}
		out[name] = RedactString(strings.Join(values, ", "))
	}
	return out
}

// RedactString masks bearer tokens and credential-looking query parameters
// in s.
func RedactString(s string) string {
	if s == "" {
		return s
	}
	s = bearerPattern.ReplaceAllString(s, "Bearer ***")
	return tokenPattern.ReplaceAllString(s, "${1}***")
}

// HeadersAttr returns a slog attribute holding the redacted headers.
func HeadersAttr(h http.Header) slog.Attr {
	return slog.Any("headers", RedactHeaders(h))
}
