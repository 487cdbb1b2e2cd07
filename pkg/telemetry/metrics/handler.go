package metrics

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ScrapeTimeout bounds how long a single scrape may gather metrics.
const ScrapeTimeout = 10 * time.Second

// Handler returns the scrape endpoint for the collector's registry. The
// dashboard mounts it at telemetry.metrics.path on the incipit host.
//
// Scrapes are served in the OpenMetrics format when the scraper asks for it
// and in the Prometheus text format otherwise. Collection errors are logged
// and the remaining metrics are still returned.
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{
		EnableOpenMetrics:   true,
		Timeout:             ScrapeTimeout,
		MaxRequestsInFlight: 4,
		ErrorHandling:       promhttp.ContinueOnError,
		ErrorLog:            slog.NewLogLogger(slog.Default().Handler(), slog.LevelWarn),
	})
}
