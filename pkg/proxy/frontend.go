package proxy

import (
	"log/slog"
	"net/http"
	"time"

	"incipit-hq/incipit/pkg/history"
	"incipit-hq/incipit/pkg/proxy/middleware"
	"incipit-hq/incipit/pkg/routing"
	"incipit-hq/incipit/pkg/telemetry/logging"
	"incipit-hq/incipit/pkg/telemetry/metrics"
)

// HistorySink accepts history records. *history.Recorder implements it.
type HistorySink interface {
	Enqueue(rec history.Record) bool
}

// FrontendConfig configures a Frontend.
type FrontendConfig struct {
	Router    routing.Router
	Forwarder *Forwarder
	Tunnel    *Tunnel

	// HTTP, if set, replaces the forwarder as the handler for plain HTTP
	// requests. It must eventually call the forwarder's ServeHTTP, for
	// example through an access-log wrapper.
	HTTP http.Handler

	History HistorySink
	Metrics *metrics.Collector
	Logger  *slog.Logger
}

// Frontend is the handler behind the listening socket. For every request
// it resolves the Host header, hands WebSocket upgrades to the tunnel and
// everything else to the forwarder.
type Frontend struct {
	router  routing.Router
	tunnel  *Tunnel
	http    http.Handler
	history HistorySink
	metrics *metrics.Collector
	logger  *slog.Logger
}

// NewFrontend creates a frontend.
func NewFrontend(cfg FrontendConfig) *Frontend {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	h := cfg.HTTP
	if h == nil {
		h = cfg.Forwarder
	}

	return &Frontend{
		router:  cfg.Router,
		tunnel:  cfg.Tunnel,
		http:    h,
		history: cfg.History,
		metrics: cfg.Metrics,
		logger:  logger.With("component", "proxy.frontend"),
	}
}

// ServeHTTP implements http.Handler.
func (f *Frontend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	target := f.router.Resolve(r.Host)
	f.metrics.RecordResolution(target.Kind().String())

	ctx := logging.WithTarget(r.Context(), target.String())
	ctx, st := withState(ctx, target)
	r = r.WithContext(ctx)

	rw := middleware.NewResponseWriter(w)

	if f.tunnel != nil {
		onClose := func(res TunnelResult) {
			f.record(r, target, start, http.StatusSwitchingProtocols, res.BytesDown, true, res.Err)
		}
		if f.tunnel.Handle(rw, r, target, onClose) {
			if !rw.Hijacked() {
				f.metrics.RecordRequest(target.String(), rw.Status(), time.Since(start))
				f.record(r, target, start, rw.Status(), rw.BytesWritten(), true, st.err)
			} else {
				f.metrics.RecordRequest(target.String(), http.StatusSwitchingProtocols, time.Since(start))
			}
			return
		}
	}

	f.http.ServeHTTP(rw, r)

	f.metrics.RecordRequest(target.String(), rw.Status(), time.Since(start))
	f.record(r, target, start, rw.Status(), rw.BytesWritten(), false, st.err)
}

func (f *Frontend) record(r *http.Request, target routing.Target, start time.Time, status int, bytes int64, ws bool, err error) {
	if f.history == nil {
		return
	}

	rec := history.Record{
		RequestID:    logging.GetRequestID(r.Context()),
		Time:         start,
		Host:         r.Host,
		Method:       r.Method,
		Path:         r.URL.Path,
		Target:       target.Kind().String(),
		Backend:      target.Addr(),
		Status:       status,
		Duration:     time.Since(start),
		BytesWritten: bytes,
		WebSocket:    ws,
	}
	if err != nil {
		rec.Error = err.Error()
	}
	f.history.Enqueue(rec)
}
