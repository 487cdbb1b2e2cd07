package proxy

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"net/http/httputil"
	"time"

	"incipit-hq/incipit/pkg/routing"
	"incipit-hq/incipit/pkg/telemetry/metrics"
)

// ForwarderConfig configures a Forwarder.
type ForwarderConfig struct {
	// ConnectTimeout bounds the TCP dial to a backend. 0 means no limit.
	ConnectTimeout time.Duration

	// ResponseHeaderTimeout bounds the wait for backend response headers.
	// 0 means no limit.
	ResponseHeaderTimeout time.Duration

	// ExposeErrors includes the upstream error text in 500 bodies.
	ExposeErrors bool

	// Dashboard serves requests resolved to the dashboard target.
	Dashboard http.Handler

	Metrics *metrics.Collector
	Logger  *slog.Logger
}

// Forwarder sends plain HTTP requests to their resolved target.
//
// Each backend request uses a new TCP connection that is closed once the
// exchange completes. Method, path, query, headers (Host and Cookie
// included) and body are sent as received, and the backend response is
// streamed back without buffering.
type Forwarder struct {
	proxy        *httputil.ReverseProxy
	dashboard    http.Handler
	exposeErrors bool
	metrics      *metrics.Collector
	logger       *slog.Logger
}

// NewForwarder creates a forwarder.
func NewForwarder(cfg ForwarderConfig) *Forwarder {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "proxy.forwarder")

	dashboard := cfg.Dashboard
	if dashboard == nil {
		dashboard = http.NotFoundHandler()
	}

	f := &Forwarder{
		dashboard:    dashboard,
		exposeErrors: cfg.ExposeErrors,
		metrics:      cfg.Metrics,
		logger:       logger,
	}

	f.proxy = &httputil.ReverseProxy{
		Rewrite:       rewrite,
		Transport:     newTransport(cfg, logger),
		FlushInterval: -1,
		ErrorLog:      slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
		ErrorHandler:  f.handleError,
	}

	return f
}

// forwardedHeaders are stripped by httputil.ReverseProxy's Rewrite mode;
// they are restored so backends see the inbound headers unchanged.
var forwardedHeaders = []string{"Forwarded", "X-Forwarded-For", "X-Forwarded-Host", "X-Forwarded-Proto"}

func rewrite(pr *httputil.ProxyRequest) {
	st := stateFrom(pr.In.Context())

	pr.Out.URL.Scheme = "http"
	pr.Out.URL.Host = st.target.Addr()
	pr.Out.Host = pr.In.Host

	for _, h := range forwardedHeaders {
		if v, ok := pr.In.Header[h]; ok {
			pr.Out.Header[h] = v
		}
	}
}

func newTransport(cfg ForwarderConfig, logger *slog.Logger) *http.Transport {
	dialer := &net.Dialer{Timeout: cfg.ConnectTimeout}

	return &http.Transport{
		Proxy: nil,
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			conn, err := dialer.DialContext(ctx, network, addr)
			if err != nil {
				return nil, &dialError{err: err}
			}
			return &loggedConn{Conn: conn, logger: logger}, nil
		},
		DisableKeepAlives:     true,
		DisableCompression:    true,
		ResponseHeaderTimeout: cfg.ResponseHeaderTimeout,
		ForceAttemptHTTP2:     false,
	}
}

// Forward handles r for target.
//
//   - Unknown: 404 with UnknownHostBody, no backend I/O
//   - Dashboard: delegated to the dashboard handler
//   - Backend: proxied to the backend address
func (f *Forwarder) Forward(w http.ResponseWriter, r *http.Request, target routing.Target) {
	if st := stateFrom(r.Context()); st == nil || st.target != target {
		ctx, _ := withState(r.Context(), target)
		r = r.WithContext(ctx)
	}
	f.ServeHTTP(w, r)
}

// ServeHTTP forwards r to the target the frontend resolved for it. Requests
// without a resolved target are treated as unknown hosts.
func (f *Forwarder) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	st := stateFrom(r.Context())
	if st == nil {
		writeUnknownHost(w)
		return
	}

	switch st.target.Kind() {
	case routing.KindBackend:
		f.proxy.ServeHTTP(w, r)
	case routing.KindDashboard:
		f.dashboard.ServeHTTP(w, r)
	default:
		writeUnknownHost(w)
	}
}

// handleError runs when the backend exchange fails before response headers
// were sent to the client.
func (f *Forwarder) handleError(w http.ResponseWriter, r *http.Request, err error) {
	st := stateFrom(r.Context())
	target := st.target

	upstreamErr := &UpstreamError{Target: target, Phase: phaseOf(err), Err: err}
	st.err = upstreamErr

	if errors.Is(err, context.Canceled) && r.Context().Err() != nil {
		f.logger.DebugContext(r.Context(), "client went away before backend responded",
			"backend", target.Addr(),
		)
		w.WriteHeader(http.StatusBadGateway)
		return
	}

	f.metrics.RecordUpstreamError(target.String(), upstreamErr.Phase)
	f.logger.ErrorContext(r.Context(), "failed to forward request",
		"backend", target.Addr(),
		"phase", upstreamErr.Phase,
		"method", r.Method,
		"path", r.URL.Path,
		"error", err,
	)

	writeError(w, err, f.exposeErrors)
}

// loggedConn logs failures when the transport closes a backend connection.
// Teardown happens on transport goroutines, after the response may already
// have been delivered, so logging is the only thing left to do.
type loggedConn struct {
	net.Conn
	logger *slog.Logger
}

func (c *loggedConn) Close() error {
	err := c.Conn.Close()
	if err != nil && !errors.Is(err, net.ErrClosed) {
		c.logger.Warn("backend connection close failed",
			"remote_addr", c.Conn.RemoteAddr().String(),
			"error", err,
		)
	}
	return err
}
