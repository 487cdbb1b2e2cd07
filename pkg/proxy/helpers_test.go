package proxy

import (
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"incipit-hq/incipit/pkg/config"
	"incipit-hq/incipit/pkg/history"
	"incipit-hq/incipit/pkg/routing"
	"incipit-hq/incipit/pkg/telemetry/metrics"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// backend is a test HTTP server on a loopback port that counts requests.
type backend struct {
	server *httptest.Server
	hits   atomic.Int64
	port   int
}

func newBackend(t *testing.T, h http.Handler) *backend {
	t.Helper()
	b := &backend{}
	b.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b.hits.Add(1)
		h.ServeHTTP(w, r)
	}))
	t.Cleanup(b.server.Close)

	_, portStr, err := net.SplitHostPort(b.server.Listener.Addr().String())
	if err != nil {
		t.Fatalf("SplitHostPort: %v", err)
	}
	b.port, _ = strconv.Atoi(portStr)
	return b
}

// helloHandler answers like the services in the routing examples.
func helloHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/" {
			_, _ = io.WriteString(w, "Hello world")
			return
		}
		_, _ = io.WriteString(w, "Hello path: "+r.URL.Path)
	})
}

// closedPort returns a loopback port with nothing listening on it.
func closedPort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	port := l.Addr().(*net.TCPAddr).Port
	l.Close()
	return port
}

// exampleConfig routes serviceN.example.com to the given ports.
func exampleConfig(ports ...int) *config.Config {
	cfg := &config.Config{
		Domain:      "example.com",
		IncipitHost: "incipit.example.com",
	}
	for i, port := range ports {
		name := "service" + strconv.Itoa(i)
		cfg.Services = append(cfg.Services, config.ServiceConfig{
			Name: name,
			Host: name + ".example.com",
			Port: port,
		})
	}
	return cfg
}

// recordingSink collects history records.
type recordingSink struct {
	mu      sync.Mutex
	records []history.Record
	notify  chan struct{}
}

func newRecordingSink() *recordingSink {
	return &recordingSink{notify: make(chan struct{}, 1024)}
}

func (s *recordingSink) Enqueue(rec history.Record) bool {
	s.mu.Lock()
	s.records = append(s.records, rec)
	s.mu.Unlock()
	s.notify <- struct{}{}
	return true
}

func (s *recordingSink) all() []history.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]history.Record(nil), s.records...)
}

// testProxy is a frontend served by an httptest server.
type testProxy struct {
	server    *httptest.Server
	store     *config.Store
	tunnel    *Tunnel
	collector *metrics.Collector
	sink      *recordingSink
}

type proxyOptions struct {
	exposeErrors bool
	dashboard    http.Handler
}

func newTestProxy(t *testing.T, cfg *config.Config, opts proxyOptions) *testProxy {
	t.Helper()

	store := config.NewStore(cfg, "")
	collector := metrics.NewCollector(&config.MetricsConfig{}, prometheus.NewRegistry())
	sink := newRecordingSink()

	forwarder := NewForwarder(ForwarderConfig{
		ConnectTimeout: config.DefaultConnectTimeout,
		ExposeErrors:   opts.exposeErrors,
		Dashboard:      opts.dashboard,
		Metrics:        collector,
		Logger:         quietLogger(),
	})
	tunnel := NewTunnel(TunnelConfig{
		ConnectTimeout:   config.DefaultConnectTimeout,
		HandshakeTimeout: config.DefaultHandshakeTimeout,
		ExposeErrors:     opts.exposeErrors,
		Metrics:          collector,
		Logger:           quietLogger(),
	})
	frontend := NewFrontend(FrontendConfig{
		Router:    routing.NewConfigRouter(store),
		Forwarder: forwarder,
		Tunnel:    tunnel,
		History:   sink,
		Metrics:   collector,
		Logger:    quietLogger(),
	})

	server := httptest.NewServer(frontend)
	t.Cleanup(func() {
		tunnel.CloseAll()
		server.Close()
	})

	return &testProxy{
		server:    server,
		store:     store,
		tunnel:    tunnel,
		collector: collector,
		sink:      sink,
	}
}

// get sends a GET for path with the given Host header.
func (p *testProxy) get(t *testing.T, host, path string, header http.Header) (*http.Response, string) {
	t.Helper()

	req, err := http.NewRequest(http.MethodGet, p.server.URL+path, nil)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	req.Host = host
	for k, vs := range header {
		req.Header[k] = vs
	}

	resp, err := p.server.Client().Do(req)
	if err != nil {
		t.Fatalf("GET %s%s: %v", host, path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp, string(body)
}

// metricsText scrapes the collector.
func (p *testProxy) metricsText(t *testing.T) string {
	t.Helper()
	rec := httptest.NewRecorder()
	p.collector.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	return rec.Body.String()
}

func assertContains(t *testing.T, s, substr string) {
	t.Helper()
	if !strings.Contains(s, substr) {
		t.Errorf("expected %q in:\n%s", substr, s)
	}
}
