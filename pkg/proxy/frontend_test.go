package proxy

import (
	"io"
	"math/rand/v2"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"

	"incipit-hq/incipit/pkg/routing"
)

func TestFrontend_RoutesToSingleBackend(t *testing.T) {
	backends := []*backend{
		newBackend(t, helloHandler()),
		newBackend(t, helloHandler()),
		newBackend(t, helloHandler()),
	}
	p := newTestProxy(t, exampleConfig(backends[0].port, backends[1].port, backends[2].port), proxyOptions{})

	resp, body := p.get(t, "service0.example.com", "/", nil)

	if resp.StatusCode != http.StatusOK || body != "Hello world" {
		t.Fatalf("got %d %q, want 200 Hello world", resp.StatusCode, body)
	}
	for i, want := range []int64{1, 0, 0} {
		if got := backends[i].hits.Load(); got != want {
			t.Errorf("service%d saw %d requests, want %d", i, got, want)
		}
	}

	<-p.sink.notify
	recs := p.sink.all()
	if len(recs) != 1 {
		t.Fatalf("history has %d records, want 1", len(recs))
	}
	rec := recs[0]
	if rec.Host != "service0.example.com" || rec.Target != "backend" || rec.Status != 200 || rec.BytesWritten != 11 || rec.WebSocket {
		t.Errorf("record = %+v", rec)
	}
	if rec.Backend != "0.0.0.0:"+strconv.Itoa(backends[0].port) {
		t.Errorf("record backend = %q", rec.Backend)
	}

	text := p.metricsText(t)
	assertContains(t, text, `incipit_http_requests_total{code="200",target="backend(0.0.0.0:`+strconv.Itoa(backends[0].port)+`)"} 1`)
	assertContains(t, text, `incipit_routing_resolutions_total{kind="backend"} 1`)
}

func TestFrontend_WeightedLoad(t *testing.T) {
	const requests = 1000
	weights := []float64{0.01, 0.09, 0.9}

	backends := make([]*backend, len(weights))
	ports := make([]int, len(weights))
	for i := range backends {
		backends[i] = newBackend(t, helloHandler())
		ports[i] = backends[i].port
	}
	p := newTestProxy(t, exampleConfig(ports...), proxyOptions{})

	rng := rand.New(rand.NewPCG(6942, 6942))
	picks := make([]int, requests)
	want := make([]int64, len(weights))
	for i := range picks {
		x := rng.Float64()
		idx := len(weights) - 1
		for j, acc := 0, 0.0; j < len(weights); j++ {
			acc += weights[j]
			if x < acc {
				idx = j
				break
			}
		}
		picks[i] = idx
		want[idx]++
	}

	client := p.server.Client()
	sem := make(chan struct{}, 64)
	var wg sync.WaitGroup
	errs := make(chan error, requests)

	for _, idx := range picks {
		wg.Add(1)
		sem <- struct{}{}
		go func(idx int) {
			defer wg.Done()
			defer func() { <-sem }()

			req, _ := http.NewRequest(http.MethodGet, p.server.URL+"/", nil)
			req.Host = "service" + strconv.Itoa(idx) + ".example.com"
			resp, err := client.Do(req)
			if err != nil {
				errs <- err
				return
			}
			_, _ = io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
		}(idx)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Fatalf("request failed: %v", err)
	}
	for i := range backends {
		if got := backends[i].hits.Load(); got != want[i] {
			t.Errorf("service%d saw %d requests, want %d", i, got, want[i])
		}
	}
}

func TestFrontend_FollowsReload(t *testing.T) {
	b0 := newBackend(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "old")
	}))
	b1 := newBackend(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "new")
	}))
	p := newTestProxy(t, exampleConfig(b0.port), proxyOptions{})

	if _, body := p.get(t, "service0.example.com", "/", nil); body != "old" {
		t.Fatalf("before reload body = %q", body)
	}

	if _, err := p.store.Replace(exampleConfig(b1.port)); err != nil {
		t.Fatalf("Replace: %v", err)
	}

	if _, body := p.get(t, "service0.example.com", "/", nil); body != "new" {
		t.Errorf("after reload body = %q, want new", body)
	}
}

func TestFrontend_StaticRouter(t *testing.T) {
	b := newBackend(t, helloHandler())

	frontend := NewFrontend(FrontendConfig{
		Router: routing.StaticRouter{
			"static.test": routing.Backend(b.server.Listener.Addr().String()),
		},
		Forwarder: NewForwarder(ForwarderConfig{Logger: quietLogger()}),
		Logger:    quietLogger(),
	})

	req, _ := http.NewRequest(http.MethodGet, "/x", nil)
	req.Host = "static.test"
	rec := httptest.NewRecorder()
	frontend.ServeHTTP(rec, req)

	if rec.Body.String() != "Hello path: /x" {
		t.Errorf("body = %q", rec.Body.String())
	}
}

func TestFrontend_HTTPHandlerSelection(t *testing.T) {
	b := newBackend(t, helloHandler())
	router := routing.StaticRouter{
		"static.test": routing.Backend(b.server.Listener.Addr().String()),
	}
	forwarder := NewForwarder(ForwarderConfig{Logger: quietLogger()})

	var wrapped int
	wrapper := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		wrapped++
		forwarder.ServeHTTP(w, r)
	})

	tests := []struct {
		name        string
		handler     http.Handler
		wantWrapped int
	}{
		{"forwarder fallback", nil, 0},
		{"wrapper", wrapper, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped = 0
			frontend := NewFrontend(FrontendConfig{
				Router:    router,
				Forwarder: forwarder,
				HTTP:      tt.handler,
				Logger:    quietLogger(),
			})

			req, _ := http.NewRequest(http.MethodGet, "/y", nil)
			req.Host = "static.test"
			rec := httptest.NewRecorder()
			frontend.ServeHTTP(rec, req)

			if rec.Body.String() != "Hello path: /y" {
				t.Errorf("body = %q", rec.Body.String())
			}
			if wrapped != tt.wantWrapped {
				t.Errorf("wrapper ran %d times, want %d", wrapped, tt.wantWrapped)
			}
		})
	}
}
