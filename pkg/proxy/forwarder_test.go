package proxy

import (
	"bufio"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"incipit-hq/incipit/pkg/routing"
)

func TestForward_UnknownHost(t *testing.T) {
	b := newBackend(t, helloHandler())
	p := newTestProxy(t, exampleConfig(b.port), proxyOptions{exposeErrors: true})

	resp, body := p.get(t, "unknown.example.com", "/", nil)

	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
	if body != UnknownHostBody {
		t.Errorf("body = %q, want %q", body, UnknownHostBody)
	}
	if b.hits.Load() != 0 {
		t.Errorf("backend saw %d requests, want 0", b.hits.Load())
	}
}

func TestForward_Dashboard(t *testing.T) {
	dashboard := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "dashboard "+r.URL.Path)
	})
	p := newTestProxy(t, exampleConfig(closedPort(t)), proxyOptions{dashboard: dashboard})

	resp, body := p.get(t, "incipit.example.com", "/api/services", nil)

	if resp.StatusCode != http.StatusOK || body != "dashboard /api/services" {
		t.Errorf("got %d %q", resp.StatusCode, body)
	}
}

func TestForward_PreservesRequest(t *testing.T) {
	type seen struct {
		host, path, query, cookie, custom, forwardedFor, method string
		body                                                    string
		close                                                   bool
	}
	got := make(chan seen, 1)

	b1 := newBackend(t, helloHandler())
	b2 := newBackend(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		got <- seen{
			host:         r.Host,
			path:         r.URL.Path,
			query:        r.URL.RawQuery,
			cookie:       r.Header.Get("Cookie"),
			custom:       r.Header.Get("X-Custom"),
			forwardedFor: r.Header.Get("X-Forwarded-For"),
			method:       r.Method,
			body:         string(body),
			close:        r.Close,
		}
		_, _ = io.WriteString(w, "Hello path: "+r.URL.Path)
	}))
	p := newTestProxy(t, exampleConfig(b1.port, b2.port), proxyOptions{})

	req, _ := http.NewRequest(http.MethodPost, p.server.URL+"/this/is/a/path?a=1&b=two", strings.NewReader("payload"))
	req.Host = "service1.example.com"
	req.Header.Set("Cookie", "session=abc123")
	req.Header.Set("X-Custom", "custom-value")
	req.Header.Set("X-Forwarded-For", "203.0.113.7")

	resp, err := p.server.Client().Do(req)
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()

	if string(body) != "Hello path: /this/is/a/path" {
		t.Errorf("body = %q", body)
	}

	s := <-got
	want := seen{
		host:         "service1.example.com",
		path:         "/this/is/a/path",
		query:        "a=1&b=two",
		cookie:       "session=abc123",
		custom:       "custom-value",
		forwardedFor: "203.0.113.7",
		method:       http.MethodPost,
		body:         "payload",
		close:        true,
	}
	if s != want {
		t.Errorf("backend saw %+v, want %+v", s, want)
	}
	if b1.hits.Load() != 0 {
		t.Errorf("service0 saw %d requests, want 0", b1.hits.Load())
	}
}

func TestForward_PassesResponseThrough(t *testing.T) {
	b := newBackend(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Backend", "yes")
		w.Header().Set("Set-Cookie", "id=1")
		w.WriteHeader(http.StatusTeapot)
		_, _ = io.WriteString(w, "short and stout")
	}))
	p := newTestProxy(t, exampleConfig(b.port), proxyOptions{})

	resp, body := p.get(t, "service0.example.com", "/", nil)

	if resp.StatusCode != http.StatusTeapot || body != "short and stout" {
		t.Errorf("got %d %q", resp.StatusCode, body)
	}
	if resp.Header.Get("X-Backend") != "yes" || resp.Header.Get("Set-Cookie") != "id=1" {
		t.Errorf("headers not passed through: %v", resp.Header)
	}
}

func TestForward_BackendDown(t *testing.T) {
	port := closedPort(t)

	tests := []struct {
		name   string
		expose bool
		check  func(t *testing.T, body string)
	}{
		{
			name:   "error exposed",
			expose: true,
			check: func(t *testing.T, body string) {
				if !strings.HasPrefix(body, "500 - ") || body == GenericErrorBody {
					t.Errorf("body = %q, want error detail", body)
				}
				assertContains(t, body, strconv.Itoa(port))
			},
		},
		{
			name:   "error hidden",
			expose: false,
			check: func(t *testing.T, body string) {
				if body != GenericErrorBody {
					t.Errorf("body = %q, want %q", body, GenericErrorBody)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newTestProxy(t, exampleConfig(port), proxyOptions{exposeErrors: tt.expose})

			resp, body := p.get(t, "service0.example.com", "/", nil)
			if resp.StatusCode != http.StatusInternalServerError {
				t.Errorf("status = %d, want 500", resp.StatusCode)
			}
			tt.check(t, body)

			assertContains(t, p.metricsText(t), `incipit_http_upstream_errors_total{phase="connect",target="backend(0.0.0.0:`+strconv.Itoa(port)+`)"} 1`)

			<-p.sink.notify
			recs := p.sink.all()
			if len(recs) != 1 || recs[0].Error == "" || recs[0].Status != 500 {
				t.Errorf("history = %+v, want one failed record", recs)
			}
		})
	}
}

func TestForward_StreamsResponse(t *testing.T) {
	release := make(chan struct{})
	b := newBackend(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = io.WriteString(w, "data: first\n\n")
		w.(http.Flusher).Flush()
		<-release
		_, _ = io.WriteString(w, "data: second\n\n")
	}))
	p := newTestProxy(t, exampleConfig(b.port), proxyOptions{})
	defer close(release)

	req, _ := http.NewRequest(http.MethodGet, p.server.URL+"/events", nil)
	req.Host = "service0.example.com"
	resp, err := p.server.Client().Do(req)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()

	line := make(chan string, 1)
	go func() {
		l, _ := bufio.NewReader(resp.Body).ReadString('\n')
		line <- l
	}()

	select {
	case l := <-line:
		if l != "data: first\n" {
			t.Errorf("first line = %q", l)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("first event was buffered by the proxy")
	}
}

func TestForwarder_ServeHTTPWithoutTarget(t *testing.T) {
	f := NewForwarder(ForwarderConfig{Logger: quietLogger()})
	rec := httptest.NewRecorder()
	f.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusNotFound || rec.Body.String() != UnknownHostBody {
		t.Errorf("got %d %q", rec.Code, rec.Body.String())
	}
}

func TestForwarder_Forward(t *testing.T) {
	b := newBackend(t, helloHandler())
	f := NewForwarder(ForwarderConfig{Logger: quietLogger()})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Host = "anything"
	f.Forward(rec, req, routing.Backend(b.server.Listener.Addr().String()))

	if rec.Body.String() != "Hello world" {
		t.Errorf("body = %q", rec.Body.String())
	}
}
