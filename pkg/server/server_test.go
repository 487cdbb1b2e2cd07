package server

import (
	"context"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func testServer(t *testing.T, h http.Handler) *Server {
	t.Helper()
	return NewServer(Config{
		Addr:            "127.0.0.1:0",
		ShutdownTimeout: 2 * time.Second,
		Logger:          slog.New(slog.DiscardHandler),
	}, h)
}

func TestServer_StartAndShutdown(t *testing.T) {
	srv := testServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "hello")
	}))
	if err := srv.Listen(); err != nil {
		t.Fatalf("Listen: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Start(ctx) }()

	resp, err := http.Get("http://" + srv.Addr().String() + "/")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()

	if string(body) != "hello" {
		t.Errorf("body = %q", body)
	}
	if resp.Header.Get("X-Request-ID") == "" {
		t.Error("request ID middleware not applied")
	}
	if !srv.IsRunning() {
		t.Error("IsRunning() = false while serving")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Start returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Start did not return after cancel")
	}
	if srv.IsRunning() {
		t.Error("IsRunning() = true after shutdown")
	}
}

func TestServer_BindFailure(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer l.Close()

	srv := NewServer(Config{Addr: l.Addr().String(), Logger: slog.New(slog.DiscardHandler)}, http.NotFoundHandler())
	err = srv.Start(context.Background())
	if err == nil {
		t.Fatal("expected bind failure")
	}
	if !strings.HasPrefix(err.Error(), "can't bind to "+l.Addr().String()) {
		t.Errorf("error = %q", err)
	}
}

func TestServer_RunsShutdownHooks(t *testing.T) {
	srv := testServer(t, http.NotFoundHandler())

	var called atomic.Bool
	hookDone := make(chan struct{})
	srv.RegisterOnShutdown(func() {
		called.Store(true)
		close(hookDone)
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Start(ctx) }()

	deadline := time.Now().Add(5 * time.Second)
	for !srv.IsRunning() {
		if time.Now().After(deadline) {
			t.Fatal("server did not start")
		}
		time.Sleep(10 * time.Millisecond)
	}
	cancel()
	<-done

	select {
	case <-hookDone:
	case <-time.After(5 * time.Second):
		t.Fatal("shutdown hook not run")
	}
	if !called.Load() {
		t.Error("shutdown hook not called")
	}
}

func TestServer_RecoversPanics(t *testing.T) {
	srv := testServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))
	if err := srv.Listen(); err != nil {
		t.Fatalf("Listen: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = srv.Start(ctx) }()

	resp, err := http.Get("http://" + srv.Addr().String() + "/")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", resp.StatusCode)
	}
}

func TestServer_MaxConnections(t *testing.T) {
	srv := NewServer(Config{
		Addr:           "127.0.0.1:0",
		MaxConnections: 1,
		Logger:         slog.New(slog.DiscardHandler),
	}, http.NotFoundHandler())
	if err := srv.Listen(); err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer srv.listener.Close()

	if _, ok := srv.listener.(*net.TCPListener); ok {
		t.Error("listener not wrapped by connection limit")
	}
}
