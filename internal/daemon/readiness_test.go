package daemon

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"scribe/internal/logging"
	"scribe/internal/testsupport"
)

func TestRequireReadyGatesStartup(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	d, err := New(cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	srv, err := newAPIServer(cfg, d, logging.NewNop())
	if err != nil {
		t.Fatalf("newAPIServer failed: %v", err)
	}

	handler := srv.requireReady(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	rec := httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 while starting, got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") != "1" {
		t.Fatalf("expected retry hint, got %q", rec.Header().Get("Retry-After"))
	}

	d.state.Store(int32(StateCoreReady))
	rec = httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 once core ready, got %d", rec.Code)
	}

	d.state.Store(int32(StateStopped))
	rec = httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 once stopped, got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") != "" {
		t.Fatal("stopped responses must not suggest retrying")
	}
}

func TestAPIServerDisabledWithoutBind(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Paths.APIBind = ""
	d, err := New(cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	srv, err := newAPIServer(cfg, d, logging.NewNop())
	if err != nil {
		t.Fatalf("newAPIServer failed: %v", err)
	}
	if srv != nil {
		t.Fatal("expected no api server without a bind address")
	}
}

func TestWaitForHandles(t *testing.T) {
	ctx := context.Background()

	if !waitForHandles(ctx, nil, time.Millisecond) {
		t.Fatal("no handles should drain immediately")
	}

	closed := make(chan struct{})
	close(closed)
	if !waitForHandles(ctx, []<-chan struct{}{closed, closed}, 50*time.Millisecond) {
		t.Fatal("closed handles should drain")
	}

	open := make(chan struct{})
	if waitForHandles(ctx, []<-chan struct{}{open}, 20*time.Millisecond) {
		t.Fatal("expected timeout on a live handle")
	}

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	if waitForHandles(cancelled, []<-chan struct{}{open}, time.Minute) {
		t.Fatal("expected cancelled context to abort the drain")
	}
}
