package hermesclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestClientDisabledIsNoOp(t *testing.T) {
	var called int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&called, 1)
	}))
	defer srv.Close()

	cfg := DefaultConfig()
	cfg.BaseURL = srv.URL
	cfg.Enabled = false
	c := New(cfg)

	c.Register(context.Background(), "http://localhost:8004")
	c.PublishSessionCreated(context.Background(), "s1")

	if atomic.LoadInt32(&called) != 0 {
		t.Fatal("disabled client should never call Hermes")
	}
}

func TestClientRegisterSendsExpectedPayload(t *testing.T) {
	var gotPath string
	var gotPayload registrationPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&gotPayload)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cfg := DefaultConfig()
	cfg.BaseURL = srv.URL
	cfg.Enabled = true
	cfg.BaseDelay = time.Millisecond
	c := New(cfg)

	c.Register(context.Background(), "http://localhost:8004")

	if gotPath != "/register" {
		t.Fatalf("path = %q, want /register", gotPath)
	}
	if gotPayload.Service != "terma" || gotPayload.Endpoint != "http://localhost:8004" {
		t.Fatalf("payload = %+v, want service terma and endpoint http://localhost:8004", gotPayload)
	}
}

func TestClientPublishEventRetriesOn5xx(t *testing.T) {
	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&attempts, 1) < 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cfg := DefaultConfig()
	cfg.BaseURL = srv.URL
	cfg.Enabled = true
	cfg.BaseDelay = time.Millisecond
	c := New(cfg)

	c.PublishSessionClosed(context.Background(), "s1")

	if atomic.LoadInt32(&attempts) < 2 {
		t.Fatalf("attempts = %d, want >= 2", attempts)
	}
}
