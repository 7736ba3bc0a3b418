package llmadapter

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestHTTPAnalyzerAnalyzeCommand(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req analyzeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(analyzeResponse{Content: "explained: " + req.Prompt})
	}))
	defer srv.Close()

	cfg := DefaultConfig()
	cfg.AdapterURL = srv.URL
	cfg.RequestsPerSecond = 1000
	cfg.Burst = 1000
	a := NewHTTPAnalyzer(cfg)

	got, err := a.AnalyzeCommand(context.Background(), "s1", "ls -la")
	if err != nil {
		t.Fatalf("AnalyzeCommand() error: %v", err)
	}
	if got == "" {
		t.Fatal("expected a non-empty explanation")
	}
}

func TestHTTPAnalyzerRetriesOn5xx(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(analyzeResponse{Content: "ok"})
	}))
	defer srv.Close()

	cfg := DefaultConfig()
	cfg.AdapterURL = srv.URL
	cfg.RequestsPerSecond = 1000
	cfg.Burst = 1000
	cfg.BaseDelay = time.Millisecond
	a := NewHTTPAnalyzer(cfg)

	got, err := a.AnalyzeCommand(context.Background(), "s1", "ls")
	if err != nil {
		t.Fatalf("AnalyzeCommand() error: %v", err)
	}
	if got != "ok" {
		t.Fatalf("got %q, want %q", got, "ok")
	}
	if attempts < 2 {
		t.Fatalf("expected at least 2 attempts, got %d", attempts)
	}
}

func TestHTTPAnalyzerNonRetryableStatus(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	cfg := DefaultConfig()
	cfg.AdapterURL = srv.URL
	cfg.RequestsPerSecond = 1000
	cfg.Burst = 1000
	cfg.MaxRetries = 2
	cfg.BaseDelay = time.Millisecond
	a := NewHTTPAnalyzer(cfg)

	if _, err := a.AnalyzeCommand(context.Background(), "s1", "ls"); err == nil {
		t.Fatal("expected an error for a non-retryable 400 response")
	}
	if attempts != 1 {
		t.Fatalf("attempts = %d, want 1 (a 400 must not be retried)", attempts)
	}
}
