package main

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/linnemanlabs/go-core/httpmw"
	"github.com/linnemanlabs/go-core/log"
)

type stubAPI struct{}

func (stubAPI) RegisterRoutes(r chi.Router) {
	r.Get("/api/v1/digest/latest", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"digestText":"x"}`))
	})
}

func TestNewHandler_Routes(t *testing.T) {
	t.Parallel()

	notReady := func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusServiceUnavailable) }
	ok := func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) }

	instrumented := 0
	instrument := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			instrumented++
			next.ServeHTTP(w, r)
		})
	}
	h := newHandler(log.Nop(), instrument, httpmw.Config{}, stubAPI{}, probes{healthy: ok, ready: notReady})

	tests := []struct {
		path string
		want int
	}{
		{"/-/healthy", http.StatusOK},
		{"/-/ready", http.StatusServiceUnavailable},
		{"/api/v1/digest/latest", http.StatusOK},
		{"/api/v1/nope", http.StatusNotFound},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, tt.path, nil)
		req.RemoteAddr = "10.0.0.1:1234"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != tt.want {
			t.Errorf("GET %s = %d, want %d", tt.path, rec.Code, tt.want)
		}
	}
	if instrumented != len(tests) {
		t.Errorf("instrument saw %d requests, want %d", instrumented, len(tests))
	}
}

func TestTraced(t *testing.T) {
	t.Parallel()

	for path, want := range map[string]bool{
		"/-/healthy":          false,
		"/-/ready":            false,
		"/api/v1/ingest":      true,
		"/api/v1/updates/top": true,
	} {
		if got := traced(httptest.NewRequest(http.MethodGet, path, nil)); got != want {
			t.Errorf("traced(%s) = %v, want %v", path, got, want)
		}
	}
}
