package digestapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/quietnews/internal/news"
	"github.com/linnemanlabs/quietnews/internal/pipeline"
)

const testSecret = "s3cret"

type fakeService struct {
	mu        sync.Mutex
	result    *pipeline.RunResult
	err       error
	latest    pipeline.LatestDigest
	top       []news.TopUpdate
	gotLimit  int
	ingestCnt int
}

func (f *fakeService) Ingest(context.Context) (*pipeline.RunResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ingestCnt++
	return f.result, f.err
}

func (f *fakeService) Latest(context.Context) pipeline.LatestDigest { return f.latest }

func (f *fakeService) TopUpdates(_ context.Context, limit int) []news.TopUpdate {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gotLimit = limit
	return f.top
}

func newTestRouter(t *testing.T, svc *fakeService, onTrigger func(string)) chi.Router {
	t.Helper()
	api := New(log.Nop(), svc, Config{IngestSecret: testSecret, OnTrigger: onTrigger})
	r := chi.NewRouter()
	api.RegisterRoutes(r)
	return r
}

func serve(r http.Handler, method, target string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, http.NoBody)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &m); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return m
}

func TestNew_NilLogger(t *testing.T) {
	t.Parallel()

	api := New(nil, &fakeService{}, Config{})
	if api.logger == nil {
		t.Fatal("New left logger nil; expected Nop logger")
	}
}

func TestNew_NilService_Panics(t *testing.T) {
	t.Parallel()

	defer func() {
		if r := recover(); r == nil {
			t.Fatal("New with nil service did not panic")
		}
	}()
	New(nil, nil, Config{})
}

func TestIngest_Outcomes(t *testing.T) {
	t.Parallel()

	okResult := &pipeline.RunResult{
		RunID:         "01J000000000000000000000RN",
		FetchedCount:  12,
		UniqueCount:   10,
		VitalClusters: 1,
		Digest:        &news.DigestRow{DigestText: "עדכון", Sources: []string{"https://a/1"}},
	}

	tests := []struct {
		name        string
		target      string
		result      *pipeline.RunResult
		err         error
		wantStatus  int
		wantTrigger string
		wantCalls   int
	}{
		{"unauthorized", "/api/v1/ingest", okResult, nil, http.StatusUnauthorized, "", 0},
		{"wrong secret", "/api/v1/ingest?secret=nope", okResult, nil, http.StatusUnauthorized, "", 0},
		{"ok", "/api/v1/ingest?secret=" + testSecret, okResult, nil, http.StatusOK, "ok", 1},
		{"busy", "/api/v1/ingest?secret=" + testSecret, nil, pipeline.ErrRunInProgress, http.StatusConflict, "busy", 1},
		{"failed", "/api/v1/ingest?secret=" + testSecret, nil, errors.New("persist_raw: disk full"), http.StatusInternalServerError, "failed", 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			svc := &fakeService{result: tt.result, err: tt.err}
			var trig string
			r := newTestRouter(t, svc, func(s string) { trig = s })

			rec := serve(r, http.MethodPost, tt.target)
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (%s)", rec.Code, tt.wantStatus, rec.Body.String())
			}
			if trig != tt.wantTrigger {
				t.Errorf("trigger = %q, want %q", trig, tt.wantTrigger)
			}
			if svc.ingestCnt != tt.wantCalls {
				t.Errorf("ingest calls = %d, want %d", svc.ingestCnt, tt.wantCalls)
			}
		})
	}
}

func TestIngest_ResponseShape(t *testing.T) {
	t.Parallel()

	svc := &fakeService{result: &pipeline.RunResult{RunID: "r1", FetchedCount: 4, UniqueCount: 4, VitalClusters: 2}}
	r := newTestRouter(t, svc, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/ingest", http.NoBody)
	req.Header.Set("Authorization", "Bearer "+testSecret)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	m := decode(t, rec)
	if m["ok"] != true || m["runId"] != "r1" || m["fetchedCount"] != float64(4) || m["vitalClusters"] != float64(2) {
		t.Errorf("body = %v", m)
	}

	svc.err = errors.New("boom")
	rec = serve(r, http.MethodPost, "/api/v1/ingest?secret="+testSecret)
	m = decode(t, rec)
	if m["ok"] != false || m["error"] != "boom" {
		t.Errorf("error body = %v", m)
	}
}

func TestLatest(t *testing.T) {
	t.Parallel()

	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc := &fakeService{latest: pipeline.LatestDigest{UpdatedAt: at, DigestText: news.Placeholder, Sources: []string{}}}
	r := newTestRouter(t, svc, nil)

	rec := serve(r, http.MethodGet, "/api/v1/digest/latest")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	m := decode(t, rec)
	if m["digestText"] != news.Placeholder || m["updatedAt"] != "2026-03-01T12:00:00Z" {
		t.Errorf("body = %v", m)
	}
	if src, ok := m["sources"].([]any); !ok || len(src) != 0 {
		t.Errorf("sources = %v, want empty array", m["sources"])
	}
}

func TestTop_LimitClamp(t *testing.T) {
	t.Parallel()

	tests := []struct {
		query string
		want  int
	}{
		{"", pipeline.DefaultTopLimit},
		{"?limit=abc", pipeline.DefaultTopLimit},
		{"?limit=0", 1},
		{"?limit=-4", 1},
		{"?limit=7", 7},
		{"?limit=20", 20},
		{"?limit=500", MaxTopLimit},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			t.Parallel()

			svc := &fakeService{top: []news.TopUpdate{{Title: "t", URL: "https://a/1", Source: "ynet"}}}
			r := newTestRouter(t, svc, nil)

			rec := serve(r, http.MethodGet, "/api/v1/updates/top"+tt.query)
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d", rec.Code)
			}
			if svc.gotLimit != tt.want {
				t.Errorf("limit = %d, want %d", svc.gotLimit, tt.want)
			}
		})
	}
}

func TestRoutes_MethodNotAllowed(t *testing.T) {
	t.Parallel()

	r := newTestRouter(t, &fakeService{}, nil)
	if rec := serve(r, http.MethodGet, "/api/v1/ingest"); rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET ingest status = %d, want 405", rec.Code)
	}
	if rec := serve(r, http.MethodPost, "/api/v1/digest/latest"); rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("POST latest status = %d, want 405", rec.Code)
	}
}
