// Package digestapi exposes the ingestion trigger and the digest read path
// over HTTP.
package digestapi

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/go-core/xerrors"

	"github.com/linnemanlabs/quietnews/internal/authmw"
	"github.com/linnemanlabs/quietnews/internal/news"
	"github.com/linnemanlabs/quietnews/internal/pipeline"
)

// DigestService defines the business operations digestapi needs.
type DigestService interface {
	Ingest(ctx context.Context) (*pipeline.RunResult, error)
	Latest(ctx context.Context) pipeline.LatestDigest
	TopUpdates(ctx context.Context, limit int) []news.TopUpdate
}

// Config holds the optional knobs for the API.
type Config struct {
	// IngestSecret guards the trigger route. Empty rejects every trigger.
	IngestSecret string
	// OnTrigger is called with "ok", "failed" or "busy" after each trigger.
	OnTrigger func(result string)
}

// API holds dependencies for HTTP handlers.
type API struct {
	logger log.Logger
	svc    DigestService
	cfg    Config
}

// New creates a new API handler.
func New(logger log.Logger, svc DigestService, cfg Config) *API {
	if logger == nil {
		logger = log.Nop()
	}
	if svc == nil {
		panic(xerrors.New("digest service is required"))
	}
	return &API{
		logger: logger,
		svc:    svc,
		cfg:    cfg,
	}
}

// RegisterRoutes attaches API endpoints to the router.
func (a *API) RegisterRoutes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.With(authmw.SharedSecret(a.cfg.IngestSecret)).Post("/ingest", a.handleIngest)
		r.Get("/digest/latest", a.handleLatest)
		r.Get("/updates/top", a.handleTop)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// nothing to do with errors here
	_ = json.NewEncoder(w).Encode(v)
}

func (a *API) trigger(result string) {
	if a.cfg.OnTrigger != nil {
		a.cfg.OnTrigger(result)
	}
}
