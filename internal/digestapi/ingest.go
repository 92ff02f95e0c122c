package digestapi

import (
	"errors"
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/linnemanlabs/quietnews/internal/pipeline"
)

type ingestResponse struct {
	OK bool `json:"ok"`
	*pipeline.RunResult
}

type errorResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}

func (a *API) handleIngest(w http.ResponseWriter, r *http.Request) {
	res, err := a.svc.Ingest(r.Context())
	switch {
	case errors.Is(err, pipeline.ErrRunInProgress):
		a.trigger("busy")
		writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error()})
		return
	case err != nil:
		a.trigger("failed")
		a.logger.Error(r.Context(), err, "ingest trigger failed")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}

	a.trigger("ok")
	trace.SpanFromContext(r.Context()).SetAttributes(
		attribute.String("quietnews.run.id", res.RunID),
		attribute.Int("quietnews.run.vital_clusters", res.VitalClusters),
	)
	writeJSON(w, http.StatusOK, ingestResponse{OK: true, RunResult: res})
}
