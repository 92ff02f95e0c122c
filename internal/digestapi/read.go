package digestapi

import (
	"net/http"
	"strconv"

	"github.com/linnemanlabs/quietnews/internal/pipeline"
)

// MaxTopLimit caps the limit query parameter of the top updates route.
const MaxTopLimit = 20

func (a *API) handleLatest(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.svc.Latest(r.Context()))
}

func (a *API) handleTop(w http.ResponseWriter, r *http.Request) {
	limit := parseLimit(r.URL.Query().Get("limit"))
	writeJSON(w, http.StatusOK, a.svc.TopUpdates(r.Context(), limit))
}

// parseLimit reads the limit parameter, clamped to 1..MaxTopLimit. Missing
// or unparsable values give the default.
func parseLimit(raw string) int {
	n, err := strconv.Atoi(raw)
	if err != nil {
		return pipeline.DefaultTopLimit
	}
	return min(max(n, 1), MaxTopLimit)
}
