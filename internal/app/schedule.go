package app

import (
	"context"
	"errors"
	"time"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/quietnews/internal/pipeline"
	"github.com/linnemanlabs/quietnews/internal/postgres"
)

// Ingester runs one ingestion pass.
type Ingester interface {
	Ingest(ctx context.Context) (*pipeline.RunResult, error)
}

// RunOnce runs one pass and logs the database work it caused.
func RunOnce(ctx context.Context, svc Ingester, L log.Logger) (*pipeline.RunResult, error) {
	ctx = postgres.WithQueryStats(ctx)
	res, err := svc.Ingest(ctx)
	if st, ok := postgres.QueryStatsFromContext(ctx); ok {
		if tot := st.Totals(); tot.Count > 0 {
			L.Info(ctx, "run db stats",
				"db_queries", tot.Count,
				"db_seconds", tot.Duration.Seconds(),
				"db_errors", tot.Errors,
			)
		}
	}
	return res, err
}

// Schedule calls RunOnce every interval until ctx is done. Ticks that land
// while a run is in flight are dropped by the service's run lock. onResult
// receives "ok", "failed" or "busy" and may be nil.
func Schedule(ctx context.Context, interval time.Duration, svc Ingester, L log.Logger, onResult func(string)) {
	if interval <= 0 {
		return
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	L.Info(ctx, "ingest scheduler started", "interval", interval.String())
	for {
		select {
		case <-ctx.Done():
			L.Info(context.Background(), "ingest scheduler stopped")
			return
		case <-t.C:
			result := "ok"
			if _, err := RunOnce(ctx, svc, L); err != nil {
				result = "failed"
				if errors.Is(err, pipeline.ErrRunInProgress) {
					result = "busy"
					L.Warn(ctx, "scheduled ingest skipped, run in progress")
				}
			}
			if onResult != nil {
				onResult(result)
			}
		}
	}
}
