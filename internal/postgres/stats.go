package postgres

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

type queryStatsKey struct{}

// QueryStats accumulates the database work done under one context, usually
// one ingestion run or one HTTP request.
type QueryStats struct {
	mu     sync.Mutex
	totals QueryTotals
}

// QueryTotals is a point-in-time copy of QueryStats.
type QueryTotals struct {
	Count    int
	Errors   int
	Duration time.Duration
}

// Add records a single query execution.
func (s *QueryStats) Add(dur time.Duration, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.totals.Count++
	s.totals.Duration += dur
	if err != nil {
		s.totals.Errors++
	}
}

// Totals returns the counts accumulated so far.
func (s *QueryStats) Totals() QueryTotals {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.totals
}

// WithQueryStats returns a context carrying a fresh QueryStats. Queries
// issued under it are counted.
func WithQueryStats(ctx context.Context) context.Context {
	return context.WithValue(ctx, queryStatsKey{}, &QueryStats{})
}

// QueryStatsFromContext returns the QueryStats attached by WithQueryStats.
func QueryStatsFromContext(ctx context.Context) (*QueryStats, bool) {
	s, ok := ctx.Value(queryStatsKey{}).(*QueryStats)
	return s, ok
}

// QueryObserver receives one call per finished query. main wires it to a
// Prometheus histogram.
type QueryObserver interface {
	ObserveQuery(ctx context.Context, operation, route, outcome string, dur time.Duration)
}

// QueryObserverFunc adapts a plain function to QueryObserver.
type QueryObserverFunc func(ctx context.Context, operation, route, outcome string, dur time.Duration)

// ObserveQuery implements QueryObserver.
func (f QueryObserverFunc) ObserveQuery(ctx context.Context, operation, route, outcome string, dur time.Duration) {
	f(ctx, operation, route, outcome, dur)
}

type observerBox struct{ QueryObserver }

var queryObserver atomic.Pointer[observerBox]

// SetQueryObserver installs o process-wide. nil removes it.
func SetQueryObserver(o QueryObserver) {
	if o == nil {
		queryObserver.Store(nil)
		return
	}
	queryObserver.Store(&observerBox{QueryObserver: o})
}

func currentObserver() QueryObserver {
	if b := queryObserver.Load(); b != nil {
		return b.QueryObserver
	}
	return nil
}
