package postgres

import (
	"cmp"
	"context"
	"errors"
	"runtime"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/linnemanlabs/go-core/log"
)

const modulePath = "github.com/linnemanlabs/quietnews"

// storePackages issue queries on behalf of someone else, so the stack walk
// looks past them when naming the entry point.
var storePackages = []string{
	modulePath + "/internal/postgres.",
	modulePath + "/internal/pipeline/pgstore.",
}

type operationKey struct{}

type queryStateKey struct{}

// queryState travels from TraceQueryStart to TraceQueryEnd.
type queryState struct {
	sql    string
	nargs  int
	start  time.Time
	caller string
	entry  string
}

// WithOperation names the store operation issuing the next queries, e.g.
// "save_items". Used as the operation label on query metrics.
func WithOperation(ctx context.Context, op string) context.Context {
	if op == "" {
		return ctx
	}
	return context.WithValue(ctx, operationKey{}, op)
}

func operationFromContext(ctx context.Context) string {
	op, _ := ctx.Value(operationKey{}).(string)
	return op
}

// loggingTracer wraps another pgx.QueryTracer (otelpgx in production) and
// emits a structured log line plus metrics for every query.
type loggingTracer struct {
	inner pgx.QueryTracer
}

func wrapQueryTracer(inner pgx.QueryTracer) pgx.QueryTracer {
	return loggingTracer{inner: inner}
}

func (t loggingTracer) TraceQueryStart(ctx context.Context, conn *pgx.Conn, data pgx.TraceQueryStartData) context.Context {
	st := &queryState{sql: data.SQL, nargs: len(data.Args), start: time.Now()}
	st.caller, st.entry = findCallerAndEntry()

	// inner tracer opens the span we annotate below
	if t.inner != nil {
		ctx = t.inner.TraceQueryStart(ctx, conn, data)
	}

	if span := trace.SpanFromContext(ctx); span.IsRecording() {
		if st.caller != "" {
			span.SetAttributes(attribute.String("db.caller", st.caller))
		}
		if st.entry != "" {
			span.SetAttributes(attribute.String("db.entry", st.entry))
		}
		if op := operationFromContext(ctx); op != "" {
			span.SetAttributes(attribute.String("db.store_operation", op))
		}
	}
	return context.WithValue(ctx, queryStateKey{}, st)
}

func (t loggingTracer) TraceQueryEnd(ctx context.Context, conn *pgx.Conn, data pgx.TraceQueryEndData) {
	if t.inner != nil {
		t.inner.TraceQueryEnd(ctx, conn, data)
	}

	st, _ := ctx.Value(queryStateKey{}).(*queryState)
	if st == nil {
		st = &queryState{}
	}
	var dur time.Duration
	if !st.start.IsZero() {
		dur = time.Since(st.start)
	}

	if stats, ok := QueryStatsFromContext(ctx); ok {
		stats.Add(dur, data.Err)
	}
	observe(ctx, dur, data.Err)

	fields := queryFields(ctx, st, dur, data)
	L := log.FromContext(ctx)
	if data.Err != nil {
		L.Error(ctx, data.Err, "db query failed", fields...)
		return
	}
	L.Info(ctx, "db query", fields...)
}

func observe(ctx context.Context, dur time.Duration, err error) {
	obs := currentObserver()
	if obs == nil || dur <= 0 {
		return
	}
	op := cmp.Or(operationFromContext(ctx), "unknown")

	// scheduled ingestion has no chi route
	route := "none"
	if rc := chi.RouteContext(ctx); rc != nil {
		route = cmp.Or(rc.RoutePattern(), route)
	}

	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	obs.ObserveQuery(ctx, op, route, outcome, dur)
}

func queryFields(ctx context.Context, st *queryState, dur time.Duration, data pgx.TraceQueryEndData) []any {
	fields := []any{
		"db.statement", st.sql,
		"db.args", st.nargs,
		"db.duration", dur.Seconds(),
	}
	if op := operationFromContext(ctx); op != "" {
		fields = append(fields, "db.store_operation", op)
	}
	if tag := strings.TrimSpace(data.CommandTag.String()); tag != "" {
		verb, _, _ := strings.Cut(tag, " ")
		fields = append(fields,
			"db.operation.name", strings.ToUpper(verb),
			"pg.command_tag", tag,
			"db.rows", data.CommandTag.RowsAffected(),
		)
	}
	if st.caller != "" {
		fields = append(fields, "db.caller", st.caller)
	}
	if st.entry != "" {
		fields = append(fields, "db.entry", st.entry)
	}
	var pgErr *pgconn.PgError
	if errors.As(data.Err, &pgErr) {
		fields = append(fields,
			"db.error_code", pgErr.Code,
			"db.error_constraint", pgErr.ConstraintName,
		)
	}
	return fields
}

// findCallerAndEntry walks the stack once per query. caller is the first
// application frame (the store method issuing SQL). entry is the first frame
// outside the store packages, typically a pipeline stage.
func findCallerAndEntry() (caller, entry string) {
	pcs := make([]uintptr, 32)
	n := runtime.Callers(3, pcs)
	frames := runtime.CallersFrames(pcs[:n])

	for more := true; more; {
		var fr runtime.Frame
		fr, more = frames.Next()
		fn := fr.Function
		if fn == "" || skipFrame(fn) {
			continue
		}
		if caller == "" {
			caller = shortenFuncName(fn)
			continue
		}
		if inStorePackage(fn) {
			continue
		}
		return caller, shortenFuncName(fn)
	}
	return caller, ""
}

func skipFrame(fn string) bool {
	return strings.HasPrefix(fn, "runtime.") ||
		strings.Contains(fn, "github.com/jackc/pgx/v5") ||
		strings.Contains(fn, "github.com/exaring/otelpgx") ||
		strings.Contains(fn, "loggingTracer.TraceQuery")
}

func inStorePackage(fn string) bool {
	for _, p := range storePackages {
		if strings.Contains(fn, p) {
			return true
		}
	}
	return false
}

// shortenFuncName drops the import path and package, keeping receiver and
// method: ".../pgstore.(*Store).SaveItems" becomes "(*Store).SaveItems".
func shortenFuncName(fn string) string {
	if i := strings.LastIndex(fn, "/"); i >= 0 && i+1 < len(fn) {
		fn = fn[i+1:]
	}
	if _, rest, ok := strings.Cut(fn, "."); ok && rest != "" {
		fn = rest
	}
	return fn
}
