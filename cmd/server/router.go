package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/linnemanlabs/go-core/httpmw"
	"github.com/linnemanlabs/go-core/log"
)

// maxBodyBytes caps request bodies. No route reads one today.
const maxBodyBytes = 4 << 10

// routeRegistrar is satisfied by the digest API.
type routeRegistrar interface {
	RegisterRoutes(r chi.Router)
}

type probes struct {
	healthy http.HandlerFunc
	ready   http.HandlerFunc
}

// newHandler builds the public listener's handler. Wrappers are applied
// inside out, so the last one applied sees the raw request first. instrument
// may be nil.
func newHandler(L log.Logger, instrument func(http.Handler) http.Handler, mwCfg httpmw.Config, api routeRegistrar, p probes) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Compress(5, "application/json"))
	r.Use(httpmw.AnnotateHTTPRoute)
	r.Use(httpmw.AccessLog())
	r.Use(httpmw.MaxBody(maxBodyBytes))

	r.Get("/-/healthy", p.healthy)
	r.Get("/-/ready", p.ready)
	api.RegisterRoutes(r)

	var h http.Handler = r
	h = httpmw.WithLogger(L)(h)
	h = httpmw.TraceResponseHeaders("X-Trace-Id", "X-Span-Id")(h)
	h = otelhttp.NewHandler(h, "http.server",
		otelhttp.WithFilter(traced),
		// AnnotateHTTPRoute renames the span to the chi pattern later
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}),
		otelhttp.WithPublicEndpointFn(func(*http.Request) bool { return true }),
	)
	if instrument != nil {
		h = instrument(h)
	}
	h = httpmw.ClientIPWithOptions(httpmw.ClientIPOptions{
		TrustedHops: mwCfg.TrustedProxyHops,
	})(h)
	h = httpmw.RequestID("X-Request-Id")(h)
	h = httpmw.Recover(L, nil)(h)
	h = httpmw.SecurityHeaders(h)
	return h
}

// traced reports whether a request gets a server span. Probes are skipped.
func traced(r *http.Request) bool {
	return r.URL.Path != "/-/healthy" && r.URL.Path != "/-/ready"
}
