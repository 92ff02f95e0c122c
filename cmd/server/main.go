// Quietnews serves a calm digest of corroborated, vital news events.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	otelpyroscope "github.com/grafana/otel-profiling-go"
	"go.opentelemetry.io/otel"

	"github.com/linnemanlabs/go-core/cfg"
	"github.com/linnemanlabs/go-core/health"
	"github.com/linnemanlabs/go-core/httpserver"
	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/go-core/metrics"
	"github.com/linnemanlabs/go-core/opshttp"
	"github.com/linnemanlabs/go-core/otelx"
	"github.com/linnemanlabs/go-core/prof"
	v "github.com/linnemanlabs/go-core/version"

	"github.com/linnemanlabs/quietnews/internal/app"
	"github.com/linnemanlabs/quietnews/internal/digestapi"
)

const appName = "quietnews"
const component = "server"

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "fatal error:", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	v.AppName = appName
	v.Component = component
	vi := v.Get()

	var c serverConfig
	c.register(flag.CommandLine)
	var showVersion bool
	flag.BoolVar(&showVersion, "V", false, "Print version+build information and exit")

	flag.Parse()
	if showVersion {
		fmt.Printf(
			"%s (%s) %s (commit=%s, commit_date=%s, build_id=%s, build_date=%s, go=%s, dirty=%v)\n",
			vi.AppName, vi.Component, vi.Version, vi.Commit, vi.CommitDate, vi.BuildId, vi.BuildDate, vi.GoVersion,
			vi.VCSDirty != nil && *vi.VCSDirty,
		)
		return nil
	}

	// QUIETNEWS_* env vars fill whatever the command line left unset
	cfg.FillFromEnv(flag.CommandLine, "QUIETNEWS_", func(format string, args ...any) {
		fmt.Fprintf(os.Stderr, format+"\n", args...)
	})

	if err := c.validate(); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	lg, err := log.New(c.log.ToOptions(v.AppName))
	if err != nil {
		return fmt.Errorf("logger init: %w", err)
	}
	defer func() { _ = lg.Sync() }()

	L := lg.With("component", vi.Component)
	ctx = log.WithContext(ctx, L)

	L.Info(ctx, "initializing application",
		"version", vi.Version,
		"commit", vi.Commit,
		"build_id", vi.BuildId,
		"go_version", vi.GoVersion,
		"http_port", c.app.APIPort,
		"admin_port", c.ops.Port,
		"enable_pyroscope", c.prof.EnablePyroscope,
		"enable_tracing", c.trace.EnableTracing,
		"otlp_endpoint", c.trace.OTLPEndpoint,
		"trusted_proxy_hops", c.httpmw.TrustedProxyHops,
		"store", c.app.StoreKind(),
		"offline_sources", c.app.OfflineSources,
		"ingest_interval", c.app.IngestInterval.String(),
		"llm_enabled", c.app.ClaudeAPIKey != "",
	)

	// profiling first so startup is covered
	profOpts := c.prof.ToOptions()
	profOpts.AppName = v.AppName
	profOpts.Tags = map[string]string{
		"app":       v.AppName,
		"component": v.Component,
		"version":   vi.Version,
		"commit":    vi.Commit,
		"build_id":  vi.BuildId,
	}
	stopProf, profErr := prof.Start(ctx, profOpts)
	if profErr != nil {
		L.Error(ctx, profErr, "pyroscope start failed", "pyro_server", c.prof.PyroServer)
	}
	profiling := profErr == nil && c.prof.EnablePyroscope

	traceOpts := c.trace.ToOptions()
	traceOpts.Service = v.AppName
	traceOpts.Component = v.Component
	traceOpts.Version = v.Version
	shutdownOtelx, err := otelx.Init(ctx, traceOpts)
	if err != nil {
		L.Error(ctx, err, "otel init failed")
	}
	if profiling {
		// tag profiles with span ids so pyroscope can jump to the trace
		otel.SetTracerProvider(otelpyroscope.NewTracerProvider(otel.GetTracerProvider()))
	}

	m := metrics.New()
	m.SetBuildInfoFromVersion(v.AppName, component, &vi)
	m.SetProfilingActive(profiling)

	qn, err := app.Build(ctx, &c.app, L, m.Registry())
	if err != nil {
		return fmt.Errorf("app init: %w", err)
	}
	defer qn.Close()

	onTrigger := func(result string) { qn.Metrics.TriggersTotal.WithLabelValues(result).Inc() }
	go app.Schedule(ctx, c.app.IngestInterval, qn.Service, L, onTrigger)

	// readiness fails once draining starts so the load balancer stops routing
	var shutdownGate health.ShutdownGate
	readiness := health.All(shutdownGate.Probe())
	liveness := health.Fixed(true, "")

	opsOpts := c.ops.ToOptions()
	opsOpts.Metrics = m.Handler()
	opsOpts.Health = liveness
	opsOpts.Readiness = readiness
	opsOpts.UseRecoverMW = true
	opsOpts.OnPanic = m.IncHttpPanic
	opsHTTPStop, err := opshttp.Start(ctx, L, opsOpts)
	if err != nil {
		L.Error(ctx, err, "failed to start ops http listener")
		return err
	}

	if c.app.IngestToken == "" {
		L.Warn(ctx, "no ingest-token configured, POST /api/v1/ingest will reject every request")
	}
	api := digestapi.New(L, qn.Service, digestapi.Config{
		IngestSecret: c.app.IngestToken,
		OnTrigger:    onTrigger,
	})
	h := newHandler(L, func(next http.Handler) http.Handler { return m.Middleware(next) }, c.httpmw, api, probes{
		healthy: health.HealthzHandler(liveness),
		ready:   health.ReadyzHandler(readiness),
	})

	apiOpts, err := c.http.ToOptions()
	if err != nil {
		L.Error(ctx, err, "invalid http config")
		return err
	}
	apiHTTPStop, err := httpserver.Start(ctx, fmt.Sprintf(":%d", c.app.APIPort), h, L, apiOpts)
	if err != nil {
		L.Error(ctx, err, "failed to start api http listener")
		return err
	}

	if err := notifySystemd("READY=1"); err != nil {
		// systemd kills us after its start timeout if this really mattered
		L.Warn(ctx, "failed to notify systemd of readiness", "error", err)
	}

	<-ctx.Done()
	bg := context.Background()
	L.Info(bg, "shutdown signal received")
	_ = notifySystemd("STOPPING=1")

	shutdownGate.Set("draining")
	drain(bg, L, c.app.DrainSeconds)

	stopAll(bg, L, c.app.ShutdownBudgetSeconds, []stopFn{
		{"api http server", apiHTTPStop},
		{"ops http server", opsHTTPStop},
		{"otel", shutdownOtelx},
	})
	if stopProf != nil {
		stopProf()
	}

	L.Info(bg, "shutdown complete")
	return nil
}
