// Ingest runs a single quietnews pipeline pass against the configured store
// and prints the run result as JSON. Intended for cron or manual backfills.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/linnemanlabs/go-core/cfg"
	"github.com/linnemanlabs/go-core/log"
	v "github.com/linnemanlabs/go-core/version"

	"github.com/linnemanlabs/quietnews/internal/app"
	vc "github.com/linnemanlabs/quietnews/internal/cfg"
	"github.com/linnemanlabs/quietnews/internal/pipeline"
)

const appName = "quietnews"
const component = "ingest"

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "fatal error:", err)
		os.Exit(1)
	}
}

type runOutput struct {
	OK bool `json:"ok"`
	*pipeline.RunResult
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	v.AppName = appName
	v.Component = component

	var (
		appCfg vc.Config
		logCfg log.Config
	)
	appCfg.RegisterFlags(flag.CommandLine)
	logCfg.RegisterFlags(flag.CommandLine)
	flag.Parse()

	cfg.FillFromEnv(flag.CommandLine, "QUIETNEWS_", func(format string, args ...any) {
		fmt.Fprintf(os.Stderr, format+"\n", args...)
	})

	if err := errors.Join(appCfg.Validate(), logCfg.Validate()); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	lg, err := log.New(logCfg.ToOptions(v.AppName))
	if err != nil {
		return fmt.Errorf("logger init: %w", err)
	}
	defer func() { _ = lg.Sync() }()

	L := lg.With("component", component)
	ctx = log.WithContext(ctx, L)

	// one-shot runs have nobody scraping metrics
	qn, err := app.Build(ctx, &appCfg, L, prometheus.NewRegistry())
	if err != nil {
		return fmt.Errorf("app init: %w", err)
	}
	defer qn.Close()

	res, err := app.RunOnce(ctx, qn.Service, L)
	if err != nil {
		return fmt.Errorf("ingest: %w", err)
	}
	return writeResult(os.Stdout, res)
}

func writeResult(w io.Writer, res *pipeline.RunResult) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(runOutput{OK: true, RunResult: res})
}
