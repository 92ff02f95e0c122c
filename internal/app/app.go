// Package app assembles the ingestion service from configuration. Both the
// server and the one-shot ingest command build through it.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/linnemanlabs/go-core/log"

	vc "github.com/linnemanlabs/quietnews/internal/cfg"
	"github.com/linnemanlabs/quietnews/internal/collector"
	"github.com/linnemanlabs/quietnews/internal/llm/claude"
	"github.com/linnemanlabs/quietnews/internal/news"
	"github.com/linnemanlabs/quietnews/internal/notify/slack"
	"github.com/linnemanlabs/quietnews/internal/pipeline"
	"github.com/linnemanlabs/quietnews/internal/pipeline/memstore"
	"github.com/linnemanlabs/quietnews/internal/pipeline/pgstore"
	"github.com/linnemanlabs/quietnews/internal/pipeline/sqlitestore"
	"github.com/linnemanlabs/quietnews/internal/postgres"
)

// App is a wired service plus the resources it owns.
type App struct {
	Service *pipeline.Service
	Metrics *pipeline.Metrics
	closers []func()
}

// Close releases the store. Safe to call once.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// Build wires store, source, strategies and notifier from c. Metrics are
// registered on reg.
func Build(ctx context.Context, c *vc.Config, L log.Logger, reg prometheus.Registerer) (*App, error) {
	if L == nil {
		L = log.Nop()
	}
	a := &App{Metrics: pipeline.NewMetrics(reg)}
	hooks := a.Metrics.Hooks()
	vocab := news.DefaultVocabulary()

	registerQueryMetrics(reg)

	store, err := a.openStore(ctx, c, L)
	if err != nil {
		return nil, err
	}

	source, err := buildSource(c, L, a.Metrics)
	if err != nil {
		a.Close()
		return nil, err
	}

	var (
		clusterer pipeline.Clusterer = pipeline.NewHeuristicClusterer(vocab)
		composer  pipeline.Composer  = pipeline.TemplateComposer{}
	)
	if c.ClaudeAPIKey != "" {
		provider := claude.New(c.ClaudeAPIKey, c.ClaudeModel)
		clusterer = &pipeline.FallbackClusterer{
			Primary:  pipeline.NewClassifierClusterer(provider, c.LLMTimeout, hooks),
			Fallback: clusterer,
			Logger:   L,
			Hooks:    hooks,
		}
		composer = &pipeline.FallbackComposer{
			Primary:  pipeline.NewGenerativeComposer(provider, c.LLMTimeout, hooks),
			Fallback: composer,
			Logger:   L,
			Hooks:    hooks,
		}
		L.Info(ctx, "initialized LLM provider", "provider", "claude", "model", provider.Model())
	} else {
		L.Info(ctx, "no claude api key, using heuristic clustering and template digests")
	}

	var notifier pipeline.Notifier
	if c.SlackWebhookURL != "" {
		notifier = slack.New(c.SlackWebhookURL, L)
		L.Info(ctx, "notifier enabled", "type", "slack")
	}

	a.Service = pipeline.NewService(pipeline.Options{
		Source:    source,
		Store:     store,
		Clusterer: clusterer,
		Composer:  composer,
		Vocab:     vocab,
		Notifier:  notifier,
		Logger:    L,
		Hooks:     hooks,
		MockMode:  c.OfflineSources,
	})
	return a, nil
}

func (a *App) openStore(ctx context.Context, c *vc.Config, L log.Logger) (pipeline.Store, error) {
	switch c.StoreKind() {
	case "postgres":
		pool, err := postgres.NewPool(ctx, c.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("postgres pool: %w", err)
		}
		a.closers = append(a.closers, pool.Close)
		s, err := pgstore.New(ctx, pool)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("pgstore init: %w", err)
		}
		L.Info(ctx, "using postgres store")
		return s, nil
	case "sqlite":
		s, err := sqlitestore.Open(ctx, c.DataDir)
		if err != nil {
			return nil, fmt.Errorf("sqlite store: %w", err)
		}
		a.closers = append(a.closers, func() { _ = s.Close() })
		L.Info(ctx, "using sqlite store", "data_dir", c.DataDir)
		return s, nil
	default:
		L.Info(ctx, "using in-memory store (no database-url or data-dir configured)")
		return memstore.New(), nil
	}
}

func buildSource(c *vc.Config, L log.Logger, m *pipeline.Metrics) (pipeline.Source, error) {
	if c.OfflineSources {
		return collector.Offline{}, nil
	}
	feeds, err := collector.LoadFeeds(c.FeedsFile)
	if err != nil {
		return nil, err
	}
	return collector.New(collector.Options{
		Feeds:        feeds,
		PerFeedLimit: c.PerFeedLimit,
		Timeout:      c.FetchTimeout,
		UserAgent:    c.UserAgent,
		Logger:       L,
		OnFeed:       m.ObserveFeed,
	}), nil
}

// registerQueryMetrics exports per-query DB durations from the pgx tracer.
func registerQueryMetrics(reg prometheus.Registerer) {
	dbQueryDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "quietnews_db_query_duration_seconds",
		Help:    "Duration of individual database queries.",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation", "route", "outcome"})
	reg.MustRegister(dbQueryDuration)

	postgres.SetQueryObserver(postgres.QueryObserverFunc(
		func(_ context.Context, operation, route, outcome string, dur time.Duration) {
			dbQueryDuration.WithLabelValues(operation, route, outcome).Observe(dur.Seconds())
		},
	))
}
