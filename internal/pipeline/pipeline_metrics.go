package pipeline

import "github.com/prometheus/client_golang/prometheus"

// Hooks are optional callbacks fired by the pipeline. Nil fields are skipped.
type Hooks struct {
	OnLLMCall  func(purpose string, inputTokens, outputTokens int, duration float64)
	OnStrategy func(step, strategy string)
	OnStage    func(stage Stage, duration float64, err error)
	OnComplete func(e *RunEvent)
}

// RunEvent summarizes a finished ingestion run.
type RunEvent struct {
	Outcome  string
	Duration float64
	Fetched  int
	Unique   int
	Vital    int
}

// Metrics holds Prometheus metrics for the ingestion pipeline.
type Metrics struct {
	RunsTotal      *prometheus.CounterVec
	RunDuration    *prometheus.HistogramVec
	StageDuration  *prometheus.HistogramVec
	StrategyTotal  *prometheus.CounterVec
	ItemsFetched   prometheus.Histogram
	ItemsUnique    prometheus.Histogram
	VitalClusters  prometheus.Histogram
	LLMCallsTotal  *prometheus.CounterVec
	LLMTokensIn    prometheus.Counter
	LLMTokensOut   prometheus.Counter
	LLMDuration    *prometheus.HistogramVec
	FeedFetchTotal *prometheus.CounterVec
	FeedItems      *prometheus.CounterVec
	TriggersTotal  *prometheus.CounterVec
}

// NewMetrics registers and returns pipeline metrics on the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "quietnews_runs_total",
			Help: "Total ingestion runs by outcome.",
		}, []string{"outcome"}),
		RunDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "quietnews_run_duration_seconds",
			Help:    "Duration of ingestion runs in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 10), // 0.25s .. ~128s
		}, []string{"outcome"}),
		StageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "quietnews_stage_duration_seconds",
			Help:    "Duration of each ingestion stage in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 14), // 10ms .. ~82s
		}, []string{"stage", "outcome"}),
		StrategyTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "quietnews_strategy_total",
			Help: "Clustering and composing strategy used per run.",
		}, []string{"step", "strategy"}),
		ItemsFetched: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "quietnews_items_fetched",
			Help:    "Items fetched per run before dedupe.",
			Buckets: prometheus.LinearBuckets(0, 20, 10), // 0 .. 180
		}),
		ItemsUnique: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "quietnews_items_unique",
			Help:    "Unique items per run after dedupe.",
			Buckets: prometheus.LinearBuckets(0, 20, 10),
		}),
		VitalClusters: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "quietnews_vital_clusters",
			Help:    "Corroborated vital clusters per run.",
			Buckets: prometheus.LinearBuckets(0, 1, 11), // 0 .. 10
		}),
		LLMCallsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "quietnews_llm_calls_total",
			Help: "Total LLM provider calls by purpose.",
		}, []string{"purpose"}),
		LLMTokensIn: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "quietnews_llm_tokens_input_total",
			Help: "Total LLM input tokens consumed.",
		}),
		LLMTokensOut: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "quietnews_llm_tokens_output_total",
			Help: "Total LLM output tokens consumed.",
		}),
		LLMDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "quietnews_llm_call_duration_seconds",
			Help:    "Duration of individual LLM calls in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 8), // 0.5s .. ~64s
		}, []string{"purpose"}),
		FeedFetchTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "quietnews_feed_fetch_total",
			Help: "Feed fetches by source and status.",
		}, []string{"source", "status"}),
		FeedItems: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "quietnews_feed_items_total",
			Help: "Normalized items read per source.",
		}, []string{"source"}),
		TriggersTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "quietnews_triggers_total",
			Help: "Ingestion triggers by result.",
		}, []string{"result"}),
	}

	reg.MustRegister(
		m.RunsTotal,
		m.RunDuration,
		m.StageDuration,
		m.StrategyTotal,
		m.ItemsFetched,
		m.ItemsUnique,
		m.VitalClusters,
		m.LLMCallsTotal,
		m.LLMTokensIn,
		m.LLMTokensOut,
		m.LLMDuration,
		m.FeedFetchTotal,
		m.FeedItems,
		m.TriggersTotal,
	)

	return m
}

// Hooks returns Hooks that update the corresponding metrics.
func (m *Metrics) Hooks() Hooks {
	return Hooks{
		OnLLMCall: func(purpose string, inputTokens, outputTokens int, duration float64) {
			m.LLMCallsTotal.WithLabelValues(purpose).Inc()
			m.LLMTokensIn.Add(float64(inputTokens))
			m.LLMTokensOut.Add(float64(outputTokens))
			m.LLMDuration.WithLabelValues(purpose).Observe(duration)
		},
		OnStrategy: func(step, strategy string) {
			m.StrategyTotal.WithLabelValues(step, strategy).Inc()
		},
		OnStage: func(stage Stage, duration float64, err error) {
			outcome := "ok"
			if err != nil {
				outcome = "error"
			}
			m.StageDuration.WithLabelValues(string(stage), outcome).Observe(duration)
		},
		OnComplete: func(e *RunEvent) {
			m.RunsTotal.WithLabelValues(e.Outcome).Inc()
			m.RunDuration.WithLabelValues(e.Outcome).Observe(e.Duration)
			if e.Outcome == OutcomeOK {
				m.ItemsFetched.Observe(float64(e.Fetched))
				m.ItemsUnique.Observe(float64(e.Unique))
				m.VitalClusters.Observe(float64(e.Vital))
			}
		},
	}
}

// ObserveFeed records one feed fetch. It matches the collector hook signature.
func (m *Metrics) ObserveFeed(source string, items int, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.FeedFetchTotal.WithLabelValues(source, status).Inc()
	m.FeedItems.WithLabelValues(source).Add(float64(items))
}
