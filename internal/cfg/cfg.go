package cfg

import (
	"errors"
	"flag"
	"fmt"
	"time"
)

// Config adds app-specific configuration fields to the
// common cfg.Registerable and cfg.Validatable interfaces
type Config struct {
	DrainSeconds          int
	ShutdownBudgetSeconds int
	APIPort               int
	ClaudeAPIKey          string
	ClaudeModel           string
	DatabaseURL           string
	DataDir               string
	FeedsFile             string
	PerFeedLimit          int
	FetchTimeout          time.Duration
	LLMTimeout            time.Duration
	OfflineSources        bool
	IngestToken           string
	IngestInterval        time.Duration
	SlackWebhookURL       string
	UserAgent             string
}

// RegisterFlags binds Config fields to the given FlagSet with defaults inline
func (c *Config) RegisterFlags(fs *flag.FlagSet) {
	fs.IntVar(&c.DrainSeconds, "drain-seconds", 60, "seconds to wait for in-flight requests to drain before shutdown (1..300)")
	fs.IntVar(&c.ShutdownBudgetSeconds, "shutdown-budget-seconds", 90, "total seconds for component shutdown after drain (1..300)")
	fs.IntVar(&c.APIPort, "http-port", 8080, "API listen TCP port (1..65535)")
	fs.StringVar(&c.ClaudeAPIKey, "claude-api-key", "", "API key for Claude (empty = heuristic clustering and template digests only)")
	fs.StringVar(&c.ClaudeModel, "claude-model", "claude-sonnet-4-5", "Claude model used for classification and digest writing")
	fs.StringVar(&c.DatabaseURL, "database-url", "", "PostgreSQL connection URL (takes precedence over -data-dir)")
	fs.StringVar(&c.DataDir, "data-dir", "", "directory for the SQLite database file (empty with no database-url = in-memory store)")
	fs.StringVar(&c.FeedsFile, "feeds-file", "", "YAML feed list (empty = built-in Israeli news feeds)")
	fs.IntVar(&c.PerFeedLimit, "per-feed-limit", 20, "max items taken from each feed per run (1..200)")
	fs.DurationVar(&c.FetchTimeout, "fetch-timeout", 15*time.Second, "timeout for a single feed fetch")
	fs.DurationVar(&c.LLMTimeout, "llm-timeout", 45*time.Second, "timeout for a single classification or digest call")
	fs.BoolVar(&c.OfflineSources, "offline-sources", false, "serve a fixed seed batch instead of fetching feeds")
	fs.StringVar(&c.IngestToken, "ingest-token", "", "shared secret for POST /api/v1/ingest (empty = trigger disabled)")
	fs.DurationVar(&c.IngestInterval, "ingest-interval", 0, "run ingestion on this interval inside the server (0 = off, min 1m)")
	fs.StringVar(&c.SlackWebhookURL, "slack-webhook-url", "", "Slack webhook URL for digest notifications")
	fs.StringVar(&c.UserAgent, "user-agent", "", "User-Agent sent to feed endpoints (empty = built-in)")
}

// Validate checks all configuration fields for correctness.
// It returns an error if any field is invalid, or nil if all fields are valid.
func (c *Config) Validate() error {
	var errs []error

	// Drain and shutdown budgets
	if c.DrainSeconds <= 0 || c.DrainSeconds > 300 {
		errs = append(errs, fmt.Errorf("invalid DRAIN_SECONDS %d (must be 1..300)", c.DrainSeconds))
	}
	if c.ShutdownBudgetSeconds <= 0 || c.ShutdownBudgetSeconds > 300 {
		errs = append(errs, fmt.Errorf("invalid SHUTDOWN_BUDGET_SECONDS %d (must be 1..300)", c.ShutdownBudgetSeconds))
	}

	// Shutdown budget must be greater than drain time
	if c.ShutdownBudgetSeconds <= c.DrainSeconds {
		errs = append(errs, fmt.Errorf("SHUTDOWN_BUDGET_SECONDS %d must be greater than DRAIN_SECONDS %d", c.ShutdownBudgetSeconds, c.DrainSeconds))
	}

	// API port must be valid TCP port number
	if c.APIPort <= 0 || c.APIPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid HTTP_PORT %d (must be 1..65535)", c.APIPort))
	}

	// A key without a model cannot be used
	if c.ClaudeAPIKey != "" && c.ClaudeModel == "" {
		errs = append(errs, errors.New("CLAUDE_MODEL is required when CLAUDE_API_KEY is set"))
	}

	if c.PerFeedLimit < 1 || c.PerFeedLimit > 200 {
		errs = append(errs, fmt.Errorf("invalid PER_FEED_LIMIT %d (must be 1..200)", c.PerFeedLimit))
	}
	if c.FetchTimeout <= 0 || c.FetchTimeout > 2*time.Minute {
		errs = append(errs, fmt.Errorf("invalid FETCH_TIMEOUT %s (must be >0 and <=2m)", c.FetchTimeout))
	}
	if c.LLMTimeout <= 0 || c.LLMTimeout > 5*time.Minute {
		errs = append(errs, fmt.Errorf("invalid LLM_TIMEOUT %s (must be >0 and <=5m)", c.LLMTimeout))
	}

	// Scheduled runs closer than a minute apart only pile up on the run lock
	if c.IngestInterval < 0 || (c.IngestInterval > 0 && c.IngestInterval < time.Minute) {
		errs = append(errs, fmt.Errorf("invalid INGEST_INTERVAL %s (must be 0 or >=1m)", c.IngestInterval))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// StoreKind names the persistence backend the config selects:
// "postgres", "sqlite" or "memory".
func (c *Config) StoreKind() string {
	switch {
	case c.DatabaseURL != "":
		return "postgres"
	case c.DataDir != "":
		return "sqlite"
	default:
		return "memory"
	}
}
