package cfg

import (
	"flag"
	"strings"
	"testing"
	"time"
)

// validBase returns a Config with all fields set to valid values.
func validBase() Config {
	return Config{
		DrainSeconds:          60,
		ShutdownBudgetSeconds: 90,
		APIPort:               8080,
		ClaudeAPIKey:          "sk-test-key",
		ClaudeModel:           "claude-sonnet-4-5",
		PerFeedLimit:          20,
		FetchTimeout:          15 * time.Second,
		LLMTimeout:            45 * time.Second,
		IngestToken:           "test-token-123",
	}
}

func TestRegisterFlags_Defaults(t *testing.T) {
	t.Parallel()

	var c Config
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	c.RegisterFlags(fs)

	if err := fs.Parse(nil); err != nil {
		t.Fatalf("parse empty args: %v", err)
	}

	if c.DrainSeconds != 60 {
		t.Errorf("DrainSeconds = %d, want 60", c.DrainSeconds)
	}
	if c.ShutdownBudgetSeconds != 90 {
		t.Errorf("ShutdownBudgetSeconds = %d, want 90", c.ShutdownBudgetSeconds)
	}
	if c.APIPort != 8080 {
		t.Errorf("APIPort = %d, want 8080", c.APIPort)
	}
	if c.PerFeedLimit != 20 {
		t.Errorf("PerFeedLimit = %d, want 20", c.PerFeedLimit)
	}
	if c.FetchTimeout != 15*time.Second || c.LLMTimeout != 45*time.Second {
		t.Errorf("timeouts = %s/%s, want 15s/45s", c.FetchTimeout, c.LLMTimeout)
	}
	if c.IngestInterval != 0 || c.OfflineSources {
		t.Errorf("scheduler/offline should default off")
	}
	if err := c.Validate(); err != nil {
		t.Errorf("defaults do not validate: %v", err)
	}
	if c.StoreKind() != "memory" {
		t.Errorf("StoreKind = %q, want memory", c.StoreKind())
	}
}

func TestRegisterFlags_Override(t *testing.T) {
	t.Parallel()

	var c Config
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	c.RegisterFlags(fs)

	args := []string{
		"-drain-seconds", "30",
		"-shutdown-budget-seconds", "120",
		"-http-port", "9090",
		"-claude-api-key", "sk-override",
		"-data-dir", "/var/lib/quietnews",
		"-feeds-file", "/etc/quietnews/feeds.yaml",
		"-per-feed-limit", "10",
		"-fetch-timeout", "5s",
		"-ingest-interval", "10m",
		"-offline-sources",
	}
	if err := fs.Parse(args); err != nil {
		t.Fatalf("parse args: %v", err)
	}

	if c.DrainSeconds != 30 || c.ShutdownBudgetSeconds != 120 || c.APIPort != 9090 {
		t.Errorf("server fields = %d/%d/%d", c.DrainSeconds, c.ShutdownBudgetSeconds, c.APIPort)
	}
	if c.ClaudeAPIKey != "sk-override" {
		t.Errorf("ClaudeAPIKey = %q, want %q", c.ClaudeAPIKey, "sk-override")
	}
	if c.DataDir != "/var/lib/quietnews" || c.FeedsFile != "/etc/quietnews/feeds.yaml" {
		t.Errorf("paths = %q %q", c.DataDir, c.FeedsFile)
	}
	if c.PerFeedLimit != 10 || c.FetchTimeout != 5*time.Second || c.IngestInterval != 10*time.Minute {
		t.Errorf("collector fields = %d/%s/%s", c.PerFeedLimit, c.FetchTimeout, c.IngestInterval)
	}
	if !c.OfflineSources {
		t.Error("OfflineSources = false, want true")
	}
	if c.StoreKind() != "sqlite" {
		t.Errorf("StoreKind = %q, want sqlite", c.StoreKind())
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		mutate    func(*Config)
		errSubstr []string // empty means valid
	}{
		{name: "base is valid", mutate: func(*Config) {}},
		{name: "no claude key is valid", mutate: func(c *Config) { c.ClaudeAPIKey = ""; c.ClaudeModel = "" }},
		{name: "minimum valid values", mutate: func(c *Config) {
			c.DrainSeconds, c.ShutdownBudgetSeconds, c.APIPort, c.PerFeedLimit = 1, 2, 1, 1
		}},
		{name: "maximum valid values", mutate: func(c *Config) {
			c.DrainSeconds, c.ShutdownBudgetSeconds, c.APIPort, c.PerFeedLimit = 299, 300, 65535, 200
		}},
		{name: "drain zero", mutate: func(c *Config) { c.DrainSeconds = 0 }, errSubstr: []string{"DRAIN_SECONDS"}},
		{name: "drain above max", mutate: func(c *Config) { c.DrainSeconds, c.ShutdownBudgetSeconds = 301, 302 }, errSubstr: []string{"DRAIN_SECONDS"}},
		{name: "budget above max", mutate: func(c *Config) { c.ShutdownBudgetSeconds = 301 }, errSubstr: []string{"SHUTDOWN_BUDGET_SECONDS"}},
		{name: "budget equals drain", mutate: func(c *Config) { c.ShutdownBudgetSeconds = 60 }, errSubstr: []string{"must be greater than"}},
		{name: "port zero", mutate: func(c *Config) { c.APIPort = 0 }, errSubstr: []string{"HTTP_PORT"}},
		{name: "port above max", mutate: func(c *Config) { c.APIPort = 65536 }, errSubstr: []string{"HTTP_PORT"}},
		{name: "key without model", mutate: func(c *Config) { c.ClaudeModel = "" }, errSubstr: []string{"CLAUDE_MODEL"}},
		{name: "per feed limit zero", mutate: func(c *Config) { c.PerFeedLimit = 0 }, errSubstr: []string{"PER_FEED_LIMIT"}},
		{name: "fetch timeout zero", mutate: func(c *Config) { c.FetchTimeout = 0 }, errSubstr: []string{"FETCH_TIMEOUT"}},
		{name: "llm timeout too long", mutate: func(c *Config) { c.LLMTimeout = 10 * time.Minute }, errSubstr: []string{"LLM_TIMEOUT"}},
		{name: "interval too short", mutate: func(c *Config) { c.IngestInterval = 30 * time.Second }, errSubstr: []string{"INGEST_INTERVAL"}},
		{name: "interval one minute", mutate: func(c *Config) { c.IngestInterval = time.Minute }},
		{name: "multiple errors joined", mutate: func(c *Config) { c.APIPort = 0; c.PerFeedLimit = 0 }, errSubstr: []string{"HTTP_PORT", "PER_FEED_LIMIT"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			c := validBase()
			tt.mutate(&c)
			err := c.Validate()

			if len(tt.errSubstr) == 0 {
				if err != nil {
					t.Fatalf("Validate() = %v, want nil", err)
				}
				return
			}
			if err == nil {
				t.Fatal("Validate() = nil, want error")
			}
			for _, sub := range tt.errSubstr {
				if !strings.Contains(err.Error(), sub) {
					t.Errorf("error %q missing %q", err, sub)
				}
			}
		})
	}
}

func TestStoreKind(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		cfg  Config
		want string
	}{
		{"memory", Config{}, "memory"},
		{"sqlite", Config{DataDir: "/data"}, "sqlite"},
		{"postgres wins", Config{DataDir: "/data", DatabaseURL: "postgres://x"}, "postgres"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := tt.cfg.StoreKind(); got != tt.want {
				t.Errorf("StoreKind() = %q, want %q", got, tt.want)
			}
		})
	}
}
