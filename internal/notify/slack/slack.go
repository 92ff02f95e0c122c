// Package slack posts new digests to Slack via incoming webhooks.
package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/quietnews/internal/news"
)

const (
	maxDigestRunes = 2900
	maxSourceLinks = 10
	httpTimeout    = 10 * time.Second
)

// Notifier sends digests to a Slack webhook.
type Notifier struct {
	webhookURL string
	client     *http.Client
	logger     log.Logger
}

// New creates a new Slack notifier. If webhookURL is empty, Notify is a no-op.
func New(webhookURL string, logger log.Logger) *Notifier {
	if logger == nil {
		logger = log.Nop()
	}
	return &Notifier{
		webhookURL: webhookURL,
		client: &http.Client{
			Timeout:   httpTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		logger: logger,
	}
}

// Notify posts d to the configured webhook.
func (n *Notifier) Notify(ctx context.Context, d *news.DigestRow) error {
	if n.webhookURL == "" {
		return nil
	}

	body, err := json.Marshal(buildMessage(d))
	if err != nil {
		return fmt.Errorf("slack: marshal message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("slack: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req) //nolint:gosec // G704: webhookURL is from trusted config, not user input
	if err != nil {
		return fmt.Errorf("slack: post webhook: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("slack: webhook returned %d: %s", resp.StatusCode, string(respBody))
	}

	n.logger.Info(ctx, "digest posted to slack", "digest_id", d.ID, "sources", len(d.Sources))
	return nil
}

func buildMessage(d *news.DigestRow) map[string]any {
	blocks := []map[string]any{
		headerBlock(d),
		digestBlock(d),
	}
	if sb := sourcesBlock(d.Sources); sb != nil {
		blocks = append(blocks, map[string]any{"type": "divider"}, sb)
	}
	blocks = append(blocks, contextBlock(d))
	return map[string]any{
		// fallback for notifications and clients without block support
		"text":   truncate(d.DigestText, 150),
		"blocks": blocks,
	}
}

func headerBlock(d *news.DigestRow) map[string]any {
	text := "\U0001f7e1 עדכון חיוני" // yellow circle
	if d.DigestText == news.Placeholder {
		text = "\U0001f7e2 אין עדכונים חיוניים" // green circle
	}
	return map[string]any{
		"type": "header",
		"text": map[string]any{"type": "plain_text", "text": text},
	}
}

func digestBlock(d *news.DigestRow) map[string]any {
	return map[string]any{
		"type": "section",
		"text": map[string]any{"type": "mrkdwn", "text": truncate(d.DigestText, maxDigestRunes)},
	}
}

func sourcesBlock(sources []string) map[string]any {
	if len(sources) == 0 {
		return nil
	}
	lines := make([]string, 0, min(len(sources), maxSourceLinks)+1)
	for _, s := range sources[:min(len(sources), maxSourceLinks)] {
		lines = append(lines, fmt.Sprintf("• <%s|%s>", s, hostOf(s)))
	}
	if extra := len(sources) - maxSourceLinks; extra > 0 {
		lines = append(lines, fmt.Sprintf("_ועוד %d מקורות_", extra))
	}
	return map[string]any{
		"type": "section",
		"text": map[string]any{"type": "mrkdwn", "text": "*מקורות*\n" + strings.Join(lines, "\n")},
	}
}

func contextBlock(d *news.DigestRow) map[string]any {
	return map[string]any{
		"type": "context",
		"elements": []map[string]any{{
			"type": "mrkdwn",
			"text": fmt.Sprintf("quietnews • run %s • %s", d.RunID, d.CreatedAt.UTC().Format("2006-01-02 15:04 UTC")),
		}},
	}
}

func hostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw
	}
	return strings.TrimPrefix(u.Host, "www.")
}

// truncate cuts s to at most limit runes, marking the cut with an ellipsis.
func truncate(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit-1]) + "…"
}
