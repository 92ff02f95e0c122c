// Package collector reads RSS/Atom feeds and normalizes their entries into
// news.SourceItem values.
package collector

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/mmcdole/gofeed"
	"golang.org/x/sync/errgroup"

	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/go-core/xerrors"

	"github.com/linnemanlabs/quietnews/internal/news"
)

const (
	// DefaultPerFeedLimit caps items taken from each feed per run.
	DefaultPerFeedLimit = 20
	// DefaultTimeout bounds one feed fetch including the body read.
	DefaultTimeout = 15 * time.Second
	// DefaultUserAgent is sent on every feed request.
	DefaultUserAgent = "quietnews/1.0 (+https://github.com/linnemanlabs/quietnews)"

	maxFeedBytes = 8 << 20
)

// Options configures a Collector. Zero values take the package defaults.
type Options struct {
	Feeds        []Feed
	PerFeedLimit int
	Timeout      time.Duration
	UserAgent    string
	Client       *http.Client
	Logger       log.Logger
	// OnFeed is called once per feed with the number of normalized items
	// and the fetch error, if any.
	OnFeed func(source string, items int, err error)
	Now    func() time.Time
}

// Collector fetches all configured feeds concurrently.
type Collector struct {
	feeds     []Feed
	limit     int
	timeout   time.Duration
	userAgent string
	client    *http.Client
	logger    log.Logger
	onFeed    func(source string, items int, err error)
	now       func() time.Time
}

// New creates a Collector. It panics when no feeds are given.
func New(o Options) *Collector {
	if len(o.Feeds) == 0 {
		panic(xerrors.New("collector.New: at least one feed is required"))
	}
	c := &Collector{
		feeds:     o.Feeds,
		limit:     o.PerFeedLimit,
		timeout:   o.Timeout,
		userAgent: o.UserAgent,
		client:    o.Client,
		logger:    o.Logger,
		onFeed:    o.OnFeed,
		now:       o.Now,
	}
	if c.limit <= 0 {
		c.limit = DefaultPerFeedLimit
	}
	if c.timeout <= 0 {
		c.timeout = DefaultTimeout
	}
	if c.userAgent == "" {
		c.userAgent = DefaultUserAgent
	}
	if c.client == nil {
		c.client = &http.Client{}
	}
	if c.logger == nil {
		c.logger = log.Nop()
	}
	if c.now == nil {
		c.now = time.Now
	}
	return c
}

// Fetch reads every feed in parallel and returns the normalized items in feed
// order. A failing feed contributes nothing; Fetch itself only fails when ctx
// is cancelled.
func (c *Collector) Fetch(ctx context.Context) ([]news.SourceItem, error) {
	perFeed := make([][]news.SourceItem, len(c.feeds))

	g, gctx := errgroup.WithContext(ctx)
	for i, f := range c.feeds {
		g.Go(func() error {
			items, err := c.fetchFeed(gctx, f)
			if c.onFeed != nil {
				c.onFeed(f.Source, len(items), err)
			}
			if err != nil {
				c.logger.Warn(gctx, "feed fetch failed", "feed", f.Source, "url", f.URL, "error", err)
				return nil
			}
			perFeed[i] = items
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("collect feeds: %w", err)
	}

	var out []news.SourceItem
	for _, items := range perFeed {
		out = append(out, items...)
	}
	return out, nil
}

func (c *Collector) fetchFeed(ctx context.Context, f Feed) ([]news.SourceItem, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.URL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/xml;q=0.9, */*;q=0.8")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxFeedBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	parsed, err := gofeed.NewParser().Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to parse feed: %w", err)
	}

	fetchedAt := c.now().UTC()
	out := make([]news.SourceItem, 0, min(len(parsed.Items), c.limit))
	for _, it := range parsed.Items {
		if len(out) == c.limit {
			break
		}
		if si, ok := normalizeItem(f.Source, it, fetchedAt); ok {
			out = append(out, si)
		}
	}
	return out, nil
}
