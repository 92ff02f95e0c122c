package collector

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Feed is one RSS/Atom endpoint.
type Feed struct {
	Source  string `yaml:"source"`
	URL     string `yaml:"url"`
	Enabled *bool  `yaml:"enabled,omitempty"`
}

// IsEnabled reports whether the feed should be fetched. Unset means true.
func (f Feed) IsEnabled() bool {
	return f.Enabled == nil || *f.Enabled
}

type feedsFile struct {
	Feeds []Feed `yaml:"feeds"`
}

// DefaultFeeds is the built-in Israeli news feed list.
func DefaultFeeds() []Feed {
	return []Feed{
		{Source: "ynet", URL: "https://www.ynet.co.il/Integration/StoryRss2.xml"},
		{Source: "N12", URL: "https://www.mako.co.il/rss-news-israel.xml"},
		{Source: "כאן 11", URL: "https://www.kan.org.il/rss/main"},
		{Source: "הארץ", URL: "https://www.haaretz.co.il/srv/htz-rss"},
		{Source: "גלובס", URL: "https://www.globes.co.il/webservice/rss/rssfeeder.asmx/FeederNode?iID=2"},
		{Source: "TheMarker", URL: "https://www.themarker.com/cmlink/1.1816986"},
	}
}

// LoadFeeds reads a YAML feed list from path. An empty path returns
// DefaultFeeds. Disabled entries are dropped from the result.
//
//	feeds:
//	  - source: ynet
//	    url: https://www.ynet.co.il/Integration/StoryRss2.xml
//	  - source: N12
//	    url: https://www.mako.co.il/rss-news-israel.xml
//	    enabled: false
func LoadFeeds(path string) ([]Feed, error) {
	if path == "" {
		return DefaultFeeds(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read feeds file: %w", err)
	}

	var ff feedsFile
	if err := yaml.Unmarshal(data, &ff); err != nil {
		return nil, fmt.Errorf("parse feeds file %s: %w", path, err)
	}
	if err := ValidateFeeds(ff.Feeds); err != nil {
		return nil, fmt.Errorf("invalid feeds file %s: %w", path, err)
	}

	out := make([]Feed, 0, len(ff.Feeds))
	for _, f := range ff.Feeds {
		if f.IsEnabled() {
			f.Source = strings.TrimSpace(f.Source)
			f.URL = strings.TrimSpace(f.URL)
			out = append(out, f)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("invalid feeds file %s: every feed is disabled", path)
	}
	return out, nil
}

// ValidateFeeds checks every entry has a source and an absolute http(s) URL,
// and that no URL repeats. One source may own several endpoints.
func ValidateFeeds(feeds []Feed) error {
	if len(feeds) == 0 {
		return errors.New("no feeds configured")
	}

	var errs []error
	urls := make(map[string]bool, len(feeds))
	for i, f := range feeds {
		src := strings.TrimSpace(f.Source)
		raw := strings.TrimSpace(f.URL)
		if src == "" {
			errs = append(errs, fmt.Errorf("feeds[%d]: source is required", i))
		}

		if raw == "" {
			errs = append(errs, fmt.Errorf("feeds[%d]: url is required", i))
			continue
		}
		u, err := url.Parse(raw)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errs = append(errs, fmt.Errorf("feeds[%d]: url %q must be absolute http(s)", i, raw))
			continue
		}
		if urls[raw] {
			errs = append(errs, fmt.Errorf("feeds[%d]: duplicate url %q", i, raw))
		}
		urls[raw] = true
	}
	return errors.Join(errs...)
}
