package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
	"unicode"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/quietnews/internal/news"
)

const (
	MaxClassifyItems   = 120
	ClassifyMaxTokens  = 4096
	classifyTemp       = 0.1
	heuristicKeyTokens = 5
	heuristicMaxURLs   = 5
)

// ErrInvalidClassification marks a classifier response rejected by validation.
var ErrInvalidClassification = errors.New("invalid classification")

// Clusterer groups deduplicated items into candidate events.
type Clusterer interface {
	Name() string
	Cluster(ctx context.Context, items []news.SourceItem) ([]news.EventCluster, error)
}

const classifyInstructions = `
אתה עורך חדשות רגוע עבור "חדשות ללא טריגרים".
מיין וקבץ את האירועים לרשימת clusters בפורמט JSON בלבד.
חוקים קשיחים:
1) לכל אירוע חייבים לפחות 2 מקורות עצמאיים שונים.
2) כלול רק vital_now=true אם המידע חיוני מיידית לאזרח בישראל.
3) אל תכלול רכילות, ספורט, פרשנות, דרמה פוליטית, ספקולציות, או אירועים ללא השפעה מיידית.
4) אירוע ביטחוני: אם יש רלוונטיות מיידית בלבד, צרף area מתוך הרשימה הידועה ו-security_status מתוך [פתוח,בטיפול,נגמר].
5) summary_sentence צריך להיות ניטרלי, רגוע, ידידותי וקצר בעברית.
6) sources חייב להיות מערך קישורים (URL) של הפריטים שתומכים באירוע.
7) החזר JSON עם השדה היחיד clusters.
`

const classifySystem = "החזר JSON תקין בלבד לפי ההוראות."

// ClassifierClusterer asks the LLM provider to cluster items and trusts the
// answer only if it passes ParseClassification.
type ClassifierClusterer struct {
	provider Provider
	timeout  time.Duration
	hooks    Hooks
}

// NewClassifierClusterer creates the LLM-backed clusterer.
func NewClassifierClusterer(p Provider, timeout time.Duration, hooks Hooks) *ClassifierClusterer {
	return &ClassifierClusterer{provider: p, timeout: timeout, hooks: hooks}
}

func (c *ClassifierClusterer) Name() string { return "classifier" }

type compactItem struct {
	Source         string    `json:"source"`
	Title          string    `json:"title"`
	URL            string    `json:"url"`
	PublishedAt    time.Time `json:"published_at"`
	ContentSnippet string    `json:"content_snippet"`
}

// Cluster sends at most MaxClassifyItems items in a single attempt.
func (c *ClassifierClusterer) Cluster(ctx context.Context, items []news.SourceItem) ([]news.EventCluster, error) {
	if len(items) == 0 {
		return nil, nil
	}

	batch := items[:min(len(items), MaxClassifyItems)]
	compact := make([]compactItem, len(batch))
	for i, it := range batch {
		compact[i] = compactItem{
			Source:         it.Source,
			Title:          it.Title,
			URL:            it.URL,
			PublishedAt:    it.PublishedAt,
			ContentSnippet: it.ContentSnippet,
		}
	}
	payload, err := json.Marshal(compact)
	if err != nil {
		return nil, fmt.Errorf("marshal items: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	resp, err := c.provider.Send(ctx, &LLMRequest{
		MaxTokens:   ClassifyMaxTokens,
		Temperature: classifyTemp,
		System:      classifySystem,
		Messages:    userPrompt(classifyInstructions + "\n\nITEMS:\n" + string(payload)),
	})
	if err != nil {
		return nil, fmt.Errorf("classify: %w", err)
	}
	if c.hooks.OnLLMCall != nil {
		c.hooks.OnLLMCall("classify", resp.Usage.InputTokens, resp.Usage.OutputTokens, time.Since(start).Seconds())
	}

	cls := ParseClassification(resp.Text())
	if !cls.OK() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidClassification, cls.Reason)
	}
	return cls.Clusters, nil
}

// Classification is the validated outcome of a classifier response: either
// Clusters is trusted, or Reason says why the whole response was rejected.
type Classification struct {
	Clusters []news.EventCluster
	Reason   string
}

// OK reports whether the response passed validation.
func (c Classification) OK() bool { return c.Reason == "" }

func reject(format string, args ...any) Classification {
	return Classification{Reason: fmt.Sprintf(format, args...)}
}

// ParseClassification decodes and strictly validates a classifier response.
// A single bad cluster rejects the whole response.
func ParseClassification(raw string) Classification {
	raw = unfence(strings.TrimSpace(raw))
	if raw == "" {
		return reject("empty response")
	}

	var top map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &top); err != nil {
		return reject("not a JSON object: %v", err)
	}
	rawClusters, ok := top["clusters"]
	if !ok {
		return reject("missing clusters")
	}
	var elems []json.RawMessage
	if isNull(rawClusters) || json.Unmarshal(rawClusters, &elems) != nil {
		return reject("clusters is not an array")
	}

	out := make([]news.EventCluster, 0, len(elems))
	for i, el := range elems {
		c, err := validateCluster(el)
		if err != nil {
			return reject("cluster %d: %v", i, err)
		}
		out = append(out, c)
	}
	return Classification{Clusters: out}
}

func validateCluster(raw json.RawMessage) (news.EventCluster, error) {
	var c news.EventCluster
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		return c, errors.New("not an object")
	}

	key, err := requireString(fields, "event_key", 3)
	if err != nil {
		return c, err
	}
	c.EventKey = key

	v, ok := fields["vital_now"]
	if !ok || isNull(v) || json.Unmarshal(v, &c.VitalNow) != nil {
		return c, errors.New("vital_now must be a boolean")
	}

	area, err := nullableString(fields, "area")
	if err != nil {
		return c, err
	}
	if area != nil {
		a := news.Area(*area)
		if !news.ValidArea(a) {
			return c, fmt.Errorf("area %q not allowed", *area)
		}
		c.Area = &a
	}

	status, err := nullableString(fields, "security_status")
	if err != nil {
		return c, err
	}
	if status != nil {
		s := news.SecurityStatus(*status)
		if !news.ValidSecurityStatus(s) {
			return c, fmt.Errorf("security_status %q not allowed", *status)
		}
		c.SecurityStatus = &s
	}

	src, ok := fields["sources"]
	if !ok || isNull(src) || json.Unmarshal(src, &c.Sources) != nil {
		return c, errors.New("sources must be an array of strings")
	}
	if len(c.Sources) < 2 {
		return c, fmt.Errorf("sources has %d entries, need at least 2", len(c.Sources))
	}
	for _, u := range c.Sources {
		if !isAbsoluteURL(u) {
			return c, fmt.Errorf("source %q is not a URL", u)
		}
	}

	summary, err := requireString(fields, "summary_sentence", 8)
	if err != nil {
		return c, err
	}
	c.SummarySentence = summary

	return c, nil
}

func requireString(fields map[string]json.RawMessage, name string, minRunes int) (string, error) {
	v, ok := fields[name]
	var s string
	if !ok || isNull(v) || json.Unmarshal(v, &s) != nil {
		return "", fmt.Errorf("%s must be a string", name)
	}
	if n := len([]rune(s)); n < minRunes {
		return "", fmt.Errorf("%s has %d characters, need at least %d", name, n, minRunes)
	}
	return s, nil
}

func nullableString(fields map[string]json.RawMessage, name string) (*string, error) {
	v, ok := fields[name]
	if !ok {
		return nil, fmt.Errorf("%s missing", name)
	}
	if isNull(v) {
		return nil, nil
	}
	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		return nil, fmt.Errorf("%s must be a string or null", name)
	}
	return &s, nil
}

func isAbsoluteURL(s string) bool {
	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func isNull(raw json.RawMessage) bool {
	return strings.TrimSpace(string(raw)) == "null"
}

// unfence strips a surrounding ``` or ```json code fence.
func unfence(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// HeuristicClusterer groups items by the first five title tokens and keeps
// corroborated groups that mention a vital term.
type HeuristicClusterer struct {
	vocab news.Vocabulary
}

// NewHeuristicClusterer creates the deterministic fallback clusterer.
func NewHeuristicClusterer(vocab news.Vocabulary) *HeuristicClusterer {
	return &HeuristicClusterer{vocab: vocab}
}

func (h *HeuristicClusterer) Name() string { return "heuristic" }

// Cluster never returns an error.
func (h *HeuristicClusterer) Cluster(_ context.Context, items []news.SourceItem) ([]news.EventCluster, error) {
	var order []string
	groups := make(map[string][]news.SourceItem)
	for _, it := range items {
		key := heuristicKey(it.Title)
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], it)
	}

	var out []news.EventCluster
	for _, key := range order {
		group := groups[key]
		if distinctSources(group) < 2 {
			continue
		}

		parts := make([]string, len(group))
		for i, g := range group {
			parts[i] = g.Title + " " + g.ContentSnippet
		}
		body := strings.Join(parts, " ")

		if !containsAny(body, h.vocab.Vital) {
			continue
		}

		urls := make([]string, 0, min(len(group), heuristicMaxURLs))
		for _, g := range group[:min(len(group), heuristicMaxURLs)] {
			urls = append(urls, g.URL)
		}

		out = append(out, news.EventCluster{
			EventKey:        key,
			VitalNow:        true,
			Area:            h.firstArea(body),
			SecurityStatus:  h.firstStatus(body),
			Sources:         urls,
			SummarySentence: fmt.Sprintf("לפי מספר מקורות, יש עדכון חיוני בנושא %s.", key),
		})
	}
	return out, nil
}

func (h *HeuristicClusterer) firstArea(body string) *news.Area {
	for _, a := range h.vocab.AreaPriority {
		if strings.Contains(body, string(a)) {
			return &a
		}
	}
	return nil
}

func (h *HeuristicClusterer) firstStatus(body string) *news.SecurityStatus {
	for _, s := range h.vocab.StatusPriority {
		if strings.Contains(body, string(s)) {
			return &s
		}
	}
	return nil
}

// heuristicKey removes everything but letters, digits and whitespace, then
// keeps the first five single-space separated tokens.
func heuristicKey(title string) string {
	stripped := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsNumber(r) || unicode.IsSpace(r) {
			return r
		}
		return -1
	}, title)
	tokens := strings.Split(stripped, " ")
	return strings.Join(tokens[:min(len(tokens), heuristicKeyTokens)], " ")
}

func distinctSources(items []news.SourceItem) int {
	seen := make(map[string]struct{}, len(items))
	for _, it := range items {
		seen[it.Source] = struct{}{}
	}
	return len(seen)
}

func containsAny(s string, terms []string) bool {
	for _, t := range terms {
		if strings.Contains(s, t) {
			return true
		}
	}
	return false
}

// FallbackClusterer is the single decision point between the classifier and
// the heuristic path. Primary may be nil.
type FallbackClusterer struct {
	Primary  Clusterer
	Fallback Clusterer
	Logger   log.Logger
	Hooks    Hooks
}

// Cluster tries Primary once and uses Fallback on any error.
func (f *FallbackClusterer) Cluster(ctx context.Context, items []news.SourceItem) ([]news.EventCluster, error) {
	if len(items) == 0 {
		return nil, nil
	}
	if f.Primary != nil {
		clusters, err := f.Primary.Cluster(ctx, items)
		if err == nil {
			f.strategy(f.Primary.Name())
			return clusters, nil
		}
		f.Logger.Warn(ctx, "clusterer failed, using fallback",
			"strategy", f.Primary.Name(),
			"fallback", f.Fallback.Name(),
			"reason", err.Error(),
		)
	}
	f.strategy(f.Fallback.Name())
	return f.Fallback.Cluster(ctx, items)
}

func (f *FallbackClusterer) Name() string { return "fallback" }

func (f *FallbackClusterer) strategy(name string) {
	if f.Hooks.OnStrategy != nil {
		f.Hooks.OnStrategy("cluster", name)
	}
}
