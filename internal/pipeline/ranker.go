package pipeline

import (
	"slices"
	"strings"
	"time"

	"github.com/linnemanlabs/quietnews/internal/news"
)

const (
	keywordWeight    = 3.0
	freshnessCeiling = 5.0
	freshnessPerHour = 0.5
	DefaultTopLimit  = 5
	TopCandidatePool = 120
)

// Ranker scores items by keyword hits and freshness.
type Ranker struct {
	keywords []string
	now      func() time.Time
}

// NewRanker builds a Ranker over the urgency terms of vocab. A nil clock
// means time.Now.
func NewRanker(vocab news.Vocabulary, now func() time.Time) *Ranker {
	if now == nil {
		now = time.Now
	}
	kw := make([]string, len(vocab.Urgency))
	for i, k := range vocab.Urgency {
		kw[i] = strings.ToLower(k)
	}
	return &Ranker{keywords: kw, now: now}
}

// Score returns keyword_score + freshness_score for the item.
func (r *Ranker) Score(title, snippet string, publishedAt time.Time) float64 {
	text := strings.ToLower(title + " " + snippet)
	var score float64
	for _, k := range r.keywords {
		if strings.Contains(text, k) {
			score += keywordWeight
		}
	}
	age := max(0, r.now().Sub(publishedAt).Hours())
	return score + max(0, freshnessCeiling-age*freshnessPerHour)
}

// Top drops placeholder-host URLs, dedupes by URL and returns the limit
// highest-scoring items. Ties keep input order.
func (r *Ranker) Top(items []news.SourceItem, placeholderHost string, limit int) []news.TopUpdate {
	type scored struct {
		item  news.SourceItem
		score float64
	}

	seen := make(map[string]struct{}, len(items))
	pool := make([]scored, 0, len(items))
	for _, it := range items {
		if placeholderHost != "" && strings.Contains(it.URL, placeholderHost) {
			continue
		}
		if _, ok := seen[it.URL]; ok {
			continue
		}
		seen[it.URL] = struct{}{}
		pool = append(pool, scored{item: it, score: r.Score(it.Title, it.ContentSnippet, it.PublishedAt)})
	}

	slices.SortStableFunc(pool, func(a, b scored) int {
		switch {
		case a.score > b.score:
			return -1
		case a.score < b.score:
			return 1
		}
		return 0
	})

	out := make([]news.TopUpdate, 0, min(limit, len(pool)))
	for _, s := range pool {
		if len(out) >= limit {
			break
		}
		out = append(out, s.item.ToTopUpdate())
	}
	return out
}
