package pipeline

import "github.com/linnemanlabs/quietnews/internal/news"

// Dedupe drops items whose hash was already seen, keeping first-occurrence order.
func Dedupe(items []news.SourceItem) []news.SourceItem {
	seen := make(map[string]struct{}, len(items))
	out := make([]news.SourceItem, 0, len(items))
	for _, it := range items {
		if _, ok := seen[it.Hash]; ok {
			continue
		}
		seen[it.Hash] = struct{}{}
		out = append(out, it)
	}
	return out
}
