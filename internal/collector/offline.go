package collector

import (
	"context"
	"time"

	"github.com/linnemanlabs/quietnews/internal/news"
)

// Offline serves a fixed seed batch without touching the network. Used for
// demos and local runs with -offline-sources.
type Offline struct {
	Now func() time.Time
}

// Fetch returns SeedItems stamped with the current time.
func (o Offline) Fetch(context.Context) ([]news.SourceItem, error) {
	now := time.Now
	if o.Now != nil {
		now = o.Now
	}
	return SeedItems(now().UTC()), nil
}

// SeedItems is two corroborated story pairs on placeholder URLs.
func SeedItems(now time.Time) []news.SourceItem {
	seed := []struct{ source, title, url, snippet string }{
		{"ynet", "פיקוד העורף עדכן הנחיות באזור הצפון", "https://example.com/ynet-1", "שינוי בהנחיות התקהלות ולימודים במספר יישובים בצפון"},
		{"כאן 11", "עדכון רשמי: הגבלות זמניות בצפון", "https://example.com/kan-1", "בהנחיית פיקוד העורף, שינוי זמני בהתקהלויות באזור"},
		{"גלובס", "שביתה בנמלים מחריפה ומשפיעה על אספקה", "https://example.com/globes-1", "דיון חירום על השפעה לציבור ועל זמני הגעת סחורות"},
		{"TheMarker", "הפרעות באספקה עקב שביתה בנמלים", "https://example.com/themarker-1", "חברות מדווחות על עיכובים בפעילות לוגיסטית"},
	}
	out := make([]news.SourceItem, 0, len(seed))
	for _, s := range seed {
		out = append(out, news.SourceItem{
			Source:         s.source,
			Title:          s.title,
			URL:            s.url,
			PublishedAt:    now,
			FetchedAt:      now,
			ContentSnippet: s.snippet,
			Hash:           news.ItemHash(s.source, s.url, s.title),
		})
	}
	return out
}
