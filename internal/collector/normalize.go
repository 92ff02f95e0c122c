package collector

import (
	"cmp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"
	"golang.org/x/text/unicode/norm"

	"github.com/linnemanlabs/quietnews/internal/news"
)

// normalizeItem maps a parsed feed entry to a SourceItem. ok is false when the
// entry has no title or no link.
func normalizeItem(source string, it *gofeed.Item, fetchedAt time.Time) (news.SourceItem, bool) {
	if it == nil {
		return news.SourceItem{}, false
	}
	title := norm.NFC.String(strings.TrimSpace(it.Title))
	link := strings.TrimSpace(it.Link)
	if title == "" || link == "" {
		return news.SourceItem{}, false
	}

	published := fetchedAt
	switch {
	case it.PublishedParsed != nil:
		published = *it.PublishedParsed
	case it.UpdatedParsed != nil:
		published = *it.UpdatedParsed
	}

	snippet := cmp.Or(plainText(it.Description), plainText(it.Content))

	return news.SourceItem{
		Source:         source,
		Title:          title,
		URL:            link,
		PublishedAt:    published.UTC(),
		FetchedAt:      fetchedAt,
		ContentSnippet: truncateRunes(norm.NFC.String(snippet), news.MaxSnippetRunes),
		Hash:           news.ItemHash(source, link, title),
	}, true
}

// plainText strips markup and collapses whitespace runs to single spaces.
func plainText(s string) string {
	if s == "" {
		return ""
	}
	if strings.ContainsRune(s, '<') {
		if doc, err := goquery.NewDocumentFromReader(strings.NewReader(s)); err == nil {
			s = doc.Text()
		}
	}
	return strings.Join(strings.Fields(s), " ")
}

func truncateRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
