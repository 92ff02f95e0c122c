// Package storetest holds behaviour tests shared by every pipeline.Store
// backend.
package storetest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/linnemanlabs/quietnews/internal/news"
	"github.com/linnemanlabs/quietnews/internal/pipeline"
)

// Factory returns an empty store for one subtest.
type Factory func(t *testing.T) pipeline.Store

func item(source, url, title string, published time.Time) news.SourceItem {
	return news.SourceItem{
		Source:         source,
		Title:          title,
		URL:            url,
		PublishedAt:    published,
		FetchedAt:      published,
		ContentSnippet: "snippet " + title,
		Hash:           news.ItemHash(source, url, title),
	}
}

// Run exercises the Store contract against stores built by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Helper()

	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	t.Run("SaveItemsIdempotent", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		a := item("ynet", "https://www.ynet.co.il/1", "a", base)
		b := item("kan", "https://www.kan.org.il/1", "b", base.Add(time.Minute))
		if err := s.SaveItems(ctx, []news.SourceItem{a, b}); err != nil {
			t.Fatalf("SaveItems: %v", err)
		}
		changed := a
		changed.ContentSnippet = "rewritten"
		if err := s.SaveItems(ctx, []news.SourceItem{changed, b}); err != nil {
			t.Fatalf("SaveItems again: %v", err)
		}

		got, err := s.RecentItems(ctx, 10)
		if err != nil {
			t.Fatalf("RecentItems: %v", err)
		}
		if len(got) != 2 {
			t.Fatalf("len = %d, want 2", len(got))
		}
		for _, it := range got {
			if it.Hash == a.Hash && it.ContentSnippet != a.ContentSnippet {
				t.Errorf("snippet = %q, want first write %q", it.ContentSnippet, a.ContentSnippet)
			}
		}
	})

	t.Run("SaveItemsEmpty", func(t *testing.T) {
		s := newStore(t)
		if err := s.SaveItems(context.Background(), nil); err != nil {
			t.Fatalf("SaveItems(nil): %v", err)
		}
	})

	t.Run("RecentItemsOrderAndLimit", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		var items []news.SourceItem
		for i := range 5 {
			items = append(items, item("src", fmt.Sprintf("https://x.example/%d", i), fmt.Sprintf("t%d", i), base.Add(time.Duration(i)*time.Hour)))
		}
		if err := s.SaveItems(ctx, items); err != nil {
			t.Fatalf("SaveItems: %v", err)
		}

		got, err := s.RecentItems(ctx, 3)
		if err != nil {
			t.Fatalf("RecentItems: %v", err)
		}
		if len(got) != 3 {
			t.Fatalf("len = %d, want 3", len(got))
		}
		for i, want := range []string{"t4", "t3", "t2"} {
			if got[i].Title != want {
				t.Errorf("got[%d] = %q, want %q", i, got[i].Title, want)
			}
		}
		if !got[0].PublishedAt.Equal(base.Add(4 * time.Hour)) {
			t.Errorf("PublishedAt = %v, want %v", got[0].PublishedAt, base.Add(4*time.Hour))
		}
		if got[0].Source != "src" || got[0].URL != "https://x.example/4" || got[0].Hash != items[4].Hash {
			t.Errorf("fields not round-tripped: %+v", got[0])
		}
	})

	t.Run("RecentItemsNonPositiveLimit", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		if err := s.SaveItems(ctx, []news.SourceItem{item("src", "https://x.example/1", "t", base)}); err != nil {
			t.Fatalf("SaveItems: %v", err)
		}
		for _, limit := range []int{0, -1} {
			got, err := s.RecentItems(ctx, limit)
			if err != nil {
				t.Fatalf("RecentItems(%d): %v", limit, err)
			}
			if got == nil || len(got) != 0 {
				t.Errorf("RecentItems(%d) = %v, want empty non-nil slice", limit, got)
			}
		}
	})

	t.Run("LatestDigest", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		if _, ok, err := s.LatestDigest(ctx); err != nil || ok {
			t.Fatalf("empty LatestDigest = ok %v, err %v; want false, nil", ok, err)
		}

		older := &news.DigestRow{ID: "d-1", RunID: "r-1", CreatedAt: base, DigestText: "ישן", Sources: []string{"https://a/1"}}
		newer := &news.DigestRow{ID: "d-2", RunID: "r-2", CreatedAt: base.Add(time.Hour), DigestText: "חדש", Sources: []string{}}
		if err := s.SaveDigest(ctx, newer); err != nil {
			t.Fatalf("SaveDigest: %v", err)
		}
		if err := s.SaveDigest(ctx, older); err != nil {
			t.Fatalf("SaveDigest: %v", err)
		}

		got, ok, err := s.LatestDigest(ctx)
		if err != nil || !ok {
			t.Fatalf("LatestDigest = ok %v, err %v", ok, err)
		}
		if got.DigestText != "חדש" || !got.CreatedAt.Equal(newer.CreatedAt) {
			t.Errorf("got %+v, want newest digest", got)
		}
		if len(got.Sources) != 0 {
			t.Errorf("sources = %v, want empty", got.Sources)
		}
	})

	t.Run("SaveClustersAppend", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		area := news.Area("צפון")
		status := news.StatusOpen
		clusters := []news.EventCluster{{
			EventKey:        "north",
			VitalNow:        true,
			Area:            &area,
			SecurityStatus:  &status,
			Sources:         []string{"https://a/1", "https://b/1"},
			SummarySentence: "עדכון חיוני בצפון.",
		}}
		for range 2 {
			if err := s.SaveClusters(ctx, "run-1", clusters); err != nil {
				t.Fatalf("SaveClusters: %v", err)
			}
		}
		if err := s.SaveClusters(ctx, "run-2", nil); err != nil {
			t.Fatalf("SaveClusters(nil): %v", err)
		}
	})

	t.Run("ConcurrentSaves", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		var wg sync.WaitGroup
		for i := range 8 {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				it := item("src", fmt.Sprintf("https://c.example/%d", i%4), "t", base)
				if err := s.SaveItems(ctx, []news.SourceItem{it}); err != nil {
					t.Errorf("SaveItems: %v", err)
				}
			}(i)
		}
		wg.Wait()

		got, err := s.RecentItems(ctx, 100)
		if err != nil {
			t.Fatalf("RecentItems: %v", err)
		}
		if len(got) != 4 {
			t.Errorf("len = %d, want 4", len(got))
		}
	})
}
