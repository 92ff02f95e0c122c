package pipeline

import (
	"context"

	"github.com/linnemanlabs/quietnews/internal/news"
)

// Store is the persistence interface for items, clusters and digests.
//
// SaveItems must be idempotent on SourceItem.Hash. Clusters and digests are
// append-only. RecentItems returns items ordered by PublishedAt descending,
// and an empty slice when limit is zero or negative.
type Store interface {
	SaveItems(ctx context.Context, items []news.SourceItem) error
	SaveClusters(ctx context.Context, runID string, clusters []news.EventCluster) error
	SaveDigest(ctx context.Context, d *news.DigestRow) error
	LatestDigest(ctx context.Context) (*news.DigestRow, bool, error)
	RecentItems(ctx context.Context, limit int) ([]news.SourceItem, error)
}

// Notifier delivers a freshly persisted digest somewhere outside the process.
type Notifier interface {
	Notify(ctx context.Context, d *news.DigestRow) error
}
