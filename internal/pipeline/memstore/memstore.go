// Package memstore provides an in-memory implementation of pipeline.Store.
package memstore

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/linnemanlabs/quietnews/internal/news"
)

type clusterRow struct {
	runID     string
	createdAt time.Time
	cluster   news.EventCluster
}

// Store holds items, clusters and digests in memory. Suitable for dev/testing.
type Store struct {
	mu       sync.RWMutex
	items    map[string]news.SourceItem // hash -> item
	clusters []clusterRow
	digests  []news.DigestRow
}

// New initializes a new in-memory Store.
func New() *Store {
	return &Store{items: make(map[string]news.SourceItem)}
}

// SaveItems stores items whose hash has not been seen yet.
func (s *Store) SaveItems(_ context.Context, items []news.SourceItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, it := range items {
		if _, ok := s.items[it.Hash]; ok {
			continue
		}
		s.items[it.Hash] = it
	}
	return nil
}

// SaveClusters appends copies of the clusters.
func (s *Store) SaveClusters(_ context.Context, runID string, clusters []news.EventCluster) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	for _, c := range clusters {
		c.Sources = slices.Clone(c.Sources)
		s.clusters = append(s.clusters, clusterRow{runID: runID, createdAt: now, cluster: c})
	}
	return nil
}

// SaveDigest appends a copy of the digest.
func (s *Store) SaveDigest(_ context.Context, d *news.DigestRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *d
	cp.Sources = slices.Clone(d.Sources)
	s.digests = append(s.digests, cp)
	return nil
}

// LatestDigest returns a copy of the digest with the newest CreatedAt.
func (s *Store) LatestDigest(_ context.Context) (*news.DigestRow, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.digests) == 0 {
		return nil, false, nil
	}
	best := 0
	for i := range s.digests {
		if !s.digests[i].CreatedAt.Before(s.digests[best].CreatedAt) {
			best = i
		}
	}
	cp := s.digests[best]
	cp.Sources = slices.Clone(cp.Sources)
	return &cp, true, nil
}

// RecentItems returns up to limit items, newest PublishedAt first.
func (s *Store) RecentItems(_ context.Context, limit int) ([]news.SourceItem, error) {
	if limit <= 0 {
		return []news.SourceItem{}, nil
	}
	s.mu.RLock()
	out := make([]news.SourceItem, 0, len(s.items))
	for _, it := range s.items {
		out = append(out, it)
	}
	s.mu.RUnlock()

	slices.SortFunc(out, func(a, b news.SourceItem) int {
		if c := b.PublishedAt.Compare(a.PublishedAt); c != 0 {
			return c
		}
		return strings.Compare(a.Hash, b.Hash)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ClusterCount reports how many cluster rows were appended for runID.
func (s *Store) ClusterCount(runID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, r := range s.clusters {
		if r.runID == runID {
			n++
		}
	}
	return n
}
