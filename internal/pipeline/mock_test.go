package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/linnemanlabs/quietnews/internal/news"
)

// mockProvider returns preconfigured responses in sequence.
type mockProvider struct {
	mu        sync.Mutex
	responses []*LLMResponse
	errs      []error
	requests  []*LLMRequest
	callIdx   int
	block     chan struct{}
}

func textResponse(s string) *LLMResponse {
	return &LLMResponse{
		Content:    []ContentBlock{{Type: "text", Text: s}},
		StopReason: StopEnd,
		Usage:      Usage{InputTokens: 10, OutputTokens: 5},
	}
}

func (m *mockProvider) Send(ctx context.Context, req *LLMRequest) (*LLMResponse, error) {
	m.mu.Lock()
	idx := m.callIdx
	m.callIdx++
	m.requests = append(m.requests, req)
	block := m.block
	m.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if idx < len(m.errs) && m.errs[idx] != nil {
		return nil, m.errs[idx]
	}
	if idx < len(m.responses) {
		return m.responses[idx], nil
	}
	return textResponse(""), nil
}

func (m *mockProvider) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callIdx
}

// mockStore implements Store for testing.
type mockStore struct {
	mu           sync.Mutex
	items        map[string]news.SourceItem
	order        []string
	clusters     []news.EventCluster
	digests      []*news.DigestRow
	saveItemsErr error
	clustersErr  error
	digestErr    error
	readErr      error
}

func newMockStore() *mockStore {
	return &mockStore{items: make(map[string]news.SourceItem)}
}

func (m *mockStore) SaveItems(_ context.Context, items []news.SourceItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveItemsErr != nil {
		return m.saveItemsErr
	}
	for _, it := range items {
		if _, ok := m.items[it.Hash]; ok {
			continue
		}
		m.items[it.Hash] = it
		m.order = append(m.order, it.Hash)
	}
	return nil
}

func (m *mockStore) SaveClusters(_ context.Context, _ string, clusters []news.EventCluster) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.clustersErr != nil {
		return m.clustersErr
	}
	m.clusters = append(m.clusters, clusters...)
	return nil
}

func (m *mockStore) SaveDigest(_ context.Context, d *news.DigestRow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.digestErr != nil {
		return m.digestErr
	}
	cp := *d
	m.digests = append(m.digests, &cp)
	return nil
}

func (m *mockStore) LatestDigest(_ context.Context) (*news.DigestRow, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.readErr != nil {
		return nil, false, m.readErr
	}
	if len(m.digests) == 0 {
		return nil, false, nil
	}
	cp := *m.digests[len(m.digests)-1]
	return &cp, true, nil
}

func (m *mockStore) RecentItems(_ context.Context, limit int) ([]news.SourceItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.readErr != nil {
		return nil, m.readErr
	}
	out := make([]news.SourceItem, 0, len(m.order))
	for _, h := range m.order {
		out = append(out, m.items[h])
	}
	// newest first
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out[:min(limit, len(out))], nil
}

// staticSource returns a fixed item list.
type staticSource struct {
	items []news.SourceItem
	err   error
}

func (s *staticSource) Fetch(context.Context) ([]news.SourceItem, error) {
	return s.items, s.err
}

func item(source, url, title, snippet string, published time.Time) news.SourceItem {
	return news.SourceItem{
		Source:         source,
		Title:          title,
		URL:            url,
		PublishedAt:    published,
		FetchedAt:      published,
		ContentSnippet: snippet,
		Hash:           news.ItemHash(source, url, title),
	}
}

// corroboratedBatch is two ynet and two Kan items sharing five leading tokens.
func corroboratedBatch(now time.Time) []news.SourceItem {
	const title = "פיקוד העורף עדכן הנחיות חדשות בצפון"
	return []news.SourceItem{
		item("ynet", "https://www.ynet.co.il/a1", title, "פיקוד העורף מעדכן", now),
		item("ynet", "https://www.ynet.co.il/a2", title+" הערב", "פיקוד העורף", now),
		item("Kan", "https://www.kan.org.il/b1", title, "לפי פיקוד העורף", now),
		item("Kan", "https://www.kan.org.il/b2", title+" היום", "פיקוד העורף", now),
	}
}
