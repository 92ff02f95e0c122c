package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/go-core/xerrors"
	"github.com/oklog/ulid/v2"

	"github.com/linnemanlabs/quietnews/internal/news"
)

// ErrRunInProgress is returned by Ingest while another run holds the lock.
var ErrRunInProgress = errors.New("ingestion run already in progress")

// Stage names one step of an ingestion run.
type Stage string

const (
	StageFetch           Stage = "fetch"
	StageDedupe          Stage = "dedupe"
	StagePersistRaw      Stage = "persist_raw"
	StageCluster         Stage = "cluster"
	StageFilter          Stage = "filter_corroborated"
	StagePersistClusters Stage = "persist_clusters"
	StageCompose         Stage = "compose_digest"
	StagePersistDigest   Stage = "persist_digest"
)

const (
	OutcomeOK     = "ok"
	OutcomeFailed = "failed"
	OutcomeBusy   = "busy"
)

// Source produces the raw items for a run.
type Source interface {
	Fetch(ctx context.Context) ([]news.SourceItem, error)
}

// RunResult is what a successful ingestion run reports.
type RunResult struct {
	RunID         string          `json:"runId"`
	FetchedCount  int             `json:"fetchedCount"`
	UniqueCount   int             `json:"uniqueCount"`
	VitalClusters int             `json:"vitalClusters"`
	Digest        *news.DigestRow `json:"digest"`
}

// LatestDigest is the read-side view of the newest digest.
type LatestDigest struct {
	UpdatedAt  time.Time `json:"updatedAt"`
	DigestText string    `json:"digestText"`
	Sources    []string  `json:"sources"`
}

// Options configures a Service.
type Options struct {
	Source    Source
	Store     Store
	Clusterer Clusterer
	Composer  Composer
	Vocab     news.Vocabulary
	Notifier  Notifier
	Logger    log.Logger
	Hooks     Hooks
	// MockMode returns top updates in recency order without filtering or scoring.
	MockMode bool
	Now      func() time.Time
}

// Service is the business boundary for ingestion and the read path.
type Service struct {
	source    Source
	store     Store
	clusterer Clusterer
	composer  Composer
	ranker    *Ranker
	vocab     news.Vocabulary
	notifier  Notifier
	logger    log.Logger
	hooks     Hooks
	mockMode  bool
	now       func() time.Time

	runMu sync.Mutex
}

// NewService creates a new ingestion service. Source and Store are required;
// missing strategies default to the deterministic ones.
func NewService(o Options) *Service {
	if o.Source == nil {
		panic(xerrors.New("pipeline source is required"))
	}
	if o.Store == nil {
		panic(xerrors.New("pipeline store is required"))
	}
	if o.Logger == nil {
		o.Logger = log.Nop()
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.Clusterer == nil {
		o.Clusterer = NewHeuristicClusterer(o.Vocab)
	}
	if o.Composer == nil {
		o.Composer = TemplateComposer{}
	}
	return &Service{
		source:    o.Source,
		store:     o.Store,
		clusterer: o.Clusterer,
		composer:  o.Composer,
		ranker:    NewRanker(o.Vocab, o.Now),
		vocab:     o.Vocab,
		notifier:  o.Notifier,
		logger:    o.Logger,
		hooks:     o.Hooks,
		mockMode:  o.MockMode,
		now:       o.Now,
	}
}

// Ingest runs one full pipeline pass. Only persistence failures (and a
// failing Source) are returned; clustering and composing degrade to their
// fallbacks.
func (s *Service) Ingest(ctx context.Context) (*RunResult, error) {
	if !s.runMu.TryLock() {
		if s.hooks.OnComplete != nil {
			s.hooks.OnComplete(&RunEvent{Outcome: OutcomeBusy})
		}
		return nil, ErrRunInProgress
	}
	defer s.runMu.Unlock()

	runID := ulid.Make().String()
	L := s.logger.With("run_id", runID)
	start := time.Now()

	res, err := s.run(ctx, L, runID)

	ev := &RunEvent{Outcome: OutcomeOK, Duration: time.Since(start).Seconds()}
	if err != nil {
		ev.Outcome = OutcomeFailed
		L.Error(ctx, err, "ingestion run failed", "duration", ev.Duration)
	} else {
		ev.Fetched, ev.Unique, ev.Vital = res.FetchedCount, res.UniqueCount, res.VitalClusters
		L.Info(ctx, "ingestion run complete",
			"duration", ev.Duration,
			"fetched", res.FetchedCount,
			"unique", res.UniqueCount,
			"vital_clusters", res.VitalClusters,
		)
	}
	if s.hooks.OnComplete != nil {
		s.hooks.OnComplete(ev)
	}
	return res, err
}

func (s *Service) run(ctx context.Context, L log.Logger, runID string) (*RunResult, error) {
	var fetched []news.SourceItem
	if err := s.stage(ctx, L, StageFetch, func() (err error) {
		fetched, err = s.source.Fetch(ctx)
		return err
	}); err != nil {
		return nil, err
	}

	var unique []news.SourceItem
	_ = s.stage(ctx, L, StageDedupe, func() error {
		unique = Dedupe(fetched)
		return nil
	})

	if err := s.stage(ctx, L, StagePersistRaw, func() error {
		return s.store.SaveItems(ctx, unique)
	}); err != nil {
		return nil, err
	}

	var clusters []news.EventCluster
	if err := s.stage(ctx, L, StageCluster, func() (err error) {
		clusters, err = s.clusterer.Cluster(ctx, unique)
		return err
	}); err != nil {
		return nil, err
	}

	var vital []news.EventCluster
	_ = s.stage(ctx, L, StageFilter, func() error {
		vital = Corroborated(clusters, unique)
		return nil
	})

	if err := s.stage(ctx, L, StagePersistClusters, func() error {
		return s.store.SaveClusters(ctx, runID, vital)
	}); err != nil {
		return nil, err
	}

	var text string
	if err := s.stage(ctx, L, StageCompose, func() (err error) {
		text, err = s.composer.Compose(ctx, vital)
		return err
	}); err != nil {
		return nil, err
	}

	digest := &news.DigestRow{
		ID:         ulid.Make().String(),
		RunID:      runID,
		CreatedAt:  s.now().UTC(),
		DigestText: text,
		Sources:    unionSources(vital),
	}
	if err := s.stage(ctx, L, StagePersistDigest, func() error {
		return s.store.SaveDigest(ctx, digest)
	}); err != nil {
		return nil, err
	}

	if s.notifier != nil {
		if err := s.notifier.Notify(ctx, digest); err != nil {
			L.Warn(ctx, "digest notification failed", "error", err)
		}
	}

	return &RunResult{
		RunID:         runID,
		FetchedCount:  len(fetched),
		UniqueCount:   len(unique),
		VitalClusters: len(vital),
		Digest:        digest,
	}, nil
}

// stage times fn, reports it, and wraps its error with the stage name.
func (s *Service) stage(ctx context.Context, L log.Logger, st Stage, fn func() error) error {
	start := time.Now()
	err := fn()
	dur := time.Since(start).Seconds()
	if s.hooks.OnStage != nil {
		s.hooks.OnStage(st, dur, err)
	}
	if err != nil {
		return fmt.Errorf("%s: %w", st, err)
	}
	L.Info(ctx, "stage complete", "stage", st, "duration", dur)
	return nil
}

// Corroborated keeps vital clusters whose URLs map to at least two distinct
// source names among items. Unknown URLs are ignored.
func Corroborated(clusters []news.EventCluster, items []news.SourceItem) []news.EventCluster {
	sourceByURL := make(map[string]string, len(items))
	for _, it := range items {
		sourceByURL[it.URL] = it.Source
	}

	out := make([]news.EventCluster, 0, len(clusters))
	for _, c := range clusters {
		if !c.VitalNow {
			continue
		}
		names := make(map[string]struct{}, len(c.Sources))
		for _, u := range c.Sources {
			if src, ok := sourceByURL[u]; ok {
				names[src] = struct{}{}
			}
		}
		if len(names) >= 2 {
			out = append(out, c)
		}
	}
	return out
}

func unionSources(clusters []news.EventCluster) []string {
	seen := make(map[string]struct{})
	out := []string{}
	for _, c := range clusters {
		for _, u := range c.Sources {
			if _, ok := seen[u]; ok {
				continue
			}
			seen[u] = struct{}{}
			out = append(out, u)
		}
	}
	return out
}

// Latest returns the newest digest, or the placeholder when there is none
// or the store fails.
func (s *Service) Latest(ctx context.Context) LatestDigest {
	d, ok, err := s.store.LatestDigest(ctx)
	if err != nil {
		s.logger.Error(ctx, err, "failed to load latest digest")
	}
	if err != nil || !ok {
		return LatestDigest{UpdatedAt: s.now().UTC(), DigestText: news.Placeholder, Sources: []string{}}
	}
	sources := d.Sources
	if sources == nil {
		sources = []string{}
	}
	return LatestDigest{UpdatedAt: d.CreatedAt, DigestText: d.DigestText, Sources: sources}
}

// TopUpdates ranks the TopCandidatePool most recent items. It returns an
// empty list when the store fails.
func (s *Service) TopUpdates(ctx context.Context, limit int) []news.TopUpdate {
	if limit <= 0 {
		limit = DefaultTopLimit
	}
	items, err := s.store.RecentItems(ctx, TopCandidatePool)
	if err != nil {
		s.logger.Error(ctx, err, "failed to load recent items")
		return []news.TopUpdate{}
	}

	if s.mockMode {
		out := make([]news.TopUpdate, 0, min(limit, len(items)))
		for _, it := range items[:min(limit, len(items))] {
			out = append(out, it.ToTopUpdate())
		}
		return out
	}
	return s.ranker.Top(items, s.vocab.PlaceholderHost, limit)
}
