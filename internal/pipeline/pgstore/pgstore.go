// Package pgstore provides a PostgreSQL implementation of pipeline.Store.
package pgstore

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/linnemanlabs/quietnews/internal/news"
	"github.com/linnemanlabs/quietnews/internal/postgres"
)

var tracer = otel.Tracer("github.com/linnemanlabs/quietnews/internal/pipeline/pgstore")

//go:embed schema.sql
var schema string

// Store persists items, clusters and digests in PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// New applies the schema on pool and returns a ready Store. The caller owns
// the pool.
func New(ctx context.Context, pool *pgxpool.Pool) (*Store, error) {
	if _, err := pool.Exec(postgres.WithOperation(ctx, "apply_schema"), schema); err != nil {
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{pool: pool}, nil
}

func startSpan(ctx context.Context, name, op string) (context.Context, trace.Span) {
	ctx, span := tracer.Start(ctx, "pgstore."+name, trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", op),
	))
	return ctx, span
}

func fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

// SaveItems inserts items in one transaction. Rows whose hash already exists
// are left untouched.
func (s *Store) SaveItems(ctx context.Context, items []news.SourceItem) error {
	if len(items) == 0 {
		return nil
	}
	ctx, span := startSpan(ctx, "SaveItems", "INSERT")
	defer span.End()
	span.SetAttributes(attribute.Int("items", len(items)))
	ctx = postgres.WithOperation(ctx, "save_items")

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fail(span, fmt.Errorf("begin tx: %w", err))
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is harmless

	batch := &pgx.Batch{}
	for i := range items {
		it := &items[i]
		batch.Queue(`INSERT INTO source_items (hash, source, title, url, published_at, fetched_at, content_snippet)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (hash) DO NOTHING`,
			it.Hash, it.Source, it.Title, it.URL, it.PublishedAt, it.FetchedAt, it.ContentSnippet,
		)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fail(span, fmt.Errorf("insert items: %w", err))
	}

	if err := tx.Commit(ctx); err != nil {
		return fail(span, fmt.Errorf("commit: %w", err))
	}
	return nil
}

// SaveClusters appends one row per cluster, tagged with runID.
func (s *Store) SaveClusters(ctx context.Context, runID string, clusters []news.EventCluster) error {
	if len(clusters) == 0 {
		return nil
	}
	ctx, span := startSpan(ctx, "SaveClusters", "INSERT")
	defer span.End()
	span.SetAttributes(attribute.String("run.id", runID), attribute.Int("clusters", len(clusters)))
	ctx = postgres.WithOperation(ctx, "save_clusters")

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fail(span, fmt.Errorf("begin tx: %w", err))
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is harmless

	for i := range clusters {
		c := &clusters[i]
		sourcesJSON, err := json.Marshal(nonNil(c.Sources))
		if err != nil {
			return fail(span, fmt.Errorf("marshal sources: %w", err))
		}
		var area, status *string
		if c.Area != nil {
			v := string(*c.Area)
			area = &v
		}
		if c.SecurityStatus != nil {
			v := string(*c.SecurityStatus)
			status = &v
		}
		_, err = tx.Exec(ctx,
			`INSERT INTO clustered_events (run_id, event_key, vital_now, area, security_status, sources, summary_sentence)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			runID, c.EventKey, c.VitalNow, area, status, sourcesJSON, c.SummarySentence,
		)
		if err != nil {
			return fail(span, fmt.Errorf("insert cluster %q: %w", c.EventKey, err))
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fail(span, fmt.Errorf("commit: %w", err))
	}
	return nil
}

// SaveDigest inserts one digest row.
func (s *Store) SaveDigest(ctx context.Context, d *news.DigestRow) error {
	ctx, span := startSpan(ctx, "SaveDigest", "INSERT")
	defer span.End()
	ctx = postgres.WithOperation(ctx, "save_digest")

	sourcesJSON, err := json.Marshal(nonNil(d.Sources))
	if err != nil {
		return fail(span, fmt.Errorf("marshal sources: %w", err))
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO digests (id, run_id, created_at, digest_text, sources) VALUES ($1, $2, $3, $4, $5)`,
		d.ID, d.RunID, d.CreatedAt, d.DigestText, sourcesJSON,
	)
	if err != nil {
		return fail(span, fmt.Errorf("insert digest: %w", err))
	}
	return nil
}

// LatestDigest returns the digest with the newest created_at.
func (s *Store) LatestDigest(ctx context.Context) (*news.DigestRow, bool, error) {
	ctx, span := startSpan(ctx, "LatestDigest", "SELECT")
	defer span.End()
	ctx = postgres.WithOperation(ctx, "latest_digest")

	var (
		d           news.DigestRow
		sourcesJSON []byte
	)
	err := s.pool.QueryRow(ctx,
		`SELECT id, run_id, created_at, digest_text, sources FROM digests ORDER BY created_at DESC LIMIT 1`,
	).Scan(&d.ID, &d.RunID, &d.CreatedAt, &d.DigestText, &sourcesJSON)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fail(span, fmt.Errorf("scan digest: %w", err))
	}
	if err := json.Unmarshal(sourcesJSON, &d.Sources); err != nil {
		return nil, false, fail(span, fmt.Errorf("unmarshal sources: %w", err))
	}
	d.Sources = nonNil(d.Sources)
	return &d, true, nil
}

// RecentItems returns up to limit items, newest published_at first.
func (s *Store) RecentItems(ctx context.Context, limit int) ([]news.SourceItem, error) {
	if limit <= 0 {
		return []news.SourceItem{}, nil
	}
	ctx, span := startSpan(ctx, "RecentItems", "SELECT")
	defer span.End()
	ctx = postgres.WithOperation(ctx, "recent_items")

	rows, err := s.pool.Query(ctx,
		`SELECT hash, source, title, url, published_at, fetched_at, content_snippet
		 FROM source_items ORDER BY published_at DESC, hash LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fail(span, fmt.Errorf("query items: %w", err))
	}
	defer rows.Close()

	out := make([]news.SourceItem, 0, min(limit, 1024))
	for rows.Next() {
		var it news.SourceItem
		if err := rows.Scan(&it.Hash, &it.Source, &it.Title, &it.URL, &it.PublishedAt, &it.FetchedAt, &it.ContentSnippet); err != nil {
			return nil, fail(span, fmt.Errorf("scan item: %w", err))
		}
		out = append(out, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fail(span, fmt.Errorf("iterate items: %w", err))
	}
	return out, nil
}

// ClusterCount reports how many cluster rows exist for runID.
func (s *Store) ClusterCount(ctx context.Context, runID string) (int, error) {
	var n int
	err := s.pool.QueryRow(postgres.WithOperation(ctx, "cluster_count"),
		`SELECT count(*) FROM clustered_events WHERE run_id = $1`, runID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count clusters: %w", err)
	}
	return n, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
