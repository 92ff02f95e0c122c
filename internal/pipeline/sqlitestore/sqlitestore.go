// Package sqlitestore provides a single-file SQLite implementation of
// pipeline.Store for deployments without PostgreSQL.
package sqlitestore

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/linnemanlabs/quietnews/internal/news"
)

// FileName is the database file created inside the data directory.
const FileName = "quietnews.db"

//go:embed schema.sql
var schemaSQL string

// Store persists pipeline data in SQLite.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open creates dataDir if needed, opens <dataDir>/quietnews.db and applies
// the schema.
func Open(ctx context.Context, dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0o750); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	return open(ctx, filepath.Join(dataDir, FileName))
}

func open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// single writer; avoids SQLITE_BUSY between pooled connections
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{"PRAGMA journal_mode = WAL", "PRAGMA busy_timeout = 5000"} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveItems inserts items in one transaction, ignoring known hashes.
func (s *Store) SaveItems(ctx context.Context, items []news.SourceItem) error {
	if len(items) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is harmless

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO source_items
		(hash, source, title, url, published_at, fetched_at, content_snippet)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(hash) DO NOTHING`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for i := range items {
		it := &items[i]
		if _, err := stmt.ExecContext(ctx, it.Hash, it.Source, it.Title, it.URL,
			it.PublishedAt.UnixNano(), it.FetchedAt.UnixNano(), it.ContentSnippet); err != nil {
			return fmt.Errorf("insert item %s: %w", it.Hash, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// SaveClusters appends one row per cluster.
func (s *Store) SaveClusters(ctx context.Context, runID string, clusters []news.EventCluster) error {
	if len(clusters) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is harmless

	created := s.now().UnixNano()
	for i := range clusters {
		c := &clusters[i]
		sources, err := marshalSources(c.Sources)
		if err != nil {
			return err
		}
		var area, status sql.NullString
		if c.Area != nil {
			area = sql.NullString{String: string(*c.Area), Valid: true}
		}
		if c.SecurityStatus != nil {
			status = sql.NullString{String: string(*c.SecurityStatus), Valid: true}
		}
		_, err = tx.ExecContext(ctx, `INSERT INTO clustered_events
			(run_id, event_key, vital_now, area, security_status, sources, summary_sentence, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			runID, c.EventKey, c.VitalNow, area, status, sources, c.SummarySentence, created)
		if err != nil {
			return fmt.Errorf("insert cluster %q: %w", c.EventKey, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// SaveDigest inserts one digest row.
func (s *Store) SaveDigest(ctx context.Context, d *news.DigestRow) error {
	sources, err := marshalSources(d.Sources)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO digests (id, run_id, created_at, digest_text, sources) VALUES (?, ?, ?, ?, ?)`,
		d.ID, d.RunID, d.CreatedAt.UnixNano(), d.DigestText, sources)
	if err != nil {
		return fmt.Errorf("insert digest: %w", err)
	}
	return nil
}

// LatestDigest returns the digest with the newest created_at.
func (s *Store) LatestDigest(ctx context.Context) (*news.DigestRow, bool, error) {
	var (
		d       news.DigestRow
		created int64
		sources string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, run_id, created_at, digest_text, sources FROM digests
		 ORDER BY created_at DESC, rowid DESC LIMIT 1`,
	).Scan(&d.ID, &d.RunID, &created, &d.DigestText, &sources)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("scan digest: %w", err)
	}
	d.CreatedAt = time.Unix(0, created).UTC()
	if err := json.Unmarshal([]byte(sources), &d.Sources); err != nil {
		return nil, false, fmt.Errorf("unmarshal sources: %w", err)
	}
	if d.Sources == nil {
		d.Sources = []string{}
	}
	return &d, true, nil
}

// RecentItems returns up to limit items, newest published_at first.
func (s *Store) RecentItems(ctx context.Context, limit int) ([]news.SourceItem, error) {
	if limit <= 0 {
		return []news.SourceItem{}, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT hash, source, title, url, published_at, fetched_at, content_snippet
		 FROM source_items ORDER BY published_at DESC, hash LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query items: %w", err)
	}
	defer rows.Close()

	out := make([]news.SourceItem, 0, min(limit, 1024))
	for rows.Next() {
		var (
			it                 news.SourceItem
			published, fetched int64
		)
		if err := rows.Scan(&it.Hash, &it.Source, &it.Title, &it.URL, &published, &fetched, &it.ContentSnippet); err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		it.PublishedAt = time.Unix(0, published).UTC()
		it.FetchedAt = time.Unix(0, fetched).UTC()
		out = append(out, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate items: %w", err)
	}
	return out, nil
}

// ClusterCount reports how many cluster rows exist for runID.
func (s *Store) ClusterCount(ctx context.Context, runID string) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx,
		`SELECT count(*) FROM clustered_events WHERE run_id = ?`, runID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count clusters: %w", err)
	}
	return n, nil
}

func marshalSources(sources []string) (string, error) {
	if sources == nil {
		sources = []string{}
	}
	b, err := json.Marshal(sources)
	if err != nil {
		return "", fmt.Errorf("marshal sources: %w", err)
	}
	return string(b), nil
}
