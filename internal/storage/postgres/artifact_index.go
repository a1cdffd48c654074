// Package postgres provides a Postgres-backed index of saved artifacts.
package postgres

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/site-text-crawler/internal/crawler"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

const defaultTable = "artifacts"

// Config controls the Postgres connection pool used for artifact rows.
type Config struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type execCloser interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Close()
}

// ArtifactIndex upserts one row per artifact filename.
type ArtifactIndex struct {
	pool  execCloser
	table string
}

// New connects a pool using cfg.
func New(ctx context.Context, cfg Config) (*ArtifactIndex, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	table, err := tableName(cfg.Table)
	if err != nil {
		return nil, err
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &ArtifactIndex{pool: pool, table: table}, nil
}

// NewWithPool constructs an index from an existing pool (primarily for testing).
func NewWithPool(pool execCloser, table string) (*ArtifactIndex, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	name, err := tableName(table)
	if err != nil {
		return nil, err
	}
	return &ArtifactIndex{pool: pool, table: name}, nil
}

func tableName(table string) (string, error) {
	if table == "" {
		table = defaultTable
	}
	if !validTableName.MatchString(table) {
		return "", fmt.Errorf("invalid table name %q", table)
	}
	return table, nil
}

// Close releases the underlying pool resources.
func (s *ArtifactIndex) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// RecordArtifact upserts the artifact row keyed by filename.
func (s *ArtifactIndex) RecordArtifact(
	ctx context.Context,
	runID string,
	artifact crawler.Artifact,
	record crawler.ArtifactRecord,
) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("artifact index is not configured")
	}
	if record.Filename == "" {
		return fmt.Errorf("artifact filename is required")
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	filename,
	run_id,
	url,
	title,
	digest,
	page_uri,
	metadata_uri,
	content_length,
	scraped_at
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9
)
ON CONFLICT (filename) DO UPDATE SET
	run_id = EXCLUDED.run_id,
	page_uri = EXCLUDED.page_uri,
	metadata_uri = EXCLUDED.metadata_uri,
	content_length = EXCLUDED.content_length,
	scraped_at = EXCLUDED.scraped_at`, s.table)

	args := []any{
		record.Filename,
		runID,
		artifact.URL,
		artifact.Title,
		artifact.Digest,
		record.PageURI,
		record.MetadataURI,
		record.ContentLength,
		artifact.ScrapedAt,
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert artifact: %w", err)
	}
	return nil
}

// EnsureSchema creates the artifact table when it does not exist.
func (s *ArtifactIndex) EnsureSchema(ctx context.Context) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("artifact index is not configured")
	}
	ddl := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	filename       TEXT PRIMARY KEY,
	run_id         TEXT NOT NULL,
	url            TEXT NOT NULL,
	title          TEXT NOT NULL,
	digest         CHAR(8) NOT NULL,
	page_uri       TEXT NOT NULL,
	metadata_uri   TEXT NOT NULL,
	content_length INTEGER NOT NULL,
	scraped_at     TIMESTAMPTZ NOT NULL
)`, s.table)
	if _, err := s.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("create artifact table: %w", err)
	}
	return nil
}
