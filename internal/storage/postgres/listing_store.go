// Package postgres provides Postgres-backed persistence implementations.
package postgres

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/booth-harvest/internal/crawler"
)

const defaultTable = "listings"

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// ListingStoreConfig controls the Postgres connection pool used for listing rows.
type ListingStoreConfig struct {
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

// ListingStore upserts scraped listings into Postgres, one row per listing id.
type ListingStore struct {
	pool  execCloser
	table string
	now   func() time.Time
}

// NewListingStore creates a Postgres-backed ListingStore using the provided config.
func NewListingStore(ctx context.Context, cfg ListingStoreConfig) (*ListingStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
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
	store, err := NewListingStoreWithPool(pool, cfg.Table)
	if err != nil {
		pool.Close()
		return nil, err
	}
	return store, nil
}

// NewListingStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewListingStoreWithPool(pool execCloser, table string) (*ListingStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = defaultTable
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &ListingStore{pool: pool, table: table, now: time.Now}, nil
}

// Close releases the underlying pool resources.
func (s *ListingStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// EnsureSchema creates the listings table when it does not exist.
func (s *ListingStore) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	listing_id    TEXT PRIMARY KEY,
	run_id        TEXT NOT NULL,
	url           TEXT NOT NULL,
	title         TEXT NOT NULL,
	price         INTEGER,
	likes         INTEGER,
	author        TEXT NOT NULL,
	description   TEXT NOT NULL,
	thumbnail_url TEXT,
	scraped_at    TIMESTAMPTZ NOT NULL
)`, s.table)
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create %s: %w", s.table, err)
	}
	return nil
}

// UpsertListing inserts detail or refreshes the existing row with the same id.
func (s *ListingStore) UpsertListing(ctx context.Context, runID string, detail crawler.ListingDetail) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("listing store is not configured")
	}
	if detail.ID == "" {
		return fmt.Errorf("listing id is required")
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	listing_id,
	run_id,
	url,
	title,
	price,
	likes,
	author,
	description,
	thumbnail_url,
	scraped_at
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10
)
ON CONFLICT (listing_id) DO UPDATE SET
	run_id = EXCLUDED.run_id,
	url = EXCLUDED.url,
	title = EXCLUDED.title,
	price = EXCLUDED.price,
	likes = EXCLUDED.likes,
	author = EXCLUDED.author,
	description = EXCLUDED.description,
	thumbnail_url = EXCLUDED.thumbnail_url,
	scraped_at = EXCLUDED.scraped_at`, s.table)

	args := []any{
		detail.ID,
		runID,
		detail.URL,
		detail.Title,
		detail.Price,
		detail.Likes,
		detail.Author,
		detail.Description,
		detail.ThumbnailURL,
		s.now().UTC(),
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert listing %s: %w", detail.ID, err)
	}
	return nil
}
