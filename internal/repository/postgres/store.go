// Package postgres persists the catalog cache and franchise completeness
// records. It backs both sides of the pipeline: the fast local cache reader
// and the idempotent upsert sink for fetched upstream records.
package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"playshelf/catalogsearch/internal/catalog"
	"playshelf/catalogsearch/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS catalog_entries (
	external_id       BIGINT PRIMARY KEY,
	title             TEXT NOT NULL,
	release_year      INT,
	type_code         INT,
	category_code     INT,
	parent_id         BIGINT,
	version_parent_id BIGINT,
	franchise_names   TEXT[] NOT NULL DEFAULT '{}',
	summary           TEXT NOT NULL DEFAULT '',
	cover_url         TEXT NOT NULL DEFAULT '',
	updated_at        TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS catalog_entries_title_idx ON catalog_entries (lower(title));

CREATE TABLE IF NOT EXISTS franchise_completeness (
	key                  TEXT PRIMARY KEY,
	total_known_upstream INT NOT NULL DEFAULT 0,
	cached_count         INT NOT NULL DEFAULT 0,
	last_checked_at      TIMESTAMPTZ NOT NULL
);
`

type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// EnsureSchema creates the tables when absent. Idempotent.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, schema)
	return err
}

// SearchCached serves the local cache for a query. Confidence reflects how
// full the requested page came back; the service layer folds this into the
// response confidence.
func (s *Store) SearchCached(ctx context.Context, query string, limit int) (catalog.CacheResult, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT external_id, title, release_year, type_code, category_code,
		       parent_id, version_parent_id, franchise_names, summary, cover_url
		FROM catalog_entries
		WHERE title ILIKE '%' || $1 || '%'
		ORDER BY lower(title), external_id
		LIMIT $2`,
		query, limit,
	)
	if err != nil {
		return catalog.CacheResult{}, err
	}
	defer rows.Close()

	var entries []domain.CatalogEntry
	for rows.Next() {
		var entry domain.CatalogEntry
		var releaseYear *int
		if err := rows.Scan(
			&entry.ExternalID,
			&entry.Title,
			&releaseYear,
			&entry.TypeCode,
			&entry.CategoryCode,
			&entry.ParentID,
			&entry.VersionParentID,
			&entry.FranchiseNames,
			&entry.Summary,
			&entry.CoverURL,
		); err != nil {
			return catalog.CacheResult{}, err
		}
		if releaseYear != nil {
			entry.ReleaseYear = *releaseYear
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return catalog.CacheResult{}, err
	}

	confidence := domain.ConfidenceLow
	switch {
	case limit > 0 && len(entries) >= limit:
		confidence = domain.ConfidenceHigh
	case len(entries) > 0:
		confidence = domain.ConfidenceMedium
	}
	return catalog.CacheResult{Entries: entries, Confidence: confidence}, nil
}

// UpsertEntry writes an entry keyed by external id. A re-fetch overwrites the
// payload but keeps the identity. created reports a brand new row, which the
// service uses for franchise bookkeeping.
func (s *Store) UpsertEntry(ctx context.Context, entry domain.CatalogEntry) (bool, error) {
	var releaseYear *int
	if entry.ReleaseYear > 0 {
		releaseYear = &entry.ReleaseYear
	}
	franchises := entry.FranchiseNames
	if franchises == nil {
		franchises = []string{}
	}

	var created bool
	err := s.pool.QueryRow(ctx, `
		INSERT INTO catalog_entries (
			external_id, title, release_year, type_code, category_code,
			parent_id, version_parent_id, franchise_names, summary, cover_url, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, now())
		ON CONFLICT (external_id) DO UPDATE SET
			title             = EXCLUDED.title,
			release_year      = EXCLUDED.release_year,
			type_code         = EXCLUDED.type_code,
			category_code     = EXCLUDED.category_code,
			parent_id         = EXCLUDED.parent_id,
			version_parent_id = EXCLUDED.version_parent_id,
			franchise_names   = EXCLUDED.franchise_names,
			summary           = EXCLUDED.summary,
			cover_url         = EXCLUDED.cover_url,
			updated_at        = now()
		RETURNING (xmax = 0)`,
		entry.ExternalID,
		entry.Title,
		releaseYear,
		entry.TypeCode,
		entry.CategoryCode,
		entry.ParentID,
		entry.VersionParentID,
		franchises,
		entry.Summary,
		entry.CoverURL,
	).Scan(&created)
	return created, err
}

func (s *Store) GetFranchise(ctx context.Context, key string) (domain.FranchiseCompletenessRecord, bool, error) {
	record := domain.FranchiseCompletenessRecord{Key: key}
	err := s.pool.QueryRow(ctx, `
		SELECT total_known_upstream, cached_count, last_checked_at
		FROM franchise_completeness
		WHERE key = $1`,
		key,
	).Scan(&record.TotalKnownUpstream, &record.CachedCount, &record.LastCheckedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.FranchiseCompletenessRecord{}, false, nil
	}
	if err != nil {
		return domain.FranchiseCompletenessRecord{}, false, err
	}
	return record, true, nil
}

func (s *Store) PutFranchise(ctx context.Context, record domain.FranchiseCompletenessRecord) error {
	checkedAt := record.LastCheckedAt
	if checkedAt.IsZero() {
		checkedAt = time.Now()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO franchise_completeness (key, total_known_upstream, cached_count, last_checked_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (key) DO UPDATE SET
			total_known_upstream = EXCLUDED.total_known_upstream,
			cached_count         = EXCLUDED.cached_count,
			last_checked_at      = EXCLUDED.last_checked_at`,
		record.Key, record.TotalKnownUpstream, record.CachedCount, checkedAt,
	)
	return err
}

// BumpFranchiseCached increments the cached-member count on an existing
// record. A missing record is left for the estimator to create on its next
// count lookup.
func (s *Store) BumpFranchiseCached(ctx context.Context, key string, delta int) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE franchise_completeness
		SET cached_count = cached_count + $2
		WHERE key = $1`,
		key, delta,
	)
	return err
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}
