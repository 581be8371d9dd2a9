package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"quantdb/internal/model"
)

// CoverageRepo persists the known-cached extent per (symbol, kind)
// (spec.md §3, §4.3). Touch widens the range and bumps access stats; it
// never narrows an existing range, matching the gap resolver's invariant
// that coverage only grows.
type CoverageRepo interface {
	Get(ctx context.Context, symbol string, kind model.CoverageKind) (*model.DataCoverage, bool, error)
	Touch(ctx context.Context, symbol string, kind model.CoverageKind, earliest, latest time.Time, rowsAdded int64) error
	ListAll(ctx context.Context) ([]model.DataCoverage, error)
}

type coverageRepo struct {
	db DBTX
}

func NewCoverageRepo(db DBTX) CoverageRepo {
	return &coverageRepo{db: db}
}

func (r *coverageRepo) Get(ctx context.Context, symbol string, kind model.CoverageKind) (*model.DataCoverage, bool, error) {
	const query = `SELECT symbol, kind, earliest_date, latest_date, row_count, last_accessed_at, access_count
	               FROM data_coverage WHERE symbol = $1 AND kind = $2`

	var c model.DataCoverage
	var k string
	var earliest, latest, lastAccessed sql.NullTime
	err := r.db.QueryRowContext(ctx, query, symbol, string(kind)).Scan(
		&c.Symbol, &k, &earliest, &latest, &c.RowCount, &lastAccessed, &c.AccessCount,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("store: get coverage %s/%s: %w", symbol, kind, err)
	}
	c.Kind = model.CoverageKind(k)
	c.EarliestDate = earliest.Time
	c.LatestDate = latest.Time
	c.LastAccessedAt = lastAccessed.Time
	return &c, true, nil
}

// ListAll returns every coverage row, for cache_stats' aggregate view
// (spec.md §6: cache_stats takes no input and reports coverage + counters
// over the whole cache).
func (r *coverageRepo) ListAll(ctx context.Context) ([]model.DataCoverage, error) {
	const query = `SELECT symbol, kind, earliest_date, latest_date, row_count, last_accessed_at, access_count
	               FROM data_coverage ORDER BY symbol, kind`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("store: list coverage: %w", err)
	}
	defer rows.Close()

	var out []model.DataCoverage
	for rows.Next() {
		var c model.DataCoverage
		var k string
		var earliest, latest, lastAccessed sql.NullTime
		if err := rows.Scan(&c.Symbol, &k, &earliest, &latest, &c.RowCount, &lastAccessed, &c.AccessCount); err != nil {
			return nil, fmt.Errorf("store: scan coverage: %w", err)
		}
		c.Kind = model.CoverageKind(k)
		c.EarliestDate = earliest.Time
		c.LatestDate = latest.Time
		c.LastAccessedAt = lastAccessed.Time
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate coverage: %w", err)
	}
	return out, nil
}

// Touch widens [earliest,latest] into the existing coverage row (creating
// it on first reference) and increments row_count/access_count. The widen
// is computed in SQL via LEAST/GREATEST so concurrent touches from the
// fetch coordinator's worker pool never race each other into a narrower
// range.
func (r *coverageRepo) Touch(ctx context.Context, symbol string, kind model.CoverageKind, earliest, latest time.Time, rowsAdded int64) error {
	const query = `INSERT INTO data_coverage (symbol, kind, earliest_date, latest_date, row_count, last_accessed_at, access_count)
	               VALUES ($1, $2, $3, $4, $5, now(), 1)
	               ON CONFLICT (symbol, kind) DO UPDATE SET
	                   earliest_date = LEAST(data_coverage.earliest_date, EXCLUDED.earliest_date),
	                   latest_date = GREATEST(data_coverage.latest_date, EXCLUDED.latest_date),
	                   row_count = data_coverage.row_count + EXCLUDED.row_count,
	                   last_accessed_at = now(),
	                   access_count = data_coverage.access_count + 1`

	_, err := r.db.ExecContext(ctx, query, symbol, string(kind), earliest, latest, rowsAdded)
	if err != nil {
		return fmt.Errorf("store: touch coverage %s/%s: %w", symbol, kind, err)
	}
	return nil
}
