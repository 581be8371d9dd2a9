package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"quantdb/internal/model"
)

// RealtimeRepo persists the single mutable snapshot row per symbol
// (spec.md §3): unlike daily bars, realtime rows are overwritten in place,
// never versioned.
type RealtimeRepo interface {
	Get(ctx context.Context, symbol string) (*model.RealtimeSnapshot, bool, error)
	GetBatch(ctx context.Context, symbols []string) (map[string]model.RealtimeSnapshot, error)
	Upsert(ctx context.Context, snap *model.RealtimeSnapshot) error
}

type realtimeRepo struct {
	db DBTX
}

func NewRealtimeRepo(db DBTX) RealtimeRepo {
	return &realtimeRepo{db: db}
}

func (r *realtimeRepo) Get(ctx context.Context, symbol string) (*model.RealtimeSnapshot, bool, error) {
	const query = `SELECT symbol, last_price, change, pct_change, volume, turnover, pe, pb, market_cap, captured_at
	               FROM realtime_snapshots WHERE symbol = $1`

	var s model.RealtimeSnapshot
	err := r.db.QueryRowContext(ctx, query, symbol).Scan(
		&s.Symbol, &s.LastPrice, &s.Change, &s.PctChange, &s.Volume, &s.Turnover, &s.PE, &s.PB, &s.MarketCap, &s.CapturedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("store: get realtime %s: %w", symbol, err)
	}
	return &s, true, nil
}

func (r *realtimeRepo) GetBatch(ctx context.Context, symbols []string) (map[string]model.RealtimeSnapshot, error) {
	if len(symbols) == 0 {
		return map[string]model.RealtimeSnapshot{}, nil
	}

	const query = `SELECT symbol, last_price, change, pct_change, volume, turnover, pe, pb, market_cap, captured_at
	          FROM realtime_snapshots WHERE symbol = ANY($1)`

	rows, err := r.db.QueryContext(ctx, query, pq.Array(symbols))
	if err != nil {
		return nil, fmt.Errorf("store: get realtime batch: %w", err)
	}
	defer rows.Close()

	out := make(map[string]model.RealtimeSnapshot, len(symbols))
	for rows.Next() {
		var s model.RealtimeSnapshot
		if err := rows.Scan(&s.Symbol, &s.LastPrice, &s.Change, &s.PctChange, &s.Volume, &s.Turnover, &s.PE, &s.PB, &s.MarketCap, &s.CapturedAt); err != nil {
			return nil, fmt.Errorf("store: scan realtime batch: %w", err)
		}
		out[s.Symbol] = s
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate realtime batch: %w", err)
	}
	return out, nil
}

func (r *realtimeRepo) Upsert(ctx context.Context, snap *model.RealtimeSnapshot) error {
	const query = `INSERT INTO realtime_snapshots (symbol, last_price, change, pct_change, volume, turnover, pe, pb, market_cap, captured_at)
	               VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	               ON CONFLICT (symbol) DO UPDATE SET
	                   last_price = EXCLUDED.last_price, change = EXCLUDED.change,
	                   pct_change = EXCLUDED.pct_change, volume = EXCLUDED.volume,
	                   turnover = EXCLUDED.turnover, pe = EXCLUDED.pe, pb = EXCLUDED.pb,
	                   market_cap = EXCLUDED.market_cap, captured_at = EXCLUDED.captured_at`

	_, err := r.db.ExecContext(ctx, query,
		snap.Symbol, snap.LastPrice, snap.Change, snap.PctChange, snap.Volume,
		snap.Turnover, snap.PE, snap.PB, snap.MarketCap, snap.CapturedAt,
	)
	if err != nil {
		return fmt.Errorf("store: upsert realtime %s: %w", snap.Symbol, err)
	}
	return nil
}
