package store

import (
	"context"
	"fmt"
	"time"

	"quantdb/internal/model"
)

// IndexBarRepo persists index OHLCV bars in their own table, since index
// symbols never collide with stock symbols but carry a Period dimension
// stocks do not (spec.md §3, §4.6).
type IndexBarRepo interface {
	GetRange(ctx context.Context, symbol string, period model.Period, start, end time.Time) ([]model.IndexBar, error)
	UpsertBatch(ctx context.Context, bars []model.IndexBar) error
}

type indexBarRepo struct {
	db DBTX
}

func NewIndexBarRepo(db DBTX) IndexBarRepo {
	return &indexBarRepo{db: db}
}

func (r *indexBarRepo) GetRange(ctx context.Context, symbol string, period model.Period, start, end time.Time) ([]model.IndexBar, error) {
	const query = `SELECT symbol, trade_date, period, open, high, low, close, volume,
	                      turnover, amplitude, pct_change, change, turnover_rate
	               FROM index_bars
	               WHERE symbol = $1 AND period = $2 AND trade_date BETWEEN $3 AND $4
	               ORDER BY trade_date ASC`

	rows, err := r.db.QueryContext(ctx, query, symbol, string(period), start, end)
	if err != nil {
		return nil, fmt.Errorf("store: get index bars %s: %w", symbol, err)
	}
	defer rows.Close()

	var bars []model.IndexBar
	for rows.Next() {
		var b model.IndexBar
		var p string
		if err := rows.Scan(&b.Symbol, &b.TradeDate, &p, &b.Open, &b.High, &b.Low, &b.Close,
			&b.Volume, &b.Turnover, &b.Amplitude, &b.PctChange, &b.Change, &b.TurnoverRate); err != nil {
			return nil, fmt.Errorf("store: scan index bar %s: %w", symbol, err)
		}
		b.Period = model.Period(p)
		bars = append(bars, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate index bars %s: %w", symbol, err)
	}
	return bars, nil
}

func (r *indexBarRepo) UpsertBatch(ctx context.Context, bars []model.IndexBar) error {
	const query = `INSERT INTO index_bars (symbol, trade_date, period, open, high, low, close,
	                                        volume, turnover, amplitude, pct_change, change, turnover_rate)
	               VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
	               ON CONFLICT (symbol, trade_date, period) DO UPDATE SET
	                   open = EXCLUDED.open, high = EXCLUDED.high, low = EXCLUDED.low,
	                   close = EXCLUDED.close, volume = EXCLUDED.volume, turnover = EXCLUDED.turnover,
	                   amplitude = EXCLUDED.amplitude, pct_change = EXCLUDED.pct_change,
	                   change = EXCLUDED.change, turnover_rate = EXCLUDED.turnover_rate`

	for _, b := range bars {
		_, err := r.db.ExecContext(ctx, query,
			b.Symbol, b.TradeDate, string(b.Period), b.Open, b.High, b.Low, b.Close,
			b.Volume, b.Turnover, b.Amplitude, b.PctChange, b.Change, b.TurnoverRate,
		)
		if err != nil {
			return fmt.Errorf("store: upsert index bar %s %s: %w", b.Symbol, b.TradeDate.Format("2006-01-02"), err)
		}
	}
	return nil
}
