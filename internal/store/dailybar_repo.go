package store

import (
	"context"
	"fmt"
	"time"

	"quantdb/internal/model"
)

// DailyBarRepo persists per-(symbol, date, adjust) OHLCV rows (spec.md §3,
// §4.4). Rows strictly before "today" are immutable by convention; Upsert
// still issues ON CONFLICT DO UPDATE so a same-day re-fetch of an
// in-progress trading day can correct itself.
type DailyBarRepo interface {
	GetRange(ctx context.Context, symbol string, adjust model.Adjust, start, end time.Time) ([]model.DailyBar, error)
	UpsertBatch(ctx context.Context, bars []model.DailyBar) error
}

type dailyBarRepo struct {
	db DBTX
}

func NewDailyBarRepo(db DBTX) DailyBarRepo {
	return &dailyBarRepo{db: db}
}

func (r *dailyBarRepo) GetRange(ctx context.Context, symbol string, adjust model.Adjust, start, end time.Time) ([]model.DailyBar, error) {
	const query = `SELECT symbol, trade_date, open, high, low, close, volume, turnover,
	                      amplitude, pct_change, change, turnover_rate, adjust
	               FROM daily_bars
	               WHERE symbol = $1 AND adjust = $2 AND trade_date BETWEEN $3 AND $4
	               ORDER BY trade_date ASC`

	rows, err := r.db.QueryContext(ctx, query, symbol, string(adjust), start, end)
	if err != nil {
		return nil, fmt.Errorf("store: get daily bars %s: %w", symbol, err)
	}
	defer rows.Close()

	var bars []model.DailyBar
	for rows.Next() {
		var b model.DailyBar
		var adj string
		if err := rows.Scan(&b.Symbol, &b.TradeDate, &b.Open, &b.High, &b.Low, &b.Close,
			&b.Volume, &b.Turnover, &b.Amplitude, &b.PctChange, &b.Change, &b.TurnoverRate, &adj); err != nil {
			return nil, fmt.Errorf("store: scan daily bar %s: %w", symbol, err)
		}
		b.Adjust = model.Adjust(adj)
		bars = append(bars, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate daily bars %s: %w", symbol, err)
	}
	return bars, nil
}

func (r *dailyBarRepo) UpsertBatch(ctx context.Context, bars []model.DailyBar) error {
	const query = `INSERT INTO daily_bars (symbol, trade_date, adjust, open, high, low, close,
	                                        volume, turnover, amplitude, pct_change, change, turnover_rate)
	               VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
	               ON CONFLICT (symbol, trade_date, adjust) DO UPDATE SET
	                   open = EXCLUDED.open, high = EXCLUDED.high, low = EXCLUDED.low,
	                   close = EXCLUDED.close, volume = EXCLUDED.volume, turnover = EXCLUDED.turnover,
	                   amplitude = EXCLUDED.amplitude, pct_change = EXCLUDED.pct_change,
	                   change = EXCLUDED.change, turnover_rate = EXCLUDED.turnover_rate`

	for _, b := range bars {
		_, err := r.db.ExecContext(ctx, query,
			b.Symbol, b.TradeDate, string(b.Adjust), b.Open, b.High, b.Low, b.Close,
			b.Volume, b.Turnover, b.Amplitude, b.PctChange, b.Change, b.TurnoverRate,
		)
		if err != nil {
			return fmt.Errorf("store: upsert daily bar %s %s: %w", b.Symbol, b.TradeDate.Format("2006-01-02"), err)
		}
	}
	return nil
}
