package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"quantdb/internal/model"
)

// FinancialRepo persists both financial-summary and financial-indicator
// rows in one table, partitioned by the Indicators flag (spec.md §9
// SUPPLEMENTED FEATURES: get_financial_summary and get_financial_indicators
// are distinct operations with distinct TTLs but share this shape).
type FinancialRepo interface {
	Get(ctx context.Context, symbol, period string, indicators bool) (*model.FinancialSummary, bool, error)
	Upsert(ctx context.Context, summary *model.FinancialSummary) error
}

type financialRepo struct {
	db DBTX
}

func NewFinancialRepo(db DBTX) FinancialRepo {
	return &financialRepo{db: db}
}

func (r *financialRepo) Get(ctx context.Context, symbol, period string, indicators bool) (*model.FinancialSummary, bool, error) {
	const query = `SELECT symbol, period, indicators, metrics, fetched_at
	               FROM financial_summaries WHERE symbol = $1 AND period = $2 AND indicators = $3`

	var f model.FinancialSummary
	var raw []byte
	err := r.db.QueryRowContext(ctx, query, symbol, period, indicators).Scan(
		&f.Symbol, &f.Period, &f.Indicators, &raw, &f.FetchedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("store: get financial summary %s/%s: %w", symbol, period, err)
	}
	if err := json.Unmarshal(raw, &f.Metrics); err != nil {
		return nil, false, fmt.Errorf("store: decode financial metrics %s/%s: %w", symbol, period, err)
	}
	return &f, true, nil
}

func (r *financialRepo) Upsert(ctx context.Context, summary *model.FinancialSummary) error {
	raw, err := json.Marshal(summary.Metrics)
	if err != nil {
		return fmt.Errorf("store: encode financial metrics %s/%s: %w", summary.Symbol, summary.Period, err)
	}

	const query = `INSERT INTO financial_summaries (symbol, period, indicators, metrics, fetched_at)
	               VALUES ($1,$2,$3,$4,$5)
	               ON CONFLICT (symbol, period, indicators) DO UPDATE SET
	                   metrics = EXCLUDED.metrics, fetched_at = EXCLUDED.fetched_at`

	_, err = r.db.ExecContext(ctx, query, summary.Symbol, summary.Period, summary.Indicators, raw, summary.FetchedAt)
	if err != nil {
		return fmt.Errorf("store: upsert financial summary %s/%s: %w", summary.Symbol, summary.Period, err)
	}
	return nil
}
