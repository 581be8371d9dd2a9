package store

import (
	"context"
	"database/sql"
	"fmt"

	"quantdb/internal/model"
)

// AssetRepo persists the Asset Metadata entity (spec.md §3). One interface
// per table, following the teacher's Stocks-interface-over-StockStore
// shape (internal/data/stock_store.go), generalized to a context-aware
// Postgres repository using $N placeholders (lib/pq requires them; the
// teacher's original stock.go used "?" bind markers, a bug against the
// lib/pq driver it imports).
type AssetRepo interface {
	Get(ctx context.Context, symbol string) (*model.Asset, bool, error)
	Upsert(ctx context.Context, asset *model.Asset) error
}

type assetRepo struct {
	db DBTX
}

func NewAssetRepo(db DBTX) AssetRepo {
	return &assetRepo{db: db}
}

func (r *assetRepo) Get(ctx context.Context, symbol string) (*model.Asset, bool, error) {
	const query = `SELECT symbol, display_name, market, industry, listing_date,
	                      pe, pb, roe, total_shares, float_shares, market_cap,
	                      metadata_source, last_metadata_refresh
	               FROM assets WHERE symbol = $1`

	var a model.Asset
	var market string
	var listingDate, lastRefresh sql.NullTime
	err := r.db.QueryRowContext(ctx, query, symbol).Scan(
		&a.Symbol, &a.DisplayName, &market, &a.Industry, &listingDate,
		&a.PE, &a.PB, &a.ROE, &a.TotalShares, &a.FloatShares, &a.MarketCap,
		&a.MetadataSource, &lastRefresh,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("store: get asset %s: %w", symbol, err)
	}
	a.Market = model.Market(market)
	a.ListingDate = listingDate.Time
	a.LastMetadataRefresh = lastRefresh.Time
	return &a, true, nil
}

func (r *assetRepo) Upsert(ctx context.Context, asset *model.Asset) error {
	const query = `INSERT INTO assets (symbol, display_name, market, industry, listing_date,
	                                    pe, pb, roe, total_shares, float_shares, market_cap,
	                                    metadata_source, last_metadata_refresh)
	               VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
	               ON CONFLICT (symbol) DO UPDATE SET
	                   display_name = EXCLUDED.display_name,
	                   market = EXCLUDED.market,
	                   industry = EXCLUDED.industry,
	                   listing_date = EXCLUDED.listing_date,
	                   pe = EXCLUDED.pe, pb = EXCLUDED.pb, roe = EXCLUDED.roe,
	                   total_shares = EXCLUDED.total_shares,
	                   float_shares = EXCLUDED.float_shares,
	                   market_cap = EXCLUDED.market_cap,
	                   metadata_source = EXCLUDED.metadata_source,
	                   last_metadata_refresh = EXCLUDED.last_metadata_refresh`

	_, err := r.db.ExecContext(ctx, query,
		asset.Symbol, asset.DisplayName, string(asset.Market), asset.Industry, asset.ListingDate,
		asset.PE, asset.PB, asset.ROE, asset.TotalShares, asset.FloatShares, asset.MarketCap,
		asset.MetadataSource, asset.LastMetadataRefresh,
	)
	if err != nil {
		return fmt.Errorf("store: upsert asset %s: %w", asset.Symbol, err)
	}
	return nil
}
