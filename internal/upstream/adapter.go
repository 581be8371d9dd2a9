// Package upstream is the thin, uniform fetch interface over the vendor
// market-data provider, one method per data kind (spec.md §2 "Upstream
// Adapter", §6.1). Symbol format conversion happens here (canonical symbol
// -> vendor-specific query param), never in the cache service or fetch
// coordinator.
package upstream

import (
	"context"
	"time"

	"quantdb/internal/model"
)

// Adapter is implemented by HTTPAdapter in production and by a fake in
// fetch and cacheservice tests.
type Adapter interface {
	FetchDaily(ctx context.Context, symbol string, market model.Market, start, end time.Time, adjust model.Adjust) ([]model.DailyBar, error)
	FetchIndexDaily(ctx context.Context, symbol string, market model.Market, start, end time.Time, period model.Period) ([]model.IndexBar, error)
	FetchRealtime(ctx context.Context, symbol string, market model.Market) (*model.RealtimeSnapshot, error)
	FetchAsset(ctx context.Context, symbol string, market model.Market) (*model.Asset, error)
	FetchFinancialSummary(ctx context.Context, symbol string, indicators bool) (*model.FinancialSummary, error)
}
