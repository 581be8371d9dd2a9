package cacheservice

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"

	"quantdb/internal/calendar"
	"quantdb/internal/errs"
	"quantdb/internal/fetch"
	"quantdb/internal/model"
	"quantdb/internal/monitoring"
	"quantdb/internal/store"
	"quantdb/internal/upstream"
)

type fakeAdapter struct {
	mu          sync.Mutex
	dailyCalls  int
	daily       []model.DailyBar
	realtime    *model.RealtimeSnapshot
	asset       *model.Asset
	financial   *model.FinancialSummary
}

func (f *fakeAdapter) FetchDaily(ctx context.Context, symbol string, market model.Market, start, end time.Time, adjust model.Adjust) ([]model.DailyBar, error) {
	f.mu.Lock()
	f.dailyCalls++
	f.mu.Unlock()
	return f.daily, nil
}
func (f *fakeAdapter) FetchIndexDaily(ctx context.Context, symbol string, market model.Market, start, end time.Time, period model.Period) ([]model.IndexBar, error) {
	return nil, nil
}
func (f *fakeAdapter) FetchRealtime(ctx context.Context, symbol string, market model.Market) (*model.RealtimeSnapshot, error) {
	return f.realtime, nil
}
func (f *fakeAdapter) FetchAsset(ctx context.Context, symbol string, market model.Market) (*model.Asset, error) {
	return f.asset, nil
}
func (f *fakeAdapter) FetchFinancialSummary(ctx context.Context, symbol string, indicators bool) (*model.FinancialSummary, error) {
	return f.financial, nil
}

var _ upstream.Adapter = (*fakeAdapter)(nil)

// dailyBarRows builds the sqlmock result set dailyBarRepo.GetRange expects,
// matching its exact column order (internal/store/dailybar_repo.go).
func dailyBarRows(bars []model.DailyBar) *sqlmock.Rows {
	rows := sqlmock.NewRows([]string{"symbol", "trade_date", "open", "high", "low", "close", "volume",
		"turnover", "amplitude", "pct_change", "change", "turnover_rate", "adjust"})
	for _, b := range bars {
		rows.AddRow(b.Symbol, b.TradeDate, b.Open.String(), b.High.String(), b.Low.String(), b.Close.String(),
			b.Volume, b.Turnover.String(), b.Amplitude.String(), b.PctChange.String(), b.Change.String(),
			b.TurnoverRate.String(), string(b.Adjust))
	}
	return rows
}

type fakeCoverageRepo struct{ mu sync.Mutex }

func (r *fakeCoverageRepo) Get(ctx context.Context, symbol string, kind model.CoverageKind) (*model.DataCoverage, bool, error) {
	return nil, false, nil
}
func (r *fakeCoverageRepo) Touch(ctx context.Context, symbol string, kind model.CoverageKind, earliest, latest time.Time, rowsAdded int64) error {
	return nil
}
func (r *fakeCoverageRepo) ListAll(ctx context.Context) ([]model.DataCoverage, error) {
	return nil, nil
}

type fakeAssetRepo struct {
	mu   sync.Mutex
	rows map[string]*model.Asset
}

func (r *fakeAssetRepo) Get(ctx context.Context, symbol string) (*model.Asset, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.rows[symbol]
	return a, ok, nil
}
func (r *fakeAssetRepo) Upsert(ctx context.Context, asset *model.Asset) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.rows == nil {
		r.rows = map[string]*model.Asset{}
	}
	r.rows[asset.Symbol] = asset
	return nil
}

type fakeRealtimeRepo struct {
	mu   sync.Mutex
	rows map[string]*model.RealtimeSnapshot
}

func (r *fakeRealtimeRepo) Get(ctx context.Context, symbol string) (*model.RealtimeSnapshot, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.rows[symbol]
	return s, ok, nil
}
func (r *fakeRealtimeRepo) GetBatch(ctx context.Context, symbols []string) (map[string]model.RealtimeSnapshot, error) {
	return nil, nil
}
func (r *fakeRealtimeRepo) Upsert(ctx context.Context, snap *model.RealtimeSnapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.rows == nil {
		r.rows = map[string]*model.RealtimeSnapshot{}
	}
	r.rows[snap.Symbol] = snap
	return nil
}

type fakeFinancialRepo struct {
	mu   sync.Mutex
	rows map[string]*model.FinancialSummary
}

func (r *fakeFinancialRepo) key(symbol, period string, indicators bool) string {
	if indicators {
		return symbol + "|" + period + "|ind"
	}
	return symbol + "|" + period
}
func (r *fakeFinancialRepo) Get(ctx context.Context, symbol, period string, indicators bool) (*model.FinancialSummary, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.rows[r.key(symbol, period, indicators)]
	return s, ok, nil
}
func (r *fakeFinancialRepo) Upsert(ctx context.Context, summary *model.FinancialSummary) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.rows == nil {
		r.rows = map[string]*model.FinancialSummary{}
	}
	r.rows[r.key(summary.Symbol, summary.Period, summary.Indicators)] = summary
	return nil
}

type fakeRequestLogRepo struct {
	mu      sync.Mutex
	entries []*model.RequestLog
}

func (r *fakeRequestLogRepo) Append(ctx context.Context, entry *model.RequestLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entry)
	return nil
}

// newTestService wires a Service against a caller-supplied *sql.DB for the
// daily/index bar repos and the fetch coordinator's commit transactions
// (store.WithTx needs a real connection, not an in-memory fake — see
// internal/fetch.Coordinator), and in-memory fakes for everything else.
// db may be nil for tests that never exercise GetDailyBars/GetIndexBars.
func newTestService(t *testing.T, db *sql.DB, adapter *fakeAdapter, assetRepo *fakeAssetRepo, realtimeRepo *fakeRealtimeRepo, financialRepo *fakeFinancialRepo, logRepo *fakeRequestLogRepo) *Service {
	t.Helper()
	cal, err := calendar.New()
	if err != nil {
		t.Fatalf("calendar.New: %v", err)
	}
	dailyBars := store.NewDailyBarRepo(db)
	indexBars := store.NewIndexBarRepo(db)
	coord := fetch.NewCoordinator(adapter, db, 4)
	emitter := monitoring.NewEmitter(logRepo)
	ttl := TTLPolicy{AssetInfo: 24 * time.Hour, RealtimeOpen: 60 * time.Second, RealtimeClosed: 30 * time.Minute, FinancialSummary: 24 * time.Hour, FinancialIndicators: 7 * 24 * time.Hour}
	return New(cal, coord, adapter, emitter, nil, assetRepo, dailyBars, indexBars, realtimeRepo, &fakeCoverageRepo{}, financialRepo, ttl, 4)
}

func TestGetDailyBars_EmptyCacheFetchesThenReturns(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	bars := []model.DailyBar{
		{Symbol: "600000", TradeDate: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), Close: decimal.RequireFromString("10.0"), Adjust: model.AdjustRaw},
		{Symbol: "600000", TradeDate: time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC), Close: decimal.RequireFromString("10.1"), Adjust: model.AdjustRaw},
	}
	adapter := &fakeAdapter{daily: bars}
	logRepo := &fakeRequestLogRepo{}
	svc := newTestService(t, db, adapter, &fakeAssetRepo{}, &fakeRealtimeRepo{}, &fakeFinancialRepo{}, logRepo)

	// present() finds the cache empty.
	mock.ExpectQuery("SELECT symbol, trade_date, open, high, low, close, volume, turnover").
		WillReturnRows(dailyBarRows(nil))
	// commitDaily: one transaction for both fetched rows and the coverage touch.
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO daily_bars").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO daily_bars").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO data_coverage").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	// final read after the fetch.
	mock.ExpectQuery("SELECT symbol, trade_date, open, high, low, close, volume, turnover").
		WillReturnRows(dailyBarRows(bars))

	got, err := svc.GetDailyBars(context.Background(), "600000", model.AdjustRaw,
		time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("GetDailyBars: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("bars = %d, want 2", len(got))
	}
	if adapter.dailyCalls != 1 {
		t.Fatalf("dailyCalls = %d, want 1", adapter.dailyCalls)
	}
	if len(logRepo.entries) != 1 || logRepo.entries[0].Outcome != model.OutcomeOK {
		t.Fatalf("request log = %+v, want one ok entry", logRepo.entries)
	}

	// Second call is fully cached: no additional upstream call, no writes.
	mock.ExpectQuery("SELECT symbol, trade_date, open, high, low, close, volume, turnover").
		WillReturnRows(dailyBarRows(bars))
	mock.ExpectQuery("SELECT symbol, trade_date, open, high, low, close, volume, turnover").
		WillReturnRows(dailyBarRows(bars))

	got2, err := svc.GetDailyBars(context.Background(), "600000", model.AdjustRaw,
		time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("GetDailyBars (cached): %v", err)
	}
	if len(got2) != 2 {
		t.Fatalf("bars2 = %d, want 2", len(got2))
	}
	if adapter.dailyCalls != 1 {
		t.Fatalf("dailyCalls after cached read = %d, want still 1", adapter.dailyCalls)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestGetDailyBars_InvalidSymbol(t *testing.T) {
	svc := newTestService(t, nil, &fakeAdapter{}, &fakeAssetRepo{}, &fakeRealtimeRepo{}, &fakeFinancialRepo{}, &fakeRequestLogRepo{})
	_, err := svc.GetDailyBars(context.Background(), "AAPL", model.AdjustRaw, time.Now(), time.Now())
	if err == nil {
		t.Fatal("expected error for non A-share/HK symbol")
	}
}

func TestGetRealtime_TTLHit(t *testing.T) {
	realtimeRepo := &fakeRealtimeRepo{rows: map[string]*model.RealtimeSnapshot{
		"600000": {Symbol: "600000", LastPrice: decimal.RequireFromString("12.0"), CapturedAt: time.Now()},
	}}
	adapter := &fakeAdapter{realtime: &model.RealtimeSnapshot{Symbol: "600000", LastPrice: decimal.RequireFromString("99.0"), CapturedAt: time.Now()}}
	svc := newTestService(t, nil, adapter, &fakeAssetRepo{}, realtimeRepo, &fakeFinancialRepo{}, &fakeRequestLogRepo{})

	snap, err := svc.GetRealtime(context.Background(), "600000")
	if err != nil {
		t.Fatalf("GetRealtime: %v", err)
	}
	if !snap.LastPrice.Equal(decimal.RequireFromString("12.0")) {
		t.Fatalf("expected cached snapshot returned, got %v", snap.LastPrice)
	}
}

func TestGetAssetInfo_ForceRefreshBypassesTTL(t *testing.T) {
	assetRepo := &fakeAssetRepo{rows: map[string]*model.Asset{
		"600000": {Symbol: "600000", DisplayName: "stale", LastMetadataRefresh: time.Now()},
	}}
	adapter := &fakeAdapter{asset: &model.Asset{Symbol: "600000", DisplayName: "fresh", LastMetadataRefresh: time.Now()}}
	svc := newTestService(t, nil, adapter, assetRepo, &fakeRealtimeRepo{}, &fakeFinancialRepo{}, &fakeRequestLogRepo{})

	asset, err := svc.GetAssetInfo(context.Background(), "600000", true)
	if err != nil {
		t.Fatalf("GetAssetInfo: %v", err)
	}
	if asset.DisplayName != "fresh" {
		t.Fatalf("DisplayName = %q, want fresh (force refresh should bypass TTL)", asset.DisplayName)
	}
}

func TestGetFinancialSummary_AndIndicators_ShareStorage(t *testing.T) {
	financialRepo := &fakeFinancialRepo{}
	adapter := &fakeAdapter{financial: &model.FinancialSummary{Metrics: map[string]decimal.Decimal{"pe": decimal.RequireFromString("15.0")}, FetchedAt: time.Now()}}
	svc := newTestService(t, nil, adapter, &fakeAssetRepo{}, &fakeRealtimeRepo{}, financialRepo, &fakeRequestLogRepo{})

	summary, err := svc.GetFinancialSummary(context.Background(), "600000", "2024Q1", false)
	if err != nil {
		t.Fatalf("GetFinancialSummary: %v", err)
	}
	if summary.Indicators {
		t.Fatal("GetFinancialSummary row must have Indicators=false")
	}

	indicators, err := svc.GetFinancialIndicators(context.Background(), "600000", "2024Q1", false)
	if err != nil {
		t.Fatalf("GetFinancialIndicators: %v", err)
	}
	if !indicators.Indicators {
		t.Fatal("GetFinancialIndicators row must have Indicators=true")
	}
}

func TestCacheStats_ReportsCoordinatorCounters(t *testing.T) {
	svc := newTestService(t, nil, &fakeAdapter{}, &fakeAssetRepo{}, &fakeRealtimeRepo{}, &fakeFinancialRepo{}, &fakeRequestLogRepo{})
	stats, err := svc.CacheStats(context.Background())
	if err != nil {
		t.Fatalf("CacheStats: %v", err)
	}
	if stats.Coverage != nil {
		t.Fatalf("expected nil coverage from the fake repo, got %+v", stats.Coverage)
	}
	if stats.Coordinator != (fetch.Stats{}) {
		t.Fatalf("Coordinator = %+v, want zero counters from a fresh coordinator", stats.Coordinator)
	}
}

func TestGetRealtimeBatch_PartialOutcome(t *testing.T) {
	adapter := &fakeAdapter{realtime: &model.RealtimeSnapshot{Symbol: "600000", CapturedAt: time.Now()}}
	logRepo := &fakeRequestLogRepo{}
	svc := newTestService(t, nil, adapter, &fakeAssetRepo{}, &fakeRealtimeRepo{}, &fakeFinancialRepo{}, logRepo)

	results := svc.GetRealtimeBatch(context.Background(), []string{"600000", "NOTASYMBOL"})
	if len(results) != 2 {
		t.Fatalf("results = %d, want 2", len(results))
	}
	if results[0].Err != nil {
		t.Fatalf("results[0] unexpected error: %v", results[0].Err)
	}
	if results[1].Err == nil {
		t.Fatal("results[1] expected invalid-symbol error")
	}
	if len(logRepo.entries) != 1 || logRepo.entries[0].Outcome != model.OutcomePartial {
		t.Fatalf("request log = %+v, want one partial entry", logRepo.entries)
	}
}

// TestGetRealtimeBatch_QueueCapFailsFast mirrors
// fetch.TestCoordinator_QueueCapFailsFast: once the admission semaphore is
// saturated, GetRealtimeBatch must report UpstreamOverloaded for the
// symbols it could not admit instead of blocking on errgroup.SetLimit
// (spec.md §5).
func TestGetRealtimeBatch_QueueCapFailsFast(t *testing.T) {
	adapter := &fakeAdapter{realtime: &model.RealtimeSnapshot{Symbol: "600000", CapturedAt: time.Now()}}
	svc := newTestService(t, nil, adapter, &fakeAssetRepo{}, &fakeRealtimeRepo{}, &fakeFinancialRepo{}, &fakeRequestLogRepo{})

	if !svc.realtimeQueue.TryAcquire(svc.realtimeQueueCap) {
		t.Fatalf("setup: failed to saturate the realtime queue (cap %d)", svc.realtimeQueueCap)
	}
	defer svc.realtimeQueue.Release(svc.realtimeQueueCap)

	results := svc.GetRealtimeBatch(context.Background(), []string{"600000"})
	if len(results) != 1 {
		t.Fatalf("results = %d, want 1", len(results))
	}
	if !errs.Is(results[0].Err, errs.UpstreamOverloaded) {
		t.Fatalf("err = %v, want UpstreamOverloaded", results[0].Err)
	}
}
