// Package model holds the persistent-cache data types shared by the store,
// gap resolver, fetch coordinator and cache service. None of these types
// know how they are persisted; that is the repositories' job.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Market identifies the exchange (and therefore calendar/timezone) a symbol
// trades on.
type Market string

const (
	MarketShanghai  Market = "A_SH"
	MarketShenzhen  Market = "A_SZ"
	MarketSTAR      Market = "A_STAR"
	MarketChiNext   Market = "A_CHINEXT"
	MarketHK        Market = "HK"
	MarketIndexA    Market = "INDEX_A"
	MarketIndexHK   Market = "INDEX_HK"
)

// InstrumentKind distinguishes ordinary equities from index symbols; index
// symbol space never intersects stock symbol space (spec.md §3).
type InstrumentKind string

const (
	KindStock InstrumentKind = "STOCK"
	KindIndex InstrumentKind = "INDEX"
)

// Adjust is the price-adjustment mode applied to OHLC values. raw, forward
// and backward are independent caches; a bar fetched under one adjust mode
// never satisfies a read requested under another (spec.md §4.4).
type Adjust string

const (
	AdjustRaw      Adjust = "raw"
	AdjustForward  Adjust = "forward"
	AdjustBackward Adjust = "backward"
)

// Period partitions the index-bar cache by bar granularity (spec.md §4.6).
type Period string

const (
	PeriodDaily   Period = "daily"
	PeriodWeekly  Period = "weekly"
	PeriodMonthly Period = "monthly"
)

// CoverageKind enumerates the data kinds DataCoverage tracks independently.
type CoverageKind string

const (
	CoverageDaily     CoverageKind = "daily"
	CoverageIndex     CoverageKind = "index"
	CoverageRealtime  CoverageKind = "realtime"
	CoverageAsset     CoverageKind = "asset"
	CoverageFinancial CoverageKind = "financial"
)

// Outcome is the terminal classification of one resolve call, recorded on
// the RequestLog entry (spec.md §3/§7).
type Outcome string

const (
	OutcomeOK             Outcome = "ok"
	OutcomePartial        Outcome = "partial"
	OutcomeUpstreamFail   Outcome = "upstream_fail"
	OutcomeInvalidSymbol  Outcome = "invalid_symbol"
	OutcomeNoTradingDays  Outcome = "no_trading_days"
	OutcomeCancelled      Outcome = "cancelled"
	OutcomeOverloaded     Outcome = "upstream_overloaded"
)

// Asset is the Asset entity of spec.md §3. Created on first reference;
// mutated only by the metadata-refresh policy; never deleted by the core.
type Asset struct {
	Symbol              string
	DisplayName         string
	Market              Market
	Industry            string
	ListingDate         time.Time
	PE                  decimal.Decimal
	PB                  decimal.Decimal
	ROE                 decimal.Decimal
	TotalShares          int64
	FloatShares          int64
	MarketCap           decimal.Decimal
	MetadataSource      string
	LastMetadataRefresh time.Time
}

// DailyBar is one OHLCV row for one (symbol, trade_date, adjust). Once
// stored for a date strictly before "today" in the symbol's market, the
// row is immutable (spec.md §3).
type DailyBar struct {
	Symbol       string
	TradeDate    time.Time
	Open         decimal.Decimal
	High         decimal.Decimal
	Low          decimal.Decimal
	Close        decimal.Decimal
	Volume       int64
	Turnover     decimal.Decimal
	Amplitude    decimal.Decimal
	PctChange    decimal.Decimal
	Change       decimal.Decimal
	TurnoverRate decimal.Decimal
	Adjust       Adjust
}

// IndexBar has the same shape as DailyBar but lives in a separate table
// because index symbols never collide with stock symbols (spec.md §3).
type IndexBar struct {
	Symbol       string
	TradeDate    time.Time
	Period       Period
	Open         decimal.Decimal
	High         decimal.Decimal
	Low          decimal.Decimal
	Close        decimal.Decimal
	Volume       int64
	Turnover     decimal.Decimal
	Amplitude    decimal.Decimal
	PctChange    decimal.Decimal
	Change       decimal.Decimal
	TurnoverRate decimal.Decimal
}

// RealtimeSnapshot is mutated on refresh; one row per symbol, never
// versioned (spec.md §3).
type RealtimeSnapshot struct {
	Symbol     string
	LastPrice  decimal.Decimal
	Change     decimal.Decimal
	PctChange  decimal.Decimal
	Volume     int64
	Turnover   decimal.Decimal
	PE         decimal.Decimal
	PB         decimal.Decimal
	MarketCap  decimal.Decimal
	CapturedAt time.Time
}

// DataCoverage is the known-cached extent for a (symbol, kind) pair,
// widened (never narrowed) on every successful resolve (spec.md §3/§4.3).
type DataCoverage struct {
	Symbol         string
	Kind           CoverageKind
	EarliestDate   time.Time
	LatestDate     time.Time
	RowCount       int64
	LastAccessedAt time.Time
	AccessCount    int64
}

// RequestLog is the append-only monitoring record emitted once per
// facade call (spec.md §3/§4.7). It is never read by business logic.
type RequestLog struct {
	ID               string
	Timestamp        time.Time
	Operation        string
	Symbol           string
	RequestedStart   time.Time
	RequestedEnd     time.Time
	ResolvedStart    time.Time
	ResolvedEnd      time.Time
	CacheHitRatio    float64
	UpstreamCalls    int
	LatencyMS        int64
	Outcome          Outcome
	ErrorMessage     string
}

// FinancialSummary holds one reporting period's worth of fundamentals for a
// symbol (spec.md §3). Indicators is true when the row was populated by
// get_financial_indicators (7-day TTL) rather than get_financial_summary
// (24-hour TTL); both operations share this table, partitioned by the flag.
type FinancialSummary struct {
	Symbol      string
	Period      string
	Indicators  bool
	Metrics     map[string]decimal.Decimal
	FetchedAt   time.Time
}
