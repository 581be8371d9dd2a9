// Package cacheservice is the facade spec.md §4.6/§6 describes: the only
// entry point callers use. It runs the state machine (RECEIVED ->
// NORMALIZED -> RANGE_RESOLVED -> [CACHE_COMPLETE | FETCH_REQUIRED] ->
// RETURNED) by wiring together internal/symbol, internal/calendar,
// internal/gapresolver, internal/fetch and internal/store, and always
// emits exactly one model.RequestLog entry per call, through
// monitoring.Emitter, regardless of outcome.
//
// Grounded on the teacher's RedisStockCache (internal/service/stock_cache.go):
// same "check cache, fall through to source, write back" shape, generalized
// from a single Redis GET/SET pair to the gap-resolved multi-segment fetch
// this spec requires.
package cacheservice

import (
	"context"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"quantdb/internal/calendar"
	"quantdb/internal/errs"
	"quantdb/internal/fetch"
	"quantdb/internal/model"
	"quantdb/internal/monitoring"
	"quantdb/internal/store"
	"quantdb/internal/symbol"
	"quantdb/internal/upstream"
)

// TTLPolicy holds the freshness windows every *_info/*_summary operation
// is governed by (spec.md §4.6).
type TTLPolicy struct {
	AssetInfo           time.Duration
	RealtimeOpen        time.Duration
	RealtimeClosed      time.Duration
	FinancialSummary    time.Duration
	FinancialIndicators time.Duration
}

// Service is the cache service facade. One instance is shared by every
// caller; all of its dependencies are themselves safe for concurrent use.
type Service struct {
	cal     *calendar.Service
	coord   *fetch.Coordinator
	adapter upstream.Adapter
	log     *monitoring.Emitter
	db      store.DBTX

	assets    store.AssetRepo
	dailyBars store.DailyBarRepo
	indexBars store.IndexBarRepo
	realtime  store.RealtimeRepo
	coverage  store.CoverageRepo
	financial store.FinancialRepo

	ttl TTLPolicy

	realtimeWorkers  int
	realtimeQueueCap int64
	realtimeQueue    *semaphore.Weighted
}

// New builds the facade from its already-constructed dependencies; the
// composition root (cmd/quantdbd) is responsible for wiring the store,
// upstream adapter and fetch coordinator first. adapter serves the
// single-shot operations (realtime, asset, financial) that need a direct
// upstream call rather than the Coordinator's segment-based singleflight
// path, which exists for daily/index bar ranges only (spec.md §4.5).
func New(cal *calendar.Service, coord *fetch.Coordinator, adapter upstream.Adapter, logger *monitoring.Emitter, db store.DBTX,
	assets store.AssetRepo, dailyBars store.DailyBarRepo, indexBars store.IndexBarRepo,
	realtime store.RealtimeRepo, coverage store.CoverageRepo, financial store.FinancialRepo,
	ttl TTLPolicy, realtimeWorkers int) *Service {
	if realtimeWorkers <= 0 {
		realtimeWorkers = 1
	}
	// realtimeQueueCap mirrors fetch.Coordinator's admission semaphore
	// (spec.md §5): realtimeWorkers symbols run at once, and up to
	// (realtimeQueueMultiplier-1)*realtimeWorkers more may wait before
	// GetRealtimeBatch fails that symbol fast with UpstreamOverloaded
	// instead of queuing on errgroup.SetLimit indefinitely.
	queueCap := int64(realtimeWorkers * realtimeQueueMultiplier)
	return &Service{
		cal: cal, coord: coord, adapter: adapter, log: logger, db: db,
		assets: assets, dailyBars: dailyBars, indexBars: indexBars,
		realtime: realtime, coverage: coverage, financial: financial,
		ttl: ttl, realtimeWorkers: realtimeWorkers,
		realtimeQueueCap: queueCap, realtimeQueue: semaphore.NewWeighted(queueCap),
	}
}

// realtimeQueueMultiplier sizes GetRealtimeBatch's admission semaphore
// relative to its worker pool, matching internal/fetch's queueCapMultiplier.
const realtimeQueueMultiplier = 4

// callLog accumulates the fields of one RequestLog entry across a call's
// lifetime; Service methods build one per invocation and flush it via
// s.emit on every return path.
type callLog struct {
	id             string
	operation      string
	symbol         string
	requestedStart time.Time
	requestedEnd   time.Time
	resolvedStart  time.Time
	resolvedEnd    time.Time
	upstreamCalls  int
	start          time.Time
}

func newCallLog(operation, rawSymbol string) *callLog {
	return &callLog{id: uuid.New().String(), operation: operation, symbol: rawSymbol, start: time.Now()}
}

func (s *Service) emit(ctx context.Context, cl *callLog, outcome model.Outcome, hitRatio float64, errMsg string) {
	entry := &model.RequestLog{
		ID:             cl.id,
		Timestamp:      time.Now(),
		Operation:      cl.operation,
		Symbol:         cl.symbol,
		RequestedStart: cl.requestedStart,
		RequestedEnd:   cl.requestedEnd,
		ResolvedStart:  cl.resolvedStart,
		ResolvedEnd:    cl.resolvedEnd,
		CacheHitRatio:  hitRatio,
		UpstreamCalls:  cl.upstreamCalls,
		LatencyMS:      time.Since(cl.start).Milliseconds(),
		Outcome:        outcome,
		ErrorMessage:   errMsg,
	}
	s.log.Append(ctx, entry)
}

// normalize runs the NORMALIZED transition shared by every operation,
// recording the invalid-symbol outcome itself on failure.
func (s *Service) normalize(ctx context.Context, cl *callLog, raw string) (symbol.Result, error) {
	res, err := symbol.Normalize(raw)
	if err != nil {
		s.emit(ctx, cl, model.OutcomeInvalidSymbol, 0, err.Error())
		return symbol.Result{}, err
	}
	cl.symbol = res.CanonicalSymbol
	return res, nil
}
