// Package fetch is the Fetch Coordinator (spec.md §4.5): it guarantees
// at-most-one concurrent upstream fetch per (symbol, segment signature),
// applies the adapter's retry/backoff policy, and is the sole writer of
// rows that originate upstream.
//
// The in-flight registry and bounded worker pool generalize the
// singleflight.Group + errgroup.WithContext(ctx); g.SetLimit(...) pattern
// from the sector-service example (other_examples/32b0dd93_drewjst-recon),
// replacing its per-ticker ratio/technicals/price groups with one group
// keyed by segment signature.
package fetch

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"

	"quantdb/internal/errs"
	"quantdb/internal/gapresolver"
	"quantdb/internal/model"
	"quantdb/internal/store"
	"quantdb/internal/upstream"
)

// Retry policy constants (spec.md §4.5): base 500ms, factor 2, cap 8s, max
// 3 retries, for transient network / rate-limit errors only.
const (
	retryBase   = 500 * time.Millisecond
	retryFactor = 2
	retryCap    = 8 * time.Second
	retryMax    = 3
)

// queueCapMultiplier sizes the fetch queue's admission semaphore relative
// to the worker pool: poolSize segments may run at once, and up to
// (queueCapMultiplier-1)*poolSize more may wait their turn before the
// coordinator fails fast with UpstreamOverloaded instead of queuing
// indefinitely (spec.md §5).
const queueCapMultiplier = 4

// Coordinator owns the in-flight registry, the bounded upstream worker
// pool, and the connection commitDaily/commitIndex open their
// transactions on. spec.md §4.3 requires a segment's bar upsert and its
// coverage touch to land atomically, so the coordinator holds the raw
// *sql.DB rather than fixed repository instances and constructs
// tx-scoped repositories fresh inside each commit.
type Coordinator struct {
	adapter upstream.Adapter
	db      *sql.DB

	sf singleflight.Group

	poolSize int
	queueCap int64
	queue    *semaphore.Weighted

	inFlight  int64
	completed int64
	coalesced int64
}

// NewCoordinator builds a coordinator whose upstream worker pool allows at
// most poolSize concurrent adapter calls (spec.md §5: "a bounded worker
// pool for upstream calls"), backed by a queue-depth semaphore: a segment
// that can't be admitted never blocks waiting for a slot, and once every
// admitted segment in the call has finished, UpstreamOverloaded is
// reported for the ones that were rejected.
func NewCoordinator(adapter upstream.Adapter, db *sql.DB, poolSize int) *Coordinator {
	if poolSize <= 0 {
		poolSize = 1
	}
	queueCap := int64(poolSize * queueCapMultiplier)
	return &Coordinator{adapter: adapter, db: db, poolSize: poolSize, queueCap: queueCap, queue: semaphore.NewWeighted(queueCap)}
}

// Stats reports in-flight-registry counters, exposed for /cache_stats
// (SPEC_FULL.md SUPPLEMENTED FEATURES).
type Stats struct {
	InFlight  int64
	Completed int64
	Coalesced int64
}

func (c *Coordinator) Stats() Stats {
	return Stats{
		InFlight:  atomic.LoadInt64(&c.inFlight),
		Completed: atomic.LoadInt64(&c.completed),
		Coalesced: atomic.LoadInt64(&c.coalesced),
	}
}

func segmentKey(symbol string, kind model.CoverageKind, adjust model.Adjust, seg gapresolver.Segment) string {
	return fmt.Sprintf("%s|%s|%s|%s|%s", symbol, kind, adjust, seg.Start.Format("2006-01-02"), seg.End.Format("2006-01-02"))
}

// FetchDailySegments fetches and commits every missing segment for a
// daily-bar read, running up to c.poolSize segments concurrently
// (errgroup.WithContext + SetLimit) and coalescing identical concurrent
// segment requests onto one singleflight call (spec.md §4.5, scenario S5).
func (c *Coordinator) FetchDailySegments(ctx context.Context, symbol string, market model.Market, adjust model.Adjust, segments []gapresolver.Segment) (upstreamCalls int, err error) {
	if len(segments) == 0 {
		return 0, nil
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(c.poolSize)

	var calls int64
	var overloaded bool
	for _, seg := range segments {
		seg := seg
		if !c.queue.TryAcquire(1) {
			overloaded = true
			continue
		}
		g.Go(func() error {
			defer c.queue.Release(1)
			did, err := c.fetchDailySegment(gCtx, symbol, market, adjust, seg)
			if did {
				atomic.AddInt64(&calls, 1)
			}
			return err
		})
	}

	waitErr := g.Wait()
	if waitErr != nil {
		return int(atomic.LoadInt64(&calls)), waitErr
	}
	if overloaded {
		return int(atomic.LoadInt64(&calls)), errs.New(errs.UpstreamOverloaded, "fetch_daily", symbol,
			fmt.Errorf("fetch queue depth exceeds cap of %d", c.queueCap))
	}
	return int(atomic.LoadInt64(&calls)), nil
}

func (c *Coordinator) fetchDailySegment(ctx context.Context, symbol string, market model.Market, adjust model.Adjust, seg gapresolver.Segment) (bool, error) {
	key := segmentKey(symbol, model.CoverageDaily, adjust, seg)

	atomic.AddInt64(&c.inFlight, 1)
	defer atomic.AddInt64(&c.inFlight, -1)

	// called is set only by the caller whose fn actually ran, so the
	// singleflight leader counts its upstream call even when shared is
	// true, and a coalesced waiter counts none.
	called := false
	v, err, shared := c.sf.Do(key, func() (interface{}, error) {
		called = true
		bars, err := c.retryFetchDaily(ctx, symbol, market, adjust, seg)
		if err != nil {
			return nil, err
		}
		if err := c.commitDaily(ctx, symbol, bars, seg); err != nil {
			return nil, err
		}
		return len(bars), nil
	})
	atomic.AddInt64(&c.completed, 1)
	if shared {
		atomic.AddInt64(&c.coalesced, 1)
		log.Printf("[fetch] coalesced concurrent request for %s", key)
	}
	if err != nil {
		return false, err
	}
	_ = v
	return called, nil
}

// retryFetchDaily applies the coordinator's own retry/backoff loop around
// the adapter call: Transient upstream errors are retried with exponential
// backoff; InvalidSymbol and CalendarRangeUnsupported are not (spec.md
// §4.5).
func (c *Coordinator) retryFetchDaily(ctx context.Context, symbol string, market model.Market, adjust model.Adjust, seg gapresolver.Segment) ([]model.DailyBar, error) {
	backoff := retryBase
	var lastErr error
	for attempt := 0; attempt <= retryMax; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, errs.New(errs.Cancelled, "fetch_daily", symbol, ctx.Err())
			case <-time.After(backoff):
			}
			backoff *= retryFactor
			if backoff > retryCap {
				backoff = retryCap
			}
		}

		bars, err := c.adapter.FetchDaily(ctx, symbol, market, seg.Start, seg.End, adjust)
		if err == nil {
			return bars, nil
		}
		lastErr = err

		kind := upstream.KindOf(err)
		switch kind {
		case upstream.InvalidSymbol:
			return nil, errs.New(errs.InvalidSymbol, "fetch_daily", symbol, err)
		case upstream.NotFound:
			return nil, nil // propagates as empty result per spec.md §6.1
		case upstream.Transient:
			continue
		default:
			return nil, errs.New(errs.UpstreamFail, "fetch_daily", symbol, err)
		}
	}
	return nil, errs.New(errs.UpstreamFail, "fetch_daily", symbol, fmt.Errorf("retries exhausted: %w", lastErr))
}

// FetchIndexSegments is FetchDailySegments' counterpart for index bars
// (spec.md §4.6 "get_index_bars: same shape as daily bars").
func (c *Coordinator) FetchIndexSegments(ctx context.Context, symbol string, market model.Market, period model.Period, segments []gapresolver.Segment) (upstreamCalls int, err error) {
	if len(segments) == 0 {
		return 0, nil
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(c.poolSize)

	var calls int64
	var overloaded bool
	for _, seg := range segments {
		seg := seg
		if !c.queue.TryAcquire(1) {
			overloaded = true
			continue
		}
		g.Go(func() error {
			defer c.queue.Release(1)
			did, err := c.fetchIndexSegment(gCtx, symbol, market, period, seg)
			if did {
				atomic.AddInt64(&calls, 1)
			}
			return err
		})
	}

	waitErr := g.Wait()
	if waitErr != nil {
		return int(atomic.LoadInt64(&calls)), waitErr
	}
	if overloaded {
		return int(atomic.LoadInt64(&calls)), errs.New(errs.UpstreamOverloaded, "fetch_index_daily", symbol,
			fmt.Errorf("fetch queue depth exceeds cap of %d", c.queueCap))
	}
	return int(atomic.LoadInt64(&calls)), nil
}

func (c *Coordinator) fetchIndexSegment(ctx context.Context, symbol string, market model.Market, period model.Period, seg gapresolver.Segment) (bool, error) {
	key := segmentKey(symbol, model.CoverageIndex, model.Adjust(period), seg)

	atomic.AddInt64(&c.inFlight, 1)
	defer atomic.AddInt64(&c.inFlight, -1)

	called := false
	_, err, shared := c.sf.Do(key, func() (interface{}, error) {
		called = true
		bars, err := c.retryFetchIndex(ctx, symbol, market, period, seg)
		if err != nil {
			return nil, err
		}
		if err := c.commitIndex(ctx, symbol, bars, seg); err != nil {
			return nil, err
		}
		return len(bars), nil
	})
	atomic.AddInt64(&c.completed, 1)
	if shared {
		atomic.AddInt64(&c.coalesced, 1)
		log.Printf("[fetch] coalesced concurrent request for %s", key)
	}
	if err != nil {
		return false, err
	}
	return called, nil
}

func (c *Coordinator) retryFetchIndex(ctx context.Context, symbol string, market model.Market, period model.Period, seg gapresolver.Segment) ([]model.IndexBar, error) {
	backoff := retryBase
	var lastErr error
	for attempt := 0; attempt <= retryMax; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, errs.New(errs.Cancelled, "fetch_index_daily", symbol, ctx.Err())
			case <-time.After(backoff):
			}
			backoff *= retryFactor
			if backoff > retryCap {
				backoff = retryCap
			}
		}

		bars, err := c.adapter.FetchIndexDaily(ctx, symbol, market, seg.Start, seg.End, period)
		if err == nil {
			return bars, nil
		}
		lastErr = err

		switch upstream.KindOf(err) {
		case upstream.InvalidSymbol:
			return nil, errs.New(errs.InvalidSymbol, "fetch_index_daily", symbol, err)
		case upstream.NotFound:
			return nil, nil
		case upstream.Transient:
			continue
		default:
			return nil, errs.New(errs.UpstreamFail, "fetch_index_daily", symbol, err)
		}
	}
	return nil, errs.New(errs.UpstreamFail, "fetch_index_daily", symbol, fmt.Errorf("retries exhausted: %w", lastErr))
}

func (c *Coordinator) commitIndex(ctx context.Context, symbol string, bars []model.IndexBar, seg gapresolver.Segment) error {
	return store.WithTx(ctx, c.db, func(tx *sql.Tx) error {
		indexBar := store.NewIndexBarRepo(tx)
		coverage := store.NewCoverageRepo(tx)

		if len(bars) == 0 {
			return coverage.Touch(ctx, symbol, model.CoverageIndex, seg.Start, seg.End, 0)
		}
		if err := indexBar.UpsertBatch(ctx, bars); err != nil {
			return err
		}

		earliest, latest := bars[0].TradeDate, bars[0].TradeDate
		for _, b := range bars[1:] {
			if b.TradeDate.Before(earliest) {
				earliest = b.TradeDate
			}
			if b.TradeDate.After(latest) {
				latest = b.TradeDate
			}
		}
		return coverage.Touch(ctx, symbol, model.CoverageIndex, earliest, latest, int64(len(bars)))
	})
}

// commitDaily upserts the fetched bars and widens coverage in one
// transaction (spec.md §4.3), constructing tx-scoped repositories for the
// duration of the commit so the bar upsert and the coverage touch either
// both land or neither does.
func (c *Coordinator) commitDaily(ctx context.Context, symbol string, bars []model.DailyBar, seg gapresolver.Segment) error {
	return store.WithTx(ctx, c.db, func(tx *sql.Tx) error {
		dailyBar := store.NewDailyBarRepo(tx)
		coverage := store.NewCoverageRepo(tx)

		if len(bars) == 0 {
			return coverage.Touch(ctx, symbol, model.CoverageDaily, seg.Start, seg.End, 0)
		}
		if err := dailyBar.UpsertBatch(ctx, bars); err != nil {
			return err
		}

		earliest, latest := bars[0].TradeDate, bars[0].TradeDate
		for _, b := range bars[1:] {
			if b.TradeDate.Before(earliest) {
				earliest = b.TradeDate
			}
			if b.TradeDate.After(latest) {
				latest = b.TradeDate
			}
		}
		return coverage.Touch(ctx, symbol, model.CoverageDaily, earliest, latest, int64(len(bars)))
	})
}
