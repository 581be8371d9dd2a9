package cacheservice

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"quantdb/internal/calendar"
	"quantdb/internal/errs"
	"quantdb/internal/model"
	"quantdb/internal/symbol"
	"quantdb/internal/upstream"
)

func (s *Service) realtimeTTL(market model.Market, now time.Time) time.Duration {
	phase, err := s.cal.MarketPhase(market, now)
	if err != nil || phase != calendar.PhaseOpen {
		return s.ttl.RealtimeClosed
	}
	return s.ttl.RealtimeOpen
}

// GetRealtime serves a cached snapshot when now - captured_at is within
// the market-hours-aware TTL, otherwise fetches, upserts and returns the
// fresh one (spec.md §4.6 get_realtime).
func (s *Service) GetRealtime(ctx context.Context, rawSymbol string) (*model.RealtimeSnapshot, error) {
	cl := newCallLog("get_realtime", rawSymbol)

	norm, err := s.normalize(ctx, cl, rawSymbol)
	if err != nil {
		return nil, err
	}

	snap, hit, err := s.fetchRealtimeOne(ctx, norm)
	if err != nil {
		outcome := model.OutcomeUpstreamFail
		if errs.Is(err, errs.InvalidSymbol) {
			outcome = model.OutcomeInvalidSymbol
		}
		s.emit(ctx, cl, outcome, 0, err.Error())
		return nil, err
	}
	hitRatio := 0.0
	if hit {
		hitRatio = 1.0
	} else {
		cl.upstreamCalls = 1
	}
	s.emit(ctx, cl, model.OutcomeOK, hitRatio, "")
	return snap, nil
}

// fetchRealtimeOne is the single-symbol TTL check + fetch-on-miss shared
// by GetRealtime and GetRealtimeBatch's per-symbol workers.
func (s *Service) fetchRealtimeOne(ctx context.Context, norm symbol.Result) (*model.RealtimeSnapshot, bool, error) {
	cached, ok, err := s.realtime.Get(ctx, norm.CanonicalSymbol)
	if err != nil {
		return nil, false, errs.New(errs.InternalInconsistency, "get_realtime", norm.CanonicalSymbol, err)
	}
	if ok {
		ttl := s.realtimeTTL(norm.Market, time.Now())
		if time.Since(cached.CapturedAt) < ttl {
			return cached, true, nil
		}
	}

	snap, err := s.adapter.FetchRealtime(ctx, norm.CanonicalSymbol, norm.Market)
	if err != nil {
		switch upstream.KindOf(err) {
		case upstream.InvalidSymbol:
			return nil, false, errs.New(errs.InvalidSymbol, "get_realtime", norm.CanonicalSymbol, err)
		case upstream.NotFound:
			return nil, false, errs.New(errs.DataUnavailable, "get_realtime", norm.CanonicalSymbol, err)
		default:
			return nil, false, errs.New(errs.UpstreamFail, "get_realtime", norm.CanonicalSymbol, err)
		}
	}
	if err := s.realtime.Upsert(ctx, snap); err != nil {
		return nil, false, errs.New(errs.InternalInconsistency, "get_realtime", norm.CanonicalSymbol, err)
	}
	return snap, false, nil
}

// RealtimeResult is one symbol's outcome within a GetRealtimeBatch call
// (spec.md §4.6: "partial failures return per-symbol outcomes").
type RealtimeResult struct {
	Symbol   string
	Snapshot *model.RealtimeSnapshot
	Err      error
}

// GetRealtimeBatch parallelizes fetchRealtimeOne across up to
// realtimeWorkers goroutines (spec.md §4.6/§5 "bounded worker pool").
func (s *Service) GetRealtimeBatch(ctx context.Context, rawSymbols []string) []RealtimeResult {
	cl := newCallLog("get_realtime_batch", "")
	results := make([]RealtimeResult, len(rawSymbols))
	hits := make([]bool, len(rawSymbols))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(s.realtimeWorkers)

	for i, raw := range rawSymbols {
		i, raw := i, raw
		if !s.realtimeQueue.TryAcquire(1) {
			results[i] = RealtimeResult{Symbol: raw, Err: errs.New(errs.UpstreamOverloaded, "get_realtime_batch", raw,
				fmt.Errorf("realtime queue depth exceeds cap of %d", s.realtimeQueueCap))}
			continue
		}
		g.Go(func() error {
			defer s.realtimeQueue.Release(1)
			norm, err := symbol.Normalize(raw)
			if err != nil {
				results[i] = RealtimeResult{Symbol: raw, Err: err}
				return nil
			}
			snap, hit, err := s.fetchRealtimeOne(gCtx, norm)
			hits[i] = hit
			results[i] = RealtimeResult{Symbol: norm.CanonicalSymbol, Snapshot: snap, Err: err}
			return nil
		})
	}
	_ = g.Wait()

	var okCount, overloadedCount, hitCount int
	for i, r := range results {
		if r.Err == nil {
			okCount++
		} else if errs.Is(r.Err, errs.UpstreamOverloaded) {
			overloadedCount++
		}
		if hits[i] {
			hitCount++
		}
	}
	outcome := model.OutcomeOK
	switch {
	case overloadedCount == len(results) && len(results) > 0:
		outcome = model.OutcomeOverloaded
	case okCount < len(results):
		outcome = model.OutcomePartial
	}
	hitRatio := 0.0
	if len(results) > 0 {
		hitRatio = float64(hitCount) / float64(len(results))
	}
	s.emit(ctx, cl, outcome, hitRatio, "")
	return results
}
