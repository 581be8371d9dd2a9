package cacheservice

import (
	"context"

	"quantdb/internal/errs"
	"quantdb/internal/fetch"
	"quantdb/internal/model"
	"quantdb/internal/store"
	"quantdb/internal/symbol"
)

// ClearCache deletes every cached row for rawSymbol, or every row in the
// cache entirely when rawSymbol is empty, and reports rows removed
// (spec.md §6 clear_cache). request_log is never touched: it is an
// append-only monitoring record, not part of the cache (spec.md §4.7).
func (s *Service) ClearCache(ctx context.Context, rawSymbol string) (int64, error) {
	cl := newCallLog("clear_cache", rawSymbol)
	if rawSymbol == "" {
		n, err := store.ClearAll(ctx, s.db)
		if err != nil {
			wrapped := errs.New(errs.InternalInconsistency, "clear_cache", "", err)
			s.emit(ctx, cl, model.OutcomeUpstreamFail, 0, wrapped.Error())
			return 0, wrapped
		}
		s.emit(ctx, cl, model.OutcomeOK, 0, "")
		return n, nil
	}

	norm, err := s.normalize(ctx, cl, rawSymbol)
	if err != nil {
		return 0, err
	}
	n, err := store.ClearSymbol(ctx, s.db, norm.CanonicalSymbol)
	if err != nil {
		wrapped := errs.New(errs.InternalInconsistency, "clear_cache", norm.CanonicalSymbol, err)
		s.emit(ctx, cl, model.OutcomeUpstreamFail, 0, wrapped.Error())
		return 0, wrapped
	}
	s.emit(ctx, cl, model.OutcomeOK, 0, "")
	return n, nil
}

// Stats aggregates the in-flight-registry counters spec.md §6 calls
// "counters" alongside every DataCoverage row in the cache (spec.md §6
// cache_stats takes no input).
type Stats struct {
	Coordinator fetch.Stats
	Dropped     int64
	Coverage    []model.DataCoverage
}

// CacheStats reports coordinator counters, dropped request_log writes,
// and the known coverage extent across every cached symbol and kind.
func (s *Service) CacheStats(ctx context.Context) (*Stats, error) {
	cl := newCallLog("cache_stats", "")
	coverage, err := s.coverage.ListAll(ctx)
	if err != nil {
		wrapped := errs.New(errs.InternalInconsistency, "cache_stats", "", err)
		s.emit(ctx, cl, model.OutcomeUpstreamFail, 0, wrapped.Error())
		return nil, wrapped
	}

	s.emit(ctx, cl, model.OutcomeOK, 0, "")
	return &Stats{
		Coordinator: s.coord.Stats(),
		Dropped:     s.log.Dropped(),
		Coverage:    coverage,
	}, nil
}
