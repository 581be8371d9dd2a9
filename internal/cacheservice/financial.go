package cacheservice

import (
	"context"
	"time"

	"quantdb/internal/errs"
	"quantdb/internal/model"
	"quantdb/internal/upstream"
)

// GetFinancialSummary serves the fundamentals row for period under a 24h
// TTL; GetFinancialIndicators shares the same table with indicators=true
// and a 7-day TTL (spec.md §4.6, model.FinancialSummary doc comment).
// forceRefresh bypasses the TTL, mirroring GetAssetInfo's contract.
func (s *Service) GetFinancialSummary(ctx context.Context, rawSymbol, period string, forceRefresh bool) (*model.FinancialSummary, error) {
	return s.getFinancial(ctx, "get_financial_summary", rawSymbol, period, false, forceRefresh, s.ttl.FinancialSummary)
}

func (s *Service) GetFinancialIndicators(ctx context.Context, rawSymbol, period string, forceRefresh bool) (*model.FinancialSummary, error) {
	return s.getFinancial(ctx, "get_financial_indicators", rawSymbol, period, true, forceRefresh, s.ttl.FinancialIndicators)
}

func (s *Service) getFinancial(ctx context.Context, op, rawSymbol, period string, indicators, forceRefresh bool, ttl time.Duration) (*model.FinancialSummary, error) {
	cl := newCallLog(op, rawSymbol)

	norm, err := s.normalize(ctx, cl, rawSymbol)
	if err != nil {
		return nil, err
	}

	cached, ok, err := s.financial.Get(ctx, norm.CanonicalSymbol, period, indicators)
	if err != nil {
		wrapped := errs.New(errs.InternalInconsistency, op, norm.CanonicalSymbol, err)
		s.emit(ctx, cl, model.OutcomeUpstreamFail, 0, wrapped.Error())
		return nil, wrapped
	}
	if ok && !forceRefresh && time.Since(cached.FetchedAt) < ttl {
		s.emit(ctx, cl, model.OutcomeOK, 1.0, "")
		return cached, nil
	}

	summary, err := s.adapter.FetchFinancialSummary(ctx, norm.CanonicalSymbol, indicators)
	cl.upstreamCalls = 1
	if err != nil {
		var outcome model.Outcome
		var kind errs.Kind
		switch upstream.KindOf(err) {
		case upstream.InvalidSymbol:
			outcome, kind = model.OutcomeInvalidSymbol, errs.InvalidSymbol
		case upstream.NotFound:
			outcome, kind = model.OutcomeUpstreamFail, errs.DataUnavailable
		default:
			outcome, kind = model.OutcomeUpstreamFail, errs.UpstreamFail
		}
		wrapped := errs.New(kind, op, norm.CanonicalSymbol, err)
		s.emit(ctx, cl, outcome, 0, wrapped.Error())
		return nil, wrapped
	}
	summary.Symbol = norm.CanonicalSymbol
	summary.Period = period
	summary.Indicators = indicators
	if err := s.financial.Upsert(ctx, summary); err != nil {
		wrapped := errs.New(errs.InternalInconsistency, op, norm.CanonicalSymbol, err)
		s.emit(ctx, cl, model.OutcomeUpstreamFail, 0, wrapped.Error())
		return nil, wrapped
	}
	now := time.Now()
	if err := s.coverage.Touch(ctx, norm.CanonicalSymbol, model.CoverageFinancial, now, now, 1); err != nil {
		wrapped := errs.New(errs.InternalInconsistency, op, norm.CanonicalSymbol, err)
		s.emit(ctx, cl, model.OutcomeUpstreamFail, 0, wrapped.Error())
		return nil, wrapped
	}
	s.emit(ctx, cl, model.OutcomeOK, 0, "")
	return summary, nil
}
