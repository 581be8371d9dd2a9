package cacheservice

import (
	"context"
	"fmt"
	"time"

	"quantdb/internal/errs"
	"quantdb/internal/gapresolver"
	"quantdb/internal/model"
)

// GetIndexBars is GetDailyBars' counterpart, partitioned by period instead
// of adjust (spec.md §4.6 "get_index_bars: same shape as daily bars").
func (s *Service) GetIndexBars(ctx context.Context, rawSymbol string, period model.Period, start, end time.Time) ([]model.IndexBar, error) {
	cl := newCallLog("get_index_bars", rawSymbol)
	cl.requestedStart, cl.requestedEnd = start, end

	norm, err := s.normalize(ctx, cl, rawSymbol)
	if err != nil {
		return nil, err
	}
	if norm.Kind != model.KindIndex {
		err := errs.New(errs.InvalidSymbol, "get_index_bars", norm.CanonicalSymbol, fmt.Errorf("not an index symbol"))
		s.emit(ctx, cl, model.OutcomeInvalidSymbol, 0, err.Error())
		return nil, err
	}

	present := func(ctx context.Context, ps, pe time.Time) (map[string]struct{}, error) {
		bars, err := s.indexBars.GetRange(ctx, norm.CanonicalSymbol, period, ps, pe)
		if err != nil {
			return nil, err
		}
		set := make(map[string]struct{}, len(bars))
		for _, b := range bars {
			set[b.TradeDate.Format("2006-01-02")] = struct{}{}
		}
		return set, nil
	}

	plan, err := gapresolver.Resolve(ctx, s.cal, norm.Market, start, end, present)
	if err != nil {
		wrapped := errs.New(errs.InternalInconsistency, "get_index_bars", norm.CanonicalSymbol, err)
		s.emit(ctx, cl, model.OutcomeUpstreamFail, 0, wrapped.Error())
		return nil, wrapped
	}
	if plan.NoTradingDays() {
		s.emit(ctx, cl, model.OutcomeNoTradingDays, 0, "")
		return nil, errs.New(errs.NoTradingDays, "get_index_bars", norm.CanonicalSymbol, nil)
	}

	hitRatio := 1.0
	if total := len(plan.Expected); total > 0 {
		hitRatio = float64(total-plan.MissingCount()) / float64(total)
	}

	if len(plan.Missing) > 0 {
		calls, err := s.coord.FetchIndexSegments(ctx, norm.CanonicalSymbol, norm.Market, period, plan.Missing)
		cl.upstreamCalls = calls
		if err != nil {
			outcome := model.OutcomeUpstreamFail
			switch {
			case errs.Is(err, errs.Cancelled):
				outcome = model.OutcomeCancelled
			case errs.Is(err, errs.UpstreamOverloaded):
				outcome = model.OutcomeOverloaded
			}
			s.emit(ctx, cl, outcome, hitRatio, err.Error())
			return nil, err
		}
	}

	bars, err := s.indexBars.GetRange(ctx, norm.CanonicalSymbol, period, start, end)
	if err != nil {
		wrapped := errs.New(errs.InternalInconsistency, "get_index_bars", norm.CanonicalSymbol, err)
		s.emit(ctx, cl, model.OutcomeUpstreamFail, hitRatio, wrapped.Error())
		return nil, wrapped
	}

	cl.resolvedStart, cl.resolvedEnd = start, end

	// Mirrors GetDailyBars: outcome reflects the assembled result, not the
	// pre-fetch hitRatio, so a cold-cache read that fetches everything it
	// needed is still ok (spec.md §8 scenario S1).
	outcome := model.OutcomeOK
	errMsg := ""
	if len(bars) < len(plan.Expected) {
		outcome = model.OutcomePartial
		errMsg = fmt.Sprintf("expected %d trading days, found %d", len(plan.Expected), len(bars))
	}
	s.emit(ctx, cl, outcome, hitRatio, errMsg)
	return bars, nil
}
