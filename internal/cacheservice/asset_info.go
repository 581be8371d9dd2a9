package cacheservice

import (
	"context"
	"time"

	"quantdb/internal/errs"
	"quantdb/internal/model"
	"quantdb/internal/upstream"
)

// GetAssetInfo serves the cached Asset row when younger than the 24h TTL;
// forceRefresh bypasses the TTL check entirely (spec.md §4.6 get_asset_info).
func (s *Service) GetAssetInfo(ctx context.Context, rawSymbol string, forceRefresh bool) (*model.Asset, error) {
	cl := newCallLog("get_asset_info", rawSymbol)

	norm, err := s.normalize(ctx, cl, rawSymbol)
	if err != nil {
		return nil, err
	}

	if !forceRefresh {
		cached, ok, err := s.assets.Get(ctx, norm.CanonicalSymbol)
		if err != nil {
			wrapped := errs.New(errs.InternalInconsistency, "get_asset_info", norm.CanonicalSymbol, err)
			s.emit(ctx, cl, model.OutcomeUpstreamFail, 0, wrapped.Error())
			return nil, wrapped
		}
		if ok && time.Since(cached.LastMetadataRefresh) < s.ttl.AssetInfo {
			s.emit(ctx, cl, model.OutcomeOK, 1.0, "")
			return cached, nil
		}
	}

	asset, err := s.adapter.FetchAsset(ctx, norm.CanonicalSymbol, norm.Market)
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
		wrapped := errs.New(kind, "get_asset_info", norm.CanonicalSymbol, err)
		s.emit(ctx, cl, outcome, 0, wrapped.Error())
		return nil, wrapped
	}
	if err := s.assets.Upsert(ctx, asset); err != nil {
		wrapped := errs.New(errs.InternalInconsistency, "get_asset_info", norm.CanonicalSymbol, err)
		s.emit(ctx, cl, model.OutcomeUpstreamFail, 0, wrapped.Error())
		return nil, wrapped
	}
	// Coverage has no date range for a metadata refresh; touching it with
	// now() for both bounds still gives the scheduler's staleness sweep a
	// last_accessed_at to compare against (spec.md §9 SUPPLEMENTED FEATURES).
	now := time.Now()
	if err := s.coverage.Touch(ctx, norm.CanonicalSymbol, model.CoverageAsset, now, now, 1); err != nil {
		wrapped := errs.New(errs.InternalInconsistency, "get_asset_info", norm.CanonicalSymbol, err)
		s.emit(ctx, cl, model.OutcomeUpstreamFail, 0, wrapped.Error())
		return nil, wrapped
	}
	s.emit(ctx, cl, model.OutcomeOK, 0, "")
	return asset, nil
}
