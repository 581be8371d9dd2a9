// Package gapresolver implements the hardest subsystem of this cache:
// deciding exactly which contiguous date segments are missing from the
// store for a requested range, so the fetch coordinator issues at most one
// upstream call per missing run of trading days (spec.md §4.4).
package gapresolver

import (
	"context"
	"fmt"
	"sort"
	"time"

	"quantdb/internal/calendar"
	"quantdb/internal/model"
)

// Segment is a contiguous run of trading days that must be fetched from
// upstream in one call (spec.md §4.4 step 5, GLOSSARY "Segment").
type Segment struct {
	Start time.Time
	End   time.Time
}

// Plan is the result of one gap-resolution pass: which trading days the
// read expects, which of those are already present, and which contiguous
// segments are missing.
type Plan struct {
	Expected []time.Time
	Present  map[string]struct{}
	Missing  []Segment
	missingDays []time.Time
}

// NoTradingDays reports whether the requested range contains no trading
// days at all (spec.md §4.4 step 2), in which case the caller records
// outcome=no_trading_days without attempting any fetch.
func (p *Plan) NoTradingDays() bool {
	return len(p.Expected) == 0
}

const dateLayout = "2006-01-02"

// PresentDatesFunc abstracts the store lookup the resolver needs: the set of
// trade_date values already persisted for (symbol, adjust) within
// [start, end]. Kept as a function type rather than a store interface so
// gapresolver has zero dependency on internal/store.
type PresentDatesFunc func(ctx context.Context, start, end time.Time) (map[string]struct{}, error)

// Resolve runs the five-step algorithm of spec.md §4.4 against market's
// calendar, clamping end to the market's last trading day when it is in
// the future or otherwise unresolved, and coalescing missing dates into
// the fewest possible contiguous segments.
func Resolve(ctx context.Context, cal *calendar.Service, market model.Market, start, end time.Time, present PresentDatesFunc) (*Plan, error) {
	if start.After(end) {
		return nil, fmt.Errorf("gapresolver: start %s after end %s", start.Format(dateLayout), end.Format(dateLayout))
	}

	lastTrading, err := cal.LastTradingDay(market, time.Now())
	if err != nil {
		return nil, fmt.Errorf("gapresolver: last trading day: %w", err)
	}
	if end.After(lastTrading) {
		end = lastTrading
	}

	expected, err := cal.TradingDaysBetween(market, start, end)
	if err != nil {
		return nil, fmt.Errorf("gapresolver: trading days between: %w", err)
	}
	if len(expected) == 0 {
		return &Plan{Expected: expected, Present: map[string]struct{}{}}, nil
	}

	presentSet, err := present(ctx, start, end)
	if err != nil {
		return nil, fmt.Errorf("gapresolver: load present dates: %w", err)
	}
	if presentSet == nil {
		presentSet = map[string]struct{}{}
	}

	var missing []time.Time
	for _, d := range expected {
		if _, ok := presentSet[d.Format(dateLayout)]; !ok {
			missing = append(missing, d)
		}
	}

	segments := coalesce(expected, missing)

	return &Plan{Expected: expected, Present: presentSet, Missing: segments, missingDays: missing}, nil
}

// coalesce walks the ordered missing dates and breaks them into segments:
// a break occurs whenever the next missing date is not the immediate next
// trading day (per the full `expected` calendar) of the previous missing
// date (spec.md §4.4 step 5). This is what lets weekends/holidays sit
// inside a single upstream call's date range without producing a spurious
// segment break, while genuinely cached gaps do split (e.g. a
// 2024-01-02..10 read with 2024-01-03..05 already cached yields
// 2024-01-02..02 and 2024-01-08..10).
func coalesce(expected, missing []time.Time) []Segment {
	if len(missing) == 0 {
		return nil
	}

	nextTradingDay := make(map[string]time.Time, len(expected))
	for i := 0; i < len(expected)-1; i++ {
		nextTradingDay[expected[i].Format(dateLayout)] = expected[i+1]
	}

	var segments []Segment
	segStart := missing[0]
	prev := missing[0]
	for i := 1; i < len(missing); i++ {
		d := missing[i]
		expectedNext, ok := nextTradingDay[prev.Format(dateLayout)]
		if !ok || !expectedNext.Equal(d) {
			segments = append(segments, Segment{Start: segStart, End: prev})
			segStart = d
		}
		prev = d
	}
	segments = append(segments, Segment{Start: segStart, End: prev})
	return segments
}

// MissingCount reports how many individual trading days were missing,
// for cache-hit-ratio accounting (spec.md §4.7 RequestLog.cache_hit_ratio).
func (p *Plan) MissingCount() int {
	return len(p.missingDays)
}

// MissingDateStrings returns the missing trading days as sorted
// "YYYY-MM-DD" strings, convenient for assembling request_log detail or
// test assertions.
func (p *Plan) MissingDateStrings() []string {
	out := make([]string, 0, len(p.missingDays))
	for _, d := range p.missingDays {
		out = append(out, d.Format(dateLayout))
	}
	sort.Strings(out)
	return out
}
