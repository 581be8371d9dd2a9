package gapresolver

import (
	"context"
	"testing"
	"time"

	"quantdb/internal/calendar"
	"quantdb/internal/model"
)

func mustDate(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := time.Parse(dateLayout, s)
	if err != nil {
		t.Fatalf("parse %q: %v", s, err)
	}
	return d
}

func emptyPresent(ctx context.Context, start, end time.Time) (map[string]struct{}, error) {
	return map[string]struct{}{}, nil
}

func presentFrom(dates ...string) PresentDatesFunc {
	set := make(map[string]struct{}, len(dates))
	for _, d := range dates {
		set[d] = struct{}{}
	}
	return func(ctx context.Context, start, end time.Time) (map[string]struct{}, error) {
		return set, nil
	}
}

func TestResolve_S1_EmptyCache(t *testing.T) {
	cal, err := calendar.New()
	if err != nil {
		t.Fatalf("calendar.New: %v", err)
	}

	plan, err := Resolve(context.Background(), cal, model.MarketShanghai,
		mustDate(t, "2024-01-02"), mustDate(t, "2024-01-05"), emptyPresent)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(plan.Expected) != 4 {
		t.Fatalf("Expected = %d, want 4", len(plan.Expected))
	}
	if len(plan.Missing) != 1 {
		t.Fatalf("Missing segments = %d, want 1", len(plan.Missing))
	}
	if plan.Missing[0].Start.Format(dateLayout) != "2024-01-02" || plan.Missing[0].End.Format(dateLayout) != "2024-01-05" {
		t.Fatalf("segment = %+v, want 2024-01-02..2024-01-05", plan.Missing[0])
	}
}

func TestResolve_S2_FullyCached(t *testing.T) {
	cal, err := calendar.New()
	if err != nil {
		t.Fatalf("calendar.New: %v", err)
	}

	present := presentFrom("2024-01-02", "2024-01-03", "2024-01-04", "2024-01-05")
	plan, err := Resolve(context.Background(), cal, model.MarketShanghai,
		mustDate(t, "2024-01-02"), mustDate(t, "2024-01-05"), present)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(plan.Missing) != 0 {
		t.Fatalf("Missing segments = %d, want 0", len(plan.Missing))
	}
}

func TestResolve_S3_PartialCacheAcrossWeekend(t *testing.T) {
	cal, err := calendar.New()
	if err != nil {
		t.Fatalf("calendar.New: %v", err)
	}

	present := presentFrom("2024-01-03", "2024-01-04", "2024-01-05")
	plan, err := Resolve(context.Background(), cal, model.MarketShanghai,
		mustDate(t, "2024-01-03"), mustDate(t, "2024-01-10"), present)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(plan.Expected) != 6 {
		t.Fatalf("Expected = %d, want 6", len(plan.Expected))
	}
	if len(plan.Missing) != 1 {
		t.Fatalf("Missing segments = %d, want 1: %+v", len(plan.Missing), plan.Missing)
	}
	seg := plan.Missing[0]
	if seg.Start.Format(dateLayout) != "2024-01-08" || seg.End.Format(dateLayout) != "2024-01-10" {
		t.Fatalf("segment = %+v, want 2024-01-08..2024-01-10", seg)
	}
}

func TestResolve_S4_HKCrossesCNYClosure(t *testing.T) {
	cal, err := calendar.New()
	if err != nil {
		t.Fatalf("calendar.New: %v", err)
	}

	plan, err := Resolve(context.Background(), cal, model.MarketHK,
		mustDate(t, "2024-02-08"), mustDate(t, "2024-02-20"), emptyPresent)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(plan.Expected) != 5 {
		t.Fatalf("Expected = %d, want 5: %v", len(plan.Expected), plan.Expected)
	}
	// Feb 9-14 (CNY correction, weekend, holidays) holds no trading day, so
	// Feb 15 is the trading day right after Feb 8 and the closure is not a
	// segment break: one segment covers Feb 8, 15, 16, 19 and 20 (Feb 17-18
	// is a weekend).
	if len(plan.Missing) != 1 {
		t.Fatalf("Missing segments = %d, want 1: %+v", len(plan.Missing), plan.Missing)
	}
	if plan.Missing[0].Start.Format(dateLayout) != "2024-02-08" {
		t.Fatalf("segment[0] = %+v, want start 2024-02-08", plan.Missing[0])
	}
	if plan.Missing[0].End.Format(dateLayout) != "2024-02-20" {
		t.Fatalf("segment[0] = %+v, want end 2024-02-20", plan.Missing[0])
	}
}

func TestResolve_NoTradingDays(t *testing.T) {
	cal, err := calendar.New()
	if err != nil {
		t.Fatalf("calendar.New: %v", err)
	}

	// A weekend (Saturday and Sunday): no trading days in range.
	plan, err := Resolve(context.Background(), cal, model.MarketShanghai,
		mustDate(t, "2024-01-06"), mustDate(t, "2024-01-07"), emptyPresent)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !plan.NoTradingDays() {
		t.Fatal("expected NoTradingDays() = true")
	}
}
