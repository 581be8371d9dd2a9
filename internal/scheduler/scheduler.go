// Package scheduler runs the out-of-band periodic jobs this cache needs
// outside of any single facade call: a trading-calendar horizon check, an
// asset-metadata TTL sweep, and a financial-summary TTL sweep (spec.md §9
// SUPPLEMENTED FEATURES). None of these jobs are part of the core's
// in-process API; they exist purely to keep data fresh ahead of reads.
//
// Grounded on the sector-service example's gocron.Scheduler field
// (other_examples/32b0dd93_drewjst-recon's ManagerConfig.JobScheduler /
// the dnldd-entry fetch-manager's own JobScheduler field), generalized from
// gocron v1's *gocron.Scheduler to the teacher's declared
// github.com/go-co-op/gocron/v2 dependency.
package scheduler

import (
	"context"
	"log"
	"time"

	"github.com/go-co-op/gocron/v2"

	"quantdb/internal/cacheservice"
	"quantdb/internal/calendar"
	"quantdb/internal/errs"
	"quantdb/internal/model"
	"quantdb/internal/store"
)

// horizonWarningWindow is how close to the embedded calendar data's edge
// a market's last known trading day must be before CalendarHorizonCheck
// logs a warning (spec.md §9: "future upstream calendar bugs are fixed by
// data updates" — this job is the early-warning signal that a data update
// is due).
const horizonWarningWindow = 30 * 24 * time.Hour

// Scheduler owns the gocron job set and the dependencies its jobs call
// into. It does not own the underlying store connection; callers
// construct it from an already-running cacheservice.Service.
type Scheduler struct {
	gocron gocron.Scheduler
	cal    *calendar.Service
	svc    *cacheservice.Service
	coverage store.CoverageRepo

	assetTTL     time.Duration
	financialTTL time.Duration
}

// New builds a Scheduler with no jobs registered yet; call Start to
// register and launch them.
func New(cal *calendar.Service, svc *cacheservice.Service, coverage store.CoverageRepo, assetTTL, financialTTL time.Duration) (*Scheduler, error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}
	return &Scheduler{gocron: s, cal: cal, svc: svc, coverage: coverage, assetTTL: assetTTL, financialTTL: financialTTL}, nil
}

// Start registers every job and begins running the scheduler in the
// background; it returns once registration succeeds, not once the jobs
// have run.
func (s *Scheduler) Start() error {
	if _, err := s.gocron.NewJob(
		gocron.DurationJob(6*time.Hour),
		gocron.NewTask(s.calendarHorizonCheck),
	); err != nil {
		return err
	}
	if _, err := s.gocron.NewJob(
		gocron.DurationJob(1*time.Hour),
		gocron.NewTask(s.assetMetadataSweep),
	); err != nil {
		return err
	}
	if _, err := s.gocron.NewJob(
		gocron.DurationJob(6*time.Hour),
		gocron.NewTask(s.financialSummarySweep),
	); err != nil {
		return err
	}
	s.gocron.Start()
	log.Printf("[Scheduler] started: calendar horizon check (6h), asset metadata sweep (1h), financial summary sweep (6h)")
	return nil
}

// Shutdown stops the scheduler and waits for in-flight jobs to finish.
func (s *Scheduler) Shutdown() error {
	return s.gocron.Shutdown()
}

// calendarHorizonCheck warns when a market's remaining embedded-calendar
// horizon is running low, since the calendar data file is go:embed'd at
// build time and cannot self-extend (spec.md §4.2 horizon invariant).
func (s *Scheduler) calendarHorizonCheck() {
	markets := []model.Market{model.MarketShanghai, model.MarketShenzhen, model.MarketHK}
	probe := time.Now().Add(horizonWarningWindow)
	for _, mkt := range markets {
		_, err := s.cal.IsTradingDay(mkt, probe)
		if errs.Is(err, errs.CalendarRangeUnsupported) {
			log.Printf("[Scheduler] calendar horizon check: %s has less than %s of embedded calendar data left, update the holiday table", mkt, horizonWarningWindow)
		} else if err != nil {
			log.Printf("[Scheduler] calendar horizon check: %s: %v", mkt, err)
		}
	}
}

// assetMetadataSweep force-refreshes every Asset row whose coverage entry
// was last touched before the configured TTL, via the same GetAssetInfo
// path a live caller would take.
func (s *Scheduler) assetMetadataSweep() {
	s.sweep(model.CoverageAsset, s.assetTTL, func(ctx context.Context, symbol string) error {
		_, err := s.svc.GetAssetInfo(ctx, symbol, true)
		return err
	})
}

// financialSummarySweep force-refreshes the most recent financial summary
// for every symbol whose financial coverage entry has gone stale. "latest"
// is the period key the sweep refreshes: the upstream adapter's summary
// fetch takes no period argument, and the row it returns is stored under
// "latest".
func (s *Scheduler) financialSummarySweep() {
	s.sweep(model.CoverageFinancial, s.financialTTL, func(ctx context.Context, symbol string) error {
		_, err := s.svc.GetFinancialSummary(ctx, symbol, "latest", true)
		return err
	})
}

func (s *Scheduler) sweep(kind model.CoverageKind, ttl time.Duration, refresh func(ctx context.Context, symbol string) error) {
	ctx := context.Background()
	rows, err := s.coverage.ListAll(ctx)
	if err != nil {
		log.Printf("[Scheduler] sweep %s: list coverage: %v", kind, err)
		return
	}

	var refreshed, failed int
	for _, row := range rows {
		if row.Kind != kind {
			continue
		}
		if time.Since(row.LastAccessedAt) < ttl {
			continue
		}
		if err := refresh(ctx, row.Symbol); err != nil {
			log.Printf("[Scheduler] sweep %s: refresh %s: %v", kind, row.Symbol, err)
			failed++
			continue
		}
		refreshed++
	}
	log.Printf("[Scheduler] sweep %s: refreshed=%d failed=%d", kind, refreshed, failed)
}
