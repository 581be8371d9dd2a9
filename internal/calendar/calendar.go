// Package calendar answers "is D a trading day in market M?" and enumerates
// trading days over a range (spec.md §4.2). Holiday data is loaded, not
// hard-coded: per spec.md §9 ("Trading-calendar corrections live in data,
// not code"), the HK Chinese-New-Year correction table is a distinct
// embedded JSON file, unconditionally unioned into the HK closed-day set so
// a future upstream miscalendar is fixed by a data update, not a release.
package calendar

import (
	"embed"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"quantdb/internal/errs"
	"quantdb/internal/model"
)

//go:embed data/holidays.json
var holidaysFS embed.FS

//go:embed data/hk_cny_corrections.json
var hkCorrectionsFS embed.FS

const dateLayout = "2006-01-02"

// calendarKey groups markets that share an exchange calendar: Shanghai and
// the STAR market close the same days as Shenzhen/ChiNext (all mainland
// trading halts together), so both collapse to "CN".
func calendarKey(market model.Market) (string, error) {
	switch market {
	case model.MarketShanghai, model.MarketSTAR, model.MarketShenzhen, model.MarketChiNext, model.MarketIndexA:
		return "CN", nil
	case model.MarketHK, model.MarketIndexHK:
		return "HK", nil
	default:
		return "", errs.New(errs.CalendarRangeUnsupported, "calendarKey", string(market), fmt.Errorf("unknown market"))
	}
}

func marketLocation(key string) (*time.Location, error) {
	switch key {
	case "CN":
		loc, err := time.LoadLocation("Asia/Shanghai")
		if err != nil {
			return nil, err
		}
		return loc, nil
	case "HK":
		loc, err := time.LoadLocation("Asia/Hong_Kong")
		if err != nil {
			return nil, err
		}
		return loc, nil
	default:
		return nil, fmt.Errorf("unknown calendar key %q", key)
	}
}

type holidaysFile map[string][]string

type correctionsFile struct {
	Description string   `json:"description"`
	Dates       []string `json:"dates"`
}

// Service holds the loaded, per-calendar closed-day sets. It is read-only
// once New returns (spec.md §5): no method mutates it, and the
// out-of-band scheduler (internal/scheduler) only checks its horizon.
type Service struct {
	closed  map[string]map[string]struct{} // calendarKey -> "YYYY-MM-DD" -> present
	minDate time.Time
	maxDate time.Time
}

// New loads the embedded holiday and HK correction tables and builds the
// per-market closed-day sets.
func New() (*Service, error) {
	var holidays holidaysFile
	raw, err := holidaysFS.ReadFile("data/holidays.json")
	if err != nil {
		return nil, fmt.Errorf("calendar: read holidays.json: %w", err)
	}
	if err := json.Unmarshal(raw, &holidays); err != nil {
		return nil, fmt.Errorf("calendar: parse holidays.json: %w", err)
	}

	var corrections correctionsFile
	rawCorr, err := hkCorrectionsFS.ReadFile("data/hk_cny_corrections.json")
	if err != nil {
		return nil, fmt.Errorf("calendar: read hk_cny_corrections.json: %w", err)
	}
	if err := json.Unmarshal(rawCorr, &corrections); err != nil {
		return nil, fmt.Errorf("calendar: parse hk_cny_corrections.json: %w", err)
	}

	closed := make(map[string]map[string]struct{}, len(holidays))
	var minDate, maxDate time.Time
	for key, dates := range holidays {
		set := make(map[string]struct{}, len(dates))
		for _, d := range dates {
			set[d] = struct{}{}
			t, err := time.Parse(dateLayout, d)
			if err == nil {
				if minDate.IsZero() || t.Before(minDate) {
					minDate = t
				}
				if maxDate.IsZero() || t.After(maxDate) {
					maxDate = t
				}
			}
		}
		closed[key] = set
	}

	// The HK CNY correction table is load-bearing: it is unioned in
	// unconditionally, even if a future holidays.json edit drops it.
	hkSet, ok := closed["HK"]
	if !ok {
		hkSet = make(map[string]struct{})
		closed["HK"] = hkSet
	}
	for _, d := range corrections.Dates {
		hkSet[d] = struct{}{}
	}

	// Widen the supported horizon by one week on either side of the
	// embedded data so single-day and last-trading-day queries near
	// the edges do not spuriously fail.
	minDate = minDate.AddDate(0, 0, -7)
	maxDate = maxDate.AddDate(0, 0, 7)

	return &Service{closed: closed, minDate: minDate, maxDate: maxDate}, nil
}

// inHorizon reports whether date falls within the supported calendar
// horizon (spec.md §4.2: "Fails with CalendarRangeUnsupported if asked
// about dates outside the supported horizon").
func (s *Service) inHorizon(date time.Time) bool {
	d := truncateDate(date)
	return !d.Before(s.minDate) && !d.After(s.maxDate)
}

func truncateDate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// IsTradingDay reports whether date is a trading day in market, in the
// market's own exchange time zone (spec.md §4.2).
func (s *Service) IsTradingDay(market model.Market, date time.Time) (bool, error) {
	key, err := calendarKey(market)
	if err != nil {
		return false, err
	}
	loc, err := marketLocation(key)
	if err != nil {
		return false, err
	}
	local := date.In(loc)
	if !s.inHorizon(local) {
		return false, errs.New(errs.CalendarRangeUnsupported, "IsTradingDay", string(market), fmt.Errorf("date %s outside supported horizon", local.Format(dateLayout)))
	}
	if local.Weekday() == time.Saturday || local.Weekday() == time.Sunday {
		return false, nil
	}
	if _, closed := s.closed[key][local.Format(dateLayout)]; closed {
		return false, nil
	}
	return true, nil
}

// TradingDaysBetween returns the ordered trading days in the closed
// interval [start, end]. Returns an empty slice (not an error) if the
// range contains no trading days (spec.md §4.2/§4.4).
func (s *Service) TradingDaysBetween(market model.Market, start, end time.Time) ([]time.Time, error) {
	key, err := calendarKey(market)
	if err != nil {
		return nil, err
	}
	loc, err := marketLocation(key)
	if err != nil {
		return nil, err
	}
	startLocal := truncateDate(start.In(loc))
	endLocal := truncateDate(end.In(loc))
	if startLocal.After(endLocal) {
		return nil, fmt.Errorf("calendar: start %s after end %s", startLocal.Format(dateLayout), endLocal.Format(dateLayout))
	}
	if !s.inHorizon(startLocal) || !s.inHorizon(endLocal) {
		return nil, errs.New(errs.CalendarRangeUnsupported, "TradingDaysBetween", string(market), fmt.Errorf("range [%s,%s] outside supported horizon", startLocal.Format(dateLayout), endLocal.Format(dateLayout)))
	}

	var days []time.Time
	for d := startLocal; !d.After(endLocal); d = d.AddDate(0, 0, 1) {
		if d.Weekday() == time.Saturday || d.Weekday() == time.Sunday {
			continue
		}
		if _, closed := s.closed[key][d.Format(dateLayout)]; closed {
			continue
		}
		days = append(days, d)
	}
	return days, nil
}

// LastTradingDay returns the most recent trading day on or before onOrBefore.
func (s *Service) LastTradingDay(market model.Market, onOrBefore time.Time) (time.Time, error) {
	key, err := calendarKey(market)
	if err != nil {
		return time.Time{}, err
	}
	loc, err := marketLocation(key)
	if err != nil {
		return time.Time{}, err
	}
	d := truncateDate(onOrBefore.In(loc))
	if !s.inHorizon(d) {
		return time.Time{}, errs.New(errs.CalendarRangeUnsupported, "LastTradingDay", string(market), fmt.Errorf("date %s outside supported horizon", d.Format(dateLayout)))
	}
	for i := 0; i < 30; i++ {
		ok, err := s.IsTradingDay(market, d)
		if err != nil {
			return time.Time{}, err
		}
		if ok {
			return d, nil
		}
		d = d.AddDate(0, 0, -1)
		if !s.inHorizon(d) {
			break
		}
	}
	return time.Time{}, errs.New(errs.CalendarRangeUnsupported, "LastTradingDay", string(market), fmt.Errorf("no trading day found within 30 days before %s", onOrBefore.Format(dateLayout)))
}

// MarketPhase classifies wall-clock instant at, derived from the calendar
// and the market's continuous trading session hours (GLOSSARY: "Market
// phase"). Service.MarketPhase returns PhaseOpen inside a session and
// PhaseClosed otherwise; PhaseAuction is declared but never returned, so
// pre-open/post-close auction windows are reported as closed, which is
// also how the realtime TTL treats them (spec.md §9 Open Questions).
type MarketPhase string

const (
	PhaseOpen    MarketPhase = "open"
	PhaseAuction MarketPhase = "auction"
	PhaseClosed  MarketPhase = "closed"
)

// sessions defines each calendar's continuous trading window in local
// time. A-shares run a split session (morning/afternoon) with a lunch
// break; for TTL purposes the midday break is treated as closed, matching
// how this spec treats auction windows.
type session struct{ startH, startM, endH, endM int }

var cnMorning = session{9, 30, 11, 30}
var cnAfternoon = session{13, 0, 15, 0}
var hkSession = session{9, 30, 16, 0}

func (s *Service) MarketPhase(market model.Market, at time.Time) (MarketPhase, error) {
	key, err := calendarKey(market)
	if err != nil {
		return "", err
	}
	loc, err := marketLocation(key)
	if err != nil {
		return "", err
	}
	local := at.In(loc)
	open, err := s.IsTradingDay(market, local)
	if err != nil {
		return "", err
	}
	if !open {
		return PhaseClosed, nil
	}
	minutesOfDay := local.Hour()*60 + local.Minute()
	inSession := func(sess session) bool {
		start := sess.startH*60 + sess.startM
		end := sess.endH*60 + sess.endM
		return minutesOfDay >= start && minutesOfDay <= end
	}
	switch key {
	case "HK":
		if inSession(hkSession) {
			return PhaseOpen, nil
		}
	default:
		if inSession(cnMorning) || inSession(cnAfternoon) {
			return PhaseOpen, nil
		}
	}
	return PhaseClosed, nil
}

// SortedHKCorrectionDates returns every HK closed date, base holidays and
// CNY corrections together, as sorted "YYYY-MM-DD" strings.
func (s *Service) SortedHKCorrectionDates() []string {
	set := s.closed["HK"]
	out := make([]string, 0, len(set))
	for d := range set {
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}
