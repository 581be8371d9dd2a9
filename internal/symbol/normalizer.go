// Package symbol classifies a raw ticker string into a canonical
// (market, code) tuple (spec.md §4.1). It is stateless and deterministic —
// the same string always normalizes to the same result, or always fails the
// same way.
//
// The sanitize-then-validate shape follows the teacher's
// internal/util.SanitizeString + ValidateSymbol pair, generalized from a
// US-equity regex to the A-share/HK/index rules this spec requires.
package symbol

import (
	"regexp"
	"strings"

	"quantdb/internal/errs"
	"quantdb/internal/model"
)

// Result is the canonical form of a successfully normalized symbol.
type Result struct {
	CanonicalSymbol string
	Market          model.Market
	Kind            model.InstrumentKind
}

var sixDigits = regexp.MustCompile(`^[0-9]{6}$`)
var fiveDigits = regexp.MustCompile(`^[0-9]{5}$`)

// hkIndexAliases maps every recognized spelling of an HK index to its
// canonical code. Matching is case-insensitive; callers already upper-case
// the input before lookup.
var hkIndexAliases = map[string]string{
	"HSI":               "HSI",
	"HSCEI":             "HSCEI",
	"HSTECH":            "HSTECH",
	"^HSI":              "HSI",
	"HK.HSI":            "HSI",
	"HANG SENG":         "HSI",
	"HANG SENG INDEX":   "HSI",
}

// aShareIndexCodes is the closed list of recognized A-share index codes
// that do not collide with the stock-prefix rule in classifyStock (spec.md
// §4.1 rule 5). Populated with the major CSI/SZSE family indices, whose
// "399"-prefixed code space classifyStock never claims.
var aShareIndexCodes = map[string]struct{}{
	"399001": {}, // SZSE Component Index
	"399005": {}, // SME Composite Index
	"399006": {}, // ChiNext Index
	"399300": {}, // CSI 300 (SZSE-quoted alias)
	"399905": {}, // CSI 500 (SZSE-quoted alias)
}

// Normalize classifies raw into a canonical (market, code) tuple, or fails
// with errs.InvalidSymbol. Rules are applied in order; the first match wins
// (spec.md §4.1).
func Normalize(raw string) (Result, error) {
	s := strings.ToUpper(strings.TrimSpace(raw))
	if s == "" {
		return Result{}, errs.New(errs.InvalidSymbol, "Normalize", raw, nil)
	}

	if canonical, ok := hkIndexAliases[s]; ok {
		return Result{CanonicalSymbol: canonical, Market: model.MarketIndexHK, Kind: model.KindIndex}, nil
	}

	if sixDigits.MatchString(s) {
		if mkt, ok := classifyStock(s); ok {
			return Result{CanonicalSymbol: s, Market: mkt, Kind: model.KindStock}, nil
		}
		if _, ok := aShareIndexCodes[s]; ok {
			return Result{CanonicalSymbol: s, Market: model.MarketIndexA, Kind: model.KindIndex}, nil
		}
		return Result{}, errs.New(errs.InvalidSymbol, "Normalize", raw, nil)
	}

	if fiveDigits.MatchString(s) {
		return Result{CanonicalSymbol: s, Market: model.MarketHK, Kind: model.KindStock}, nil
	}

	return Result{}, errs.New(errs.InvalidSymbol, "Normalize", raw, nil)
}

// classifyStock maps a 6-digit A-share code to its market by prefix
// (spec.md §4.1 rule 3). It reports ok=false for prefixes it does not
// recognize so the caller can fall through to the index closed list.
func classifyStock(code string) (model.Market, bool) {
	switch {
	case strings.HasPrefix(code, "688"):
		return model.MarketSTAR, true
	case strings.HasPrefix(code, "30"):
		return model.MarketChiNext, true
	case strings.HasPrefix(code, "60"), strings.HasPrefix(code, "68"),
		strings.HasPrefix(code, "51"), strings.HasPrefix(code, "58"):
		return model.MarketShanghai, true
	case strings.HasPrefix(code, "00"):
		return model.MarketShenzhen, true
	case code[:3] >= "000" && code[:3] <= "002":
		return model.MarketShenzhen, true
	default:
		return "", false
	}
}
