// Package errs is the core's error taxonomy (spec.md §7). It generalizes the
// teacher's pattern of small typed error values (internal/service/errors.go)
// plus a single translation point (internal/util.MapServiceError) into one
// Kind-tagged error type shared by every core component, so the facade can
// translate an adapter/store failure to the taxonomy exactly once.
package errs

import "fmt"

// Kind is a taxonomy tag, not a Go type — every core error carries exactly
// one Kind and nothing downstream should type-switch on anything finer.
type Kind string

const (
	// InvalidSymbol: the Normalizer rejected the input. Never retried.
	InvalidSymbol Kind = "InvalidSymbol"
	// NoTradingDays: the requested range contains no trading days.
	NoTradingDays Kind = "NoTradingDays"
	// UpstreamFail: the adapter exhausted its retries.
	UpstreamFail Kind = "UpstreamFail"
	// UpstreamOverloaded: the fetch queue is beyond its configured cap.
	UpstreamOverloaded Kind = "UpstreamOverloaded"
	// Cancelled: the caller's deadline expired or context was cancelled.
	Cancelled Kind = "Cancelled"
	// DataUnavailable: upstream returned NotFound for a valid-shaped symbol.
	DataUnavailable Kind = "DataUnavailable"
	// InternalInconsistency: a store read or write, the gap resolver or the
	// calendar failed inside a facade call. Fatal for the call; returned to
	// the caller with this Kind, and the request log records outcome
	// upstream_fail. No post-commit row count check produces it.
	InternalInconsistency Kind = "InternalInconsistency"
	// CalendarRangeUnsupported: a date fell outside the supported horizon.
	CalendarRangeUnsupported Kind = "CalendarRangeUnsupported"
)

// Error is the concrete error value every core component returns. Op and
// Symbol are included for logging; they are not part of error identity —
// callers should compare Kind, not message text.
type Error struct {
	Kind    Kind
	Op      string
	Symbol  string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%s): %v", e.Op, e.Symbol, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s (%s)", e.Op, e.Symbol, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds a tagged core error.
func New(kind Kind, op, symbol string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Symbol: symbol, Err: cause}
}

// Is reports whether err carries the given Kind, unwrapping as needed.
func Is(err error, kind Kind) bool {
	var e *Error
	for err != nil {
		if ce, ok := err.(*Error); ok {
			e = ce
			break
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	return e != nil && e.Kind == kind
}

// KindOf extracts the Kind from err, or "" if err is not (or does not wrap)
// an *Error.
func KindOf(err error) Kind {
	var e *Error
	cur := err
	for cur != nil {
		if ce, ok := cur.(*Error); ok {
			e = ce
			break
		}
		u, ok := cur.(interface{ Unwrap() error })
		if !ok {
			break
		}
		cur = u.Unwrap()
	}
	if e == nil {
		return ""
	}
	return e.Kind
}

