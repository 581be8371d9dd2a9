package upstream

import (
	"errors"
	"fmt"
)

// Kind classifies an adapter-level failure before it reaches the fetch
// coordinator's retry loop (spec.md §6.1: "Adapter errors map to:
// Transient (retryable), InvalidSymbol, NotFound, Unauthorized, Unknown
// (non-retryable)"). This is a distinct, narrower taxonomy from
// internal/errs.Kind: errs.Kind is the facade-level outcome recorded after
// retries are exhausted, while Kind here decides whether a retry is even
// attempted.
type Kind string

const (
	Transient    Kind = "transient"
	InvalidSymbol Kind = "invalid_symbol"
	NotFound     Kind = "not_found"
	Unauthorized Kind = "unauthorized"
	Unknown      Kind = "unknown"
)

// Error wraps one failed adapter call.
type Error struct {
	Kind   Kind
	Op     string
	Symbol string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("upstream: %s %s: %s: %v", e.Op, e.Symbol, e.Kind, e.Err)
	}
	return fmt.Sprintf("upstream: %s %s: %s", e.Op, e.Symbol, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

func New(kind Kind, op, symbol string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Symbol: symbol, Err: cause}
}

// Retryable reports whether the fetch coordinator's retry/backoff loop
// should attempt this call again (spec.md §6.1).
func (e *Error) Retryable() bool {
	return e.Kind == Transient
}

// KindOf extracts the Kind from err, defaulting to Unknown for errors not
// produced by this package (e.g. a raw network timeout from the HTTP
// client before it is classified).
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Unknown
}
