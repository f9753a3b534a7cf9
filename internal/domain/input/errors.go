package input

import "errors"

// Drop reasons. None of them aborts a session; the caller logs and moves on.
var (
	ErrMalformedInput = errors.New("malformed input")
	ErrDebounced      = errors.New("input debounced")
	ErrCoalesced      = errors.New("input coalesced")
	ErrSuppressed     = errors.New("live input suppressed")
	ErrWrongMode      = errors.New("operation not allowed in capture mode")
)

// Reason returns the metric label for a drop error.
func Reason(err error) string {
	switch {
	case errors.Is(err, ErrMalformedInput):
		return "malformed"
	case errors.Is(err, ErrDebounced):
		return "debounced"
	case errors.Is(err, ErrCoalesced):
		return "coalesced"
	case errors.Is(err, ErrSuppressed):
		return "suppressed"
	default:
		return "other"
	}
}
