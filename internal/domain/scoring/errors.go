package scoring

import "errors"

var (
	// ErrMalformedInput marks inputs outside the track or otherwise unusable.
	ErrMalformedInput = errors.New("malformed input")
	// ErrNoTarget marks inputs with no pending event inside the tolerance window.
	ErrNoTarget = errors.New("no pending event within tolerance")
	// ErrInvalidWindows marks tolerance windows that are not 0 < Perfect <= Good.
	ErrInvalidWindows = errors.New("invalid tolerance windows")
)
