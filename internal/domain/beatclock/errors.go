package beatclock

import "errors"

// Sentinel kinds for clock errors.
var (
	// ErrSchedulingTooLate is a degraded-timing warning: the cue still fired.
	ErrSchedulingTooLate = errors.New("scheduling too late")
	ErrDisposed          = errors.New("beat clock disposed")
	ErrPaused            = errors.New("beat clock paused")
	ErrInvalidTime       = errors.New("invalid song time")
)
