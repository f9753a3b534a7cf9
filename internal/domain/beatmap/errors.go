package beatmap

import "errors"

// Sentinel kinds for beat map errors.
var (
	// ErrEmptyBeatMap is fatal at session construction: a run needs at least
	// one scored event.
	ErrEmptyBeatMap = errors.New("empty beat map")
	ErrUnordered    = errors.New("beat map events out of order")
	ErrInvalidEvent = errors.New("invalid beat map event")
)
