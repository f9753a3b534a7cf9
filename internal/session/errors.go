package session

import "errors"

var (
	// ErrLateInput marks an input older than the simulated time. It is
	// dropped and never recorded.
	ErrLateInput = errors.New("input arrived after its time was simulated")
	// ErrAfterEnd marks an input later than the end of the session.
	ErrAfterEnd     = errors.New("input after session end")
	ErrInvalidRules = errors.New("invalid session rules")
	ErrNoAudio      = errors.New("live session needs an audio source")
	ErrDisposed     = errors.New("session disposed")
	ErrFinished     = errors.New("session finished")
	ErrWrongMode    = errors.New("operation not allowed in session mode")
)

// ErrTrackMismatch marks a replay log recorded on a different track.
var ErrTrackMismatch = errors.New("replay log recorded on another track")
