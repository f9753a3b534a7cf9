package replay

import "errors"

var (
	// ErrReplayMismatch means a replay did not reproduce the recorded
	// outcome: either a determinism bug or a tampered log. It is reported,
	// never corrected.
	ErrReplayMismatch = errors.New("replay mismatch")
	ErrFinalized      = errors.New("replay log already finalized")
	ErrUnordered      = errors.New("replay events out of order")
	ErrVersion        = errors.New("unsupported replay log version")
	ErrCorrupt        = errors.New("corrupt replay log")
)
