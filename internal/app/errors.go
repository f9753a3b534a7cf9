package service

import "errors"

var (
	ErrNotStarted = errors.New("service not started")
	// ErrInvalidSubmission marks a submission that cannot be verified as
	// sent: missing player, mismatched track or a malformed log.
	ErrInvalidSubmission = errors.New("invalid submission")
	ErrUnknownTrack      = errors.New("unknown track")
	ErrDuplicate         = errors.New("submission already received")
	// ErrBackpressure means the verification queue is full; retry later.
	ErrBackpressure = errors.New("verification queue full")
	ErrNotFound     = errors.New("not found")
)
