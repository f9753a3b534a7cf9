package beatmapfile

import "errors"

var (
	// ErrFormat marks a beat map file that cannot be parsed.
	ErrFormat       = errors.New("malformed beat map file")
	ErrUnknownTrack = errors.New("unknown track")
	ErrDuplicate    = errors.New("duplicate track id")
)
