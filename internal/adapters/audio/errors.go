package audio

import "errors"

var (
	ErrDuplicate = errors.New("audio source already registered")
	// ErrFormat marks a file the engine cannot decode.
	ErrFormat = errors.New("unsupported audio format")
)
