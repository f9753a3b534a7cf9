package repository

import "errors"

// Sentinel kinds for leaderboard and archive errors.
var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidLimit = errors.New("invalid leaderboard limit")
	ErrInvalidEntry = errors.New("invalid leaderboard entry")
	ErrArchive      = errors.New("replay archive failure")
)
