// Package repository holds the per-track leaderboard and the replay archive.
package repository

import (
	"context"
	"time"

	"github.com/okian/ovation/internal/domain/model"
	"github.com/okian/ovation/internal/domain/replay"
)

// Entry is one leaderboard row: a player's best verified run on a track.
type Entry struct {
	Rank         int           `json:"rank"`
	Track        model.TrackID `json:"track"`
	Player       string        `json:"player"`
	Score        int64         `json:"score"`
	Accuracy     float64       `json:"accuracy"`
	MaxCombo     int           `json:"max_combo"`
	SubmissionID string        `json:"submission_id"`
	Achieved     time.Time     `json:"achieved"`
}

// Leaderboard provides read/write access to the per-track rankings.
type Leaderboard interface {
	// UpdateBest stores e if it beats the player's best on e.Track.
	// Returns true if the store updated the entry, false otherwise.
	UpdateBest(ctx context.Context, e Entry) (bool, error)

	// Rank returns the current rank and best run of a player on a track.
	// Returns ErrNotFound if the player has no verified run there.
	Rank(ctx context.Context, track model.TrackID, player string) (Entry, error)

	// TopN returns the top-N entries of a track ordered by score desc.
	TopN(ctx context.Context, track model.TrackID, n int) ([]Entry, error)

	// Count returns the number of players ranked on a track.
	Count(ctx context.Context, track model.TrackID) int

	// Tracks lists every track with at least one ranked player.
	Tracks(ctx context.Context) []model.TrackID
}

// Archive keeps every verified or rejected submission with its log.
type Archive interface {
	// Put stores the result and log of a submission, replacing any earlier
	// record with the same ID.
	Put(ctx context.Context, res replay.Result, log replay.Log) error
	// Get returns the result of a submission. Returns ErrNotFound if the
	// ID is unknown.
	Get(ctx context.Context, id string) (replay.Result, error)
	// Log returns the archived replay log of a submission.
	Log(ctx context.Context, id string) (replay.Log, error)
	Close() error
}
