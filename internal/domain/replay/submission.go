package replay

import (
	"time"

	"github.com/okian/ovation/internal/domain/model"
)

// Submission is a finished run sent for verification: the log, who played
// it and the outcome the client claims.
type Submission struct {
	ID       string        `json:"id"`
	Player   string        `json:"player"`
	Track    model.TrackID `json:"track"`
	Log      Log           `json:"log"`
	Claimed  Summary       `json:"claimed"`
	Received time.Time     `json:"received"`
}

// Status is the verification state of a submission.
type Status string

const (
	StatusQueued   Status = "queued"
	StatusVerified Status = "verified"
	StatusRejected Status = "rejected"
	StatusFailed   Status = "failed"
)

// Result is the outcome of verifying one submission.
type Result struct {
	ID       string        `json:"id"`
	Player   string        `json:"player"`
	Track    model.TrackID `json:"track"`
	Status   Status        `json:"status"`
	Claimed  Summary       `json:"claimed"`
	Replayed Summary       `json:"replayed"`
	Reason   string        `json:"reason,omitempty"`
	Verified time.Time     `json:"verified"`
}
