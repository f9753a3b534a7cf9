package replay

import (
	"fmt"

	"github.com/okian/ovation/internal/domain/model"
)

// Version is the current log format version.
const Version = 1

// Log is the minimal record needed to reproduce a session: the seed, the
// track and every input the session processed, in order.
type Log struct {
	Version int                `json:"version"`
	Seed    uint64             `json:"seed"`
	Track   model.TrackID      `json:"track"`
	Events  []model.InputEvent `json:"events"`
}

// Validate checks the version and that events are in ascending song time.
func (l Log) Validate() error {
	if l.Version != Version {
		return fmt.Errorf("version %d: %w", l.Version, ErrVersion)
	}
	if l.Track == "" {
		return fmt.Errorf("missing track: %w", ErrCorrupt)
	}
	for i := 1; i < len(l.Events); i++ {
		if l.Events[i].At < l.Events[i-1].At {
			return fmt.Errorf("event %d at %v before event %d at %v: %w",
				i, l.Events[i].At, i-1, l.Events[i-1].At, ErrUnordered)
		}
	}
	for i, ev := range l.Events {
		if ev.At < 0 || ev.Action == "" {
			return fmt.Errorf("event %d: %w", i, ErrCorrupt)
		}
	}
	return nil
}

// Summary is the outcome of a session, handed to the leaderboard with the
// log. Digests fingerprint the full judgment sequence and crowd trajectory.
type Summary struct {
	Score          int64   `json:"score"`
	Accuracy       float64 `json:"accuracy"`
	MaxCombo       int     `json:"max_combo"`
	Perfect        int     `json:"perfect"`
	Good           int     `json:"good"`
	Miss           int     `json:"miss"`
	JudgmentDigest string  `json:"judgment_digest,omitempty"`
	CrowdDigest    string  `json:"crowd_digest,omitempty"`
}
