package replay

import (
	"fmt"
	"sync"

	"github.com/okian/ovation/internal/domain/model"
)

// Recorder builds the log of a live session. The log is write-once: after
// Finalize every further write fails with ErrFinalized.
type Recorder struct {
	mu        sync.Mutex
	log       Log
	finalized bool
}

// NewRecorder starts a log for track with the session seed.
func NewRecorder(seed uint64, track model.TrackID) *Recorder {
	return &Recorder{log: Log{Version: Version, Seed: seed, Track: track}}
}

// Record appends one processed input. Inputs must arrive in ascending song
// time; the device payload is not kept.
func (r *Recorder) Record(ev model.InputEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.finalized {
		return ErrFinalized
	}
	if n := len(r.log.Events); n > 0 && ev.At < r.log.Events[n-1].At {
		return fmt.Errorf("record %v after %v: %w", ev.At, r.log.Events[n-1].At, ErrUnordered)
	}
	ev.Raw = nil
	r.log.Events = append(r.log.Events, ev)
	return nil
}

// Len returns the number of recorded inputs.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.log.Events)
}

// Finalize closes the log and returns it. Calling it again returns the same
// log with ErrFinalized.
func (r *Recorder) Finalize() (Log, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := r.log
	out.Events = make([]model.InputEvent, len(r.log.Events))
	copy(out.Events, r.log.Events)
	if r.finalized {
		return out, ErrFinalized
	}
	r.finalized = true
	return out, nil
}
