package beatclock

import (
	"sync"
	"time"
)

// Manual is an AudioSource whose position is moved by hand. Replays drive
// the session with it, and tests use it in place of an audio device.
type Manual struct {
	mu  sync.Mutex
	pos time.Duration
}

// NewManual returns a Manual source at position zero.
func NewManual() *Manual { return &Manual{} }

// PlaybackPosition implements AudioSource.
func (m *Manual) PlaybackPosition() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pos
}

// Set moves the position to pos.
func (m *Manual) Set(pos time.Duration) {
	m.mu.Lock()
	m.pos = pos
	m.mu.Unlock()
}

// Advance moves the position forward by d and returns the new position.
func (m *Manual) Advance(d time.Duration) time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pos += d
	return m.pos
}
