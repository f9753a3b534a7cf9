// Package beatclock derives song time from the audio output position and
// schedules audio cues a fixed lookahead ahead of their target time.
//
// Song time follows what the listener hears: it is the audio device's
// playback position relative to an anchor taken at start, resume and seek.
// Between two position updates from the device the clock may extrapolate
// with the wall clock, bounded by a small maximum, so frame-rate callers see
// smooth time. The value returned by Now never decreases except across an
// explicit Seek.
package beatclock

import (
	"container/heap"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/okian/ovation/internal/domain/model"
	"github.com/okian/ovation/pkg/clock"
	"github.com/okian/ovation/pkg/logger"
	"github.com/okian/ovation/pkg/metrics"
)

const (
	defaultLookahead        = 100 * time.Millisecond
	defaultMaxExtrapolation = 0
	defaultPumpInterval     = 10 * time.Millisecond
)

// AudioSource is the audio hardware boundary: how much of the stream the
// output device has actually played.
type AudioSource interface {
	PlaybackPosition() time.Duration
}

// CueID identifies a scheduled cue.
type CueID uint64

// Cue is handed to the callback when a scheduled cue fires.
type Cue struct {
	ID CueID
	// At is the target song time.
	At time.Duration
	// Lead is how far ahead of At the cue was handed over. The audio layer
	// delays the sample start by Lead. Zero when the cue is already due.
	Lead time.Duration
	// Late is set when the cue was scheduled inside the lookahead window and
	// fired immediately.
	Late bool
}

// Callback receives a fired cue. It runs outside the clock's lock and may
// schedule further cues.
type Callback func(Cue)

type state uint8

const (
	stopped state = iota
	running
	paused
	disposed
)

type cue struct {
	id    CueID
	at    time.Duration
	fn    Callback
	index int
}

// cueHeap orders cues by target time, then by scheduling order.
type cueHeap []*cue

func (h cueHeap) Len() int { return len(h) }
func (h cueHeap) Less(i, j int) bool {
	if h[i].at != h[j].at {
		return h[i].at < h[j].at
	}
	return h[i].id < h[j].id
}
func (h cueHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}
func (h *cueHeap) Push(x any) {
	c := x.(*cue)
	c.index = len(*h)
	*h = append(*h, c)
}
func (h *cueHeap) Pop() any {
	old := *h
	n := len(old)
	c := old[n-1]
	old[n-1] = nil
	c.index = -1
	*h = old[:n-1]
	return c
}

// BeatClock is the per-session song clock. It is safe for concurrent use:
// the session tick and the scheduling goroutine share it.
type BeatClock struct {
	mu sync.Mutex

	audio            AudioSource
	wall             clock.Clock
	lookahead        time.Duration
	maxExtrapolation time.Duration
	logger           logger.Logger

	state       state
	anchorSong  time.Duration
	anchorAudio time.Duration
	frozen      time.Duration
	last        time.Duration

	lastAudio     time.Duration
	lastAudioWall time.Time

	pending   cueHeap
	suspended []*cue
	nextID    CueID

	done     chan struct{}
	doneOnce sync.Once
}

// New builds a stopped clock reading positions from audio.
func New(audio AudioSource, opts ...Option) *BeatClock {
	c := &BeatClock{
		audio:            audio,
		wall:             clock.Real(),
		lookahead:        defaultLookahead,
		maxExtrapolation: defaultMaxExtrapolation,
		logger:           logger.GetOrNop().Named("beatclock"),
		done:             make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Lookahead returns the scheduling buffer interval.
func (c *BeatClock) Lookahead() time.Duration { return c.lookahead }

// Now returns the current song time.
func (c *BeatClock) Now() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nowLocked()
}

func (c *BeatClock) nowLocked() time.Duration {
	if c.state != running {
		return c.frozen
	}

	pos := c.audio.PlaybackPosition()
	wallNow := c.wall.Now()
	if pos != c.lastAudio {
		c.lastAudio = pos
		c.lastAudioWall = wallNow
	}

	var extra time.Duration
	if c.maxExtrapolation > 0 {
		extra = wallNow.Sub(c.lastAudioWall)
		if extra < 0 {
			extra = 0
		}
		if extra > c.maxExtrapolation {
			extra = c.maxExtrapolation
		}
	}

	t := c.anchorSong + (pos - c.anchorAudio) + extra
	if t < c.last {
		t = c.last
	}
	c.last = t
	return t
}

// reanchor ties the current audio position to song time at.
func (c *BeatClock) reanchor(at time.Duration) {
	pos := c.audio.PlaybackPosition()
	c.anchorSong = at
	c.anchorAudio = pos
	c.lastAudio = pos
	c.lastAudioWall = c.wall.Now()
	c.last = at
}

// Start begins following the audio position from the current song time
// (zero for a fresh clock).
func (c *BeatClock) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case disposed:
		return ErrDisposed
	case running:
		return nil
	case paused:
		return ErrPaused
	}
	c.reanchor(c.frozen)
	c.state = running
	return nil
}

// Pause freezes song time and suspends every cue that has not fired yet.
func (c *BeatClock) Pause() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case disposed:
		return ErrDisposed
	case running:
	default:
		return nil
	}
	c.frozen = c.nowLocked()
	c.state = paused
	for c.pending.Len() > 0 {
		c.suspended = append(c.suspended, heap.Pop(&c.pending).(*cue))
	}
	c.logger.Debug(context.Background(), "paused",
		logger.Float64("song_ms", model.Ms(c.frozen)),
		logger.Int("suspended_cues", len(c.suspended)),
	)
	return nil
}

// Resume re-anchors the clock at the paused song time. Suspended cues whose
// target is still in the future are rescheduled; the rest are dropped.
func (c *BeatClock) Resume() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case disposed:
		return ErrDisposed
	case paused:
	default:
		return nil
	}
	c.reanchor(c.frozen)
	c.state = running

	dropped := 0
	for _, s := range c.suspended {
		if s.at > c.frozen {
			heap.Push(&c.pending, s)
		} else {
			dropped++
		}
	}
	c.suspended = nil
	if dropped > 0 {
		c.logger.Debug(context.Background(), "dropped stale cues on resume", logger.Int("count", dropped))
	}
	return nil
}

// Seek moves song time to at, which may be earlier than the current time.
// Cues targeting earlier than at are dropped.
func (c *BeatClock) Seek(at time.Duration) error {
	if at < 0 {
		return fmt.Errorf("seek to %v: %w", at, ErrInvalidTime)
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == disposed {
		return ErrDisposed
	}
	c.reanchor(at)
	c.frozen = at

	kept := c.pending[:0]
	for _, p := range c.pending {
		if p.at >= at {
			kept = append(kept, p)
		}
	}
	c.pending = kept
	for i := range c.pending {
		c.pending[i].index = i
	}
	heap.Init(&c.pending)

	keptSuspended := c.suspended[:0]
	for _, s := range c.suspended {
		if s.at >= at {
			keptSuspended = append(keptSuspended, s)
		}
	}
	c.suspended = keptSuspended
	return nil
}

// ScheduleAt arranges for fn to run one lookahead interval before at. A
// target already inside the lookahead window cannot be honored: the cue
// fires immediately, a latency warning is recorded, and the returned error
// wraps ErrSchedulingTooLate. The cue is never dropped.
func (c *BeatClock) ScheduleAt(at time.Duration, fn Callback) (CueID, error) {
	c.mu.Lock()
	if c.state == disposed {
		c.mu.Unlock()
		return 0, ErrDisposed
	}

	c.nextID++
	id := c.nextID
	now := c.nowLocked()
	lead := at - now

	if lead >= c.lookahead {
		entry := &cue{id: id, at: at, fn: fn}
		if c.state == paused {
			c.suspended = append(c.suspended, entry)
		} else {
			heap.Push(&c.pending, entry)
		}
		c.mu.Unlock()
		return id, nil
	}
	c.mu.Unlock()

	lateness := c.lookahead - lead
	metrics.RecordCueLateness(model.Ms(lateness))
	c.logger.Warn(context.Background(), "cue scheduled inside lookahead window, firing now",
		logger.Float64("target_ms", model.Ms(at)),
		logger.Float64("now_ms", model.Ms(now)),
		logger.Float64("late_ms", model.Ms(lateness)),
	)
	if lead < 0 {
		lead = 0
	}
	c.fire(fn, Cue{ID: id, At: at, Lead: lead, Late: true})
	return id, fmt.Errorf("cue %d at %v with song time %v: %w", id, at, now, ErrSchedulingTooLate)
}

// Cancel removes a cue that has not fired. It reports whether the cue was
// found.
func (c *BeatClock) Cancel(id CueID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, p := range c.pending {
		if p.id == id {
			heap.Remove(&c.pending, p.index)
			return true
		}
	}
	for i, s := range c.suspended {
		if s.id == id {
			c.suspended = append(c.suspended[:i], c.suspended[i+1:]...)
			return true
		}
	}
	return false
}

// Pending returns the number of cues waiting to fire, suspended ones included.
func (c *BeatClock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending.Len() + len(c.suspended)
}

// Pump hands every cue whose lookahead window has opened to its callback,
// in target order, and returns how many fired.
func (c *BeatClock) Pump() int {
	c.mu.Lock()
	if c.state != running {
		c.mu.Unlock()
		return 0
	}
	now := c.nowLocked()
	var due []Cue
	var fns []Callback
	for c.pending.Len() > 0 && c.pending[0].at-c.lookahead <= now {
		p := heap.Pop(&c.pending).(*cue)
		lead := p.at - now
		if lead < 0 {
			lead = 0
		}
		due = append(due, Cue{ID: p.id, At: p.at, Lead: lead})
		fns = append(fns, p.fn)
	}
	c.mu.Unlock()

	for i := range due {
		c.fire(fns[i], due[i])
	}
	return len(due)
}

func (c *BeatClock) fire(fn Callback, cue Cue) {
	metrics.RecordCueFired()
	if fn != nil {
		fn(cue)
	}
}

// Run pumps cues every interval of wall time until ctx ends or the clock is
// disposed. It is the background scheduling loop.
func (c *BeatClock) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = defaultPumpInterval
	}
	ticker := c.wall.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		case <-ticker.Chan():
			c.Pump()
		}
	}
}

// Dispose cancels every cue and stops Run. The clock is unusable afterwards.
func (c *BeatClock) Dispose() {
	c.mu.Lock()
	if c.state != disposed {
		c.frozen = c.nowLocked()
	}
	c.state = disposed
	c.pending = nil
	c.suspended = nil
	c.mu.Unlock()
	c.doneOnce.Do(func() { close(c.done) })
}
