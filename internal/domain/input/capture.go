// Package input turns raw device events into InputEvents on the song time
// axis.
//
// A Capture runs in exactly one mode for its lifetime. In Live mode it reads
// device events through Submit, compensates for the delay between the
// device timestamp and the moment the event is handled, debounces rapid
// repeats of the same key and coalesces extra presses inside one tolerance
// window. In Suppressed mode live events are ignored and a replay player
// injects recorded events verbatim.
package input

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/okian/ovation/internal/domain/beatmap"
	"github.com/okian/ovation/internal/domain/dedupe"
	"github.com/okian/ovation/internal/domain/model"
	"github.com/okian/ovation/pkg/clock"
	"github.com/okian/ovation/pkg/logger"
	"github.com/okian/ovation/pkg/metrics"
)

const (
	defaultMinInterval = 30 * time.Millisecond
	defaultWindow      = 100 * time.Millisecond
	coalesceCapacity   = 4096
)

// Mode selects where a Capture takes its events from.
type Mode uint8

const (
	Live Mode = iota
	Suppressed
)

func (m Mode) String() string {
	if m == Suppressed {
		return "suppressed"
	}
	return "live"
}

// Raw is a device event as delivered by the UI layer.
type Raw struct {
	// Physical names the key or button, e.g. "f" or "pointer".
	Physical  string
	WallClock time.Time
	Device    Device
	Payload   any

	// claim is the beat map event this press reserved, if any.
	claim   coalesceKey
	claimed bool
}

// SongClock reports the current song time.
type SongClock interface {
	Now() time.Duration
}

type coalesceKey struct {
	action model.Action
	target int
}

// Capture normalizes input for one session. Safe for concurrent use: device
// callbacks submit while the session tick drains.
type Capture struct {
	mu sync.Mutex

	mode        Mode
	song        SongClock
	wall        clock.Clock
	beats       *beatmap.BeatMap
	keymap      Keymap
	window      time.Duration
	minInterval time.Duration
	logger      logger.Logger

	lastPress map[string]time.Duration
	claimed   dedupe.Deduper[coalesceKey]
	queue     []model.InputEvent
}

// NewCapture creates a capture for beats, timestamping against song.
func NewCapture(song SongClock, beats *beatmap.BeatMap, opts ...Option) *Capture {
	c := &Capture{
		mode:        Live,
		song:        song,
		wall:        clock.Real(),
		beats:       beats,
		keymap:      DefaultKeymap(),
		window:      defaultWindow,
		minInterval: defaultMinInterval,
		logger:      logger.GetOrNop().Named("input"),
		lastPress:   make(map[string]time.Duration),
		claimed:     dedupe.NewInMemory[coalesceKey](dedupe.WithMaxSize(coalesceCapacity)),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Mode returns the capture mode.
func (c *Capture) Mode() Mode { return c.mode }

// Submit normalizes a live device event and queues it for the scorer. It
// returns the queued event, or an error naming why the event was dropped.
// Drops are expected and never fatal.
func (c *Capture) Submit(raw Raw) (model.InputEvent, error) {
	ev, err := c.submit(raw)
	if err != nil {
		metrics.RecordInputDropped(Reason(err))
		c.logger.Debug(context.Background(), "input dropped",
			logger.String("physical", raw.Physical),
			logger.String("device", raw.Device.String()),
			logger.Error(err),
		)
	}
	return ev, err
}

func (c *Capture) submit(raw Raw) (model.InputEvent, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.mode != Live {
		return model.InputEvent{}, ErrSuppressed
	}
	action, ok := c.keymap.Lookup(raw.Physical)
	if !ok {
		return model.InputEvent{}, fmt.Errorf("unmapped key %q: %w", raw.Physical, ErrMalformedInput)
	}

	at := c.song.Now()
	if !raw.WallClock.IsZero() {
		if age := c.wall.Now().Sub(raw.WallClock); age > 0 {
			at -= age
		}
	}

	physical := strings.ToLower(raw.Physical)
	if last, seen := c.lastPress[physical]; seen && at-last < c.minInterval && at >= last {
		return model.InputEvent{}, fmt.Errorf("%q %v after previous press: %w", physical, at-last, ErrDebounced)
	}
	c.lastPress[physical] = at

	key, held, ok := c.claim(action, at)
	if !ok {
		return model.InputEvent{}, fmt.Errorf("%s at %v: %w", action, at, ErrCoalesced)
	}
	raw.claim, raw.claimed = key, held

	ev := model.InputEvent{At: at, Action: action, Raw: raw}
	c.queue = append(c.queue, ev)
	return ev, nil
}

// claim reserves the earliest event whose tolerance window contains at and
// that action has not already claimed, and reports the reserved key. Presses
// outside every window pass through unclaimed so the scorer can reject
// them. Must be called with c.mu held.
func (c *Capture) claim(action model.Action, at time.Duration) (key coalesceKey, held, ok bool) {
	if c.beats == nil {
		return coalesceKey{}, false, true
	}
	candidates := c.beats.Between(at-c.window, at+c.window+1)
	found := false
	for _, e := range candidates {
		if !e.Accepts(action) {
			continue
		}
		found = true
		key = coalesceKey{action: action, target: e.Index}
		if !c.claimed.SeenAndRecord(context.Background(), key) {
			return key, true, true
		}
	}
	return coalesceKey{}, false, !found
}

// Release gives back the event a live press reserved, so a later press in
// the same window is not coalesced away. The session calls it for presses
// it drops before judging them. Events without a reservation are ignored.
func (c *Capture) Release(ev model.InputEvent) {
	raw, ok := ev.Raw.(Raw)
	if !ok || !raw.claimed {
		return
	}
	c.claimed.Unrecord(context.Background(), raw.claim)
}

// Inject queues a recorded event. Only a suppressed capture accepts it.
func (c *Capture) Inject(ev model.InputEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.mode != Suppressed {
		return fmt.Errorf("inject in %s mode: %w", c.mode, ErrWrongMode)
	}
	c.queue = append(c.queue, ev)
	return nil
}

// Drain returns the queued events in ascending song time and empties the
// queue. Events with equal times keep their arrival order.
func (c *Capture) Drain() []model.InputEvent {
	c.mu.Lock()
	out := c.queue
	c.queue = nil
	c.mu.Unlock()

	sort.SliceStable(out, func(i, j int) bool { return out[i].At < out[j].At })
	return out
}

// Reset forgets debounce and coalescing history and any queued events. Used
// after a seek.
func (c *Capture) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.lastPress)
	c.claimed.Reset()
	c.queue = nil
}
