// Package model contains the value types passed between the clock, input,
// scoring, crowd and replay layers.
//
// Song time is expressed as a time.Duration offset from the start of the
// track. Every value here is immutable once handed to another component.
package model

import (
	"fmt"
	"strings"
	"time"
)

// TrackID identifies a track and its beat map.
type TrackID string

// Action is an abstract player action, for example a lane name. It is what
// the keymap produces from a physical key and what beat map lanes refer to.
type Action string

// EventKind distinguishes scored beats from lane notes.
type EventKind uint8

const (
	// Beat is a scored beat that any action may hit.
	Beat EventKind = iota
	// Note is a scored note, usually bound to a lane.
	Note
)

func (k EventKind) String() string {
	switch k {
	case Beat:
		return "beat"
	case Note:
		return "note"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (k EventKind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *EventKind) UnmarshalText(b []byte) error {
	switch strings.ToLower(string(b)) {
	case "beat", "":
		*k = Beat
	case "note":
		*k = Note
	default:
		return fmt.Errorf("unknown event kind %q", string(b))
	}
	return nil
}

// BeatMapEvent is one scored timing event of a beat map.
type BeatMapEvent struct {
	// Index is the position in the owning beat map, assigned on load.
	Index  int           `json:"index"`
	At     time.Duration `json:"at"`
	Kind   EventKind     `json:"kind"`
	Lane   Action        `json:"lane,omitempty"`
	Weight float64       `json:"weight"`
}

// Accepts reports whether an input with action a may be judged against e.
// Events without a lane accept any action.
func (e BeatMapEvent) Accepts(a Action) bool {
	return e.Lane == "" || e.Lane == a
}

// InputEvent is an abstract action placed on the song time axis.
type InputEvent struct {
	At     time.Duration `json:"at"`
	Action Action        `json:"action"`
	// Raw is the device payload. It never leaves the process.
	Raw any `json:"-"`
}

// Quality is the verdict for one beat map event.
type Quality uint8

const (
	Miss Quality = iota
	Good
	Perfect
)

func (q Quality) String() string {
	switch q {
	case Perfect:
		return "perfect"
	case Good:
		return "good"
	case Miss:
		return "miss"
	default:
		return fmt.Sprintf("quality(%d)", uint8(q))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (q Quality) MarshalText() ([]byte, error) { return []byte(q.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (q *Quality) UnmarshalText(b []byte) error {
	switch strings.ToLower(string(b)) {
	case "perfect":
		*q = Perfect
	case "good":
		*q = Good
	case "miss":
		*q = Miss
	default:
		return fmt.Errorf("unknown quality %q", string(b))
	}
	return nil
}

// JudgmentEvent is the scorer's verdict on one beat map event.
type JudgmentEvent struct {
	// Target is the index of the judged event in the beat map.
	Target   int           `json:"target"`
	TargetAt time.Duration `json:"target_at"`
	// Input is nil for timeout misses.
	Input   *InputEvent   `json:"input,omitempty"`
	Quality Quality       `json:"quality"`
	Delta   time.Duration `json:"delta"`
	// Combo is the combo length after this judgment.
	Combo int `json:"combo"`
	// At is the song time at which the judgment was produced.
	At time.Duration `json:"at"`
}

// Hit reports whether the judgment extends the combo.
func (j JudgmentEvent) Hit() bool { return j.Quality != Miss }

// Ms converts a song time to fractional milliseconds for logs and metrics.
func Ms(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
