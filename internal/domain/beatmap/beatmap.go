// Package beatmap holds the immutable, validated sequence of scored events
// for one track.
package beatmap

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/okian/ovation/internal/domain/model"
)

// Track is the metadata a beat map carries about its audio.
type Track struct {
	ID    model.TrackID `json:"id" yaml:"id"`
	Title string        `json:"title" yaml:"title"`
	// Length is the playable length. Inputs after it are out of range.
	Length time.Duration `json:"length" yaml:"length"`
}

// BeatMap is an ordered, immutable list of scored events. The zero value is
// not usable; build one with New.
type BeatMap struct {
	track  Track
	events []model.BeatMapEvent
}

// New validates events and returns a beat map that owns a private copy of
// them. Events must be sorted by time; equal times are allowed on different
// lanes. A missing weight defaults to 1. When the track length is unset it
// is taken from the last event.
func New(track Track, events []model.BeatMapEvent) (*BeatMap, error) {
	if len(events) == 0 {
		return nil, fmt.Errorf("track %q: %w", track.ID, ErrEmptyBeatMap)
	}
	if track.Length < 0 {
		return nil, fmt.Errorf("track %q: negative length: %w", track.ID, ErrInvalidEvent)
	}

	own := make([]model.BeatMapEvent, len(events))
	copy(own, events)

	for i := range own {
		e := &own[i]
		switch {
		case e.At < 0:
			return nil, fmt.Errorf("event %d at %v: negative time: %w", i, e.At, ErrInvalidEvent)
		case math.IsNaN(e.Weight) || math.IsInf(e.Weight, 0) || e.Weight < 0:
			return nil, fmt.Errorf("event %d: weight %v: %w", i, e.Weight, ErrInvalidEvent)
		case e.Kind != model.Beat && e.Kind != model.Note:
			return nil, fmt.Errorf("event %d: kind %v: %w", i, e.Kind, ErrInvalidEvent)
		}
		if i > 0 && e.At < own[i-1].At {
			return nil, fmt.Errorf("event %d at %v before event %d at %v: %w", i, e.At, i-1, own[i-1].At, ErrUnordered)
		}
		if e.Weight == 0 {
			e.Weight = 1
		}
		e.Index = i
	}

	last := own[len(own)-1].At
	if track.Length == 0 {
		track.Length = last
	}
	if track.Length < last {
		return nil, fmt.Errorf("track %q: length %v ends before last event at %v: %w", track.ID, track.Length, last, ErrInvalidEvent)
	}

	return &BeatMap{track: track, events: own}, nil
}

// Track returns the track metadata.
func (m *BeatMap) Track() Track { return m.track }

// Len returns the number of scored events.
func (m *BeatMap) Len() int { return len(m.events) }

// At returns the i-th event.
func (m *BeatMap) At(i int) model.BeatMapEvent { return m.events[i] }

// Events returns a copy of all events.
func (m *BeatMap) Events() []model.BeatMapEvent {
	out := make([]model.BeatMapEvent, len(m.events))
	copy(out, m.events)
	return out
}

// End returns the playable length of the track.
func (m *BeatMap) End() time.Duration { return m.track.Length }

// TotalWeight is the sum of all event weights.
func (m *BeatMap) TotalWeight() float64 {
	var w float64
	for _, e := range m.events {
		w += e.Weight
	}
	return w
}

// Search returns the index of the first event at or after t.
func (m *BeatMap) Search(t time.Duration) int {
	return sort.Search(len(m.events), func(i int) bool { return m.events[i].At >= t })
}

// Between returns the events with from <= At < to, in order.
func (m *BeatMap) Between(from, to time.Duration) []model.BeatMapEvent {
	lo := m.Search(from)
	hi := m.Search(to)
	if hi <= lo {
		return nil
	}
	out := make([]model.BeatMapEvent, hi-lo)
	copy(out, m.events[lo:hi])
	return out
}
