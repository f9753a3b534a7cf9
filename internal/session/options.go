package session

import (
	"time"

	"github.com/okian/ovation/internal/domain/beatclock"
	"github.com/okian/ovation/internal/domain/mixer"
	"github.com/okian/ovation/pkg/clock"
	"github.com/okian/ovation/pkg/logger"
)

// SampleTrigger is the audio boundary that starts a one-shot sample after
// lead.
type SampleTrigger interface {
	Trigger(sample string, lead time.Duration)
}

// Option applies a configuration option to the Session.
type Option func(*Session)

// WithAudio sets the audio position source of a live session.
func WithAudio(a beatclock.AudioSource) Option {
	return func(s *Session) {
		s.audio = a
	}
}

// WithLayerPlayer forwards mixer gains to p every tick of a live session.
func WithLayerPlayer(p mixer.LayerPlayer) Option {
	return func(s *Session) {
		s.layers = p
	}
}

// WithSampleTrigger lets a live session fire crowd chant samples.
func WithSampleTrigger(t SampleTrigger) Option {
	return func(s *Session) {
		s.samples = t
	}
}

// WithWallClock sets the wall clock for latency compensation and Run.
func WithWallClock(c clock.Clock) Option {
	return func(s *Session) {
		if c != nil {
			s.wall = c
		}
	}
}

// WithID sets the session id. A random UUID is used otherwise.
func WithID(id string) Option {
	return func(s *Session) {
		if id != "" {
			s.id = id
		}
	}
}

// WithLogger sets a custom logger for the session and its components.
func WithLogger(l logger.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.logger = l
		}
	}
}
