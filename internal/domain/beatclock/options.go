package beatclock

import (
	"time"

	"github.com/okian/ovation/pkg/clock"
	"github.com/okian/ovation/pkg/logger"
)

// Option applies a configuration option to the BeatClock.
type Option func(*BeatClock)

// WithLookahead sets the scheduling buffer interval.
func WithLookahead(d time.Duration) Option {
	return func(c *BeatClock) {
		if d > 0 {
			c.lookahead = d
		}
	}
}

// WithMaxExtrapolation bounds how far the clock may run ahead of the last
// audio position using the wall clock. Zero disables extrapolation.
func WithMaxExtrapolation(d time.Duration) Option {
	return func(c *BeatClock) {
		if d >= 0 {
			c.maxExtrapolation = d
		}
	}
}

// WithWallClock sets the wall clock used for extrapolation and for Run.
func WithWallClock(wall clock.Clock) Option {
	return func(c *BeatClock) {
		if wall != nil {
			c.wall = wall
		}
	}
}

// WithLogger sets a custom logger for the clock.
func WithLogger(l logger.Logger) Option {
	return func(c *BeatClock) {
		if l != nil {
			c.logger = l
		}
	}
}
