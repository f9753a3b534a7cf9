package input

import (
	"strings"
	"time"

	"github.com/okian/ovation/pkg/clock"
	"github.com/okian/ovation/pkg/logger"
)

// Option applies a configuration option to the Capture.
type Option func(*Capture)

// WithMode sets the capture mode. The mode is fixed for the capture's life.
func WithMode(m Mode) Option {
	return func(c *Capture) {
		c.mode = m
	}
}

// WithKeymap replaces the default keymap.
func WithKeymap(k Keymap) Option {
	return func(c *Capture) {
		if len(k) == 0 {
			return
		}
		normalized := make(Keymap, len(k))
		for name, action := range k {
			normalized[strings.ToLower(name)] = action
		}
		c.keymap = normalized
	}
}

// WithWindow sets the tolerance window used for coalescing. It should equal
// the scorer's widest window.
func WithWindow(d time.Duration) Option {
	return func(c *Capture) {
		if d > 0 {
			c.window = d
		}
	}
}

// WithMinInterval sets the debounce interval per physical key.
func WithMinInterval(d time.Duration) Option {
	return func(c *Capture) {
		if d >= 0 {
			c.minInterval = d
		}
	}
}

// WithWallClock sets the wall clock used for latency compensation.
func WithWallClock(wall clock.Clock) Option {
	return func(c *Capture) {
		if wall != nil {
			c.wall = wall
		}
	}
}

// WithLogger sets a custom logger for the capture.
func WithLogger(l logger.Logger) Option {
	return func(c *Capture) {
		if l != nil {
			c.logger = l
		}
	}
}
