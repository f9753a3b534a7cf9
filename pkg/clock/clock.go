// Package clock is the wall-time source shared by the tick loops, the
// worker pool and the stores, so they can be driven deterministically in
// tests.
//
// Production code uses Real(); tests use Fake() and move time forward
// explicitly with Advance. Both come from clockwork.
package clock

import (
	"time"

	"github.com/jonboulle/clockwork"
)

// Clock is the subset of the time package the loops depend on.
type Clock = clockwork.Clock

// Ticker delivers ticks on Chan(). Ticks are dropped when the consumer
// falls behind.
type Ticker = clockwork.Ticker

// FakeClock is a Clock whose time only moves on Advance.
type FakeClock = clockwork.FakeClock

// Real returns a Clock backed by the time package.
func Real() Clock { return clockwork.NewRealClock() }

// Fake returns a FakeClock set to initial.
func Fake(initial time.Time) *FakeClock { return clockwork.NewFakeClockAt(initial) }
