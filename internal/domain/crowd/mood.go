package crowd

import "fmt"

// Mood is an agent's visible state.
type Mood uint8

const (
	Idle Mood = iota
	Excited
	Hype
	Disappointed
	moodCount
)

func (m Mood) String() string {
	switch m {
	case Idle:
		return "idle"
	case Excited:
		return "excited"
	case Hype:
		return "hype"
	case Disappointed:
		return "disappointed"
	default:
		return fmt.Sprintf("mood(%d)", uint8(m))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (m Mood) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

// NextMood moves at most one level along Idle, Excited, Hype for an agent
// with energy e. Up and down thresholds differ so energy hovering near a
// boundary does not flicker. A disappointed agent returns to Idle once its
// energy has recovered to the rest level.
func NextMood(m Mood, e float64, p Params) Mood {
	switch m {
	case Idle:
		if e >= p.ExcitedUp {
			return Excited
		}
	case Excited:
		if e >= p.HypeUp {
			return Hype
		}
		if e < p.ExcitedDown {
			return Idle
		}
	case Hype:
		if e < p.HypeDown {
			return Excited
		}
	case Disappointed:
		if e >= p.RestEnergy {
			return Idle
		}
	}
	return m
}
