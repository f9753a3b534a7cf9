package scoring

import (
	"time"

	"github.com/okian/ovation/pkg/logger"
)

// Default tolerance windows.
const (
	DefaultPerfectWindow = 40 * time.Millisecond
	DefaultGoodWindow    = 100 * time.Millisecond
)

// Default points per quality before weight and combo bonus.
const (
	defaultPerfectPoints = 300
	defaultGoodPoints    = 100
	defaultComboCap      = 100
)

// Windows are the tolerance tiers around each event: an input within
// Perfect of the target is Perfect, within Good is Good, else unmatched.
type Windows struct {
	Perfect time.Duration `json:"perfect" yaml:"perfect" koanf:"perfect"`
	Good    time.Duration `json:"good" yaml:"good" koanf:"good"`
}

// DefaultWindows returns the default tolerance tiers.
func DefaultWindows() Windows {
	return Windows{Perfect: DefaultPerfectWindow, Good: DefaultGoodWindow}
}

// Validate checks 0 < Perfect <= Good.
func (w Windows) Validate() error {
	if w.Perfect <= 0 || w.Good < w.Perfect {
		return ErrInvalidWindows
	}
	return nil
}

// Option applies a configuration option to the Scorer.
type Option func(*Scorer)

// WithWindows sets the tolerance tiers. Invalid windows are ignored.
func WithWindows(w Windows) Option {
	return func(s *Scorer) {
		if w.Validate() == nil {
			s.windows = w
		}
	}
}

// WithPoints sets the base points for Perfect and Good hits.
func WithPoints(perfect, good int64) Option {
	return func(s *Scorer) {
		if perfect > 0 && good > 0 {
			s.perfectPoints = perfect
			s.goodPoints = good
		}
	}
}

// WithComboCap bounds the combo bonus: a hit earns up to comboCap percent
// extra points.
func WithComboCap(c int) Option {
	return func(s *Scorer) {
		if c >= 0 {
			s.comboCap = c
		}
	}
}

// WithLogger sets a custom logger for the scorer.
func WithLogger(l logger.Logger) Option {
	return func(s *Scorer) {
		if l != nil {
			s.logger = l
		}
	}
}
