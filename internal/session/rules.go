package session

import (
	"fmt"
	"time"

	"github.com/okian/ovation/internal/domain/crowd"
	"github.com/okian/ovation/internal/domain/mixer"
	"github.com/okian/ovation/internal/domain/scoring"
)

// Rules are every tuning constant that affects the outcome of a session.
// A replay must run with the same rules as the recording.
type Rules struct {
	Windows scoring.Windows
	// Step is the song time grid the crowd and mixer advance on.
	Step time.Duration
	// InputGrace is how far the simulation trails song time so that inputs
	// delayed by device latency still arrive in order.
	InputGrace time.Duration
	// Debounce is the minimum interval between two presses of one key.
	Debounce         time.Duration
	Lookahead        time.Duration
	MaxExtrapolation time.Duration
	// ChantHype is the hype fraction above which chant cues are scheduled
	// on upcoming beats.
	ChantHype float64
	// ChantHorizon is how far ahead chant cues are scheduled.
	ChantHorizon time.Duration
	Crowd        crowd.Params
	Mixer        mixer.Params
}

// DefaultRules returns the default tuning.
func DefaultRules() Rules {
	return Rules{
		Windows:          scoring.DefaultWindows(),
		Step:             10 * time.Millisecond,
		InputGrace:       60 * time.Millisecond,
		Debounce:         30 * time.Millisecond,
		Lookahead:        100 * time.Millisecond,
		MaxExtrapolation: 20 * time.Millisecond,
		ChantHype:        0.5,
		ChantHorizon:     time.Second,
		Crowd:            crowd.DefaultParams(),
		Mixer:            mixer.DefaultParams(),
	}
}

// Validate checks every section.
func (r Rules) Validate() error {
	if err := r.Windows.Validate(); err != nil {
		return fmt.Errorf("windows: %w: %w", err, ErrInvalidRules)
	}
	if r.Step <= 0 || r.InputGrace < 0 || r.Debounce < 0 || r.Lookahead <= 0 || r.MaxExtrapolation < 0 || r.ChantHorizon < 0 {
		return fmt.Errorf("timing: %w", ErrInvalidRules)
	}
	if r.ChantHype < 0 || r.ChantHype > 1 {
		return fmt.Errorf("chant_hype %v: %w", r.ChantHype, ErrInvalidRules)
	}
	if err := r.Crowd.Validate(); err != nil {
		return fmt.Errorf("crowd: %w: %w", err, ErrInvalidRules)
	}
	if err := r.Mixer.Validate(); err != nil {
		return fmt.Errorf("mixer: %w: %w", err, ErrInvalidRules)
	}
	return nil
}
