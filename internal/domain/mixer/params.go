package mixer

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidParams marks mixer settings that cannot produce a valid output.
var ErrInvalidParams = errors.New("invalid mixer params")

// Source selects the aggregate value a layer follows.
type Source string

const (
	// SourceEnergy follows mean crowd energy.
	SourceEnergy Source = "energy"
	// SourceHype follows the share of agents in Hype.
	SourceHype Source = "hype"
	// SourceGloom follows the share of disappointed agents.
	SourceGloom Source = "gloom"
)

// Layer describes one crowd audio layer. Its target gain ramps linearly
// from zero at Threshold to MaxGain at Threshold+Width.
type Layer struct {
	ID        string  `json:"id" yaml:"id" koanf:"id"`
	Source    Source  `json:"source" yaml:"source" koanf:"source"`
	Threshold float64 `json:"threshold" yaml:"threshold" koanf:"threshold"`
	Width     float64 `json:"width" yaml:"width" koanf:"width"`
	MaxGain   float64 `json:"max_gain" yaml:"max_gain" koanf:"max_gain"`
}

// Params configure the mixer.
type Params struct {
	Layers []Layer `json:"layers" yaml:"layers" koanf:"layers"`
	// Smoothing is the low-pass time constant.
	Smoothing time.Duration `json:"smoothing" yaml:"smoothing" koanf:"smoothing"`
	// MaxStep bounds how far any gain or the intensity may move in one tick.
	MaxStep float64 `json:"max_step" yaml:"max_step" koanf:"max_step"`
}

// DefaultParams returns the default layer set: a constant murmur, a cheer
// that follows energy, a chant that follows hype and a groan that follows
// disappointment.
func DefaultParams() Params {
	return Params{
		Layers: []Layer{
			{ID: "murmur", Source: SourceEnergy, Threshold: 0, Width: 0.3, MaxGain: 0.4},
			{ID: "cheer", Source: SourceEnergy, Threshold: 0.35, Width: 0.35, MaxGain: 0.9},
			{ID: "chant", Source: SourceHype, Threshold: 0.2, Width: 0.5, MaxGain: 1},
			{ID: "groan", Source: SourceGloom, Threshold: 0.05, Width: 0.4, MaxGain: 0.8},
		},
		Smoothing: 150 * time.Millisecond,
		MaxStep:   0.05,
	}
}

// Validate checks every layer and the smoothing settings.
func (p Params) Validate() error {
	if p.Smoothing < 0 {
		return fmt.Errorf("smoothing %v: %w", p.Smoothing, ErrInvalidParams)
	}
	if p.MaxStep <= 0 {
		return fmt.Errorf("max_step %v: %w", p.MaxStep, ErrInvalidParams)
	}
	seen := make(map[string]struct{}, len(p.Layers))
	for _, l := range p.Layers {
		if l.ID == "" {
			return fmt.Errorf("layer without id: %w", ErrInvalidParams)
		}
		if _, dup := seen[l.ID]; dup {
			return fmt.Errorf("duplicate layer %q: %w", l.ID, ErrInvalidParams)
		}
		seen[l.ID] = struct{}{}
		switch l.Source {
		case SourceEnergy, SourceHype, SourceGloom:
		default:
			return fmt.Errorf("layer %q source %q: %w", l.ID, l.Source, ErrInvalidParams)
		}
		if l.Width <= 0 || l.MaxGain < 0 || l.MaxGain > 1 {
			return fmt.Errorf("layer %q width %v gain %v: %w", l.ID, l.Width, l.MaxGain, ErrInvalidParams)
		}
	}
	return nil
}
