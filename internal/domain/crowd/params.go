package crowd

import (
	"fmt"
	"math"
)

// Params are the crowd tuning constants. Energies are in [0, 1]; rates are
// per second of song time.
type Params struct {
	Population int `json:"population" yaml:"population" koanf:"population"`

	// RestEnergy is where energy settles with no judgments.
	RestEnergy float64 `json:"rest_energy" yaml:"rest_energy" koanf:"rest_energy"`
	// DecayPerSecond is the linear rate energy moves back toward rest.
	DecayPerSecond float64 `json:"decay_per_second" yaml:"decay_per_second" koanf:"decay_per_second"`

	// HitGain is the largest energy step a single Perfect can cause.
	HitGain float64 `json:"hit_gain" yaml:"hit_gain" koanf:"hit_gain"`
	// GoodFactor scales HitGain for Good hits.
	GoodFactor float64 `json:"good_factor" yaml:"good_factor" koanf:"good_factor"`
	// ComboHalf is the combo length at which the combo factor reaches half
	// of its limit.
	ComboHalf float64 `json:"combo_half" yaml:"combo_half" koanf:"combo_half"`

	// MissDrop is the energy removed by a Miss before bias scaling.
	MissDrop float64 `json:"miss_drop" yaml:"miss_drop" koanf:"miss_drop"`
	// DisappointedBelow sends an agent to Disappointed when a Miss leaves
	// its energy under this value.
	DisappointedBelow float64 `json:"disappointed_below" yaml:"disappointed_below" koanf:"disappointed_below"`

	ExcitedUp   float64 `json:"excited_up" yaml:"excited_up" koanf:"excited_up"`
	ExcitedDown float64 `json:"excited_down" yaml:"excited_down" koanf:"excited_down"`
	HypeUp      float64 `json:"hype_up" yaml:"hype_up" koanf:"hype_up"`
	HypeDown    float64 `json:"hype_down" yaml:"hype_down" koanf:"hype_down"`

	// BiasMin and BiasMax bound each agent's personality bias.
	BiasMin float64 `json:"bias_min" yaml:"bias_min" koanf:"bias_min"`
	BiasMax float64 `json:"bias_max" yaml:"bias_max" koanf:"bias_max"`
}

// DefaultParams returns the default crowd tuning.
func DefaultParams() Params {
	return Params{
		Population:        64,
		RestEnergy:        0.15,
		DecayPerSecond:    0.12,
		HitGain:           0.6,
		GoodFactor:        0.5,
		ComboHalf:         8,
		MissDrop:          0.3,
		DisappointedBelow: 0.1,
		ExcitedUp:         0.35,
		ExcitedDown:       0.25,
		HypeUp:            0.75,
		HypeDown:          0.6,
		BiasMin:           0.5,
		BiasMax:           1.5,
	}
}

// Validate checks ranges and threshold ordering.
func (p Params) Validate() error {
	unit := func(name string, v float64) error {
		if math.IsNaN(v) || v < 0 || v > 1 {
			return fmt.Errorf("%s %v not in [0,1]: %w", name, v, ErrInvalidParams)
		}
		return nil
	}
	if p.Population <= 0 {
		return fmt.Errorf("population %d: %w", p.Population, ErrInvalidParams)
	}
	for _, c := range []struct {
		name string
		v    float64
	}{
		{"rest_energy", p.RestEnergy},
		{"good_factor", p.GoodFactor},
		{"miss_drop", p.MissDrop},
		{"disappointed_below", p.DisappointedBelow},
		{"excited_up", p.ExcitedUp},
		{"excited_down", p.ExcitedDown},
		{"hype_up", p.HypeUp},
		{"hype_down", p.HypeDown},
	} {
		if err := unit(c.name, c.v); err != nil {
			return err
		}
	}
	switch {
	case p.DecayPerSecond < 0, p.HitGain < 0, p.ComboHalf < 0:
		return fmt.Errorf("negative rate: %w", ErrInvalidParams)
	case p.ExcitedDown > p.ExcitedUp || p.HypeDown > p.HypeUp:
		return fmt.Errorf("down threshold above up threshold: %w", ErrInvalidParams)
	case p.ExcitedUp > p.HypeDown:
		return fmt.Errorf("excited_up %v above hype_down %v: %w", p.ExcitedUp, p.HypeDown, ErrInvalidParams)
	case p.BiasMin <= 0 || p.BiasMax < p.BiasMin:
		return fmt.Errorf("bias range [%v,%v]: %w", p.BiasMin, p.BiasMax, ErrInvalidParams)
	}
	return nil
}
