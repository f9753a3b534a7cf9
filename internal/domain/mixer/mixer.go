// Package mixer derives crowd audio gains and visual parameters from the
// crowd aggregate.
//
// Mix is a pure function of (aggregate, previous output, tick length): it
// never reads wall time, so a replay mixes exactly like the live run. Each
// value chases its target through a one-pole low-pass filter and never
// moves more than MaxStep per tick, which keeps gains free of audible steps
// even when the crowd changes abruptly.
package mixer

import (
	"cmp"
	"slices"
	"time"

	"github.com/okian/ovation/internal/domain/crowd"
)

// LayerGain is the gain of one audio layer.
type LayerGain struct {
	ID   string  `json:"id"`
	Gain float64 `json:"gain"`
}

// Output is one tick of mixer output.
type Output struct {
	// Gains are sorted by layer ID.
	Gains []LayerGain `json:"gains"`
	// Intensity is the smoothed mean energy the renderer scales motion by.
	Intensity float64 `json:"intensity"`
	// HypeFraction and Gloom are the shares of hyped and disappointed agents.
	HypeFraction float64 `json:"hype_fraction"`
	Gloom        float64 `json:"gloom"`
}

// Gain returns the gain of layer id, zero when absent.
func (o Output) Gain(id string) float64 {
	i, ok := slices.BinarySearchFunc(o.Gains, id, func(g LayerGain, id string) int {
		return cmp.Compare(g.ID, id)
	})
	if !ok {
		return 0
	}
	return o.Gains[i].Gain
}

// LayerPlayer is the audio boundary that sets a layer's playback gain.
type LayerPlayer interface {
	PlayLayer(id string, gain float64)
}

// Apply pushes every gain to p.
func (o Output) Apply(p LayerPlayer) {
	for _, g := range o.Gains {
		p.PlayLayer(g.ID, g.Gain)
	}
}

// Mix computes the next output from the aggregate, the previous output and
// the tick length. A zero prev starts every value from silence.
func Mix(agg crowd.Aggregate, prev Output, dt time.Duration, p Params) Output {
	alpha := 1.0
	if p.Smoothing > 0 {
		d := dt.Seconds()
		alpha = d / (p.Smoothing.Seconds() + d)
	}
	if dt <= 0 {
		alpha = 0
	}

	hype := agg.Fraction(crowd.Hype)
	gloom := agg.Fraction(crowd.Disappointed)

	out := Output{
		Gains:        make([]LayerGain, 0, len(p.Layers)),
		Intensity:    smooth(prev.Intensity, agg.MeanEnergy, alpha, p.MaxStep),
		HypeFraction: hype,
		Gloom:        gloom,
	}
	for _, l := range p.Layers {
		var v float64
		switch l.Source {
		case SourceHype:
			v = hype
		case SourceGloom:
			v = gloom
		default:
			v = agg.MeanEnergy
		}
		out.Gains = append(out.Gains, LayerGain{
			ID:   l.ID,
			Gain: smooth(prev.Gain(l.ID), target(l, v), alpha, p.MaxStep),
		})
	}
	slices.SortFunc(out.Gains, func(a, b LayerGain) int { return cmp.Compare(a.ID, b.ID) })
	return out
}

// target ramps from 0 at the threshold to MaxGain one width above it.
func target(l Layer, v float64) float64 {
	x := (v - l.Threshold) / l.Width
	switch {
	case x <= 0:
		return 0
	case x >= 1:
		return l.MaxGain
	default:
		return float64(x * l.MaxGain)
	}
}

func smooth(prev, target, alpha, maxStep float64) float64 {
	step := float64(alpha * (target - prev))
	switch {
	case step > maxStep:
		step = maxStep
	case step < -maxStep:
		step = -maxStep
	}
	return prev + step
}

// Mixer keeps the previous output between ticks. It is owned by the session
// tick and not safe for concurrent use.
type Mixer struct {
	params Params
	last   Output
}

// New validates p and returns a silent mixer.
func New(p Params) (*Mixer, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &Mixer{params: p}, nil
}

// Step mixes one tick and remembers the result.
func (m *Mixer) Step(agg crowd.Aggregate, dt time.Duration) Output {
	m.last = Mix(agg, m.last, dt, m.params)
	return m.last
}

// Output returns the last mixed output.
func (m *Mixer) Output() Output { return m.last }

// Params returns the mixer settings.
func (m *Mixer) Params() Params { return m.params }
