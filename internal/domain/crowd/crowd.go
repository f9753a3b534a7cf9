// Package crowd simulates the audience: a fixed population of agents whose
// energy and mood react to judgments and relax with song time.
//
// Agents differ only through a personality bias derived from the session
// seed and the agent id with BLAKE3, so two runs with the same seed and the
// same judgment sequence produce bit-identical trajectories. All arithmetic
// is plain float64 with explicit rounding points; there are no random draws
// and no transcendental functions.
package crowd

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"github.com/okian/ovation/internal/domain/model"
	"github.com/okian/ovation/pkg/logger"
	"github.com/zeebo/blake3"
)

// Agent is one simulated spectator.
type Agent struct {
	ID     uint32  `json:"id"`
	Mood   Mood    `json:"mood"`
	Energy float64 `json:"energy"`
	Bias   float64 `json:"bias"`
}

// Aggregate is the per-tick summary read by the mixer and the renderer.
type Aggregate struct {
	MeanEnergy float64        `json:"mean_energy"`
	Histogram  [moodCount]int `json:"histogram"`
	Population int            `json:"population"`
}

// Fraction returns the share of the population in mood m.
func (a Aggregate) Fraction(m Mood) float64 {
	if a.Population == 0 || m >= moodCount {
		return 0
	}
	return float64(a.Histogram[m]) / float64(a.Population)
}

// Dominant returns the most common mood, the calmer one on ties.
func (a Aggregate) Dominant() Mood {
	best := Idle
	for m := Idle; m < moodCount; m++ {
		if a.Histogram[m] > a.Histogram[best] {
			best = m
		}
	}
	return best
}

// Crowd owns the agent population of one session. Apply and Step must be
// called from the session tick only; Aggregate may be read from any
// goroutine.
type Crowd struct {
	seed   uint64
	params Params
	logger logger.Logger

	agents   []Agent
	snapshot atomic.Pointer[Aggregate]
}

// New creates a population seeded by seed. Every agent starts Idle at the
// rest energy.
func New(seed uint64, opts ...Option) (*Crowd, error) {
	c := &Crowd{
		seed:   seed,
		params: DefaultParams(),
		logger: logger.GetOrNop().Named("crowd"),
	}
	for _, opt := range opts {
		opt(c)
	}
	if err := c.params.Validate(); err != nil {
		return nil, err
	}

	c.agents = make([]Agent, c.params.Population)
	for i := range c.agents {
		id := uint32(i)
		c.agents[i] = Agent{
			ID:     id,
			Mood:   Idle,
			Energy: c.params.RestEnergy,
			Bias:   Bias(seed, id, c.params.BiasMin, c.params.BiasMax),
		}
	}
	c.publish()

	c.logger.Debug(context.Background(), "crowd created",
		logger.Uint64("seed", seed),
		logger.Int("population", len(c.agents)),
	)
	return c, nil
}

// Bias maps (seed, id) into [lo, hi]. It is a pure function: the same inputs
// always give the same bias.
func Bias(seed uint64, id uint32, lo, hi float64) float64 {
	var buf [12]byte
	binary.LittleEndian.PutUint64(buf[:8], seed)
	binary.LittleEndian.PutUint32(buf[8:], id)
	sum := blake3.Sum256(buf[:])
	// 53 bits give a uniform float64 in [0, 1).
	u := float64(binary.LittleEndian.Uint64(sum[:8])>>11) / (1 << 53)
	return lo + float64(u*(hi-lo))
}

// Params returns the tuning in use.
func (c *Crowd) Params() Params { return c.params }

// Seed returns the population seed.
func (c *Crowd) Seed() uint64 { return c.seed }

// Apply moves every agent in response to one judgment. weight is the judged
// event's weight. Judgments must be applied in the order the scorer produced
// them.
func (c *Crowd) Apply(j model.JudgmentEvent, weight float64) {
	p := c.params
	switch j.Quality {
	case model.Perfect, model.Good:
		step := float64(p.HitGain * weight * c.comboFactor(j.Combo))
		if j.Quality == model.Good {
			step = float64(step * p.GoodFactor)
		}
		for i := range c.agents {
			a := &c.agents[i]
			gain := float64(step*a.Bias) * (1 - a.Energy)
			a.Energy = clamp01(a.Energy + gain)
			a.Mood = NextMood(a.Mood, a.Energy, p)
		}
	default:
		for i := range c.agents {
			a := &c.agents[i]
			a.Energy = clamp01(a.Energy - float64(p.MissDrop*a.Bias))
			if a.Energy < p.DisappointedBelow {
				a.Mood = Disappointed
				continue
			}
			a.Mood = NextMood(a.Mood, a.Energy, p)
		}
	}
}

// comboFactor saturates toward 1 as the combo grows: each extra hit in a
// streak adds less than the one before.
func (c *Crowd) comboFactor(combo int) float64 {
	n := float64(combo + 1)
	return n / (n + c.params.ComboHalf)
}

// Step relaxes every agent toward the rest energy for dt of song time,
// updates moods and publishes a new aggregate.
func (c *Crowd) Step(dt time.Duration) Aggregate {
	p := c.params
	decay := float64(p.DecayPerSecond * dt.Seconds())
	for i := range c.agents {
		a := &c.agents[i]
		switch {
		case a.Energy > p.RestEnergy:
			a.Energy = math.Max(p.RestEnergy, a.Energy-decay)
		case a.Energy < p.RestEnergy:
			a.Energy = math.Min(p.RestEnergy, a.Energy+decay)
		}
		a.Mood = NextMood(a.Mood, a.Energy, p)
	}
	return c.publish()
}

func (c *Crowd) publish() Aggregate {
	agg := Aggregate{Population: len(c.agents)}
	var sum float64
	for _, a := range c.agents {
		sum += a.Energy
		agg.Histogram[a.Mood]++
	}
	if agg.Population > 0 {
		agg.MeanEnergy = sum / float64(agg.Population)
	}
	c.snapshot.Store(&agg)
	return agg
}

// Aggregate returns the last published aggregate. The value is immutable; a
// concurrent Step is never observed half-applied.
func (c *Crowd) Aggregate() Aggregate {
	return *c.snapshot.Load()
}

// Agents returns a copy of the population.
func (c *Crowd) Agents() []Agent {
	out := make([]Agent, len(c.agents))
	copy(out, c.agents)
	return out
}

// Agent returns the agent with the given id.
func (c *Crowd) Agent(id uint32) (Agent, error) {
	if int(id) >= len(c.agents) {
		return Agent{}, fmt.Errorf("agent %d of %d: %w", id, len(c.agents), ErrInvalidParams)
	}
	return c.agents[id], nil
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
