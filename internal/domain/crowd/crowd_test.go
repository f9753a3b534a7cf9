package crowd_test

import (
	"errors"
	"testing"
	"time"

	"github.com/okian/ovation/internal/domain/crowd"
	"github.com/okian/ovation/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func hit(q model.Quality, combo int) model.JudgmentEvent {
	return model.JudgmentEvent{Quality: q, Combo: combo}
}

func miss() model.JudgmentEvent { return model.JudgmentEvent{Quality: model.Miss} }

func run(c *crowd.Crowd) {
	seq := []model.JudgmentEvent{
		hit(model.Perfect, 1), hit(model.Perfect, 2), hit(model.Good, 3), miss(), hit(model.Perfect, 1),
	}
	for _, j := range seq {
		c.Apply(j, 1)
		c.Step(100 * time.Millisecond)
	}
}

func uniform() crowd.Params {
	p := crowd.DefaultParams()
	p.Population = 4
	p.BiasMin, p.BiasMax = 1, 1
	p.HitGain = 1
	p.MissDrop = 1
	return p
}

func TestBias(t *testing.T) {
	Convey("Bias is a pure function of seed and id", t, func() {
		a := crowd.Bias(7, 3, 0.5, 1.5)
		So(crowd.Bias(7, 3, 0.5, 1.5), ShouldEqual, a)
		So(a, ShouldBeBetweenOrEqual, 0.5, 1.5)
		So(crowd.Bias(7, 4, 0.5, 1.5), ShouldNotEqual, a)
		So(crowd.Bias(8, 3, 0.5, 1.5), ShouldNotEqual, a)
	})
}

func TestDeterminism(t *testing.T) {
	Convey("Given two crowds with the same seed", t, func() {
		a, err := crowd.New(42, crowd.WithPopulation(32))
		So(err, ShouldBeNil)
		b, err := crowd.New(42, crowd.WithPopulation(32))
		So(err, ShouldBeNil)

		Convey("The same judgments give bit-identical agents", func() {
			run(a)
			run(b)
			So(a.Agents(), ShouldResemble, b.Agents())
			So(a.Aggregate(), ShouldResemble, b.Aggregate())
		})

		Convey("Agents with different biases diverge", func() {
			run(a)
			agents := a.Agents()
			So(agents[0].Bias, ShouldNotEqual, agents[1].Bias)
			So(agents[0].Energy, ShouldNotEqual, agents[1].Energy)
		})

		Convey("A different seed gives a different crowd", func() {
			c, err := crowd.New(43, crowd.WithPopulation(32))
			So(err, ShouldBeNil)
			run(a)
			run(c)
			So(a.Aggregate().MeanEnergy, ShouldNotEqual, c.Aggregate().MeanEnergy)
		})
	})
}

func TestMoodTransitions(t *testing.T) {
	p := crowd.DefaultParams()

	Convey("Thresholds have hysteresis", t, func() {
		So(crowd.NextMood(crowd.Idle, 0.34, p), ShouldEqual, crowd.Idle)
		So(crowd.NextMood(crowd.Idle, 0.35, p), ShouldEqual, crowd.Excited)
		So(crowd.NextMood(crowd.Excited, 0.30, p), ShouldEqual, crowd.Excited)
		So(crowd.NextMood(crowd.Excited, 0.24, p), ShouldEqual, crowd.Idle)
		So(crowd.NextMood(crowd.Excited, 0.75, p), ShouldEqual, crowd.Hype)
		So(crowd.NextMood(crowd.Hype, 0.65, p), ShouldEqual, crowd.Hype)
		So(crowd.NextMood(crowd.Hype, 0.59, p), ShouldEqual, crowd.Excited)
	})

	Convey("Moods move one level per update", t, func() {
		So(crowd.NextMood(crowd.Idle, 0.99, p), ShouldEqual, crowd.Excited)
		So(crowd.NextMood(crowd.Hype, 0.0, p), ShouldEqual, crowd.Excited)
	})

	Convey("Given a crowd driven to Hype", t, func() {
		c, err := crowd.New(1, crowd.WithParams(uniform()))
		So(err, ShouldBeNil)
		c.Apply(hit(model.Perfect, 20), 1)
		c.Apply(hit(model.Perfect, 21), 1)
		agg := c.Step(time.Millisecond)
		So(agg.Histogram[crowd.Hype], ShouldEqual, 4)
		So(agg.Dominant(), ShouldEqual, crowd.Hype)
		So(agg.Fraction(crowd.Hype), ShouldEqual, 1.0)

		Convey("A miss sends everyone straight to Disappointed", func() {
			c.Apply(miss(), 1)
			a, err := c.Agent(0)
			So(err, ShouldBeNil)
			So(a.Mood, ShouldEqual, crowd.Disappointed)
			So(a.Energy, ShouldEqual, 0.0)

			Convey("And decay toward rest brings them back to Idle", func() {
				agg := c.Step(2 * time.Second)
				So(agg.Histogram[crowd.Idle], ShouldEqual, 4)
				So(agg.MeanEnergy, ShouldAlmostEqual, 0.15, 1e-12)
			})
		})
	})
}

func TestEnergy(t *testing.T) {
	Convey("Given a uniform crowd", t, func() {
		p := uniform()
		p.HitGain = 0.2

		gainAt := func(combo int) float64 {
			c, err := crowd.New(1, crowd.WithParams(p))
			So(err, ShouldBeNil)
			c.Apply(hit(model.Perfect, combo), 1)
			a, _ := c.Agent(0)
			return a.Energy - p.RestEnergy
		}

		Convey("The combo effect saturates", func() {
			g1, g10, g100, g1000 := gainAt(1), gainAt(10), gainAt(100), gainAt(1000)
			So(g10, ShouldBeGreaterThan, g1)
			So(g100, ShouldBeGreaterThan, g10)
			So(g1000-g100, ShouldBeLessThan, g10-g1)
			So(g1000, ShouldBeLessThan, 1.1*g100)
		})

		Convey("Good moves energy less than Perfect", func() {
			c, _ := crowd.New(1, crowd.WithParams(p))
			c.Apply(hit(model.Good, 1), 1)
			a, _ := c.Agent(0)
			So(a.Energy-p.RestEnergy, ShouldBeLessThan, gainAt(1))
		})

		Convey("Energy stays within [0,1] under long streaks", func() {
			c, _ := crowd.New(1, crowd.WithParams(p))
			for i := 1; i <= 500; i++ {
				c.Apply(hit(model.Perfect, i), 3)
			}
			a, _ := c.Agent(0)
			So(a.Energy, ShouldBeLessThanOrEqualTo, 1.0)
			So(a.Energy, ShouldBeGreaterThan, 0.99)
		})

		Convey("Decay is linear toward rest", func() {
			c, _ := crowd.New(1, crowd.WithParams(p))
			c.Apply(hit(model.Perfect, 50), 1)
			before, _ := c.Agent(0)
			c.Step(500 * time.Millisecond)
			after, _ := c.Agent(0)
			So(before.Energy-after.Energy, ShouldAlmostEqual, 0.06, 1e-9)
		})
	})
}

func TestParams(t *testing.T) {
	Convey("Invalid params are rejected", t, func() {
		p := crowd.DefaultParams()
		So(p.Validate(), ShouldBeNil)

		bad := p
		bad.ExcitedDown = 0.5
		So(errors.Is(bad.Validate(), crowd.ErrInvalidParams), ShouldBeTrue)

		bad = p
		bad.Population = 0
		_, err := crowd.New(1, crowd.WithParams(bad))
		So(errors.Is(err, crowd.ErrInvalidParams), ShouldBeTrue)

		bad = p
		bad.BiasMin = 0
		So(errors.Is(bad.Validate(), crowd.ErrInvalidParams), ShouldBeTrue)

		_, err = crowd.New(1)
		So(err, ShouldBeNil)
	})
}
