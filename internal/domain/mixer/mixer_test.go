package mixer_test

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/okian/ovation/internal/domain/crowd"
	"github.com/okian/ovation/internal/domain/mixer"
	. "github.com/smartystreets/goconvey/convey"
)

const tick = 10 * time.Millisecond

func aggregate(mean float64, hype, gloom int) crowd.Aggregate {
	agg := crowd.Aggregate{MeanEnergy: mean, Population: 10}
	agg.Histogram[crowd.Hype] = hype
	agg.Histogram[crowd.Disappointed] = gloom
	agg.Histogram[crowd.Idle] = 10 - hype - gloom
	return agg
}

type recorder map[string]float64

func (r recorder) PlayLayer(id string, gain float64) { r[id] = gain }

func TestMix(t *testing.T) {
	p := mixer.DefaultParams()

	Convey("Given a silent previous output", t, func() {
		var prev mixer.Output

		Convey("Gains are sorted by layer id", func() {
			out := mixer.Mix(aggregate(0.5, 0, 0), prev, tick, p)
			So(len(out.Gains), ShouldEqual, 4)
			So(out.Gains[0].ID, ShouldEqual, "chant")
			So(out.Gains[1].ID, ShouldEqual, "cheer")
			So(out.Gains[2].ID, ShouldEqual, "groan")
			So(out.Gains[3].ID, ShouldEqual, "murmur")
		})

		Convey("A step change never moves a gain more than MaxStep per tick", func() {
			full := aggregate(1, 10, 0)
			out := prev
			for i := 0; i < 200; i++ {
				next := mixer.Mix(full, out, tick, p)
				for _, g := range next.Gains {
					So(math.Abs(g.Gain-out.Gain(g.ID)), ShouldBeLessThanOrEqualTo, p.MaxStep+1e-12)
				}
				So(math.Abs(next.Intensity-out.Intensity), ShouldBeLessThanOrEqualTo, p.MaxStep+1e-12)
				out = next
			}

			Convey("And the output converges on the targets", func() {
				So(out.Gain("chant"), ShouldAlmostEqual, 1.0, 1e-3)
				So(out.Gain("cheer"), ShouldAlmostEqual, 0.9, 1e-3)
				So(out.Gain("murmur"), ShouldAlmostEqual, 0.4, 1e-3)
				So(out.Gain("groan"), ShouldAlmostEqual, 0.0, 1e-9)
				So(out.Intensity, ShouldAlmostEqual, 1.0, 1e-3)
				So(out.HypeFraction, ShouldEqual, 1.0)
			})

			Convey("And dropping back is limited the same way", func() {
				down := mixer.Mix(aggregate(0, 0, 10), out, tick, p)
				So(out.Gain("chant")-down.Gain("chant"), ShouldBeLessThanOrEqualTo, p.MaxStep+1e-12)
				So(down.Gain("groan"), ShouldBeGreaterThan, 0.0)
				So(down.Gloom, ShouldEqual, 1.0)
			})
		})

		Convey("Mix is a pure function of its inputs", func() {
			agg := aggregate(0.6, 3, 1)
			a := mixer.Mix(agg, prev, tick, p)
			b := mixer.Mix(agg, prev, tick, p)
			So(a, ShouldResemble, b)
			So(mixer.Mix(agg, a, tick, p), ShouldResemble, mixer.Mix(agg, b, tick, p))
		})

		Convey("A zero tick holds the previous output", func() {
			warm := mixer.Mix(aggregate(0.8, 5, 0), prev, tick, p)
			held := mixer.Mix(aggregate(0, 0, 10), warm, 0, p)
			So(held.Gain("cheer"), ShouldEqual, warm.Gain("cheer"))
		})
	})
}

func TestMixer(t *testing.T) {
	Convey("Given a mixer", t, func() {
		m, err := mixer.New(mixer.DefaultParams())
		So(err, ShouldBeNil)

		Convey("Step chains outputs and Apply forwards gains", func() {
			first := m.Step(aggregate(0.9, 8, 0), tick)
			second := m.Step(aggregate(0.9, 8, 0), tick)
			So(second.Gain("chant"), ShouldBeGreaterThan, first.Gain("chant"))
			So(m.Output(), ShouldResemble, second)

			r := recorder{}
			second.Apply(r)
			So(len(r), ShouldEqual, 4)
			So(r["chant"], ShouldEqual, second.Gain("chant"))
		})
	})

	Convey("Invalid params are rejected", t, func() {
		p := mixer.DefaultParams()
		p.MaxStep = 0
		_, err := mixer.New(p)
		So(errors.Is(err, mixer.ErrInvalidParams), ShouldBeTrue)

		p = mixer.DefaultParams()
		p.Layers = append(p.Layers, mixer.Layer{ID: "chant", Source: mixer.SourceHype, Width: 1, MaxGain: 1})
		So(errors.Is(p.Validate(), mixer.ErrInvalidParams), ShouldBeTrue)

		p = mixer.DefaultParams()
		p.Layers[0].Source = "weather"
		So(errors.Is(p.Validate(), mixer.ErrInvalidParams), ShouldBeTrue)
	})
}
