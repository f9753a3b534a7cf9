package replay_test

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/okian/ovation/internal/domain/crowd"
	"github.com/okian/ovation/internal/domain/model"
	"github.com/okian/ovation/internal/domain/replay"
	. "github.com/smartystreets/goconvey/convey"
)

func ms(n int) time.Duration { return time.Duration(n) * time.Millisecond }

type sink struct {
	got []model.InputEvent
	err error
}

func (s *sink) Inject(ev model.InputEvent) error {
	if s.err != nil {
		return s.err
	}
	s.got = append(s.got, ev)
	return nil
}

func TestRecorder(t *testing.T) {
	Convey("Given a recorder", t, func() {
		r := replay.NewRecorder(99, "warmup")

		Convey("Inputs are appended without their device payload", func() {
			So(r.Record(model.InputEvent{At: ms(10), Action: "tap", Raw: "keydown"}), ShouldBeNil)
			So(r.Record(model.InputEvent{At: ms(10), Action: "left"}), ShouldBeNil)
			So(r.Len(), ShouldEqual, 2)

			l, err := r.Finalize()
			So(err, ShouldBeNil)
			So(l.Version, ShouldEqual, replay.Version)
			So(l.Seed, ShouldEqual, uint64(99))
			So(l.Track, ShouldEqual, model.TrackID("warmup"))
			So(l.Events[0].Raw, ShouldBeNil)

			Convey("And the log is write-once", func() {
				err := r.Record(model.InputEvent{At: ms(20), Action: "tap"})
				So(errors.Is(err, replay.ErrFinalized), ShouldBeTrue)
				again, err := r.Finalize()
				So(errors.Is(err, replay.ErrFinalized), ShouldBeTrue)
				So(len(again.Events), ShouldEqual, 2)
			})
		})

		Convey("Out of order inputs are refused", func() {
			So(r.Record(model.InputEvent{At: ms(50), Action: "tap"}), ShouldBeNil)
			err := r.Record(model.InputEvent{At: ms(40), Action: "tap"})
			So(errors.Is(err, replay.ErrUnordered), ShouldBeTrue)
		})
	})
}

func TestPlayer(t *testing.T) {
	Convey("Given a player over a three-input log", t, func() {
		l := replay.Log{Version: replay.Version, Seed: 1, Track: "t", Events: []model.InputEvent{
			{At: ms(100), Action: "tap"}, {At: ms(200), Action: "tap"}, {At: ms(200), Action: "left"},
		}}
		p, err := replay.NewPlayer(l)
		So(err, ShouldBeNil)
		s := &sink{}

		Convey("Pump re-emits inputs at their recorded times", func() {
			n, err := p.Pump(ms(99), s)
			So(err, ShouldBeNil)
			So(n, ShouldEqual, 0)

			n, _ = p.Pump(ms(100), s)
			So(n, ShouldEqual, 1)
			n, _ = p.Pump(ms(500), s)
			So(n, ShouldEqual, 2)
			So(p.Done(), ShouldBeTrue)
			So(s.got, ShouldResemble, l.Events)
			So(p.Last(), ShouldEqual, ms(200))
		})

		Convey("An injection failure stops the pump", func() {
			s.err = errors.New("closed")
			n, err := p.Pump(ms(500), s)
			So(err, ShouldNotBeNil)
			So(n, ShouldEqual, 0)
			So(p.Remaining(), ShouldEqual, 3)
		})
	})

	Convey("Invalid logs are refused", t, func() {
		_, err := replay.NewPlayer(replay.Log{Version: 7, Track: "t"})
		So(errors.Is(err, replay.ErrVersion), ShouldBeTrue)

		_, err = replay.NewPlayer(replay.Log{Version: replay.Version, Track: "t", Events: []model.InputEvent{
			{At: ms(5), Action: "tap"}, {At: ms(1), Action: "tap"},
		}})
		So(errors.Is(err, replay.ErrUnordered), ShouldBeTrue)

		_, err = replay.NewPlayer(replay.Log{Version: replay.Version})
		So(errors.Is(err, replay.ErrCorrupt), ShouldBeTrue)
	})
}

func TestCodec(t *testing.T) {
	Convey("Given a log", t, func() {
		l := replay.Log{Version: replay.Version, Seed: 1 << 60, Track: "warmup", Events: []model.InputEvent{
			{At: ms(505), Action: "tap"}, {At: ms(1505), Action: "right"},
		}}

		Convey("Encoding is deterministic and decodes to the same log", func() {
			a, err := replay.Encode(l)
			So(err, ShouldBeNil)
			b, err := replay.Encode(l)
			So(err, ShouldBeNil)
			So(bytes.Equal(a, b), ShouldBeTrue)

			back, err := replay.Decode(a)
			So(err, ShouldBeNil)
			So(back, ShouldResemble, l)
		})

		Convey("Garbage does not decode", func() {
			_, err := replay.Decode([]byte{0xff, 0x00, 0x13})
			So(errors.Is(err, replay.ErrCorrupt), ShouldBeTrue)
		})
	})
}

func TestDigests(t *testing.T) {
	Convey("Judgment digests change with any field", t, func() {
		in := model.InputEvent{At: ms(505), Action: "tap"}
		js := []model.JudgmentEvent{
			{Target: 0, Quality: model.Miss, At: ms(50)},
			{Target: 1, Quality: model.Good, Delta: ms(5), Combo: 1, At: ms(505), Input: &in},
		}
		d := replay.JudgmentDigest(js)
		So(replay.JudgmentDigest(js), ShouldEqual, d)
		So(len(d), ShouldEqual, 64)

		changed := append([]model.JudgmentEvent(nil), js...)
		changed[1].Delta = ms(6)
		So(replay.JudgmentDigest(changed), ShouldNotEqual, d)
		So(replay.JudgmentDigest(js[:1]), ShouldNotEqual, d)
	})

	Convey("Trajectories fingerprint every aggregate", t, func() {
		a, b := replay.NewTrajectory(), replay.NewTrajectory()
		agg := crowd.Aggregate{MeanEnergy: 0.25, Population: 2}
		agg.Histogram[crowd.Idle] = 2
		a.Add(agg)
		b.Add(agg)
		So(a.Digest(), ShouldEqual, b.Digest())

		agg.MeanEnergy = 0.2500001
		b.Add(agg)
		a.Add(crowd.Aggregate{MeanEnergy: 0.25, Population: 2})
		So(a.Digest(), ShouldNotEqual, b.Digest())
		So(b.Len(), ShouldEqual, 2)
		So(b.Final().MeanEnergy, ShouldEqual, 0.2500001)
	})
}

func TestCompare(t *testing.T) {
	Convey("Given a recorded summary", t, func() {
		want := replay.Summary{Score: 200, Accuracy: 0.25, MaxCombo: 1, Good: 2, Miss: 2, JudgmentDigest: "abc", CrowdDigest: "def"}

		Convey("An identical replay matches", func() {
			So(replay.Compare(want, want), ShouldBeNil)
		})

		Convey("Any difference is a mismatch naming the field", func() {
			got := want
			got.Score = 9000
			got.CrowdDigest = "xyz"
			err := replay.Compare(want, got)
			So(errors.Is(err, replay.ErrReplayMismatch), ShouldBeTrue)
			So(err.Error(), ShouldContainSubstring, "score")
			So(err.Error(), ShouldContainSubstring, "crowd_digest")
		})

		Convey("Digests are skipped when the claim has none", func() {
			claim := want
			claim.JudgmentDigest, claim.CrowdDigest = "", ""
			So(replay.Compare(claim, want), ShouldBeNil)
		})
	})
}
