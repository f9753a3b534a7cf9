package scoring_test

import (
	"errors"
	"testing"
	"time"

	"github.com/okian/ovation/internal/domain/beatmap"
	"github.com/okian/ovation/internal/domain/model"
	"github.com/okian/ovation/internal/domain/scoring"
	. "github.com/smartystreets/goconvey/convey"
)

func ms(n int) time.Duration { return time.Duration(n) * time.Millisecond }

func newMap(t *testing.T, events ...model.BeatMapEvent) *beatmap.BeatMap {
	m, err := beatmap.New(beatmap.Track{ID: "t", Length: ms(3000)}, events)
	if err != nil {
		t.Fatal(err)
	}
	return m
}

func beatsAt(at ...int) []model.BeatMapEvent {
	out := make([]model.BeatMapEvent, len(at))
	for i, a := range at {
		out[i] = model.BeatMapEvent{At: ms(a)}
	}
	return out
}

func tap(at int) model.InputEvent { return model.InputEvent{At: ms(at), Action: "tap"} }

var windows = scoring.Windows{Perfect: ms(20), Good: ms(50)}

func TestJudge(t *testing.T) {
	Convey("Given a scorer with 20/50ms windows", t, func() {
		s := scoring.New(newMap(t, beatsAt(0, 500, 1000, 1040)...), scoring.WithWindows(windows))
		So(s.Pending(), ShouldEqual, 4)

		Convey("Inputs are graded by distance", func() {
			out, err := s.Judge(tap(510))
			So(err, ShouldBeNil)
			So(len(out), ShouldEqual, 2)
			So(out[0].Quality, ShouldEqual, model.Miss)
			So(out[0].Input, ShouldBeNil)
			So(out[1].Target, ShouldEqual, 1)
			So(out[1].Quality, ShouldEqual, model.Perfect)
			So(out[1].Delta, ShouldEqual, ms(10))

			out, err = s.Judge(tap(965))
			So(err, ShouldBeNil)
			So(out[0].Quality, ShouldEqual, model.Good)
			So(out[0].Delta, ShouldEqual, -ms(35))
		})

		Convey("The window edge is inclusive", func() {
			out, err := s.Judge(tap(550))
			So(err, ShouldBeNil)
			So(out[len(out)-1].Quality, ShouldEqual, model.Good)
		})

		Convey("Two pending events in tolerance resolve to the earlier one", func() {
			_ = s.Sweep(ms(900))
			out, err := s.Judge(tap(1010))
			So(err, ShouldBeNil)
			So(len(out), ShouldEqual, 1)
			So(out[0].TargetAt, ShouldEqual, ms(1000))
			So(s.Pending(), ShouldEqual, 1)

			dl, ok := s.NextDeadline()
			So(ok, ShouldBeTrue)
			So(dl, ShouldEqual, ms(1090))
		})

		Convey("An input with nothing in range is not judged", func() {
			out, err := s.Judge(tap(250))
			So(errors.Is(err, scoring.ErrNoTarget), ShouldBeTrue)
			So(len(out), ShouldEqual, 1)
			So(s.Stats().Judged(), ShouldEqual, 1)
		})

		Convey("Inputs outside the track are malformed and change nothing", func() {
			_, err := s.Judge(tap(-5))
			So(errors.Is(err, scoring.ErrMalformedInput), ShouldBeTrue)
			_, err = s.Judge(tap(3001))
			So(errors.Is(err, scoring.ErrMalformedInput), ShouldBeTrue)
			So(s.Stats().Judged(), ShouldEqual, 0)
		})

		Convey("An event is never judged twice", func() {
			_, err := s.Judge(tap(0))
			So(err, ShouldBeNil)
			_, err = s.Judge(tap(10))
			So(errors.Is(err, scoring.ErrNoTarget), ShouldBeTrue)
		})
	})
}

func TestTimeouts(t *testing.T) {
	Convey("Given a scorer with no input at all", t, func() {
		s := scoring.New(newMap(t, beatsAt(0, 500, 1000, 1500)...), scoring.WithWindows(windows))

		Convey("Sweep fires only once the deadline is strictly passed", func() {
			So(s.Sweep(ms(50)), ShouldBeEmpty)
			out := s.Sweep(ms(51))
			So(len(out), ShouldEqual, 1)
			So(out[0].At, ShouldEqual, ms(50))
			So(out[0].Quality, ShouldEqual, model.Miss)
		})

		Convey("Finish judges every remaining event", func() {
			_ = s.Sweep(ms(600))
			out := s.Finish()
			So(len(out), ShouldEqual, 2)
			So(s.Done(), ShouldBeTrue)
			So(s.Pending(), ShouldEqual, 0)
			So(len(s.Judgments()), ShouldEqual, 4)
			_, ok := s.NextDeadline()
			So(ok, ShouldBeFalse)
		})
	})
}

func TestCombo(t *testing.T) {
	Convey("Given a long run of hits", t, func() {
		s := scoring.New(newMap(t, beatsAt(0, 100, 200, 300, 400, 500, 600)...), scoring.WithWindows(windows))
		for _, at := range []int{0, 100, 200, 300, 400} {
			_, err := s.Judge(tap(at))
			So(err, ShouldBeNil)
		}
		So(s.Stats().Combo, ShouldEqual, 5)

		Convey("A single miss resets the combo to zero", func() {
			out := s.Sweep(ms(551))
			So(len(out), ShouldEqual, 1)
			So(out[0].Combo, ShouldEqual, 0)
			So(s.Stats().Combo, ShouldEqual, 0)
			So(s.Stats().MaxCombo, ShouldEqual, 5)

			_, err := s.Judge(tap(600))
			So(err, ShouldBeNil)
			So(s.Stats().Combo, ShouldEqual, 1)
		})

		Convey("Score grows with the combo bonus", func() {
			st := s.Stats()
			So(st.Score, ShouldEqual, int64(300+303+306+309+312))
			So(st.Accuracy(), ShouldEqual, 1.0)
		})
	})
}

func TestLanes(t *testing.T) {
	Convey("Given notes on two lanes at the same time", t, func() {
		s := scoring.New(newMap(t,
			model.BeatMapEvent{At: ms(100), Kind: model.Note, Lane: "left"},
			model.BeatMapEvent{At: ms(100), Kind: model.Note, Lane: "right", Weight: 2},
		), scoring.WithWindows(windows))

		Convey("Each input judges the note on its own lane", func() {
			out, err := s.Judge(model.InputEvent{At: ms(130), Action: "right"})
			So(err, ShouldBeNil)
			So(out[0].Target, ShouldEqual, 1)
			So(out[0].Quality, ShouldEqual, model.Good)
			So(s.Stats().Score, ShouldEqual, int64(200))

			_, err = s.Judge(model.InputEvent{At: ms(131), Action: "up"})
			So(errors.Is(err, scoring.ErrNoTarget), ShouldBeTrue)

			out, err = s.Judge(model.InputEvent{At: ms(95), Action: "left"})
			So(err, ShouldBeNil)
			So(out[0].Target, ShouldEqual, 0)
			So(out[0].Quality, ShouldEqual, model.Perfect)
		})
	})
}

func TestStats(t *testing.T) {
	Convey("Accuracy weights Good as half a Perfect", t, func() {
		st := scoring.Stats{Perfect: 1, Good: 2, Miss: 1}
		So(st.Judged(), ShouldEqual, 4)
		So(st.Accuracy(), ShouldEqual, 0.5)
		So(scoring.Stats{}.Accuracy(), ShouldEqual, 0.0)
	})

	Convey("Windows validate their ordering", t, func() {
		So(scoring.DefaultWindows().Validate(), ShouldBeNil)
		So(errors.Is(scoring.Windows{Perfect: ms(60), Good: ms(50)}.Validate(), scoring.ErrInvalidWindows), ShouldBeTrue)
		So(errors.Is(scoring.Windows{}.Validate(), scoring.ErrInvalidWindows), ShouldBeTrue)
	})
}
