package session_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/okian/ovation/internal/domain/beatclock"
	"github.com/okian/ovation/internal/domain/beatmap"
	"github.com/okian/ovation/internal/domain/crowd"
	"github.com/okian/ovation/internal/domain/input"
	"github.com/okian/ovation/internal/domain/model"
	"github.com/okian/ovation/internal/domain/replay"
	"github.com/okian/ovation/internal/domain/scoring"
	"github.com/okian/ovation/internal/session"
	"github.com/okian/ovation/pkg/clock"
	. "github.com/smartystreets/goconvey/convey"
)

func ms(n int) time.Duration { return time.Duration(n) * time.Millisecond }

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func fourBeats() *beatmap.BeatMap {
	m, err := beatmap.New(beatmap.Track{ID: "warmup"}, []model.BeatMapEvent{
		{At: ms(0), Kind: model.Beat},
		{At: ms(500), Kind: model.Beat},
		{At: ms(1000), Kind: model.Beat},
		{At: ms(1500), Kind: model.Beat},
	})
	if err != nil {
		panic(err)
	}
	return m
}

func tightRules() session.Rules {
	r := session.DefaultRules()
	r.Windows = scoring.Windows{Perfect: ms(2), Good: ms(50)}
	return r
}

type rig struct {
	s     *session.Session
	audio *beatclock.Manual
	wall  *clock.FakeClock
}

func newLive(rules session.Rules, opts ...session.Option) rig {
	audio := beatclock.NewManual()
	wall := clock.Fake(epoch)
	opts = append([]session.Option{session.WithAudio(audio), session.WithWallClock(wall)}, opts...)
	s, err := session.New(session.Config{Beats: fourBeats(), Seed: 7, Mode: session.Live, Rules: rules}, opts...)
	So(err, ShouldBeNil)
	So(s.Start(), ShouldBeNil)
	return rig{s: s, audio: audio, wall: wall}
}

// press moves the audio to at and taps space there.
func (r rig) press(at time.Duration) {
	r.audio.Set(at)
	So(r.s.Submit(input.Raw{Physical: "space", Device: input.Keyboard}), ShouldBeNil)
}

func (r rig) tickAt(at time.Duration) session.Frame {
	r.audio.Set(at)
	f, err := r.s.Tick()
	So(err, ShouldBeNil)
	return f
}

func qualities(js []model.JudgmentEvent) []model.Quality {
	out := make([]model.Quality, len(js))
	for i, j := range js {
		out[i] = j.Quality
	}
	return out
}

type chants struct {
	mu    sync.Mutex
	leads []time.Duration
}

func (c *chants) Trigger(sample string, lead time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if sample == session.ChantSample {
		c.leads = append(c.leads, lead)
	}
}

func (c *chants) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.leads)
}

type layers map[string]float64

func (l layers) PlayLayer(id string, gain float64) { l[id] = gain }

func TestNew(t *testing.T) {
	Convey("An empty beat map is refused", t, func() {
		_, err := session.New(session.Config{Rules: session.DefaultRules()})
		So(errors.Is(err, beatmap.ErrEmptyBeatMap), ShouldBeTrue)
	})

	Convey("A live session needs audio", t, func() {
		_, err := session.New(session.Config{Beats: fourBeats(), Rules: session.DefaultRules()})
		So(errors.Is(err, session.ErrNoAudio), ShouldBeTrue)
	})

	Convey("Invalid rules are refused", t, func() {
		r := session.DefaultRules()
		r.Step = 0
		_, err := session.New(session.Config{Beats: fourBeats(), Rules: r}, session.WithAudio(beatclock.NewManual()))
		So(errors.Is(err, session.ErrInvalidRules), ShouldBeTrue)
	})

	Convey("The session ends one grid step after the last deadline", t, func() {
		s, err := session.New(session.Config{Beats: fourBeats(), Rules: tightRules()},
			session.WithAudio(beatclock.NewManual()), session.WithID("s-1"))
		So(err, ShouldBeNil)
		So(s.ID(), ShouldEqual, "s-1")
		So(s.End(), ShouldEqual, ms(1560))
		So(s.Frame().Pending, ShouldEqual, 4)
	})
}

func TestLiveRun(t *testing.T) {
	Convey("Given a live run hitting the second and fourth beats late", t, func() {
		r := newLive(tightRules())
		defer r.s.Dispose()

		r.press(ms(505))
		f := r.tickAt(ms(505))
		So(f.Simulated, ShouldEqual, ms(445))
		So(len(f.Recent), ShouldEqual, 1)
		So(f.Recent[0].Quality, ShouldEqual, model.Miss)

		f = r.tickAt(ms(600))
		So(f.Combo, ShouldEqual, 1)
		So(f.Score, ShouldEqual, int64(100))

		r.press(ms(1505))
		r.tickAt(ms(1600))

		summary, log, err := r.s.Finish()
		So(err, ShouldBeNil)

		Convey("Judgments come out in production order", func() {
			js := r.s.Judgments()
			So(qualities(js), ShouldResemble, []model.Quality{model.Miss, model.Good, model.Miss, model.Good})
			So(js[1].Delta, ShouldEqual, ms(5))
			So(js[2].At, ShouldEqual, ms(1050))
		})

		Convey("The summary reflects the run", func() {
			So(summary.Score, ShouldEqual, int64(200))
			So(summary.Good, ShouldEqual, 2)
			So(summary.Miss, ShouldEqual, 2)
			So(summary.MaxCombo, ShouldEqual, 1)
			So(summary.Accuracy, ShouldAlmostEqual, 0.25, 1e-12)
			So(summary.JudgmentDigest, ShouldNotBeEmpty)
			So(summary.CrowdDigest, ShouldNotBeEmpty)
			So(r.s.Frame().Done, ShouldBeTrue)
			So(r.s.Frame().Combo, ShouldEqual, 1)
		})

		Convey("The crowd never reached hype", func() {
			agg := r.s.Frame().Crowd
			So(agg.Histogram[crowd.Hype], ShouldEqual, 0)
			So(agg.MeanEnergy, ShouldBeLessThan, crowd.DefaultParams().HypeUp)
		})

		Convey("The log holds exactly the processed inputs", func() {
			So(log.Seed, ShouldEqual, uint64(7))
			So(log.Track, ShouldEqual, model.TrackID("warmup"))
			So(len(log.Events), ShouldEqual, 2)
			So(log.Events[0].At, ShouldEqual, ms(505))
			So(log.Events[1].At, ShouldEqual, ms(1505))
		})

		Convey("Finish is idempotent", func() {
			again, _, err := r.s.Finish()
			So(err, ShouldBeNil)
			So(again, ShouldResemble, summary)
		})

		Convey("Replaying the log reproduces the run", func() {
			out, err := session.Verify(context.Background(), fourBeats(), log, summary, tightRules())
			So(err, ShouldBeNil)
			So(out.Summary, ShouldResemble, summary)
			So(qualities(out.Judgments), ShouldResemble, qualities(r.s.Judgments()))
			digest, steps := r.s.Trajectory()
			So(out.Summary.CrowdDigest, ShouldEqual, digest)
			So(out.Steps, ShouldEqual, steps)
			So(out.Steps, ShouldEqual, 156)
		})

		Convey("A tampered claim fails verification", func() {
			claim := summary
			claim.Score += 50
			_, err := session.Verify(context.Background(), fourBeats(), log, claim, tightRules())
			So(errors.Is(err, replay.ErrReplayMismatch), ShouldBeTrue)
		})

		Convey("Different rules do not reproduce the run", func() {
			loose := tightRules()
			loose.Windows = scoring.Windows{Perfect: ms(10), Good: ms(50)}
			_, err := session.Verify(context.Background(), fourBeats(), log, summary, loose)
			So(errors.Is(err, replay.ErrReplayMismatch), ShouldBeTrue)
		})
	})
}

func TestTickCadence(t *testing.T) {
	Convey("The outcome does not depend on how often the session ticks", t, func() {
		busy := newLive(tightRules())
		for at := 0; at <= 1700; at += 7 {
			if at == 504 || at == 1001 {
				busy.press(ms(at + 1))
			}
			busy.tickAt(ms(at))
		}
		a, _, err := busy.s.Finish()
		So(err, ShouldBeNil)

		idle := newLive(tightRules())
		idle.press(ms(505))
		idle.press(ms(1002))
		b, _, err := idle.s.Finish()
		So(err, ShouldBeNil)

		So(b, ShouldResemble, a)
	})
}

func TestLateInput(t *testing.T) {
	Convey("Given a session simulated past an input's time", t, func() {
		r := newLive(tightRules())
		r.tickAt(ms(600))
		So(r.s.Frame().Simulated, ShouldEqual, ms(540))

		Convey("A delayed device event is dropped and not recorded", func() {
			So(r.s.Submit(input.Raw{Physical: "space", WallClock: epoch.Add(-ms(200))}), ShouldBeNil)
			f := r.tickAt(ms(700))
			So(f.Combo, ShouldEqual, 0)

			_, log, err := r.s.Finish()
			So(err, ShouldBeNil)
			So(len(log.Events), ShouldEqual, 0)
		})
	})
}

func TestLateInputReleasesItsBeat(t *testing.T) {
	Convey("Given a late press dropped inside a beat's window", t, func() {
		r := newLive(tightRules())
		defer r.s.Dispose()
		r.tickAt(ms(1040))
		So(r.s.Submit(input.Raw{Physical: "space", WallClock: epoch.Add(-ms(70))}), ShouldBeNil)
		r.tickAt(ms(1040))

		Convey("A timely press for the same beat is still judged", func() {
			So(r.s.Submit(input.Raw{Physical: "space", WallClock: epoch.Add(-ms(40))}), ShouldBeNil)
			f := r.tickAt(ms(1100))
			So(f.Combo, ShouldEqual, 1)

			_, log, err := r.s.Finish()
			So(err, ShouldBeNil)
			So(len(log.Events), ShouldEqual, 1)
			So(log.Events[0].At, ShouldEqual, ms(1000))
		})
	})
}

func TestInputsAfterEnd(t *testing.T) {
	Convey("Inputs past the end of the session are not recorded", t, func() {
		r := newLive(tightRules())
		r.press(ms(3000))
		summary, log, err := r.s.Finish()
		So(err, ShouldBeNil)
		So(len(log.Events), ShouldEqual, 0)
		So(summary.Miss, ShouldEqual, 4)
	})
}

func TestChants(t *testing.T) {
	Convey("Given a live session that always chants", t, func() {
		rules := tightRules()
		rules.ChantHype = 0
		c := &chants{}
		l := layers{}
		r := newLive(rules, session.WithSampleTrigger(c), session.WithLayerPlayer(l))
		defer r.s.Dispose()

		r.tickAt(0)
		So(r.s.Clock().Pending(), ShouldEqual, 2)

		Convey("Cues fire one lookahead before their beat", func() {
			r.tickAt(ms(399))
			So(c.count(), ShouldEqual, 0)
			r.tickAt(ms(400))
			So(c.count(), ShouldEqual, 1)
			So(c.leads[0], ShouldEqual, ms(100))
		})

		Convey("Mixer gains reach the layer player", func() {
			r.tickAt(ms(200))
			So(len(l), ShouldEqual, 4)
		})
	})

	Convey("A replay never triggers samples", t, func() {
		rules := tightRules()
		rules.ChantHype = 0
		c := &chants{}
		_, err := session.Replay(context.Background(), fourBeats(),
			replay.Log{Version: replay.Version, Track: "warmup"}, rules, session.WithSampleTrigger(c))
		So(err, ShouldBeNil)
		So(c.count(), ShouldEqual, 0)
	})
}

func TestReplay(t *testing.T) {
	Convey("A log for another track is refused", t, func() {
		_, err := session.Replay(context.Background(), fourBeats(),
			replay.Log{Version: replay.Version, Track: "other"}, tightRules())
		So(errors.Is(err, session.ErrTrackMismatch), ShouldBeTrue)
	})

	Convey("A cancelled context stops the replay", t, func() {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := session.Replay(ctx, fourBeats(), replay.Log{Version: replay.Version, Track: "warmup"}, tightRules())
		So(errors.Is(err, context.Canceled), ShouldBeTrue)
	})

	Convey("Inputs far past the end do not stretch the replay", t, func() {
		rules := tightRules()
		log := replay.Log{Version: replay.Version, Seed: 3, Track: "warmup", Events: []model.InputEvent{
			{At: ms(505), Action: "tap"},
			{At: 8760 * time.Hour, Action: "tap"},
		}}
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()

		out, err := session.Replay(ctx, fourBeats(), log, rules)
		So(err, ShouldBeNil)
		end := session.EndOf(fourBeats(), rules)
		So(out.Steps, ShouldBeLessThanOrEqualTo, int((end+rules.InputGrace+rules.Step)/rules.Step)+1)
		So(out.Summary.Good+out.Summary.Perfect, ShouldEqual, 1)
		So(out.Summary.Miss, ShouldEqual, 3)
	})

	Convey("An empty log misses everything", t, func() {
		out, err := session.Replay(context.Background(), fourBeats(),
			replay.Log{Version: replay.Version, Seed: 3, Track: "warmup"}, tightRules())
		So(err, ShouldBeNil)
		So(out.Summary.Miss, ShouldEqual, 4)
		So(out.Summary.Score, ShouldEqual, int64(0))
	})
}

func TestLifecycle(t *testing.T) {
	Convey("Given a live session", t, func() {
		r := newLive(tightRules())

		Convey("Pause freezes song time", func() {
			r.audio.Set(ms(100))
			So(r.s.Pause(), ShouldBeNil)
			r.audio.Set(ms(300))
			So(r.s.Clock().Now(), ShouldEqual, ms(100))
			So(r.s.Resume(), ShouldBeNil)
		})

		Convey("Run returns when its context ends", func() {
			ctx, cancel := context.WithCancel(context.Background())
			cancel()
			So(errors.Is(r.s.Run(ctx, ms(16)), context.Canceled), ShouldBeTrue)
		})

		Convey("A disposed session refuses work", func() {
			r.s.Dispose()
			_, err := r.s.Tick()
			So(errors.Is(err, session.ErrDisposed), ShouldBeTrue)
			_, _, err = r.s.Finish()
			So(errors.Is(err, session.ErrDisposed), ShouldBeTrue)
		})
	})
}
