// Package session owns one run of a track: its clock, input capture,
// scorer, crowd, mixer and replay log.
//
// The simulation advances on a fixed song time grid. Scorer timeouts and
// grid steps are interleaved strictly in time order, and every input first
// advances the simulation to its own time before it is judged. The outcome
// therefore depends only on the sequence of processed inputs, never on
// when ticks happen to run, which is what lets a replay reproduce a live
// run exactly.
package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/okian/ovation/internal/domain/beatclock"
	"github.com/okian/ovation/internal/domain/beatmap"
	"github.com/okian/ovation/internal/domain/crowd"
	"github.com/okian/ovation/internal/domain/input"
	"github.com/okian/ovation/internal/domain/mixer"
	"github.com/okian/ovation/internal/domain/model"
	"github.com/okian/ovation/internal/domain/replay"
	"github.com/okian/ovation/internal/domain/scoring"
	"github.com/okian/ovation/pkg/clock"
	"github.com/okian/ovation/pkg/logger"
	"github.com/okian/ovation/pkg/metrics"
)

// ChantSample is the sample name passed to the SampleTrigger for crowd
// chants.
const ChantSample = "chant"

// Mode is where a session takes its inputs from.
type Mode uint8

const (
	Live Mode = iota
	Playback
)

func (m Mode) String() string {
	if m == Playback {
		return "replay"
	}
	return "live"
}

// Config describes the run.
type Config struct {
	Beats  *beatmap.BeatMap
	Seed   uint64
	Mode   Mode
	Rules  Rules
	Keymap input.Keymap
}

// Frame is what the renderer reads each tick.
type Frame struct {
	SongTime  time.Duration `json:"song_time"`
	Simulated time.Duration `json:"simulated"`
	Score     int64         `json:"score"`
	Accuracy  float64       `json:"accuracy"`
	Combo     int           `json:"combo"`
	MaxCombo  int           `json:"max_combo"`
	Pending   int           `json:"pending"`
	// Recent are the judgments produced since the previous frame.
	Recent []model.JudgmentEvent `json:"recent,omitempty"`
	Crowd  crowd.Aggregate       `json:"crowd"`
	Mixer  mixer.Output          `json:"mixer"`
	Done   bool                  `json:"done"`
}

// Session is one run of a track. Submit may be called from device
// callbacks while Tick runs; everything else is serialized internally.
type Session struct {
	id     string
	mode   Mode
	seed   uint64
	rules  Rules
	beats  *beatmap.BeatMap
	logger logger.Logger
	wall   clock.Clock

	audio   beatclock.AudioSource
	manual  *beatclock.Manual
	layers  mixer.LayerPlayer
	samples SampleTrigger

	clock      *beatclock.BeatClock
	capture    *input.Capture
	scorer     *scoring.Scorer
	crowd      *crowd.Crowd
	mixer      *mixer.Mixer
	recorder   *replay.Recorder
	trajectory *replay.Trajectory

	mu sync.Mutex
	// simTime is the last grid step taken; horizon is the latest song time
	// the simulation has been advanced to.
	simTime   time.Duration
	horizon   time.Duration
	end       time.Duration
	pending   []model.InputEvent
	recent    []model.JudgmentEvent
	mix       mixer.Output
	nextChant int
	finished  bool
	disposed  bool
	summary   replay.Summary
	log       replay.Log

	frame atomic.Pointer[Frame]
}

// New builds a session. It fails with beatmap.ErrEmptyBeatMap when there is
// nothing to score.
func New(cfg Config, opts ...Option) (*Session, error) {
	if cfg.Beats == nil || cfg.Beats.Len() == 0 {
		return nil, fmt.Errorf("new session: %w", beatmap.ErrEmptyBeatMap)
	}
	if err := cfg.Rules.Validate(); err != nil {
		return nil, err
	}

	s := &Session{
		id:     uuid.NewString(),
		mode:   cfg.Mode,
		seed:   cfg.Seed,
		rules:  cfg.Rules,
		beats:  cfg.Beats,
		logger: logger.GetOrNop(),
		wall:   clock.Real(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.Named("session")

	clockOpts := []beatclock.Option{
		beatclock.WithLookahead(s.rules.Lookahead),
		beatclock.WithWallClock(s.wall),
		beatclock.WithLogger(s.logger),
	}
	captureOpts := []input.Option{
		input.WithWindow(s.rules.Windows.Good),
		input.WithMinInterval(s.rules.Debounce),
		input.WithKeymap(cfg.Keymap),
		input.WithWallClock(s.wall),
		input.WithLogger(s.logger),
	}
	switch s.mode {
	case Live:
		if s.audio == nil {
			return nil, ErrNoAudio
		}
		clockOpts = append(clockOpts, beatclock.WithMaxExtrapolation(s.rules.MaxExtrapolation))
		s.recorder = replay.NewRecorder(s.seed, s.beats.Track().ID)
	case Playback:
		s.manual = beatclock.NewManual()
		s.audio = s.manual
		s.layers = nil
		s.samples = nil
		captureOpts = append(captureOpts, input.WithMode(input.Suppressed))
	default:
		return nil, fmt.Errorf("mode %d: %w", s.mode, ErrWrongMode)
	}

	var err error
	s.clock = beatclock.New(s.audio, clockOpts...)
	s.capture = input.NewCapture(s.clock, s.beats, captureOpts...)
	s.scorer = scoring.New(s.beats, scoring.WithWindows(s.rules.Windows), scoring.WithLogger(s.logger))
	if s.crowd, err = crowd.New(s.seed, crowd.WithParams(s.rules.Crowd), crowd.WithLogger(s.logger)); err != nil {
		return nil, err
	}
	if s.mixer, err = mixer.New(s.rules.Mixer); err != nil {
		return nil, err
	}
	s.trajectory = replay.NewTrajectory()
	s.end = EndOf(s.beats, s.rules)
	s.publish(0)

	metrics.RecordSessionStarted(s.mode.String())
	s.logger.Info(context.Background(), "session created",
		logger.String("session_id", s.id),
		logger.String("mode", s.mode.String()),
		logger.String("track", string(s.beats.Track().ID)),
		logger.Uint64("seed", s.seed),
		logger.Int("events", s.beats.Len()),
	)
	return s, nil
}

// EndOf is the song time at which a session of beats under rules stops:
// the first grid point strictly after both the track end and the last
// event's deadline. No input after it is ever recorded.
func EndOf(beats *beatmap.BeatMap, rules Rules) time.Duration {
	last := beats.End()
	if d := beats.At(beats.Len()-1).At + rules.Windows.Good; d > last {
		last = d
	}
	step := rules.Step
	return (last/step)*step + step
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// Mode returns the session mode.
func (s *Session) Mode() Mode { return s.mode }

// Seed returns the session seed.
func (s *Session) Seed() uint64 { return s.seed }

// End returns the song time at which the simulation stops.
func (s *Session) End() time.Duration { return s.end }

// Clock returns the session's beat clock.
func (s *Session) Clock() *beatclock.BeatClock { return s.clock }

// Start starts the beat clock.
func (s *Session) Start() error { return s.clock.Start() }

// Pause freezes the beat clock and suspends pending cues.
func (s *Session) Pause() error { return s.clock.Pause() }

// Resume re-anchors the beat clock.
func (s *Session) Resume() error { return s.clock.Resume() }

// Submit hands a live device event to input capture. The returned error
// names why an event was dropped; drops never affect the session.
func (s *Session) Submit(raw input.Raw) error {
	_, err := s.capture.Submit(raw)
	return err
}

// Tick processes every input up to the current song time minus the input
// grace, advances the simulation there and publishes a frame.
func (s *Session) Tick() (Frame, error) {
	started := s.wall.Now()
	s.clock.Pump()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.disposed {
		return Frame{}, ErrDisposed
	}
	if s.finished {
		return *s.frame.Load(), nil
	}

	now := s.clock.Now()
	target := now - s.rules.InputGrace
	if target < 0 {
		target = 0
	}
	s.collect()
	s.processUpTo(target)
	s.advanceTo(target)

	if s.mode == Live {
		if s.layers != nil {
			s.mix.Apply(s.layers)
		}
		s.scheduleChants(now)
	}

	f := s.publish(now)
	metrics.RecordTickDuration(float64(s.wall.Now().Sub(started).Microseconds()) / 1000)
	return f, nil
}

// collect moves captured inputs into the pending buffer, kept in song time
// order.
func (s *Session) collect() {
	drained := s.capture.Drain()
	if len(drained) == 0 {
		return
	}
	s.pending = append(s.pending, drained...)
	sort.SliceStable(s.pending, func(i, j int) bool { return s.pending[i].At < s.pending[j].At })
}

// processUpTo handles pending inputs with At <= target in order.
func (s *Session) processUpTo(target time.Duration) {
	n := 0
	for n < len(s.pending) && s.pending[n].At <= target {
		if err := s.process(s.pending[n]); err != nil {
			if errors.Is(err, ErrLateInput) || errors.Is(err, ErrAfterEnd) {
				s.capture.Release(s.pending[n])
			}
			s.logger.Debug(context.Background(), "input skipped",
				logger.String("session_id", s.id),
				logger.Float64("at_ms", model.Ms(s.pending[n].At)),
				logger.Error(err),
			)
		}
		n++
	}
	s.pending = append(s.pending[:0], s.pending[n:]...)
}

func (s *Session) process(ev model.InputEvent) error {
	if ev.At < s.horizon {
		metrics.RecordInputDropped("late")
		return fmt.Errorf("input at %v, simulated to %v: %w", ev.At, s.horizon, ErrLateInput)
	}
	if ev.At > s.end {
		metrics.RecordInputDropped("after_end")
		return fmt.Errorf("input at %v, session ends %v: %w", ev.At, s.end, ErrAfterEnd)
	}

	s.advanceTo(ev.At)
	js, err := s.scorer.Judge(ev)
	s.apply(js)
	if s.recorder != nil {
		if rerr := s.recorder.Record(ev); rerr != nil {
			return rerr
		}
	}
	return err
}

// advanceTo runs grid steps and scorer timeouts up to t in time order. A
// timeout whose deadline precedes a grid step is applied before that step.
func (s *Session) advanceTo(t time.Duration) {
	if t > s.end {
		t = s.end
	}
	step := s.rules.Step
	for s.simTime+step <= t {
		g := s.simTime + step
		s.apply(s.scorer.Sweep(g))
		agg := s.crowd.Step(step)
		s.mix = s.mixer.Step(agg, step)
		s.trajectory.Add(agg)
		s.simTime = g
	}
	if t > s.horizon {
		s.apply(s.scorer.Sweep(t))
		s.horizon = t
	}
}

// apply forwards judgments to the crowd in production order.
func (s *Session) apply(js []model.JudgmentEvent) {
	for _, j := range js {
		s.crowd.Apply(j, s.beats.At(j.Target).Weight)
		s.recent = append(s.recent, j)
	}
}

// scheduleChants queues chant cues on upcoming beats while the crowd is
// hyped. Beats that slip inside the lookahead window are skipped.
func (s *Session) scheduleChants(now time.Duration) {
	from := now + s.rules.Lookahead
	for s.nextChant < s.beats.Len() && s.beats.At(s.nextChant).At < from {
		s.nextChant++
	}
	if s.samples == nil || s.mix.HypeFraction < s.rules.ChantHype {
		return
	}
	until := from + s.rules.ChantHorizon
	for s.nextChant < s.beats.Len() && s.beats.At(s.nextChant).At < until {
		e := s.beats.At(s.nextChant)
		s.nextChant++
		if e.Kind != model.Beat {
			continue
		}
		samples := s.samples
		if _, err := s.clock.ScheduleAt(e.At, func(c beatclock.Cue) {
			samples.Trigger(ChantSample, c.Lead)
		}); err != nil {
			s.logger.Debug(context.Background(), "chant cue degraded", logger.Error(err))
		}
	}
}

func (s *Session) publish(now time.Duration) Frame {
	st := s.scorer.Stats()
	f := Frame{
		SongTime:  now,
		Simulated: s.horizon,
		Score:     st.Score,
		Accuracy:  st.Accuracy(),
		Combo:     st.Combo,
		MaxCombo:  st.MaxCombo,
		Pending:   s.scorer.Pending(),
		Recent:    s.recent,
		Crowd:     s.crowd.Aggregate(),
		Mixer:     s.mix,
		Done:      s.finished || (s.scorer.Done() && s.horizon >= s.end),
	}
	s.recent = nil
	s.frame.Store(&f)
	return f
}

// Frame returns the last published frame. Safe from any goroutine.
func (s *Session) Frame() Frame { return *s.frame.Load() }

// Finish processes every remaining input, runs the simulation to the end,
// times out anything still pending and returns the summary with the log.
// Calling it again returns the same result.
func (s *Session) Finish() (replay.Summary, replay.Log, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.disposed {
		return replay.Summary{}, replay.Log{}, ErrDisposed
	}
	if s.finished {
		return s.summary, s.log, nil
	}

	s.collect()
	s.processUpTo(s.end)
	for _, ev := range s.pending {
		metrics.RecordInputDropped("after_end")
		s.logger.Debug(context.Background(), "input after session end",
			logger.Float64("at_ms", model.Ms(ev.At)))
	}
	s.pending = nil
	s.advanceTo(s.end)
	s.apply(s.scorer.Finish())

	st := s.scorer.Stats()
	s.summary = replay.Summary{
		Score:          st.Score,
		Accuracy:       st.Accuracy(),
		MaxCombo:       st.MaxCombo,
		Perfect:        st.Perfect,
		Good:           st.Good,
		Miss:           st.Miss,
		JudgmentDigest: replay.JudgmentDigest(s.scorer.Judgments()),
		CrowdDigest:    s.trajectory.Digest(),
	}
	if s.recorder != nil {
		l, err := s.recorder.Finalize()
		if err != nil {
			return replay.Summary{}, replay.Log{}, err
		}
		s.log = l
	}
	s.finished = true
	s.publish(s.clock.Now())

	metrics.RecordSessionFinished(s.mode.String())
	s.logger.Info(context.Background(), "session finished",
		logger.String("session_id", s.id),
		logger.Int64("score", s.summary.Score),
		logger.Float64("accuracy", s.summary.Accuracy),
		logger.Int("max_combo", s.summary.MaxCombo),
		logger.Int("inputs", len(s.log.Events)),
	)
	return s.summary, s.log, nil
}

// Judgments returns the judgment log in production order.
func (s *Session) Judgments() []model.JudgmentEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scorer.Judgments()
}

// Trajectory returns the crowd trajectory fingerprint and the number of
// grid steps folded into it.
func (s *Session) Trajectory() (string, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.trajectory.Digest(), s.trajectory.Len()
}

// Crowd returns a copy of the agent population.
func (s *Session) Crowd() []crowd.Agent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.crowd.Agents()
}

// Run ticks every interval of wall time until the session is done or ctx
// ends, pumping clock cues in the background.
func (s *Session) Run(ctx context.Context, interval time.Duration) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go s.clock.Run(ctx, s.rules.Step)

	ticker := s.wall.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.Chan():
			f, err := s.Tick()
			if err != nil {
				return err
			}
			if f.Done {
				return nil
			}
		}
	}
}

// Dispose releases the clock and cancels every pending cue.
func (s *Session) Dispose() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed {
		return
	}
	s.disposed = true
	s.clock.Dispose()
	s.logger.Debug(context.Background(), "session disposed", logger.String("session_id", s.id))
}
