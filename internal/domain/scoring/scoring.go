// Package scoring judges inputs against a beat map.
//
// Every beat map event is a small state machine, Pending until it is judged
// exactly once. An input judges the earliest pending event within the Good
// window that accepts its action. An event whose window closes with no
// match times out as a Miss. Timeouts are driven by song time through Sweep
// and are also applied before each input, so the judgment sequence depends
// only on the input sequence and never on when callers happen to poll.
package scoring

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/okian/ovation/internal/domain/beatmap"
	"github.com/okian/ovation/internal/domain/model"
	"github.com/okian/ovation/pkg/logger"
	"github.com/okian/ovation/pkg/metrics"
)

// eventState is the tagged state of one beat map event.
type eventState struct {
	judged  bool
	quality model.Quality
}

// Stats are the running accumulators over the judgment sequence.
type Stats struct {
	Score    int64 `json:"score"`
	Combo    int   `json:"combo"`
	MaxCombo int   `json:"max_combo"`
	Perfect  int   `json:"perfect"`
	Good     int   `json:"good"`
	Miss     int   `json:"miss"`
}

// Judged returns the number of judged events.
func (s Stats) Judged() int { return s.Perfect + s.Good + s.Miss }

// Accuracy is the hit ratio with Good counted as half a Perfect. It is zero
// before the first judgment.
func (s Stats) Accuracy() float64 {
	n := s.Judged()
	if n == 0 {
		return 0
	}
	return (float64(s.Perfect) + 0.5*float64(s.Good)) / float64(n)
}

// Scorer is the hit-judgment state machine for one session. It is not safe
// for concurrent use; the session tick owns it.
type Scorer struct {
	beats   *beatmap.BeatMap
	windows Windows
	logger  logger.Logger

	perfectPoints int64
	goodPoints    int64
	comboCap      int

	// limit is the latest song time an input may carry: the track end, or
	// the last event's deadline when that is later.
	limit  time.Duration
	states []eventState
	// next is the lowest index that may still be pending.
	next      int
	judgments []model.JudgmentEvent
	stats     Stats
}

// New creates a scorer with every event of beats pending.
func New(beats *beatmap.BeatMap, opts ...Option) *Scorer {
	s := &Scorer{
		beats:         beats,
		windows:       DefaultWindows(),
		logger:        logger.GetOrNop().Named("scoring"),
		perfectPoints: defaultPerfectPoints,
		goodPoints:    defaultGoodPoints,
		comboCap:      defaultComboCap,
		states:        make([]eventState, beats.Len()),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.limit = beats.End()
	if last := s.deadline(beats.Len() - 1); last > s.limit {
		s.limit = last
	}
	return s
}

// Windows returns the tolerance tiers in use.
func (s *Scorer) Windows() Windows { return s.windows }

// deadline is the last song time at which event i can still be hit.
func (s *Scorer) deadline(i int) time.Duration {
	return s.beats.At(i).At + s.windows.Good
}

// NextDeadline returns the timeout deadline of the earliest pending event.
// ok is false once every event is judged.
func (s *Scorer) NextDeadline() (time.Duration, bool) {
	if s.next >= len(s.states) {
		return 0, false
	}
	return s.deadline(s.next), true
}

// Done reports whether every event is judged.
func (s *Scorer) Done() bool { return s.next >= len(s.states) }

// Sweep times out every pending event whose deadline is strictly before now
// and returns the resulting misses in event order.
func (s *Scorer) Sweep(now time.Duration) []model.JudgmentEvent {
	var out []model.JudgmentEvent
	for i := s.next; i < len(s.states) && s.deadline(i) < now; i++ {
		if s.states[i].judged {
			continue
		}
		out = append(out, s.timeout(i))
	}
	s.advance()
	return out
}

// Judge applies pending timeouts up to the input's time and then matches the
// input. It returns every judgment produced, timeouts first. Inputs before
// zero or after the track end (extended to the last event's deadline) fail
// with ErrMalformedInput; inputs with nothing to hit fail with ErrNoTarget.
// Both are logged and leave the state machine unchanged apart from the
// timeouts.
func (s *Scorer) Judge(ev model.InputEvent) ([]model.JudgmentEvent, error) {
	if ev.At < 0 || ev.At > s.limit {
		s.drop(ev, "malformed")
		return nil, fmt.Errorf("input at %v outside track [0, %v]: %w", ev.At, s.limit, ErrMalformedInput)
	}

	out := s.Sweep(ev.At)

	target := s.match(ev)
	if target < 0 {
		s.drop(ev, "no_target")
		return out, fmt.Errorf("%s at %v: %w", ev.Action, ev.At, ErrNoTarget)
	}

	e := s.beats.At(target)
	delta := ev.At - e.At
	q := model.Good
	if abs(delta) <= s.windows.Perfect {
		q = model.Perfect
	}
	input := ev
	out = append(out, s.judge(target, q, &input, delta, ev.At))
	s.advance()
	return out, nil
}

// match finds the earliest pending event within the Good window of ev that
// accepts its action, or -1.
func (s *Scorer) match(ev model.InputEvent) int {
	for i := s.next; i < len(s.states); i++ {
		e := s.beats.At(i)
		if e.At > ev.At+s.windows.Good {
			break
		}
		if s.states[i].judged || !e.Accepts(ev.Action) {
			continue
		}
		if abs(ev.At-e.At) <= s.windows.Good {
			return i
		}
	}
	return -1
}

// Finish times out every remaining pending event, so no event is left
// Pending once the song ends.
func (s *Scorer) Finish() []model.JudgmentEvent {
	var out []model.JudgmentEvent
	for i := s.next; i < len(s.states); i++ {
		if !s.states[i].judged {
			out = append(out, s.timeout(i))
		}
	}
	s.advance()
	return out
}

func (s *Scorer) timeout(i int) model.JudgmentEvent {
	return s.judge(i, model.Miss, nil, 0, s.deadline(i))
}

func (s *Scorer) judge(i int, q model.Quality, in *model.InputEvent, delta, at time.Duration) model.JudgmentEvent {
	s.states[i] = eventState{judged: true, quality: q}
	e := s.beats.At(i)

	switch q {
	case model.Perfect:
		s.stats.Perfect++
		s.hit(s.perfectPoints, e.Weight)
	case model.Good:
		s.stats.Good++
		s.hit(s.goodPoints, e.Weight)
	default:
		s.stats.Miss++
		s.stats.Combo = 0
	}
	metrics.RecordJudgment(q.String())

	j := model.JudgmentEvent{
		Target:   i,
		TargetAt: e.At,
		Input:    in,
		Quality:  q,
		Delta:    delta,
		Combo:    s.stats.Combo,
		At:       at,
	}
	s.judgments = append(s.judgments, j)
	return j
}

func (s *Scorer) hit(points int64, weight float64) {
	s.stats.Combo++
	if s.stats.Combo > s.stats.MaxCombo {
		s.stats.MaxCombo = s.stats.Combo
	}
	bonus := s.stats.Combo - 1
	if bonus > s.comboCap {
		bonus = s.comboCap
	}
	s.stats.Score += int64(math.Round(float64(points) * weight * float64(100+bonus) / 100))
}

func (s *Scorer) advance() {
	for s.next < len(s.states) && s.states[s.next].judged {
		s.next++
	}
}

func (s *Scorer) drop(ev model.InputEvent, reason string) {
	metrics.RecordInputDropped(reason)
	s.logger.Debug(context.Background(), "input not judged",
		logger.String("reason", reason),
		logger.String("action", string(ev.Action)),
		logger.Float64("at_ms", model.Ms(ev.At)),
	)
}

// Judgments returns a copy of the judgment log in production order.
func (s *Scorer) Judgments() []model.JudgmentEvent {
	out := make([]model.JudgmentEvent, len(s.judgments))
	copy(out, s.judgments)
	return out
}

// Stats returns the current accumulators.
func (s *Scorer) Stats() Stats { return s.stats }

// Pending returns the number of events not yet judged.
func (s *Scorer) Pending() int { return len(s.states) - s.stats.Judged() }

func abs(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
