package session

import (
	"context"
	"fmt"
	"time"

	"github.com/okian/ovation/internal/domain/beatmap"
	"github.com/okian/ovation/internal/domain/crowd"
	"github.com/okian/ovation/internal/domain/model"
	"github.com/okian/ovation/internal/domain/replay"
)

// Outcome is everything a replay reproduces.
type Outcome struct {
	Summary   replay.Summary        `json:"summary"`
	Judgments []model.JudgmentEvent `json:"judgments"`
	Crowd     crowd.Aggregate       `json:"crowd"`
	// Steps is the number of grid steps simulated.
	Steps int `json:"steps"`
}

// Replay re-runs a recorded log against beats with no live input and no
// audio. Song time is driven by a manual clock stepped on the rules grid,
// so the run takes as long as the simulation does, not as long as the
// track.
func Replay(ctx context.Context, beats *beatmap.BeatMap, log replay.Log, rules Rules, opts ...Option) (Outcome, error) {
	player, err := replay.NewPlayer(log)
	if err != nil {
		return Outcome{}, err
	}
	if beats != nil && beats.Track().ID != log.Track {
		return Outcome{}, fmt.Errorf("log %q, beat map %q: %w", log.Track, beats.Track().ID, ErrTrackMismatch)
	}

	s, err := New(Config{Beats: beats, Seed: log.Seed, Mode: Playback, Rules: rules}, opts...)
	if err != nil {
		return Outcome{}, err
	}
	defer s.Dispose()
	if err := s.Start(); err != nil {
		return Outcome{}, err
	}

	// Inputs past the session end were never recorded live, so they are
	// not pumped either.
	stop := s.end + rules.InputGrace + rules.Step

	for t := time.Duration(0); t <= stop; t += rules.Step {
		if err := ctx.Err(); err != nil {
			return Outcome{}, err
		}
		s.manual.Set(t)
		if _, err := player.Pump(t, s.capture); err != nil {
			return Outcome{}, err
		}
		if _, err := s.Tick(); err != nil {
			return Outcome{}, err
		}
	}

	summary, _, err := s.Finish()
	if err != nil {
		return Outcome{}, err
	}
	_, steps := s.Trajectory()
	return Outcome{
		Summary:   summary,
		Judgments: s.Judgments(),
		Crowd:     s.crowd.Aggregate(),
		Steps:     steps,
	}, nil
}

// Verify replays log and compares the result with the claimed summary. A
// difference is reported as replay.ErrReplayMismatch alongside the outcome.
func Verify(ctx context.Context, beats *beatmap.BeatMap, log replay.Log, claimed replay.Summary, rules Rules, opts ...Option) (Outcome, error) {
	out, err := Replay(ctx, beats, log, rules, opts...)
	if err != nil {
		return Outcome{}, err
	}
	if err := replay.Compare(claimed, out.Summary); err != nil {
		return out, err
	}
	return out, nil
}
