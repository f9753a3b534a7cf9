package loadtest

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sort"
	"time"

	"github.com/okian/ovation/internal/adapters/http/client"
	"github.com/okian/ovation/internal/domain/beatmap"
	"github.com/okian/ovation/internal/domain/input"
	"github.com/okian/ovation/internal/domain/model"
	"github.com/okian/ovation/internal/domain/replay"
	"github.com/okian/ovation/internal/session"
	"github.com/okian/ovation/pkg/logger"
)

// tamperBonus is added to the score of a tampered claim.
const tamperBonus = 1000

// Profile describes how well a bot plays.
type Profile struct {
	Name string
	// HitRate is the chance the bot presses for an event at all.
	HitRate float64
	// Spread is the standard deviation of the bot's timing error.
	Spread time.Duration
}

// Profiles is the bot population, from best to worst.
var Profiles = []Profile{
	{Name: "elite", HitRate: 0.99, Spread: 8 * time.Millisecond},
	{Name: "high", HitRate: 0.95, Spread: 20 * time.Millisecond},
	{Name: "average", HitRate: 0.85, Spread: 40 * time.Millisecond},
	{Name: "low", HitRate: 0.6, Spread: 70 * time.Millisecond},
	{Name: "very_low", HitRate: 0.3, Spread: 110 * time.Millisecond},
}

// BotRun is one synthetic submission.
type BotRun struct {
	Request  client.Request `json:"request"`
	Profile  string  `json:"profile"`
	Tampered bool    `json:"tampered"`
	// Honest is the summary the log replays to.
	Honest replay.Summary `json:"honest"`
}

// PlayerName returns the bot name for player index i.
func PlayerName(i int) string { return fmt.Sprintf("bot-%04d", i) }

// Generate plays n runs of beats, spread over players bots. The same seed
// yields the same runs. Claims are computed by replaying each log under
// cfg.Rules; a TamperRate share of them is then inflated.
func Generate(ctx context.Context, beats *beatmap.BeatMap, cfg *Config, stats *Stats) ([]BotRun, error) {
	cfg.log().Info(ctx, "generating runs",
		logger.Int("runs", cfg.Runs),
		logger.Int("players", cfg.Players),
		logger.String("track", string(beats.Track().ID)))

	type result struct {
		index int
		run   BotRun
		err   error
	}

	runs := make([]BotRun, cfg.Runs)
	results := make(chan result, cfg.Runs)
	workers := max(1, min(cfg.Workers, cfg.Runs))
	per := cfg.Runs / workers

	for w := 0; w < workers; w++ {
		start, end := w*per, (w+1)*per
		if w == workers-1 {
			end = cfg.Runs
		}
		go func(start, end int) {
			for i := start; i < end; i++ {
				if err := ctx.Err(); err != nil {
					results <- result{index: i, err: err}
					continue
				}
				r, err := generateRun(ctx, beats, cfg, i)
				results <- result{index: i, run: r, err: err}
			}
		}(start, end)
	}

	var firstErr error
	for i := 0; i < cfg.Runs; i++ {
		r := <-results
		if r.err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("generate run %d: %w", r.index, r.err)
			}
			continue
		}
		runs[r.index] = r.run
	}
	if firstErr != nil {
		return nil, firstErr
	}

	stats.RunsGenerated = len(runs)
	cfg.log().Info(ctx, "generated runs", logger.Int("count", len(runs)))
	return runs, nil
}

func generateRun(ctx context.Context, beats *beatmap.BeatMap, cfg *Config, i int) (BotRun, error) {
	rng := rand.New(rand.NewPCG(cfg.Seed, uint64(i)))
	player := i % max(1, cfg.Players)
	profile := Profiles[player%len(Profiles)]

	runLog := replay.Log{
		Version: replay.Version,
		Seed:    rng.Uint64(),
		Track:   beats.Track().ID,
		Events:  Play(rng, beats, profile),
	}
	out, err := session.Replay(ctx, beats, runLog, cfg.Rules)
	if err != nil {
		return BotRun{}, err
	}

	run := BotRun{
		Request: client.Request{
			ID:      fmt.Sprintf("load-%d-%06d", cfg.Seed, i),
			Player:  PlayerName(player),
			Track:   runLog.Track,
			Log:     runLog,
			Claimed: out.Summary,
		},
		Profile: profile.Name,
		Honest:  out.Summary,
	}
	if rng.Float64() < cfg.TamperRate {
		run.Tampered = true
		run.Request.Claimed.Score += tamperBonus
	}
	return run, nil
}

// Play produces the inputs a bot with profile p makes over beats.
func Play(rng *rand.Rand, beats *beatmap.BeatMap, p Profile) []model.InputEvent {
	var events []model.InputEvent
	for _, ev := range beats.Events() {
		if rng.Float64() >= p.HitRate {
			continue
		}
		at := ev.At + time.Duration(rng.NormFloat64()*float64(p.Spread))
		if at < 0 {
			at = 0
		}
		action := ev.Lane
		if action == "" {
			action = input.ActionTap
		}
		events = append(events, model.InputEvent{At: at, Action: action})
	}
	sort.SliceStable(events, func(a, b int) bool { return events[a].At < events[b].At })
	return events
}
