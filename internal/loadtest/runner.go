package loadtest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/ovation/internal/adapters/beatmapfile"
	"github.com/okian/ovation/internal/adapters/http/client"
	"github.com/okian/ovation/internal/adapters/repository"
	"github.com/okian/ovation/internal/domain/beatmap"
	"github.com/okian/ovation/internal/domain/model"
	"github.com/okian/ovation/internal/domain/replay"
	"github.com/okian/ovation/pkg/logger"
)

// ErrVerification reports results that contradict the generated runs.
var ErrVerification = errors.New("load test verification failed")

// Run executes the complete load test.
func Run(ctx context.Context, cfg *Config) (*Stats, error) {
	cfg.normalize()
	stats := &Stats{StartTime: time.Now()}
	l := cfg.log()

	l.Info(ctx, "starting ovation load test",
		logger.String("baseURL", cfg.BaseURL),
		logger.Int("runs", cfg.Runs),
		logger.Int("players", cfg.Players),
		logger.Int("workers", cfg.Workers),
		logger.Uint64("seed", cfg.Seed),
		logger.Bool("cbor", cfg.CBOR))

	api := client.New(cfg.BaseURL, cfg.Timeout, client.WithCBOR(cfg.CBOR))

	if err := api.Health(ctx); err != nil {
		return stats, fmt.Errorf("service health check failed: %w", err)
	}

	beats, err := pickTrack(ctx, api, cfg)
	if err != nil {
		return stats, err
	}

	runs, err := Generate(ctx, beats, cfg, stats)
	if err != nil {
		return stats, fmt.Errorf("run generation failed: %w", err)
	}

	known := submitRuns(ctx, api, cfg, runs, stats)

	results, err := awaitResults(ctx, api, cfg, runs, known, stats)
	if err != nil {
		return stats, fmt.Errorf("waiting for verification failed: %w", err)
	}

	ranks := retrieveRanks(ctx, api, cfg, beats.Track().ID, runs, stats)

	board, err := api.Leaderboard(ctx, beats.Track().ID, cfg.TopN)
	if err != nil {
		return stats, fmt.Errorf("leaderboard retrieval failed: %w", err)
	}
	stats.LeaderboardEntries = len(board)

	if cfg.OutputFile != "" {
		if err := saveRuns(cfg.OutputFile, runs); err != nil {
			l.Warn(ctx, "failed to save runs to file", logger.Error(err))
		} else {
			l.Info(ctx, "runs saved to file", logger.String("filename", cfg.OutputFile))
		}
	}

	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)
	displayFinalStats(ctx, l, stats)

	if err := verifyResults(ctx, cfg, runs, results, ranks, board); err != nil {
		return stats, err
	}
	l.Info(ctx, "load test completed successfully")
	return stats, nil
}

// pickTrack loads the local copy of the beat map the service will replay
// against.
func pickTrack(ctx context.Context, api *client.Client, cfg *Config) (*beatmap.BeatMap, error) {
	catalog := beatmapfile.NewCatalog(beatmapfile.WithDifficulty(cfg.Difficulty), beatmapfile.WithLogger(cfg.log()))
	if _, err := catalog.Load(ctx, cfg.TracksDir); err != nil {
		return nil, fmt.Errorf("load tracks: %w", err)
	}

	id := cfg.Track
	if id == "" {
		tracks, err := api.Tracks(ctx)
		if err != nil {
			return nil, fmt.Errorf("list tracks: %w", err)
		}
		if len(tracks) == 0 {
			return nil, fmt.Errorf("service has no tracks: %w", ErrVerification)
		}
		id = tracks[0].ID
	}
	return catalog.Lookup(id)
}

// submitRuns posts runs concurrently and reports which of them the
// service holds, as new or duplicate submissions.
func submitRuns(ctx context.Context, api *client.Client, cfg *Config, runs []BotRun, stats *Stats) []bool {
	known := make([]bool, len(runs))
	l := cfg.log()
	l.Info(ctx, "submitting runs", logger.Int("runs", len(runs)), logger.Int("workers", cfg.Workers))

	var submitted, accepted, duplicate, failed atomic.Int64
	jobs := make(chan int, cfg.Workers*workerChannelMultiplier)
	var wg sync.WaitGroup

	for w := 0; w < cfg.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				_, err := api.Submit(ctx, runs[i].Request)
				submitted.Add(1)
				switch {
				case err == nil:
					accepted.Add(1)
					known[i] = true
				case client.IsDuplicate(err):
					duplicate.Add(1)
					known[i] = true
				default:
					failed.Add(1)
					if cfg.Verbose {
						l.Warn(ctx, "submission failed", logger.String("id", runs[i].Request.ID), logger.Error(err))
					}
				}
			}
		}()
	}

	go func() {
		defer close(jobs)
		for i := range runs {
			select {
			case <-ctx.Done():
				return
			case jobs <- i:
			}
		}
	}()
	wg.Wait()

	stats.RunsSubmitted = int(submitted.Load())
	stats.RunsAccepted = int(accepted.Load())
	stats.RunsDuplicate = int(duplicate.Load())
	stats.RunsFailed = int(failed.Load())
	l.Info(ctx, "submission completed",
		logger.Int("accepted", stats.RunsAccepted),
		logger.Int("duplicate", stats.RunsDuplicate),
		logger.Int("failed", stats.RunsFailed))
	return known
}

// awaitResults polls every known submission until it leaves the queue or
// the settle timeout passes.
func awaitResults(ctx context.Context, api *client.Client, cfg *Config, runs []BotRun, known []bool, stats *Stats) (map[string]replay.Result, error) {
	ctx, cancel := context.WithTimeout(ctx, cfg.SettleTimeout)
	defer cancel()

	results := make(map[string]replay.Result, len(runs))
	pending := make(map[string]struct{}, len(runs))
	for i, r := range runs {
		if known[i] {
			pending[r.Request.ID] = struct{}{}
		}
	}

	ticker := time.NewTicker(cfg.PollInterval)
	defer ticker.Stop()
	for len(pending) > 0 {
		for id := range pending {
			res, err := api.Status(ctx, id)
			if err != nil {
				if ctx.Err() != nil {
					break
				}
				continue
			}
			if res.Status != replay.StatusQueued {
				results[id] = res
				delete(pending, id)
			}
		}
		if len(pending) == 0 {
			break
		}
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				stats.Unsettled = len(pending)
				cfg.log().Warn(ctx, "runs still queued at settle timeout", logger.Int("pending", len(pending)))
				tally(results, stats)
				return results, nil
			}
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
	tally(results, stats)
	return results, nil
}

func tally(results map[string]replay.Result, stats *Stats) {
	for _, res := range results {
		switch res.Status {
		case replay.StatusVerified:
			stats.Verified++
		case replay.StatusRejected:
			stats.Rejected++
		case replay.StatusFailed:
			stats.VerifyFailed++
		}
	}
}

// retrieveRanks fetches the entry of every bot that played.
func retrieveRanks(ctx context.Context, api *client.Client, cfg *Config, track model.TrackID, runs []BotRun, stats *Stats) map[string]repository.Entry {
	players := make(map[string]struct{})
	for _, r := range runs {
		players[r.Request.Player] = struct{}{}
	}

	var mu sync.Mutex
	ranks := make(map[string]repository.Entry, len(players))
	jobs := make(chan string, cfg.Workers*workerChannelMultiplier)
	var wg sync.WaitGroup

	for w := 0; w < cfg.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for p := range jobs {
				e, err := api.Rank(ctx, track, p)
				if err != nil {
					continue
				}
				mu.Lock()
				ranks[p] = e
				mu.Unlock()
			}
		}()
	}
	for p := range players {
		jobs <- p
	}
	close(jobs)
	wg.Wait()

	stats.RanksRetrieved = len(ranks)
	return ranks
}

// saveRuns writes the generated runs as a JSON array.
func saveRuns(filename string, runs []BotRun) error {
	if dir := filepath.Dir(filename); dir != "." {
		if err := os.MkdirAll(dir, directoryPermission); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}
	f, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(runs); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to write runs: %w", err)
	}
	return f.Close()
}

// displayFinalStats logs the final test statistics.
func displayFinalStats(ctx context.Context, l logger.Logger, stats *Stats) {
	var verifiedRate, runsPerSecond float64
	if stats.RunsAccepted > 0 {
		verifiedRate = float64(stats.Verified) / float64(stats.RunsAccepted) * percentageMultiplier
	}
	if stats.Duration > 0 {
		runsPerSecond = float64(stats.RunsSubmitted) / stats.Duration.Seconds()
	}

	l.Info(ctx, "final statistics",
		logger.Int("runsGenerated", stats.RunsGenerated),
		logger.Int("runsSubmitted", stats.RunsSubmitted),
		logger.Int("runsAccepted", stats.RunsAccepted),
		logger.Int("runsDuplicate", stats.RunsDuplicate),
		logger.Int("runsFailed", stats.RunsFailed),
		logger.Int("verified", stats.Verified),
		logger.Int("rejected", stats.Rejected),
		logger.Int("verifyFailed", stats.VerifyFailed),
		logger.Int("unsettled", stats.Unsettled),
		logger.Int("ranksRetrieved", stats.RanksRetrieved),
		logger.Int("leaderboardEntries", stats.LeaderboardEntries),
		logger.Duration("duration", stats.Duration),
		logger.Float64("verifiedRate", verifiedRate),
		logger.Float64("runsPerSecond", runsPerSecond))
}
