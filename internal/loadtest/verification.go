package loadtest

import (
	"context"
	"fmt"

	"github.com/okian/ovation/internal/adapters/repository"
	"github.com/okian/ovation/internal/domain/replay"
	"github.com/okian/ovation/pkg/logger"
)

// maxReported bounds how many problems are logged individually.
const maxReported = 10

// verifyResults checks the verdicts, the per-player ranks and the
// leaderboard order against the generated runs.
func verifyResults(ctx context.Context, cfg *Config, runs []BotRun, results map[string]replay.Result, ranks map[string]repository.Entry, board []repository.Entry) error {
	l := cfg.log()
	l.Info(ctx, "verifying results")

	var problems []string
	report := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	best := make(map[string]int64)
	for _, r := range runs {
		res, ok := results[r.Request.ID]
		if !ok {
			continue
		}
		switch {
		case r.Tampered && res.Status != replay.StatusRejected:
			report("tampered run %s is %s", r.Request.ID, res.Status)
		case !r.Tampered && res.Status != replay.StatusVerified:
			report("honest run %s is %s: %s", r.Request.ID, res.Status, res.Reason)
		case !r.Tampered:
			if cur, seen := best[r.Request.Player]; !seen || r.Honest.Score > cur {
				best[r.Request.Player] = r.Honest.Score
			}
		}
	}

	// Entries may carry better runs from earlier tests, never worse ones.
	var top int64
	for player, score := range best {
		top = max(top, score)
		e, ok := ranks[player]
		if !ok {
			report("verified player %s has no rank", player)
			continue
		}
		if e.Score < score {
			report("player %s ranked with %d, below verified %d", player, e.Score, score)
		}
	}

	if err := checkLeaderboardOrder(board); err != nil {
		report("%v", err)
	}
	if len(best) > 0 {
		if len(board) == 0 {
			report("empty leaderboard after %d verified players", len(best))
		} else if board[0].Score < top {
			report("leaderboard top %d below best verified %d", board[0].Score, top)
		}
	}

	displayTopEntries(ctx, l, board, cfg.Verbose)

	if len(problems) > 0 {
		for i, p := range problems {
			if i == maxReported {
				break
			}
			l.Warn(ctx, "verification problem", logger.String("problem", p))
		}
		return fmt.Errorf("%d problems, first: %s: %w", len(problems), problems[0], ErrVerification)
	}
	l.Info(ctx, "result verification completed", logger.Int("players", len(best)))
	return nil
}

// checkLeaderboardOrder checks descending scores and competition ranks:
// equal scores share a rank and the next score skips past them.
func checkLeaderboardOrder(board []repository.Entry) error {
	for i, e := range board {
		if i == 0 {
			if e.Rank != 1 {
				return fmt.Errorf("leaderboard starts at rank %d", e.Rank)
			}
			continue
		}
		prev := board[i-1]
		switch {
		case e.Score > prev.Score:
			return fmt.Errorf("leaderboard not sorted: entry %d scores %d above entry %d", i, e.Score, i-1)
		case e.Score == prev.Score && e.Rank != prev.Rank:
			return fmt.Errorf("tied entries %d and %d have ranks %d and %d", i-1, i, prev.Rank, e.Rank)
		case e.Score < prev.Score && e.Rank != i+1:
			return fmt.Errorf("entry %d has rank %d, want %d", i, e.Rank, i+1)
		}
	}
	return nil
}

// displayTopEntries logs the head of the leaderboard.
func displayTopEntries(ctx context.Context, l logger.Logger, board []repository.Entry, verbose bool) {
	n := min(len(board), maxReported)
	if verbose {
		n = len(board)
	}
	for _, e := range board[:n] {
		l.Info(ctx, "leaderboard",
			logger.Int("rank", e.Rank),
			logger.String("player", e.Player),
			logger.Int64("score", e.Score),
			logger.Float64("accuracy", e.Accuracy))
	}
}
