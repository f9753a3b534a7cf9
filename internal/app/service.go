// Package service verifies submitted replays and keeps the per-track
// leaderboards the HTTP API serves.
package service

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/okian/ovation/internal/adapters/mq/queue"
	"github.com/okian/ovation/internal/adapters/mq/worker"
	"github.com/okian/ovation/internal/adapters/repository"
	"github.com/okian/ovation/internal/domain/beatmap"
	"github.com/okian/ovation/internal/domain/dedupe"
	"github.com/okian/ovation/internal/domain/model"
	"github.com/okian/ovation/internal/domain/replay"
	"github.com/okian/ovation/internal/session"
	"github.com/okian/ovation/pkg/clock"
	"github.com/okian/ovation/pkg/logger"
	"github.com/okian/ovation/pkg/metrics"
)

// Catalog resolves track IDs to beat maps.
type Catalog interface {
	Lookup(id model.TrackID) (*beatmap.BeatMap, error)
	List() []beatmap.Track
}

// TrackInfo is a playable track and how many players are ranked on it.
type TrackInfo struct {
	beatmap.Track
	Players int `json:"players"`
}

// Service accepts replay submissions, verifies them on a worker pool and
// ranks verified runs.
type Service struct {
	mu sync.RWMutex

	catalog     Catalog
	rules       session.Rules
	leaderboard repository.Leaderboard
	archive     repository.Archive
	deduper     dedupe.Deduper[string]
	queue       *queue.InMemoryQueue
	pool        *worker.Pool
	clock       clock.Clock
	logger      logger.Logger

	workerCount   int
	queueSize     int
	dedupeSize    int
	resultLimit   int
	verifyTimeout time.Duration

	// results holds submissions not yet archived, or settled results that
	// have no archive copy. settled lists the latter oldest first and is
	// capped at resultLimit.
	resMu   sync.RWMutex
	results map[string]replay.Result
	settled []string

	started bool
	cancel  context.CancelFunc
}

// New constructs a Service over catalog with default configuration.
func New(catalog Catalog, opts ...Option) *Service {
	s := &Service{
		catalog:       catalog,
		rules:         session.DefaultRules(),
		clock:         clock.Real(),
		workerCount:   runtime.NumCPU(),
		queueSize:     1024,
		dedupeSize:    50000,
		resultLimit:   10000,
		verifyTimeout: 30 * time.Second,
		results:       make(map[string]replay.Result),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.leaderboard == nil {
		s.leaderboard = repository.NewTreapStore(repository.WithStoreClock(s.clock))
	}
	return s
}

// Start restores the leaderboard from the archive and starts the workers.
// Workers outlive ctx; they stop on Stop.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.logger == nil {
		s.logger = logger.GetOrNop()
	}
	s.logger = s.logger.Named("service")
	s.logger.Info(ctx, "starting replay service...")

	if a, ok := s.archive.(*repository.SQLiteArchive); ok {
		n, err := repository.Restore(ctx, a, s.leaderboard)
		if err != nil {
			return fmt.Errorf("restore leaderboard: %w", err)
		}
		s.logger.Info(ctx, "leaderboard restored", logger.Int("runs", n))
	}

	s.deduper = dedupe.NewInMemory[string](dedupe.WithMaxSize(s.dedupeSize))
	s.queue = queue.NewInMemoryQueue(queue.WithCapacity(s.queueSize))
	s.pool = worker.NewPool(s.workerCount, s.queue, s,
		worker.WithLogger(s.logger),
		worker.WithClock(s.clock),
	)

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel
	s.pool.Start(runCtx)

	s.started = true
	s.logger.Info(ctx, "replay service started",
		logger.Int("workers", s.workerCount),
		logger.Int("queueSize", s.queueSize),
		logger.Int("dedupeSize", s.dedupeSize),
		logger.Int("tracks", len(s.catalog.List())),
	)
	return nil
}

// Stop drains the queue, waits for the workers and closes the archive.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}
	ctx := context.Background()
	s.logger.Info(ctx, "stopping replay service...")

	if err := s.pool.Shutdown(ctx); err != nil {
		s.logger.Warn(ctx, "worker pool shutdown", logger.Error(err))
	}
	s.cancel()

	if s.archive != nil {
		if err := s.archive.Close(); err != nil {
			s.logger.Warn(ctx, "closing archive", logger.Error(err))
		}
	}

	s.started = false
	s.logger.Info(ctx, "replay service stopped")
}

// Submit validates a submission and queues it for verification. The
// returned result has status queued; poll Status for the outcome.
func (s *Service) Submit(ctx context.Context, sub replay.Submission) (replay.Result, error) { //nolint:gocritic // hugeParam
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return replay.Result{}, ErrNotStarted
	}

	if sub.ID == "" {
		sub.ID = uuid.NewString()
	}
	if sub.Track == "" {
		sub.Track = sub.Log.Track
	}
	switch {
	case sub.Player == "":
		return replay.Result{}, fmt.Errorf("missing player: %w", ErrInvalidSubmission)
	case sub.Log.Track != sub.Track:
		return replay.Result{}, fmt.Errorf("log track %q, submitted %q: %w", sub.Log.Track, sub.Track, ErrInvalidSubmission)
	}
	beats, err := s.catalog.Lookup(sub.Track)
	if err != nil {
		return replay.Result{}, fmt.Errorf("%v: %w", err, ErrUnknownTrack)
	}
	if err := sub.Log.Validate(); err != nil {
		return replay.Result{}, fmt.Errorf("%v: %w", err, ErrInvalidSubmission)
	}
	if n := len(sub.Log.Events); n > 0 {
		end := session.EndOf(beats, s.rules)
		if last := sub.Log.Events[n-1].At; last > end {
			return replay.Result{}, fmt.Errorf("input at %v after session end %v: %w", last, end, ErrInvalidSubmission)
		}
	}

	if s.deduper.SeenAndRecord(ctx, sub.ID) {
		metrics.RecordSubmissionDuplicate()
		s.logger.Debug(ctx, "duplicate submission", logger.String("submission_id", sub.ID))
		return replay.Result{}, fmt.Errorf("submission %q: %w", sub.ID, ErrDuplicate)
	}

	sub.Received = s.clock.Now()
	res := replay.Result{
		ID:      sub.ID,
		Player:  sub.Player,
		Track:   sub.Track,
		Status:  replay.StatusQueued,
		Claimed: sub.Claimed,
	}
	s.store(res)

	if err := s.queue.Enqueue(ctx, sub); err != nil {
		s.deduper.Unrecord(ctx, sub.ID)
		s.forget(sub.ID)
		s.logger.Warn(ctx, "submission rejected by queue",
			logger.String("submission_id", sub.ID),
			logger.Error(err),
		)
		return replay.Result{}, fmt.Errorf("%v: %w", err, ErrBackpressure)
	}
	metrics.UpdateQueueSize(s.queue.Len(ctx))

	s.logger.Debug(ctx, "submission queued",
		logger.String("submission_id", sub.ID),
		logger.String("player", sub.Player),
		logger.String("track", string(sub.Track)),
		logger.Int("inputs", len(sub.Log.Events)),
	)
	return res, nil
}

// Process implements worker.Processor. It replays one submission, records
// the verdict and ranks verified runs.
func (s *Service) Process(ctx context.Context, sub replay.Submission) error { //nolint:gocritic // hugeParam
	start := s.clock.Now()
	res := replay.Result{
		ID:      sub.ID,
		Player:  sub.Player,
		Track:   sub.Track,
		Claimed: sub.Claimed,
	}

	var verr error
	beats, err := s.catalog.Lookup(sub.Track)
	if err != nil {
		verr = err
	} else {
		vctx, cancel := context.WithTimeout(ctx, s.verifyTimeout)
		var out session.Outcome
		out, verr = session.Verify(vctx, beats, sub.Log, sub.Claimed, s.rules,
			session.WithID(sub.ID),
			session.WithLogger(s.logger),
		)
		cancel()
		res.Replayed = out.Summary
	}

	res.Verified = s.clock.Now()
	switch {
	case verr == nil:
		res.Status = replay.StatusVerified
	case errors.Is(verr, replay.ErrReplayMismatch):
		res.Status = replay.StatusRejected
		res.Reason = verr.Error()
	default:
		res.Status = replay.StatusFailed
		res.Reason = verr.Error()
	}

	if res.Status == replay.StatusVerified {
		improved, err := s.leaderboard.UpdateBest(ctx, repository.EntryFromResult(res))
		if err != nil {
			s.logger.Error(ctx, "leaderboard update failed",
				logger.String("submission_id", res.ID),
				logger.Error(err),
			)
		} else if improved {
			s.logger.Debug(ctx, "new personal best",
				logger.String("player", res.Player),
				logger.String("track", string(res.Track)),
				logger.Int64("score", res.Replayed.Score),
			)
		}
	}

	switch {
	case s.archive == nil:
		s.settle(res)
	default:
		if err := s.archive.Put(ctx, res, sub.Log); err != nil {
			s.logger.Error(ctx, "archive write failed",
				logger.String("submission_id", res.ID),
				logger.Error(err),
			)
			s.settle(res)
		} else {
			s.forget(res.ID)
		}
	}

	metrics.RecordReplayVerification(string(res.Status))
	metrics.RecordVerificationLatency(float64(s.clock.Now().Sub(start).Microseconds()) / 1000)
	s.logger.Info(ctx, "submission verified",
		logger.String("submission_id", res.ID),
		logger.String("status", string(res.Status)),
		logger.Int64("score", res.Replayed.Score),
	)

	if res.Status == replay.StatusFailed {
		return fmt.Errorf("verify %s: %w", res.ID, verr)
	}
	return nil
}

func (s *Service) store(res replay.Result) { //nolint:gocritic // hugeParam
	s.resMu.Lock()
	s.results[res.ID] = res
	s.resMu.Unlock()
}

// settle keeps a final result in memory, evicting the oldest settled ones
// beyond resultLimit. Queued results are never evicted.
func (s *Service) settle(res replay.Result) { //nolint:gocritic // hugeParam
	s.resMu.Lock()
	defer s.resMu.Unlock()
	s.results[res.ID] = res
	s.settled = append(s.settled, res.ID)
	for len(s.settled) > s.resultLimit {
		delete(s.results, s.settled[0])
		s.settled[0] = ""
		s.settled = s.settled[1:]
	}
}

func (s *Service) forget(id string) {
	s.resMu.Lock()
	delete(s.results, id)
	s.resMu.Unlock()
}

// Status returns the current result of a submission.
func (s *Service) Status(ctx context.Context, id string) (replay.Result, error) {
	s.resMu.RLock()
	res, ok := s.results[id]
	s.resMu.RUnlock()
	if ok {
		return res, nil
	}
	if s.archive != nil {
		res, err := s.archive.Get(ctx, id)
		if err == nil {
			return res, nil
		}
		if !errors.Is(err, repository.ErrNotFound) {
			return replay.Result{}, err
		}
	}
	return replay.Result{}, fmt.Errorf("submission %q: %w", id, ErrNotFound)
}

// Log returns the archived input log of a submission.
func (s *Service) Log(ctx context.Context, id string) (replay.Log, error) {
	if s.archive == nil {
		return replay.Log{}, fmt.Errorf("submission %q: %w", id, ErrNotFound)
	}
	l, err := s.archive.Log(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return replay.Log{}, fmt.Errorf("submission %q: %w", id, ErrNotFound)
	}
	return l, err
}

// TopN returns the best n runs on a track.
func (s *Service) TopN(ctx context.Context, track model.TrackID, n int) ([]repository.Entry, error) {
	if _, err := s.catalog.Lookup(track); err != nil {
		return nil, fmt.Errorf("%v: %w", err, ErrUnknownTrack)
	}
	return s.leaderboard.TopN(ctx, track, n)
}

// Rank returns a player's best run and rank on a track.
func (s *Service) Rank(ctx context.Context, track model.TrackID, player string) (repository.Entry, error) {
	if _, err := s.catalog.Lookup(track); err != nil {
		return repository.Entry{}, fmt.Errorf("%v: %w", err, ErrUnknownTrack)
	}
	e, err := s.leaderboard.Rank(ctx, track, player)
	if errors.Is(err, repository.ErrNotFound) {
		return repository.Entry{}, fmt.Errorf("%s on %s: %w", player, track, ErrNotFound)
	}
	return e, err
}

// Tracks lists the catalog with ranked player counts.
func (s *Service) Tracks(ctx context.Context) []TrackInfo {
	list := s.catalog.List()
	out := make([]TrackInfo, len(list))
	for i, t := range list {
		out[i] = TrackInfo{Track: t, Players: s.leaderboard.Count(ctx, t.ID)}
	}
	return out
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx := context.Background()
	stats := map[string]any{
		"started":     s.started,
		"workerCount": s.workerCount,
		"queueSize":   s.queueSize,
		"dedupeSize":  s.dedupeSize,
		"resultLimit": s.resultLimit,
		"tracks":      len(s.catalog.List()),
	}

	if s.started {
		queueLen := s.queue.Len(ctx)
		stats["queueLength"] = queueLen
		stats["processed"] = s.pool.Processed()
		stats["seen"] = s.deduper.Size()

		s.resMu.RLock()
		stats["results"] = len(s.results)
		s.resMu.RUnlock()

		metrics.UpdateQueueSize(queueLen)
	}
	return stats
}
