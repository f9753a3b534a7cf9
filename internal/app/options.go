package service

import (
	"time"

	"github.com/okian/ovation/internal/adapters/repository"
	"github.com/okian/ovation/internal/session"
	"github.com/okian/ovation/pkg/clock"
	"github.com/okian/ovation/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithWorkerCount sets the number of verification workers.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the maximum number of queued submissions.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithDedupeSize sets how many submission IDs are remembered.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.dedupeSize = size
		}
	}
}

// WithResultLimit caps how many settled results are kept in memory when
// they cannot be served from an archive.
func WithResultLimit(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.resultLimit = n
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithRules sets the rules replays are verified under. They must match the
// rules clients play with.
func WithRules(r session.Rules) Option {
	return func(s *Service) { s.rules = r }
}

// WithArchive persists results and logs. The service closes it on Stop.
func WithArchive(a repository.Archive) Option {
	return func(s *Service) { s.archive = a }
}

// WithLeaderboard replaces the in-memory treap leaderboard.
func WithLeaderboard(lb repository.Leaderboard) Option {
	return func(s *Service) {
		if lb != nil {
			s.leaderboard = lb
		}
	}
}

// WithClock sets the clock used for timestamps and latency metrics.
func WithClock(c clock.Clock) Option {
	return func(s *Service) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithVerifyTimeout bounds the replay of one submission.
func WithVerifyTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.verifyTimeout = d
		}
	}
}
