package repository

import (
	"github.com/okian/ovation/pkg/clock"
	"github.com/okian/ovation/pkg/logger"
)

// Option applies a configuration option to the TreapStore.
type Option func(*TreapStore)

// WithTopCacheSize sets how many rows per track the published snapshot
// keeps for TopN reads.
func WithTopCacheSize(n int) Option {
	return func(s *TreapStore) {
		if n > 0 {
			s.topCacheSize = n
		}
	}
}

// WithStoreClock sets the clock used for latency metrics.
func WithStoreClock(c clock.Clock) Option {
	return func(s *TreapStore) {
		if c != nil {
			s.clock = c
		}
	}
}

// ArchiveOption applies a configuration option to the SQLiteArchive.
type ArchiveOption func(*SQLiteArchive)

// WithArchiveLogger sets a custom logger for the archive.
func WithArchiveLogger(l logger.Logger) ArchiveOption {
	return func(a *SQLiteArchive) {
		if l != nil {
			a.logger = l
		}
	}
}

// WithArchiveClock sets the clock stamping archived rows.
func WithArchiveClock(c clock.Clock) ArchiveOption {
	return func(a *SQLiteArchive) {
		if c != nil {
			a.clock = c
		}
	}
}
