// Package config defines process configuration and the tuning that becomes
// session rules.
package config

import (
	"fmt"
	"runtime"
	"time"

	"github.com/okian/ovation/internal/domain/crowd"
	"github.com/okian/ovation/internal/domain/mixer"
	"github.com/okian/ovation/internal/domain/scoring"
	"github.com/okian/ovation/internal/session"
	"github.com/okian/ovation/pkg/logger"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	Server  Server       `koanf:"server"`
	Service Service      `koanf:"service"`
	Timing  Timing       `koanf:"timing"`
	Crowd   crowd.Params `koanf:"crowd"`
	Mixer   mixer.Params `koanf:"mixer"`
}

// Server configures the HTTP listener.
type Server struct {
	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`
	// MaxLeaderboardLimit caps GET /leaderboard/{track}?limit.
	MaxLeaderboardLimit int           `koanf:"max_leaderboard_limit"`
	MaxBodyBytes        int64         `koanf:"max_body_bytes"`
	ReadTimeout         time.Duration `koanf:"read_timeout"`
	WriteTimeout        time.Duration `koanf:"write_timeout"`
	ShutdownTimeout     time.Duration `koanf:"shutdown_timeout"`
}

// Service configures replay verification.
type Service struct {
	QueueSize     int           `koanf:"queue_size"`
	WorkerCount   int           `koanf:"worker_count"`
	DedupeSize    int           `koanf:"dedupe_size"`
	// ResultLimit caps settled results held in memory without an archive.
	ResultLimit   int           `koanf:"result_limit"`
	VerifyTimeout time.Duration `koanf:"verify_timeout"`
	// ArchiveDSN is the sqlite database for results and logs. Empty keeps
	// everything in memory.
	ArchiveDSN string `koanf:"archive_dsn"`
	// TracksDir holds the .yaml and .sm beat maps.
	TracksDir string `koanf:"tracks_dir"`
	// Difficulty picks the chart imported from .sm files.
	Difficulty string `koanf:"difficulty"`
}

// Timing holds the judgment windows and the simulation grid.
type Timing struct {
	Windows          scoring.Windows `koanf:"windows"`
	Step             time.Duration   `koanf:"step"`
	InputGrace       time.Duration   `koanf:"input_grace"`
	Debounce         time.Duration   `koanf:"debounce"`
	Lookahead        time.Duration   `koanf:"lookahead"`
	MaxExtrapolation time.Duration   `koanf:"max_extrapolation"`
	ChantHype        float64         `koanf:"chant_hype"`
	ChantHorizon     time.Duration   `koanf:"chant_horizon"`
}

// New returns the default configuration.
func New() *Config {
	r := session.DefaultRules()
	return &Config{
		LogLevel: "info",
		Server: Server{
			Addr:                ":9080",
			MaxLeaderboardLimit: 100,
			MaxBodyBytes:        1 << 20,
			ReadTimeout:         10 * time.Second,
			WriteTimeout:        30 * time.Second,
			ShutdownTimeout:     15 * time.Second,
		},
		Service: Service{
			QueueSize:     1024,
			WorkerCount:   runtime.NumCPU(),
			DedupeSize:    50_000,
			ResultLimit:   10_000,
			VerifyTimeout: 30 * time.Second,
			TracksDir:     "tracks",
		},
		Timing: Timing{
			Windows:          r.Windows,
			Step:             r.Step,
			InputGrace:       r.InputGrace,
			Debounce:         r.Debounce,
			Lookahead:        r.Lookahead,
			MaxExtrapolation: r.MaxExtrapolation,
			ChantHype:        r.ChantHype,
			ChantHorizon:     r.ChantHorizon,
		},
		Crowd: r.Crowd,
		Mixer: r.Mixer,
	}
}

// Rules returns the session rules the configuration describes.
func (c *Config) Rules() session.Rules {
	return session.Rules{
		Windows:          c.Timing.Windows,
		Step:             c.Timing.Step,
		InputGrace:       c.Timing.InputGrace,
		Debounce:         c.Timing.Debounce,
		Lookahead:        c.Timing.Lookahead,
		MaxExtrapolation: c.Timing.MaxExtrapolation,
		ChantHype:        c.Timing.ChantHype,
		ChantHorizon:     c.Timing.ChantHorizon,
		Crowd:            c.Crowd,
		Mixer:            c.Mixer,
	}
}

// Validate checks the server settings and the rules.
func (c *Config) Validate() error {
	if _, err := logger.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("log_level %q: %w", c.LogLevel, ErrInvalidConfig)
	}
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr must not be empty: %w", ErrInvalidConfig)
	}
	if c.Server.MaxLeaderboardLimit < 1 || c.Server.MaxBodyBytes < 1 {
		return fmt.Errorf("server limits must be positive: %w", ErrInvalidConfig)
	}
	if c.Service.QueueSize < 1 || c.Service.WorkerCount < 1 || c.Service.ResultLimit < 1 {
		return fmt.Errorf("service queue_size, worker_count and result_limit must be positive: %w", ErrInvalidConfig)
	}
	if err := c.Rules().Validate(); err != nil {
		return fmt.Errorf("%v: %w", err, ErrInvalidConfig)
	}
	return nil
}
