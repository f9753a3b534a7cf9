// Package loadtest drives a running ovationd with synthetic runs: it plays
// bots against a track, submits their logs concurrently, waits for
// verification and checks the resulting leaderboard.
package loadtest

import (
	"runtime"
	"time"

	"github.com/okian/ovation/internal/domain/model"
	"github.com/okian/ovation/internal/session"
	"github.com/okian/ovation/pkg/logger"
)

// Defaults for the knobs the command line leaves unset.
const (
	DefaultBaseURL       = "http://localhost:9080"
	DefaultRuns          = 500
	DefaultPlayers       = 100
	DefaultTopN          = 50
	DefaultTimeout       = 30 * time.Second
	DefaultPollInterval  = 100 * time.Millisecond
	DefaultSettleTimeout = 2 * time.Minute
	DefaultTamperRate    = 0.05

	workerChannelMultiplier = 2
	percentageMultiplier    = 100
	directoryPermission     = 0o750
)

// Config holds configuration for one load test.
type Config struct {
	BaseURL string
	// TracksDir holds the same beat maps the service loaded.
	TracksDir  string
	Difficulty string
	// Track is the track to play; empty picks the first one listed.
	Track   model.TrackID
	Runs    int
	Players int
	Seed    uint64
	// TamperRate is the share of runs submitted with an inflated claim.
	TamperRate    float64
	TopN          int
	Workers       int
	Timeout       time.Duration
	PollInterval  time.Duration
	SettleTimeout time.Duration
	CBOR          bool
	OutputFile    string
	Verbose       bool
	// Rules must match the service's, or every honest run is rejected.
	Rules  session.Rules
	Logger logger.Logger
}

func (c *Config) normalize() {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.Runs <= 0 {
		c.Runs = DefaultRuns
	}
	if c.Players <= 0 {
		c.Players = DefaultPlayers
	}
	if c.TopN <= 0 {
		c.TopN = DefaultTopN
	}
	if c.Workers <= 0 {
		c.Workers = runtime.NumCPU()
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.SettleTimeout <= 0 {
		c.SettleTimeout = DefaultSettleTimeout
	}
	if c.Rules.Step <= 0 {
		c.Rules = session.DefaultRules()
	}
}

func (c *Config) log() logger.Logger {
	if c.Logger == nil {
		return logger.GetOrNop()
	}
	return c.Logger
}

// Stats holds test statistics.
type Stats struct {
	RunsGenerated      int
	RunsSubmitted      int
	RunsAccepted       int
	RunsDuplicate      int
	RunsFailed         int
	Verified           int
	Rejected           int
	VerifyFailed       int
	Unsettled          int
	RanksRetrieved     int
	LeaderboardEntries int
	StartTime          time.Time
	EndTime            time.Time
	Duration           time.Duration
}
