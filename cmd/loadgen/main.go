// Command loadgen plays bots against a track, submits their runs to a
// running ovationd and checks the verdicts and the leaderboard.
package main

import (
	"context"
	"os"
	"runtime"
	"time"

	"gopkg.in/alecthomas/kingpin.v2"

	"github.com/okian/ovation/internal/config"
	"github.com/okian/ovation/internal/domain/model"
	"github.com/okian/ovation/internal/loadtest"
	"github.com/okian/ovation/pkg/logger"
)

const (
	defaultWorkers     = 2 // multiplier for runtime.NumCPU()
	defaultTestTimeout = 10 * time.Minute
)

var (
	app = kingpin.New("loadgen", "Load test for the ovation replay service.")

	baseURL    = app.Flag("url", "Base URL of the service").Default(loadtest.DefaultBaseURL).String()
	tracksDir  = app.Flag("tracks", "Directory with the beat maps the service loaded").Default("tracks").ExistingDir()
	difficulty = app.Flag("difficulty", "Chart picked from .sm files").String()
	track      = app.Flag("track", "Track to play; defaults to the first one the service lists").String()
	runs       = app.Flag("runs", "Number of runs to generate and submit").Default("500").Int()
	players    = app.Flag("players", "Number of distinct bots").Default("100").Int()
	seed       = app.Flag("seed", "Seed for the generated runs").Default("1").Uint64()
	tamper     = app.Flag("tamper", "Share of runs submitted with an inflated claim").Default("0.05").Float64()
	topN       = app.Flag("top", "Number of leaderboard entries to fetch").Default("50").Int()
	workers    = app.Flag("workers", "Number of concurrent workers").Default("0").Int()
	timeout    = app.Flag("timeout", "HTTP request timeout").Default("30s").Duration()
	settle     = app.Flag("settle", "How long to wait for verification").Default("2m").Duration()
	useCBOR    = app.Flag("cbor", "Submit runs as CBOR").Bool()
	output     = app.Flag("output", "Write the generated runs to this JSON file").String()
	logFile    = app.Flag("log", "Log file (default: loadtest_TIMESTAMP.log)").String()
	verbose    = app.Flag("verbose", "Enable verbose logging").Short('v').Bool()
)

func main() {
	kingpin.MustParse(app.Parse(os.Args[1:]))

	l, closer, err := loadtest.SetupLogging(*logFile, *verbose)
	if err != nil {
		os.Stderr.WriteString("failed to setup logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer closer.Close()

	ctx, cancel := context.WithTimeout(context.Background(), defaultTestTimeout)
	defer cancel()

	// The service's rules come from the same configuration sources.
	cfg, err := config.Load(ctx)
	if err != nil {
		l.Error(ctx, "failed to load config", logger.Error(err))
		os.Exit(1)
	}

	diff := *difficulty
	if diff == "" {
		diff = cfg.Service.Difficulty
	}
	n := *workers
	if n <= 0 {
		n = runtime.NumCPU() * defaultWorkers
	}

	if _, err := loadtest.Run(ctx, &loadtest.Config{
		BaseURL:       *baseURL,
		TracksDir:     *tracksDir,
		Difficulty:    diff,
		Track:         model.TrackID(*track),
		Runs:          *runs,
		Players:       *players,
		Seed:          *seed,
		TamperRate:    *tamper,
		TopN:          *topN,
		Workers:       n,
		Timeout:       *timeout,
		SettleTimeout: *settle,
		CBOR:          *useCBOR,
		OutputFile:    *output,
		Verbose:       *verbose,
		Rules:         cfg.Rules(),
		Logger:        l,
	}); err != nil {
		l.Error(ctx, "load test failed", logger.Error(err))
		_ = closer.Close()
		os.Exit(1)
	}
}
