// Command ovationd verifies submitted replays and serves the per-track
// leaderboards over HTTP.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/okian/ovation/internal/adapters/beatmapfile"
	"github.com/okian/ovation/internal/adapters/http/api"
	"github.com/okian/ovation/internal/adapters/http/swagger"
	"github.com/okian/ovation/internal/adapters/repository"
	app "github.com/okian/ovation/internal/app"
	"github.com/okian/ovation/internal/config"
	"github.com/okian/ovation/pkg/logger"
	"github.com/okian/ovation/pkg/metrics"
)

const (
	idleTimeout               = 60 * time.Second
	readHeaderTimeout         = 5 * time.Second
	systemMetricsInterval     = 10 * time.Second
	serviceMetricsInterval    = 5 * time.Second
	nanosecondsPerMillisecond = 1e6
)

func main() {
	prometheus.Unregister(collectors.NewGoCollector())
	prometheus.Unregister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	if err := logger.Init(); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		logger.Get().Error(ctx, "ovationd failed", logger.Error(err))
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	l := logger.Get()

	// defaults -> optional file -> env
	cfg, err := config.Load(ctx)
	if err != nil {
		return err
	}
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		l.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	svc, mux, err := build(ctx, cfg, l)
	if err != nil {
		return err
	}
	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("start service: %w", err)
	}
	defer svc.Stop()

	go startSystemMetricsUpdater(ctx)
	go startServiceMetricsUpdater(ctx, svc)

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           mux,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		l.Info(ctx, "starting HTTP server", logger.String("addr", cfg.Server.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}
	l.Info(ctx, "shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		l.Error(ctx, "server shutdown failed", logger.Error(err))
	}
	l.Info(ctx, "server stopped")
	return nil
}

// build loads the track catalog, opens the archive and wires the service
// and its routes. The service is returned unstarted.
func build(ctx context.Context, cfg *config.Config, l logger.Logger) (*app.Service, *http.ServeMux, error) {
	catalog := beatmapfile.NewCatalog(
		beatmapfile.WithDifficulty(cfg.Service.Difficulty),
		beatmapfile.WithLogger(l),
	)
	if _, err := catalog.Load(ctx, cfg.Service.TracksDir); err != nil {
		return nil, nil, fmt.Errorf("load tracks from %s: %w", cfg.Service.TracksDir, err)
	}

	opts := []app.Option{
		app.WithLogger(l),
		app.WithRules(cfg.Rules()),
		app.WithWorkerCount(cfg.Service.WorkerCount),
		app.WithQueueSize(cfg.Service.QueueSize),
		app.WithDedupeSize(cfg.Service.DedupeSize),
		app.WithResultLimit(cfg.Service.ResultLimit),
		app.WithVerifyTimeout(cfg.Service.VerifyTimeout),
	}
	if cfg.Service.ArchiveDSN != "" {
		archive, err := repository.OpenArchive(ctx, cfg.Service.ArchiveDSN, repository.WithArchiveLogger(l))
		if err != nil {
			return nil, nil, fmt.Errorf("open archive: %w", err)
		}
		opts = append(opts, app.WithArchive(archive))
	}
	svc := app.New(catalog, opts...)

	mux := http.NewServeMux()
	swagger.Register(ctx, mux)
	api.NewServer(svc, svc,
		api.WithMaxLimit(cfg.Server.MaxLeaderboardLimit),
		api.WithMaxBodyBytes(cfg.Server.MaxBodyBytes),
		api.WithLogger(l),
	).Register(ctx, mux)

	return svc, mux, nil
}

// startSystemMetricsUpdater updates the process gauges until ctx ends.
func startSystemMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(systemMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateSystemMetrics()
		}
	}
}

// startServiceMetricsUpdater refreshes the queue gauge until ctx ends.
func startServiceMetricsUpdater(ctx context.Context, svc *app.Service) {
	ticker := time.NewTicker(serviceMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateServiceMetrics(svc)
		}
	}
}

func updateSystemMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	metrics.UpdateSystemMemoryUsage(m.Alloc)
	metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())

	if m.NumGC > 0 {
		avgPauseMs := float64(m.PauseTotalNs) / float64(m.NumGC) / nanosecondsPerMillisecond
		metrics.RecordSystemGCPauseTime(avgPauseMs)
	}
}

func updateServiceMetrics(svc *app.Service) {
	stats := svc.GetStats()
	if queueLen, ok := stats["queueLength"].(int); ok {
		metrics.UpdateQueueSize(queueLen)
	}
}
