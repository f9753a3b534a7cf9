// Package api serves replay submission and leaderboard reads over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	service "github.com/okian/ovation/internal/app"
	"github.com/okian/ovation/internal/adapters/repository"
	"github.com/okian/ovation/internal/domain/model"
	"github.com/okian/ovation/internal/domain/replay"
	"github.com/okian/ovation/pkg/logger"
	"github.com/okian/ovation/pkg/metrics"
)

const (
	defaultMaxLimit     = 100
	defaultMaxBodyBytes = 1 << 20
)

// Dependencies required by HTTP handlers.
type Dependencies interface {
	ReplayDependencies
	LeaderboardDependencies
	RankDependencies
	TracksDependencies
}

// Entry is one leaderboard row as served.
type Entry = repository.Entry

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler      *HealthHandler
	statsHandler       *StatsHandler
	replayHandler      *ReplayHandler
	leaderboardHandler *LeaderboardHandler
	rankHandler        *RankHandler
	tracksHandler      *TracksHandler

	maxLimit     int
	maxBodyBytes int64
	logger       logger.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithMaxLimit caps the limit accepted by the leaderboard route.
func WithMaxLimit(n int) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxLimit = n
		}
	}
}

// WithMaxBodyBytes caps the size of a submitted replay.
func WithMaxBodyBytes(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxBodyBytes = n
		}
	}
}

// WithLogger sets the logger used for server-side failures.
func WithLogger(l logger.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider, opts ...Option) *Server {
	s := &Server{
		maxLimit:     defaultMaxLimit,
		maxBodyBytes: defaultMaxBodyBytes,
		logger:       logger.GetOrNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.Named("api")

	s.healthHandler = NewHealthHandler()
	s.statsHandler = NewStatsHandler(statsProvider)
	s.replayHandler = NewReplayHandler(deps, s.maxBodyBytes, s.logger)
	s.leaderboardHandler = NewLeaderboardHandler(deps, s.maxLimit, s.logger)
	s.rankHandler = NewRankHandler(deps, s.logger)
	s.tracksHandler = NewTracksHandler(deps)
	return s
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(ctx context.Context, mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.Handle("GET /metrics", promhttp.HandlerFor(metrics.GetRegistry(), promhttp.HandlerOpts{}))
	mux.HandleFunc("GET /stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("POST /replays", MetricsMiddleware(s.replayHandler.HandlePostReplay, "replays"))
	mux.HandleFunc("GET /replays/{id}", MetricsMiddleware(s.replayHandler.HandleGetReplay, "replay"))
	mux.HandleFunc("GET /replays/{id}/log", MetricsMiddleware(s.replayHandler.HandleGetLog, "replay_log"))
	mux.HandleFunc("GET /leaderboard/{track}", MetricsMiddleware(s.leaderboardHandler.HandleGetLeaderboard, "leaderboard"))
	mux.HandleFunc("GET /rank/{track}/{player}", MetricsMiddleware(s.rankHandler.HandleGetRank, "rank"))
	mux.HandleFunc("GET /tracks", MetricsMiddleware(s.tracksHandler.HandleGetTracks, "tracks"))

	s.logger.Debug(ctx, "routes registered")
}

// replayRequest is the body of POST /replays.
type replayRequest struct {
	ID      string         `json:"id" cbor:"id"`
	Player  string         `json:"player" cbor:"player"`
	Track   model.TrackID  `json:"track" cbor:"track"`
	Log     replay.Log     `json:"log" cbor:"log"`
	Claimed replay.Summary `json:"claimed" cbor:"claimed"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// classify maps service failures to API kinds.
func classify(op string, err error) error {
	switch {
	case errors.Is(err, service.ErrInvalidSubmission), errors.Is(err, repository.ErrInvalidLimit):
		return WrapKind(op, ErrBadRequest, err)
	case errors.Is(err, service.ErrUnknownTrack), errors.Is(err, service.ErrNotFound):
		return WrapKind(op, ErrNotFound, err)
	case errors.Is(err, service.ErrDuplicate):
		return WrapKind(op, ErrConflict, err)
	case errors.Is(err, service.ErrBackpressure):
		return WrapKind(op, ErrBackpressure, err)
	case errors.Is(err, service.ErrNotStarted):
		return WrapKind(op, ErrUnavailable, err)
	default:
		return WrapKind(op, ErrInternal, err)
	}
}

// writeFailure writes err with the status of its kind. Internal failures
// are logged and their detail withheld from the client.
func writeFailure(ctx context.Context, l logger.Logger, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrBadRequest):
		writeError(w, http.StatusBadRequest, "bad_request", err)
	case errors.Is(err, ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err)
	case errors.Is(err, ErrConflict):
		writeError(w, http.StatusConflict, "duplicate", err)
	case errors.Is(err, ErrBackpressure):
		writeError(w, http.StatusTooManyRequests, "backpressure", err)
	case errors.Is(err, ErrUnavailable):
		writeError(w, http.StatusServiceUnavailable, "unavailable", err)
	default:
		l.Error(ctx, "request failed", logger.Error(err))
		writeError(w, http.StatusInternalServerError, "internal_error", nil)
	}
}
