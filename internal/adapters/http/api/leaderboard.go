package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/okian/ovation/internal/domain/model"
	"github.com/okian/ovation/pkg/logger"
)

const defaultLimit = 10

// LeaderboardDependencies defines the interface for leaderboard operations.
type LeaderboardDependencies interface {
	TopN(ctx context.Context, track model.TrackID, n int) ([]Entry, error)
}

// LeaderboardHandler handles leaderboard requests.
type LeaderboardHandler struct {
	deps     LeaderboardDependencies
	maxLimit int
	logger   logger.Logger
}

// NewLeaderboardHandler creates a new leaderboard handler.
func NewLeaderboardHandler(deps LeaderboardDependencies, maxLimit int, l logger.Logger) *LeaderboardHandler {
	return &LeaderboardHandler{
		deps:     deps,
		maxLimit: maxLimit,
		logger:   l,
	}
}

// HandleGetLeaderboard handles GET /leaderboard/{track}?limit=N. The limit
// defaults to 10.
func (h *LeaderboardHandler) HandleGetLeaderboard(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_leaderboard"
	n := defaultLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil || v < 1 {
			writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, ErrBadRequest))
			return
		}
		n = v
	}
	if n > h.maxLimit {
		writeError(w, http.StatusBadRequest, "limit_exceeded", NewKind(op, ErrBadRequest))
		return
	}
	entries, err := h.deps.TopN(r.Context(), model.TrackID(r.PathValue("track")), n)
	if err != nil {
		writeFailure(r.Context(), h.logger, w, classify(op, err))
		return
	}
	writeJSON(w, http.StatusOK, entries)
}
