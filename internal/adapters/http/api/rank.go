package api

import (
	"context"
	"net/http"

	"github.com/okian/ovation/internal/domain/model"
	"github.com/okian/ovation/pkg/logger"
)

// RankDependencies defines the interface for rank operations.
type RankDependencies interface {
	Rank(ctx context.Context, track model.TrackID, player string) (Entry, error)
}

// RankHandler handles rank requests.
type RankHandler struct {
	deps   RankDependencies
	logger logger.Logger
}

// NewRankHandler creates a new rank handler.
func NewRankHandler(deps RankDependencies, l logger.Logger) *RankHandler {
	return &RankHandler{deps: deps, logger: l}
}

// HandleGetRank handles GET /rank/{track}/{player}.
func (h *RankHandler) HandleGetRank(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_rank"
	entry, err := h.deps.Rank(r.Context(), model.TrackID(r.PathValue("track")), r.PathValue("player"))
	if err != nil {
		writeFailure(r.Context(), h.logger, w, classify(op, err))
		return
	}
	writeJSON(w, http.StatusOK, entry)
}
