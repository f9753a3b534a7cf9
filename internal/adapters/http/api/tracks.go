package api

import (
	"context"
	"net/http"

	service "github.com/okian/ovation/internal/app"
)

// TracksDependencies lists playable tracks.
type TracksDependencies interface {
	Tracks(ctx context.Context) []service.TrackInfo
}

// TracksHandler handles track listing.
type TracksHandler struct {
	deps TracksDependencies
}

// NewTracksHandler creates a new tracks handler.
func NewTracksHandler(deps TracksDependencies) *TracksHandler {
	return &TracksHandler{deps: deps}
}

// HandleGetTracks handles GET /tracks.
func (h *TracksHandler) HandleGetTracks(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.deps.Tracks(r.Context()))
}
