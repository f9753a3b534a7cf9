package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/okian/ovation/internal/domain/replay"
	"github.com/okian/ovation/pkg/logger"
)

const cborType = "application/cbor"

// ReplayDependencies defines the interface for replay submission.
type ReplayDependencies interface {
	Submit(ctx context.Context, sub replay.Submission) (replay.Result, error)
	Status(ctx context.Context, id string) (replay.Result, error)
	Log(ctx context.Context, id string) (replay.Log, error)
}

// ReplayHandler handles replay requests.
type ReplayHandler struct {
	deps     ReplayDependencies
	maxBytes int64
	logger   logger.Logger
}

// NewReplayHandler creates a new replay handler.
func NewReplayHandler(deps ReplayDependencies, maxBytes int64, l logger.Logger) *ReplayHandler {
	return &ReplayHandler{deps: deps, maxBytes: maxBytes, logger: l}
}

// HandlePostReplay handles POST /replays. The body is JSON, or CBOR when
// sent as application/cbor.
func (h *ReplayHandler) HandlePostReplay(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_replay"

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBytes))
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeError(w, http.StatusRequestEntityTooLarge, "too_large", WrapKind(op, ErrBadRequest, err))
			return
		}
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}

	var req replayRequest
	if isCBOR(r.Header.Get("Content-Type")) {
		err = replay.Unmarshal(body, &req)
	} else {
		err = json.Unmarshal(body, &req)
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}

	res, err := h.deps.Submit(r.Context(), replay.Submission{
		ID:      strings.TrimSpace(req.ID),
		Player:  strings.TrimSpace(req.Player),
		Track:   req.Track,
		Log:     req.Log,
		Claimed: req.Claimed,
	})
	if err != nil {
		writeFailure(r.Context(), h.logger, w, classify(op, err))
		return
	}
	writeJSON(w, http.StatusAccepted, res)
}

// HandleGetReplay handles GET /replays/{id}.
func (h *ReplayHandler) HandleGetReplay(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_replay"
	res, err := h.deps.Status(r.Context(), r.PathValue("id"))
	if err != nil {
		writeFailure(r.Context(), h.logger, w, classify(op, err))
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// HandleGetLog handles GET /replays/{id}/log. Clients that accept
// application/cbor get the compact encoding.
func (h *ReplayHandler) HandleGetLog(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_replay_log"
	l, err := h.deps.Log(r.Context(), r.PathValue("id"))
	if err != nil {
		writeFailure(r.Context(), h.logger, w, classify(op, err))
		return
	}
	if !strings.Contains(r.Header.Get("Accept"), cborType) {
		writeJSON(w, http.StatusOK, l)
		return
	}
	data, err := replay.Encode(l)
	if err != nil {
		writeFailure(r.Context(), h.logger, w, Wrap(op, err))
		return
	}
	w.Header().Set("Content-Type", cborType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func isCBOR(contentType string) bool {
	mt, _, err := mime.ParseMediaType(contentType)
	return err == nil && mt == cborType
}
