package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/akagifreeez/apikeys/internal/models"
)

// UsageRecorder counts requests made with a key.
type UsageRecorder interface {
	Record(ctx context.Context, id string, count int64) (int64, error)
}

// KeyLookup reports whether a key exists.
type KeyLookup interface {
	Exists(ctx context.Context, id string) (bool, error)
}

// UsageHandler lets the gateway that serves key-authenticated traffic report
// usage. It is guarded by the internal token, not by user JWTs.
type UsageHandler struct {
	recorder UsageRecorder
	keys     KeyLookup
}

func NewUsageHandler(recorder UsageRecorder, keys KeyLookup) *UsageHandler {
	return &UsageHandler{recorder: recorder, keys: keys}
}

type usageRequest struct {
	ID    string `json:"id"`
	Count int64  `json:"count"`
}

type usageResponse struct {
	ID    string `json:"id"`
	Total int64  `json:"total"`
}

// RecordUsage adds count requests to the key's monthly counter.
// POST /internal/usage
func (h *UsageHandler) RecordUsage(w http.ResponseWriter, r *http.Request) {
	var req usageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, fmt.Errorf("%w: invalid request body: %v", models.ErrInvalidArgument, err))
		return
	}
	if req.ID == "" {
		writeError(w, r, fmt.Errorf("%w: id is required", models.ErrInvalidArgument))
		return
	}
	if req.Count <= 0 {
		writeError(w, r, fmt.Errorf("%w: count must be positive", models.ErrInvalidArgument))
		return
	}

	exists, err := h.keys.Exists(r.Context(), req.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !exists {
		writeError(w, r, fmt.Errorf("%w: %q", models.ErrNotFound, req.ID))
		return
	}

	total, err := h.recorder.Record(r.Context(), req.ID, req.Count)
	if err != nil {
		writeError(w, r, err)
		return
	}

	log.Debug().Str("id", req.ID).Int64("count", req.Count).Int64("total", total).Msg("Usage recorded")
	writeJSON(w, http.StatusAccepted, usageResponse{ID: req.ID, Total: total})
}
