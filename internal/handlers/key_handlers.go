package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/akagifreeez/apikeys/internal/models"
)

// KeyService is the lifecycle API served by KeyHandler.
type KeyService interface {
	CreateKey(ctx context.Context, name string, limit *int64) (models.KeyView, error)
	ListKeys(ctx context.Context) ([]models.KeyView, error)
	RevealKey(ctx context.Context, id string) (models.KeyView, error)
	UpdateKey(ctx context.Context, id, name string, limit *int64) (models.KeyView, error)
	DeleteKey(ctx context.Context, id string) error
	QuotaStatus(ctx context.Context, id string) (models.QuotaStatus, error)
}

type KeyHandler struct {
	keys KeyService
}

func NewKeyHandler(keys KeyService) *KeyHandler {
	return &KeyHandler{keys: keys}
}

// keyRequest is the body of create and update.
type keyRequest struct {
	Name  string `json:"name"`
	Limit *int64 `json:"limit"`
}

func decodeKeyRequest(r *http.Request) (keyRequest, error) {
	var input keyRequest
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		return input, fmt.Errorf("%w: invalid request body: %v", models.ErrInvalidArgument, err)
	}
	return input, nil
}

// CreateKey issues a new key and returns it unmasked.
// POST /api/keys
func (h *KeyHandler) CreateKey(w http.ResponseWriter, r *http.Request) {
	input, err := decodeKeyRequest(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	view, err := h.keys.CreateKey(r.Context(), input.Name, input.Limit)
	if err != nil {
		writeError(w, r, err)
		return
	}

	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusCreated, view)
}

// ListKeys returns all keys masked.
// GET /api/keys
func (h *KeyHandler) ListKeys(w http.ResponseWriter, r *http.Request) {
	views, err := h.keys.ListKeys(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, views)
}

// RevealKey returns one key with its secret.
// GET /api/keys/{id}
func (h *KeyHandler) RevealKey(w http.ResponseWriter, r *http.Request) {
	view, err := h.keys.RevealKey(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, view)
}

// UpdateKey replaces name and limit. Omitting limit removes the quota.
// PUT /api/keys/{id}
func (h *KeyHandler) UpdateKey(w http.ResponseWriter, r *http.Request) {
	input, err := decodeKeyRequest(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	view, err := h.keys.UpdateKey(r.Context(), chi.URLParam(r, "id"), input.Name, input.Limit)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, view)
}

// DeleteKey revokes a key.
// DELETE /api/keys/{id}
func (h *KeyHandler) DeleteKey(w http.ResponseWriter, r *http.Request) {
	if err := h.keys.DeleteKey(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// GetQuota reports usage against the key's limit.
// GET /api/keys/{id}/quota
func (h *KeyHandler) GetQuota(w http.ResponseWriter, r *http.Request) {
	status, err := h.keys.QuotaStatus(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, status)
}
