package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/akagifreeez/apikeys/internal/models"
)

// Error kinds produced by the HTTP layer itself.
const (
	KindUnauthorized = "unauthorized"
	KindRateLimited  = "rate_limited"
)

type errorBody struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error errorBody `json:"error"`
}

// writeJSON marshals v and writes it with status. A marshal failure becomes
// a 500.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":{"kind":"internal","message":"internal server error"}}`))
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

func writeErrorKind(w http.ResponseWriter, status int, kind, message string) {
	writeJSON(w, status, errorResponse{Error: errorBody{Kind: kind, Message: message}})
}

// writeError maps a service error to its status code. Internal errors are
// logged and their detail is not exposed.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := models.ErrorKind(err)
	switch kind {
	case models.KindInvalidArgument:
		writeErrorKind(w, http.StatusBadRequest, kind, err.Error())
	case models.KindNotFound:
		writeErrorKind(w, http.StatusNotFound, kind, err.Error())
	default:
		if errors.Is(err, models.ErrDuplicateID) {
			log.Error().Err(err).Str("path", r.URL.Path).Msg("Key id uniqueness violated")
		} else {
			log.Error().Err(err).Str("path", r.URL.Path).Msg("Request failed")
		}
		writeErrorKind(w, http.StatusInternalServerError, kind, "internal server error")
	}
}
