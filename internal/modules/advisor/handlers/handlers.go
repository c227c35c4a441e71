// Package handlers provides HTTP handlers for investment recommendations.
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/minghan/leversim/internal/modules/advisor"
	"github.com/rs/zerolog"
)

// Handler handles advisor HTTP requests.
type Handler struct {
	svc *advisor.Service
	log zerolog.Logger
}

// NewHandler creates a new advisor handler.
func NewHandler(svc *advisor.Service, log zerolog.Logger) *Handler {
	return &Handler{
		svc: svc,
		log: log.With().Str("handler", "advisor").Logger(),
	}
}

// HandleRecommend handles POST /api/advisor/recommend.
func (h *Handler) HandleRecommend(w http.ResponseWriter, r *http.Request) {
	var in advisor.Input
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	rec, err := h.svc.Recommend(in)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "data": rec})
}

// writeJSON writes a JSON response.
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeError writes an error response in the standard envelope.
func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]interface{}{
		"success": false,
		"error":   message,
	})
}
