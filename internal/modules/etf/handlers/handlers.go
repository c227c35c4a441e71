// Package handlers provides HTTP handlers for the instrument catalog.
package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/minghan/leversim/internal/modules/etf"
	"github.com/minghan/leversim/internal/modules/historical"
	"github.com/rs/zerolog"
)

const defaultHistoryYears = 10

// Handler handles catalog HTTP requests.
type Handler struct {
	catalog       *etf.Catalog
	historicalSvc *historical.Service
	log           zerolog.Logger
}

// NewHandler creates a new catalog handler.
func NewHandler(catalog *etf.Catalog, historicalSvc *historical.Service, log zerolog.Logger) *Handler {
	return &Handler{
		catalog:       catalog,
		historicalSvc: historicalSvc,
		log:           log.With().Str("handler", "etf").Logger(),
	}
}

// HandleList handles GET /api/etfs.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"data":    h.catalog.List(),
	})
}

// HandleGet handles GET /api/etfs/{symbol}.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request, symbol string) {
	entry, ok := h.catalog.Get(symbol)
	if !ok {
		h.writeError(w, http.StatusNotFound, "unknown symbol")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"data":    entry,
	})
}

// HandleGetReturns handles GET /api/etfs/{symbol}/returns?years=N.
func (h *Handler) HandleGetReturns(w http.ResponseWriter, r *http.Request, symbol string) {
	years := parseYears(r, defaultHistoryYears)

	returns, err := h.historicalSvc.GetReturns(symbol, years)
	if err != nil {
		h.log.Error().Err(err).Str("symbol", symbol).Msg("Failed to get returns")
		h.writeError(w, statusForFetch(err), err.Error())
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"data": map[string]interface{}{
			"symbol":  symbol,
			"returns": returns,
			"count":   len(returns),
		},
	})
}

// HandleGetStats handles GET /api/etfs/{symbol}/stats?years=N.
func (h *Handler) HandleGetStats(w http.ResponseWriter, r *http.Request, symbol string) {
	years := parseYears(r, defaultHistoryYears)

	stats, err := h.historicalSvc.GetStats(symbol, years)
	if err != nil {
		h.log.Error().Err(err).Str("symbol", symbol).Msg("Failed to get stats")
		h.writeError(w, statusForFetch(err), err.Error())
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"data":    stats,
	})
}

func parseYears(r *http.Request, fallback int) int {
	years := fallback
	if yearsStr := r.URL.Query().Get("years"); yearsStr != "" {
		if parsed, err := strconv.Atoi(yearsStr); err == nil && parsed > 0 {
			years = parsed
		}
	}
	return years
}

// statusForFetch maps catalog misses to 404 and upstream failures to 502.
func statusForFetch(err error) int {
	if historical.IsUnknownSymbol(err) {
		return http.StatusNotFound
	}
	return http.StatusBadGateway
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
