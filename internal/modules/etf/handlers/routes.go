package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all catalog routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/etfs", func(r chi.Router) {
		r.Get("/", h.HandleList)
		r.Get("/{symbol}", func(w http.ResponseWriter, r *http.Request) {
			h.HandleGet(w, r, chi.URLParam(r, "symbol"))
		})
		r.Get("/{symbol}/returns", func(w http.ResponseWriter, r *http.Request) {
			h.HandleGetReturns(w, r, chi.URLParam(r, "symbol"))
		})
		r.Get("/{symbol}/stats", func(w http.ResponseWriter, r *http.Request) {
			h.HandleGetStats(w, r, chi.URLParam(r, "symbol"))
		})
	})
}
