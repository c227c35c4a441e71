// Package handlers provides HTTP handlers for Monte Carlo simulations.
package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/minghan/leversim/internal/domain"
	"github.com/minghan/leversim/internal/modules/montecarlo"
	"github.com/minghan/leversim/internal/modules/portfolio"
	"github.com/rs/zerolog"
)

const (
	maxSimulations = 5000
	maxYears       = 30
)

// Handler handles Monte Carlo HTTP requests.
type Handler struct {
	portfolioSvc *portfolio.Service
	log          zerolog.Logger
}

// NewHandler creates a new Monte Carlo handler.
func NewHandler(portfolioSvc *portfolio.Service, log zerolog.Logger) *Handler {
	return &Handler{
		portfolioSvc: portfolioSvc,
		log:          log.With().Str("handler", "montecarlo").Logger(),
	}
}

// Request is the Monte Carlo request body. Mu defaults to the blended growth
// rate of the portfolio when omitted.
type Request struct {
	Portfolio           map[string]float64         `json:"portfolio"`
	Mu                  *float64                   `json:"mu,omitempty"`
	Sigma               float64                    `json:"sigma"`
	InitialCapital      float64                    `json:"initial_capital"`
	Years               int                        `json:"years"`
	NumSimulations      int                        `json:"num_simulations"`
	MonthlyContribution float64                    `json:"monthly_contribution"`
	Seed                int64                      `json:"seed,omitempty"`
	Strategy            *montecarlo.StrategyConfig `json:"strategy,omitempty"`
}

// Response carries the analysis plus a run identifier for log correlation.
type Response struct {
	RunID      string              `json:"run_id"`
	Mu         float64             `json:"mu"`
	Sigma      float64             `json:"sigma"`
	Analysis   montecarlo.Analysis `json:"analysis"`
	ElapsedMS  int64               `json:"elapsed_ms"`
	FullEngine bool                `json:"full_engine"`
}

// HandleRunSimulation handles POST /api/simulation/monte-carlo.
func (h *Handler) HandleRunSimulation(w http.ResponseWriter, r *http.Request) {
	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if req.NumSimulations > maxSimulations {
		h.writeError(w, http.StatusBadRequest, "num_simulations exceeds limit of 5000")
		return
	}
	if req.Years > maxYears {
		h.writeError(w, http.StatusBadRequest, "years exceeds limit of 30")
		return
	}

	mu, err := h.resolveMu(req)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	cfg := montecarlo.Config{
		Mu:                  mu,
		Sigma:               req.Sigma,
		InitialCapital:      req.InitialCapital,
		Years:               req.Years,
		NumSimulations:      req.NumSimulations,
		MonthlyContribution: req.MonthlyContribution,
		Seed:                req.Seed,
	}

	simulator, err := montecarlo.NewSimulator(cfg, h.log)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	runID := uuid.New().String()
	started := time.Now()

	var results []montecarlo.PathResult
	if req.Strategy != nil {
		results, err = simulator.SimulateWithStrategy(*req.Strategy)
		if err != nil {
			h.log.Error().Err(err).Str("run_id", runID).Msg("Simulation failed")
			h.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	} else {
		results = simulator.SimulateSimple()
	}

	elapsed := time.Since(started)
	h.log.Info().
		Str("run_id", runID).
		Int("simulations", len(results)).
		Dur("elapsed", elapsed).
		Bool("full_engine", req.Strategy != nil).
		Msg("Monte Carlo run completed")

	response := Response{
		RunID:      runID,
		Mu:         mu,
		Sigma:      req.Sigma,
		Analysis:   montecarlo.Analyze(results),
		ElapsedMS:  elapsed.Milliseconds(),
		FullEngine: req.Strategy != nil,
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "data": response})
}

// resolveMu prefers an explicit mu, falling back to the portfolio's blended
// growth rate.
func (h *Handler) resolveMu(req Request) (float64, error) {
	if req.Mu != nil {
		return *req.Mu, nil
	}
	if len(req.Portfolio) == 0 {
		return 0, domain.NewInputError("mu", "either mu or portfolio is required")
	}
	profile, err := h.portfolioSvc.Resolve(req.Portfolio)
	if err != nil {
		return 0, err
	}
	return profile.ExpectedCAGR, nil
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
