// Package handlers provides HTTP handlers for backtest operations.
package handlers

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"

	"github.com/minghan/leversim/internal/clientdata"
	"github.com/minghan/leversim/internal/domain"
	"github.com/minghan/leversim/internal/modules/backtest"
	"github.com/minghan/leversim/internal/modules/portfolio"
	"github.com/minghan/leversim/internal/modules/risk"
	"github.com/minghan/leversim/internal/modules/simulation"
	"github.com/minghan/leversim/internal/modules/tax"
	"github.com/rs/zerolog"
)

const (
	maxHorizonYears = 50
	maxBodyBytes    = 1 << 20
)

// ReturnsProvider resolves blended monthly return histories for weight maps.
type ReturnsProvider interface {
	GetBlendedReturns(weights map[string]float64, years int) ([]domain.MonthlyReturn, error)
}

// Handler handles backtest HTTP requests.
type Handler struct {
	portfolioSvc *portfolio.Service
	returns      ReturnsProvider
	cacheRepo    *clientdata.Repository
	log          zerolog.Logger
}

// NewHandler creates a new backtest handler.
// cacheRepo is optional - if nil, response caching is disabled.
func NewHandler(
	portfolioSvc *portfolio.Service,
	returns ReturnsProvider,
	cacheRepo *clientdata.Repository,
	log zerolog.Logger,
) *Handler {
	return &Handler{
		portfolioSvc: portfolioSvc,
		returns:      returns,
		cacheRepo:    cacheRepo,
		log:          log.With().Str("handler", "backtest").Logger(),
	}
}

// LeverageRequest carries the margin account parameters.
type LeverageRequest struct {
	AnnualInterestRate float64  `json:"annual_interest_rate"`
	Maintenance        *float64 `json:"maintenance_ratio,omitempty"`
	Liquidation        *float64 `json:"liquidation_ratio,omitempty"`
	ReLeverage         *float64 `json:"re_leverage_ratio,omitempty"`
	LTV                *float64 `json:"ltv,omitempty"`
}

// FeesRequest carries transaction fee rates, fractional.
type FeesRequest struct {
	BuyRate  *float64 `json:"buy_rate,omitempty"`
	SellRate *float64 `json:"sell_rate,omitempty"`
}

// Request is the backtest request body.
type Request struct {
	InitialCapital      float64            `json:"initial_capital"`
	MonthlyContribution float64            `json:"monthly_contribution"`
	Years               int                `json:"years"`
	Portfolio           map[string]float64 `json:"portfolio"`
	DividendFrequency   int                `json:"dividend_frequency"`
	UseHistorical       bool               `json:"use_historical"`
	Leverage            LeverageRequest    `json:"leverage"`
	Fees                FeesRequest        `json:"fees"`
	Tax                 *tax.Config        `json:"tax,omitempty"`
}

// Response wraps the comparison with the resolved portfolio profile.
type Response struct {
	Profile    portfolio.Profile    `json:"profile"`
	Comparison *backtest.Comparison `json:"comparison"`
	Cached     bool                 `json:"cached"`
}

// HandleRunBacktest handles POST /api/backtest.
func (h *Handler) HandleRunBacktest(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	var req Request
	if err := json.Unmarshal(body, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if err := validateRequest(req); err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	// Deterministic requests make the response cacheable by body hash.
	requestHash := hashRequest(body)
	if cached, ok := h.getCachedResponse(requestHash); ok {
		h.log.Debug().Str("request_hash", requestHash).Msg("Backtest cache hit")
		cached.Cached = true
		h.writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "data": cached})
		return
	}

	profile, err := h.portfolioSvc.Resolve(req.Portfolio)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	series, err := h.buildSeries(req, profile)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to build return series")
		h.writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	comparison, err := h.runBacktest(req, profile, series)
	if err != nil {
		status := http.StatusBadRequest
		h.log.Error().Err(err).Msg("Backtest failed")
		h.writeError(w, status, err.Error())
		return
	}

	response := Response{Profile: profile, Comparison: comparison}
	h.storeCachedResponse(requestHash, response)

	h.writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "data": response})
}

func validateRequest(req Request) error {
	if req.InitialCapital <= 0 {
		return domain.NewInputError("initial_capital", "must be positive")
	}
	if req.MonthlyContribution < 0 {
		return domain.NewInputError("monthly_contribution", "must be non-negative")
	}
	if req.Years <= 0 || req.Years > maxHorizonYears {
		return domain.NewInputError("years", fmt.Sprintf("must be between 1 and %d", maxHorizonYears))
	}
	if len(req.Portfolio) == 0 {
		return domain.NewInputError("portfolio", "must not be empty")
	}
	return nil
}

// buildSeries produces the monthly inputs: blended history when requested,
// otherwise a constant monthly return derived from the blended growth rate.
func (h *Handler) buildSeries(req Request, profile portfolio.Profile) ([]domain.MonthlyReturn, error) {
	if req.UseHistorical {
		returns, err := h.returns.GetBlendedReturns(req.Portfolio, req.Years)
		if err != nil {
			return nil, err
		}
		if len(returns) == 0 {
			return nil, domain.NewInputError("portfolio", "no return history available")
		}
		return returns, nil
	}

	monthly := monthlyFromAnnual(profile.ExpectedCAGR)
	months := req.Years * 12
	returns := make([]domain.MonthlyReturn, months)
	for i := range returns {
		returns[i] = domain.MonthlyReturn{
			Year:   i/12 + 1,
			Month:  i%12 + 1,
			Return: monthly,
		}
	}
	return returns, nil
}

func (h *Handler) runBacktest(req Request, profile portfolio.Profile, returns []domain.MonthlyReturn) (*backtest.Comparison, error) {
	thresholds := risk.DefaultThresholds()
	if req.Leverage.Maintenance != nil {
		thresholds.Maintenance = *req.Leverage.Maintenance
	}
	if req.Leverage.Liquidation != nil {
		thresholds.Liquidation = *req.Leverage.Liquidation
	}
	if req.Leverage.ReLeverage != nil {
		thresholds.ReLeverage = *req.Leverage.ReLeverage
	}
	if req.Leverage.LTV != nil {
		thresholds.LTV = *req.Leverage.LTV
	}

	simCfg := simulation.Config{
		UseLeverage:        true,
		AnnualInterestRate: req.Leverage.AnnualInterestRate,
		BuyFeeRate:         0.001425,
		SellFeeRate:        0.004425,
		DividendFrequency:  req.DividendFrequency,
	}
	if req.Fees.BuyRate != nil {
		simCfg.BuyFeeRate = *req.Fees.BuyRate
	}
	if req.Fees.SellRate != nil {
		simCfg.SellFeeRate = *req.Fees.SellRate
	}

	taxCfg := tax.DefaultConfig()
	if req.Tax != nil {
		taxCfg = *req.Tax
	}

	dividendFrequency := simCfg.DividendFrequency
	series := backtest.BuildSeries(returns, req.MonthlyContribution, profile.DividendYield, dividendFrequency)

	params := backtest.Params{
		InitialCapital:      req.InitialCapital,
		MonthlyContribution: req.MonthlyContribution,
		Series:              series,
		HorizonMonths:       req.Years * 12,
	}

	engine, err := backtest.NewEngine(simCfg, thresholds, taxCfg, h.log)
	if err != nil {
		return nil, err
	}
	return engine.Run(params)
}

func hashRequest(body []byte) string {
	sum := md5.Sum(body)
	return hex.EncodeToString(sum[:])
}

func (h *Handler) getCachedResponse(hash string) (Response, bool) {
	if h.cacheRepo == nil {
		return Response{}, false
	}
	data, err := h.cacheRepo.GetIfFresh("backtest_results", hash)
	if err != nil || data == nil {
		return Response{}, false
	}
	var cached Response
	if err := json.Unmarshal(data, &cached); err != nil {
		return Response{}, false
	}
	return cached, true
}

func (h *Handler) storeCachedResponse(hash string, response Response) {
	if h.cacheRepo == nil {
		return
	}
	if err := h.cacheRepo.Store("backtest_results", hash, response, clientdata.TTLBacktestResult); err != nil {
		h.log.Warn().Err(err).Str("request_hash", hash).Msg("Failed to cache backtest result")
	}
}

// monthlyFromAnnual converts an annual growth rate to its monthly equivalent.
func monthlyFromAnnual(annual float64) float64 {
	if annual <= -1 {
		return 0
	}
	return math.Pow(1+annual, 1.0/12.0) - 1
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
