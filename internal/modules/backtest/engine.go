// Package backtest drives paired simulations over a historical return series:
// an unleveraged baseline and a leveraged run consuming identical inputs, so
// any divergence is attributable solely to leverage.
package backtest

import (
	"fmt"

	"github.com/minghan/leversim/internal/domain"
	"github.com/minghan/leversim/internal/modules/risk"
	"github.com/minghan/leversim/internal/modules/simulation"
	"github.com/minghan/leversim/internal/modules/tax"
	"github.com/minghan/leversim/pkg/formulas"
	"github.com/rs/zerolog"
)

// initialSharePrice normalizes every run to the same starting price so share
// counts are comparable across scenarios.
const initialSharePrice = 100.0

// Params configures one backtest. Dividend timing and yields travel inside
// the series periods, built with BuildSeries.
type Params struct {
	InitialCapital      float64              `json:"initial_capital"`
	MonthlyContribution float64              `json:"monthly_contribution"`
	Series              []domain.PeriodInput `json:"series"`
	HorizonMonths       int                  `json:"horizon_months"` // 0 = run to series exhaustion
}

// Summary aggregates one run.
type Summary struct {
	FinalEquity      float64           `json:"final_equity"`
	TotalPrincipal   float64           `json:"total_principal"`
	NetProfit        float64           `json:"net_profit"`
	ROI              float64           `json:"roi"` // fractional
	AnnualizedReturn float64           `json:"annualized_return"`
	MaxDrawdown      float64           `json:"max_drawdown"`
	Outperformance   *float64          `json:"outperformance,omitempty"` // leveraged vs regular, fractional
	EverLiquidated   bool              `json:"ever_liquidated"`
	LiquidationMonth int               `json:"liquidation_month,omitempty"` // 1-based, 0 = never
	Insolvent        bool              `json:"insolvent"`
	TaxSummary       tax.AnnualSummary `json:"tax_summary"`
}

// RunResult is one simulation path: the ordered period records plus summary.
type RunResult struct {
	Records []domain.PeriodResult `json:"records"`
	Summary Summary               `json:"summary"`
}

// Comparison holds the paired runs.
type Comparison struct {
	Regular  RunResult  `json:"regular"`
	Leverage *RunResult `json:"leverage,omitempty"`
}

// Engine owns the simulation configuration shared by both runs.
type Engine struct {
	simCfg     simulation.Config
	thresholds risk.Thresholds
	taxCfg     tax.Config
	log        zerolog.Logger
}

// NewEngine validates the configuration eagerly so malformed thresholds are
// rejected before any simulation runs.
func NewEngine(simCfg simulation.Config, thresholds risk.Thresholds, taxCfg tax.Config, log zerolog.Logger) (*Engine, error) {
	if _, err := risk.NewEngine(thresholds); err != nil {
		return nil, err
	}
	testLog := log.Level(zerolog.Disabled)
	if _, err := tax.NewCalculator(taxCfg, testLog); err != nil {
		return nil, err
	}

	return &Engine{
		simCfg:     simCfg,
		thresholds: thresholds,
		taxCfg:     taxCfg,
		log:        log.With().Str("service", "backtest").Logger(),
	}, nil
}

// Run executes the unleveraged baseline and, when leverage is enabled, the
// leveraged run over the same series. The two runs never share state: each
// gets its own calculator, tax tracker, and account.
func (e *Engine) Run(params Params) (*Comparison, error) {
	if len(params.Series) == 0 {
		return nil, domain.NewInputError("series", "must contain at least one period")
	}
	if params.InitialCapital <= 0 {
		return nil, domain.NewInputError("initial_capital", "must be positive")
	}
	if params.MonthlyContribution < 0 {
		return nil, domain.NewInputError("monthly_contribution", "must be non-negative")
	}

	regularCfg := e.simCfg
	regularCfg.UseLeverage = false

	regular, err := e.runOne(regularCfg, params)
	if err != nil {
		return nil, fmt.Errorf("regular run failed: %w", err)
	}

	comparison := &Comparison{Regular: *regular}

	if e.simCfg.UseLeverage {
		leverageCfg := e.simCfg
		leverageCfg.UseLeverage = true

		leverage, err := e.runOne(leverageCfg, params)
		if err != nil {
			return nil, fmt.Errorf("leverage run failed: %w", err)
		}

		if regular.Summary.FinalEquity > 0 {
			outperformance := leverage.Summary.FinalEquity/regular.Summary.FinalEquity - 1
			leverage.Summary.Outperformance = &outperformance
		}
		comparison.Leverage = leverage
	}

	e.log.Info().
		Int("periods", len(comparison.Regular.Records)).
		Bool("leverage", comparison.Leverage != nil).
		Msg("Backtest completed")

	return comparison, nil
}

// runOne executes a single simulation path over the series.
func (e *Engine) runOne(cfg simulation.Config, params Params) (*RunResult, error) {
	riskEngine, err := risk.NewEngine(e.thresholds)
	if err != nil {
		return nil, err
	}
	taxCalc, err := tax.NewCalculator(e.taxCfg, e.log)
	if err != nil {
		return nil, err
	}
	calc, err := simulation.NewCalculator(cfg, riskEngine, taxCalc, e.log)
	if err != nil {
		return nil, err
	}

	startYear := params.Series[0].Year
	state, err := calc.InitialState(params.InitialCapital, initialSharePrice, startYear)
	if err != nil {
		return nil, err
	}

	horizon := len(params.Series)
	if params.HorizonMonths > 0 && params.HorizonMonths < horizon {
		horizon = params.HorizonMonths
	}

	records := make([]domain.PeriodResult, 0, horizon)
	principal := params.InitialCapital
	summary := Summary{}

	for i := 0; i < horizon; i++ {
		in := params.Series[i]
		principal += in.Contribution

		newState, result, err := calc.RunMonthlyCycle(state, in)
		if err != nil {
			return nil, fmt.Errorf("period %d (%d-%02d): %w", i+1, in.Year, in.Month, err)
		}
		state = newState

		result.Principal = principal
		records = append(records, result)

		if result.RiskEvent == domain.RiskEventLiquidation && !summary.EverLiquidated {
			summary.EverLiquidated = true
			summary.LiquidationMonth = i + 1
		}
		if result.Insolvent {
			summary.Insolvent = true
		}
	}

	annotateAnnualReturns(records)

	summary.FinalEquity = state.NetEquity()
	summary.TotalPrincipal = principal
	summary.NetProfit = summary.FinalEquity - principal
	if principal > 0 {
		summary.ROI = summary.FinalEquity/principal - 1
	}
	summary.TaxSummary = taxCalc.AnnualSummary()

	equityCurve := make([]float64, len(records))
	for i, r := range records {
		equityCurve[i] = r.NetEquity
	}
	if dd := formulas.CalculateMaxDrawdown(equityCurve); dd != nil {
		summary.MaxDrawdown = *dd
	}
	if params.InitialCapital > 0 && summary.FinalEquity > 0 {
		// Annualize equity growth over principal as a coarse comparison rate.
		summary.AnnualizedReturn = formulas.AnnualizedReturn(summary.FinalEquity/principal, len(records))
	}

	return &RunResult{Records: records, Summary: summary}, nil
}

// annotateAnnualReturns sets each record's AnnualReturn to the compound return
// of its calendar year: prod(1+monthly) - 1.
func annotateAnnualReturns(records []domain.PeriodResult) {
	byYear := make(map[int]float64)
	for _, r := range records {
		growth, ok := byYear[r.Year]
		if !ok {
			growth = 1.0
		}
		byYear[r.Year] = growth * (1 + r.MonthlyReturn)
	}
	for i := range records {
		records[i].AnnualReturn = byYear[records[i].Year] - 1
	}
}

// BuildSeries converts raw monthly returns into period inputs, stamping the
// dividend months implied by the payout frequency. Both backtest runs consume
// the same built series.
func BuildSeries(returns []domain.MonthlyReturn, contribution, dividendYield float64, dividendFrequency int) []domain.PeriodInput {
	interval := 0
	if dividendFrequency > 0 && dividendFrequency <= 12 {
		interval = 12 / dividendFrequency
	}

	series := make([]domain.PeriodInput, len(returns))
	for i, r := range returns {
		isDividend := interval > 0 && r.Month%interval == 0
		series[i] = domain.PeriodInput{
			Year:            r.Year,
			Month:           r.Month,
			MonthlyReturn:   r.Return,
			Contribution:    contribution,
			IsDividendMonth: isDividend,
			DividendYield:   dividendYield,
		}
	}
	return series
}
