// Package montecarlo generates synthetic asset paths with geometric Brownian
// motion and evaluates the accumulation strategy across them. Paths are
// independent, so the full-strategy evaluation fans out across a worker pool;
// each worker owns its calculators and account state exclusively.
package montecarlo

import (
	"fmt"
	"math"
	"math/rand"
	"runtime"
	"sync"

	"github.com/minghan/leversim/internal/domain"
	"github.com/minghan/leversim/internal/modules/risk"
	"github.com/minghan/leversim/internal/modules/simulation"
	"github.com/minghan/leversim/internal/modules/tax"
	"github.com/minghan/leversim/pkg/formulas"
	"github.com/rs/zerolog"
)

const initialPrice = 100.0

// Config holds the Monte Carlo parameters.
type Config struct {
	Mu                  float64 `json:"mu"`    // expected annual return, fractional
	Sigma               float64 `json:"sigma"` // annual volatility, fractional
	InitialCapital      float64 `json:"initial_capital"`
	Years               int     `json:"years"`
	NumSimulations      int     `json:"num_simulations"`
	MonthlyContribution float64 `json:"monthly_contribution"`
	Seed                int64   `json:"seed"` // 0 = fixed default seed
}

// Simulator generates return paths and evaluates strategies over them.
type Simulator struct {
	cfg    Config
	months int
	log    zerolog.Logger
}

// NewSimulator validates the configuration and creates a simulator.
func NewSimulator(cfg Config, log zerolog.Logger) (*Simulator, error) {
	if cfg.Sigma < 0 {
		return nil, domain.NewConfigurationError("sigma", "must be non-negative")
	}
	if cfg.InitialCapital <= 0 {
		return nil, domain.NewConfigurationError("initial_capital", "must be positive")
	}
	if cfg.Years <= 0 {
		return nil, domain.NewConfigurationError("years", "must be positive")
	}
	if cfg.NumSimulations <= 0 {
		return nil, domain.NewConfigurationError("num_simulations", "must be positive")
	}
	if cfg.MonthlyContribution < 0 {
		return nil, domain.NewConfigurationError("monthly_contribution", "must be non-negative")
	}
	if cfg.Seed == 0 {
		cfg.Seed = 42
	}

	return &Simulator{
		cfg:    cfg,
		months: cfg.Years * 12,
		log:    log.With().Str("service", "montecarlo").Logger(),
	}, nil
}

// Months returns the simulation horizon in months.
func (s *Simulator) Months() int {
	return s.months
}

// GeneratePricePaths produces NumSimulations GBM price paths of months+1
// steps each, starting at the normalized initial price:
//
//	S(t+1) = S(t) * exp((mu - sigma^2/2)*dt + sigma*sqrt(dt)*Z)
//
// Generation is deterministic for a given seed.
func (s *Simulator) GeneratePricePaths() [][]float64 {
	rng := rand.New(rand.NewSource(s.cfg.Seed))

	monthlyMu := s.cfg.Mu / 12
	monthlySigma := s.cfg.Sigma / math.Sqrt(12)
	drift := monthlyMu - 0.5*monthlySigma*monthlySigma

	paths := make([][]float64, s.cfg.NumSimulations)
	for i := range paths {
		path := make([]float64, s.months+1)
		path[0] = initialPrice
		for t := 0; t < s.months; t++ {
			shock := monthlySigma * rng.NormFloat64()
			path[t+1] = path[t] * math.Exp(drift+shock)
		}
		paths[i] = path
	}
	return paths
}

// GenerateReturnPaths converts price paths to monthly return paths.
func (s *Simulator) GenerateReturnPaths() [][]float64 {
	paths := s.GeneratePricePaths()

	returns := make([][]float64, len(paths))
	for i, path := range paths {
		returns[i] = formulas.CalculateReturns(path)
	}
	return returns
}

// PathResult is the final outcome of one simulated path.
type PathResult struct {
	Simulation        int     `json:"simulation"` // 1-based
	FinalNetEquity    float64 `json:"final_net_equity"`
	FinalStockValue   float64 `json:"final_stock_value"`
	FinalLoan         float64 `json:"final_loan"`
	TotalContribution float64 `json:"total_contribution"`
	NetProfit         float64 `json:"net_profit"`
	ROI               float64 `json:"roi"` // fractional
	EverLiquidated    bool    `json:"ever_liquidated"`
	LiquidationMonth  int     `json:"liquidation_month,omitempty"` // 1-based, 0 = never
}

// SimulateSimple evaluates contribution-only compounding over every path: no
// leverage, dividends or taxes. Suitable for fast estimates and large runs.
func (s *Simulator) SimulateSimple() []PathResult {
	returnPaths := s.GenerateReturnPaths()
	totalContribution := s.cfg.InitialCapital + s.cfg.MonthlyContribution*float64(s.months)

	results := make([]PathResult, len(returnPaths))
	for i, path := range returnPaths {
		wealth := s.cfg.InitialCapital
		for _, r := range path {
			wealth *= 1 + r
			wealth += s.cfg.MonthlyContribution
		}

		results[i] = PathResult{
			Simulation:        i + 1,
			FinalNetEquity:    wealth,
			FinalStockValue:   wealth,
			TotalContribution: totalContribution,
			NetProfit:         wealth - totalContribution,
		}
		if totalContribution > 0 {
			results[i].ROI = wealth/totalContribution - 1
		}
	}
	return results
}

// StrategyConfig bundles the full-strategy parameters applied to every path.
type StrategyConfig struct {
	Simulation    simulation.Config `json:"simulation"`
	Thresholds    risk.Thresholds   `json:"thresholds"`
	Tax           tax.Config        `json:"tax"`
	DividendYield float64           `json:"dividend_yield"` // annual, fractional
}

// SimulateWithStrategy evaluates the full monthly engine (leverage, dividends,
// taxes, forced actions) over every path. Paths are distributed across a
// worker pool; results come back in path order regardless of scheduling.
func (s *Simulator) SimulateWithStrategy(strategy StrategyConfig) ([]PathResult, error) {
	// Validate eagerly on the caller's goroutine so configuration errors are
	// not buried inside workers.
	if _, err := risk.NewEngine(strategy.Thresholds); err != nil {
		return nil, err
	}

	returnPaths := s.GenerateReturnPaths()
	results := make([]PathResult, len(returnPaths))

	workers := runtime.NumCPU()
	if workers > len(returnPaths) {
		workers = len(returnPaths)
	}

	// Buffered and fully enqueued up front so workers that stop early on an
	// error never block the producer.
	jobs := make(chan int, len(returnPaths))
	for idx := range returnPaths {
		jobs <- idx
	}
	close(jobs)

	errs := make(chan error, workers)
	var wg sync.WaitGroup

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				result, err := s.runPath(idx, returnPaths[idx], strategy)
				if err != nil {
					select {
					case errs <- fmt.Errorf("path %d: %w", idx+1, err):
					default:
					}
					return
				}
				results[idx] = result
			}
		}()
	}

	wg.Wait()

	select {
	case err := <-errs:
		return nil, err
	default:
	}

	s.log.Info().
		Int("paths", len(results)).
		Int("workers", workers).
		Msg("Strategy simulation completed")

	return results, nil
}

// runPath evaluates one path with its own exclusive calculators.
func (s *Simulator) runPath(idx int, returns []float64, strategy StrategyConfig) (PathResult, error) {
	riskEngine, err := risk.NewEngine(strategy.Thresholds)
	if err != nil {
		return PathResult{}, err
	}
	taxCalc, err := tax.NewCalculator(strategy.Tax, s.log)
	if err != nil {
		return PathResult{}, err
	}
	calc, err := simulation.NewCalculator(strategy.Simulation, riskEngine, taxCalc, s.log)
	if err != nil {
		return PathResult{}, err
	}

	state, err := calc.InitialState(s.cfg.InitialCapital, initialPrice, 1)
	if err != nil {
		return PathResult{}, err
	}

	result := PathResult{Simulation: idx + 1}

	for month, r := range returns {
		year := month/12 + 1
		monthInYear := month%12 + 1

		in := domain.PeriodInput{
			Year:            year,
			Month:           monthInYear,
			MonthlyReturn:   r,
			Contribution:    s.cfg.MonthlyContribution,
			IsDividendMonth: calc.IsDividendMonth(monthInYear),
			DividendYield:   strategy.DividendYield,
		}

		newState, periodResult, err := calc.RunMonthlyCycle(state, in)
		if err != nil {
			return PathResult{}, err
		}
		state = newState

		if periodResult.RiskEvent == domain.RiskEventLiquidation && !result.EverLiquidated {
			result.EverLiquidated = true
			result.LiquidationMonth = month + 1
		}
	}

	result.FinalNetEquity = state.NetEquity()
	result.FinalStockValue = state.StockValue()
	result.FinalLoan = state.Loan
	result.TotalContribution = s.cfg.InitialCapital + s.cfg.MonthlyContribution*float64(s.months)
	result.NetProfit = result.FinalNetEquity - result.TotalContribution
	if result.TotalContribution > 0 {
		result.ROI = result.FinalNetEquity/result.TotalContribution - 1
	}

	return result, nil
}
