// Package advisor produces rule-based investment recommendations: a weighted
// portfolio, a leverage suggestion, an investment horizon, and a projected
// wealth figure derived from the investor's age, risk tolerance, and goal.
package advisor

import (
	"fmt"
	"math"

	"github.com/minghan/leversim/internal/domain"
	"github.com/minghan/leversim/internal/modules/portfolio"
	"github.com/rs/zerolog"
)

// Risk tolerance levels accepted in Input.RiskLevel.
const (
	RiskConservative = "conservative"
	RiskBalanced     = "balanced"
	RiskAggressive   = "aggressive"
)

// Savings goals accepted in Input.Goal.
const (
	GoalRetirement = "retirement"
	GoalHome       = "home"
	GoalFirstFund  = "first_fund"
)

const (
	retirementAge   = 65
	minHorizonYears = 5

	// Return assumptions behind the wealth projection. Coarse by intent: the
	// recommendation is a starting point, the backtest and Monte Carlo
	// endpoints give the real numbers.
	assumedMarketReturn = 0.08
	assumedBorrowRate   = 0.065
)

// Input describes the investor asking for a recommendation.
type Input struct {
	Age            int     `json:"age"`
	RiskLevel      string  `json:"risk_level"`
	Goal           string  `json:"goal"`
	MonthlySavings float64 `json:"monthly_savings"`
}

// ProjectedWealth is the compound accumulation over the horizon under the
// recommended strategy's expected return.
type ProjectedWealth struct {
	TotalContribution float64 `json:"total_contribution"`
	FinalWealth       float64 `json:"final_wealth"`
	Profit            float64 `json:"profit"`
}

// Recommendation is a complete strategy suggestion. Portfolio weights are
// fractional and sum to 1.0; LTV is 0 when leverage is not suggested.
type Recommendation struct {
	StrategyName     string             `json:"strategy_name"`
	Description      string             `json:"description"`
	Portfolio        map[string]float64 `json:"portfolio"`
	UseLeverage      bool               `json:"use_leverage"`
	LTV              float64            `json:"ltv"`
	HorizonYears     int                `json:"investment_horizon_years"`
	ExpectedReturn   float64            `json:"expected_return"`     // annual, fractional
	AvgDividendYield float64            `json:"avg_dividend_yield"`  // annual, fractional
	Projected        ProjectedWealth    `json:"projected_wealth"`
}

// Service maps investor profiles to recommendations through a fixed decision
// table over age and risk tolerance. The portfolio service resolves the
// recommended weights against the catalog, so a recommendation can never name
// an unknown symbol.
type Service struct {
	portfolioSvc *portfolio.Service
	log          zerolog.Logger
}

// NewService creates an advisor backed by the given portfolio service.
func NewService(portfolioSvc *portfolio.Service, log zerolog.Logger) *Service {
	return &Service{
		portfolioSvc: portfolioSvc,
		log:          log.With().Str("service", "advisor").Logger(),
	}
}

// Recommend validates the input and produces a recommendation.
func (s *Service) Recommend(in Input) (Recommendation, error) {
	if err := validateInput(in); err != nil {
		return Recommendation{}, err
	}

	horizon := horizonYears(in)
	rec := strategyFor(in)
	rec.HorizonYears = horizon

	profile, err := s.portfolioSvc.Resolve(rec.Portfolio)
	if err != nil {
		return Recommendation{}, fmt.Errorf("resolving recommended portfolio: %w", err)
	}
	rec.AvgDividendYield = profile.DividendYield

	rec.ExpectedReturn = assumedMarketReturn
	if rec.UseLeverage {
		// Leverage scales the market exposure by (1+ltv) and pays the borrow
		// rate on the borrowed fraction.
		rec.ExpectedReturn = assumedMarketReturn*(1+rec.LTV) - rec.LTV*assumedBorrowRate
	}

	rec.Projected = projectWealth(in.MonthlySavings, rec.ExpectedReturn, horizon)

	s.log.Debug().
		Int("age", in.Age).
		Str("risk_level", in.RiskLevel).
		Str("goal", in.Goal).
		Str("strategy", rec.StrategyName).
		Bool("use_leverage", rec.UseLeverage).
		Msg("Recommendation produced")

	return rec, nil
}

func validateInput(in Input) error {
	if in.Age < 18 || in.Age > 100 {
		return domain.NewInputError("age", fmt.Sprintf("must be in [18,100], got %d", in.Age))
	}
	switch in.RiskLevel {
	case RiskConservative, RiskBalanced, RiskAggressive:
	default:
		return domain.NewInputError("risk_level", fmt.Sprintf("must be %q, %q or %q", RiskConservative, RiskBalanced, RiskAggressive))
	}
	switch in.Goal {
	case GoalRetirement, GoalHome, GoalFirstFund:
	default:
		return domain.NewInputError("goal", fmt.Sprintf("must be %q, %q or %q", GoalRetirement, GoalHome, GoalFirstFund))
	}
	if in.MonthlySavings < 0 {
		return domain.NewInputError("monthly_savings", "must be non-negative")
	}
	return nil
}

// horizonYears derives the investment horizon from the goal: retirement runs
// to age 65 with a five-year floor, a home purchase is a ten-year plan for
// younger investors and seven otherwise, a first fund is always five.
func horizonYears(in Input) int {
	switch in.Goal {
	case GoalRetirement:
		h := retirementAge - in.Age
		if h < minHorizonYears {
			return minHorizonYears
		}
		return h
	case GoalHome:
		if in.Age < 35 {
			return 10
		}
		return 7
	default:
		return minHorizonYears
	}
}

// strategyFor is the decision table over risk tolerance and age. Weights are
// fractional; leverage is only suggested on the aggressive paths, with the LTV
// shrinking as age rises.
func strategyFor(in Input) Recommendation {
	switch in.RiskLevel {
	case RiskAggressive:
		switch {
		case in.Age < 35:
			return Recommendation{
				StrategyName: "積極成長型",
				Description:  "年輕且風險承受度高，適合追求成長。70% 市值型加 30% 高股息，並使用適度槓桿。",
				Portfolio:    map[string]float64{"0050": 0.70, "0056": 0.20, "00878": 0.10},
				UseLeverage:  true,
				LTV:          0.50,
			}
		case in.Age < 50:
			return Recommendation{
				StrategyName: "成長平衡型",
				Description:  "追求成長但需兼顧風險控制。60% 市值型加 40% 高股息，適度槓桿。",
				Portfolio:    map[string]float64{"0050": 0.60, "0056": 0.30, "00878": 0.10},
				UseLeverage:  true,
				LTV:          0.40,
			}
		default:
			return Recommendation{
				StrategyName: "穩健積極型",
				Description:  "年齡較高，建議降低風險。40% 市值型加 60% 高股息，不使用槓桿。",
				Portfolio:    map[string]float64{"0050": 0.40, "0056": 0.40, "00878": 0.20},
			}
		}

	case RiskBalanced:
		if in.Age < 40 {
			return Recommendation{
				StrategyName: "均衡配置型",
				Description:  "平衡成長與穩定的經典配置。50% 市值型加 50% 高股息。",
				Portfolio:    map[string]float64{"0050": 0.50, "0056": 0.30, "00878": 0.20},
			}
		}
		return Recommendation{
			StrategyName: "防禦穩健型",
			Description:  "偏重高股息，降低波動。30% 市值型加 70% 高股息。",
			Portfolio:    map[string]float64{"0050": 0.30, "0056": 0.40, "00878": 0.30},
		}

	default: // conservative
		if in.Goal == GoalRetirement || in.Age > 50 {
			return Recommendation{
				StrategyName: "保守收息型",
				Description:  "極度保守，重視資本保全。100% 高股息 ETF。",
				Portfolio:    map[string]float64{"0056": 0.50, "00878": 0.50},
			}
		}
		return Recommendation{
			StrategyName: "保守成長型",
			Description:  "保守但保留適度成長空間。30% 市值型加 70% 高股息。",
			Portfolio:    map[string]float64{"0050": 0.30, "0056": 0.40, "00878": 0.30},
		}
	}
}

// projectWealth compounds the monthly savings at the geometric monthly rate
// over the horizon, contributions invested at the start of each month.
func projectWealth(monthly, annualReturn float64, years int) ProjectedWealth {
	monthlyRate := math.Pow(1+annualReturn, 1.0/12.0) - 1
	months := years * 12

	fv := 0.0
	for i := 0; i < months; i++ {
		fv = (fv + monthly) * (1 + monthlyRate)
	}

	total := monthly * float64(months)
	return ProjectedWealth{
		TotalContribution: total,
		FinalWealth:       fv,
		Profit:            fv - total,
	}
}
