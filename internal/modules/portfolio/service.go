// Package portfolio validates multi-asset weight maps and derives the blended
// inputs a simulation needs from them: weighted dividend yield, weighted
// expected growth, and rebalancing plans against target weights.
package portfolio

import (
	"fmt"
	"math"
	"sort"

	"github.com/minghan/leversim/internal/domain"
	"github.com/minghan/leversim/internal/modules/etf"
	"github.com/rs/zerolog"
)

// weightTolerance bounds the allowed drift of a weight sum from 1.0.
const weightTolerance = 1e-6

// Service resolves weight maps against the ETF catalog.
type Service struct {
	catalog *etf.Catalog
	log     zerolog.Logger
}

// NewService creates a portfolio service backed by the given catalog.
func NewService(catalog *etf.Catalog, log zerolog.Logger) *Service {
	return &Service{
		catalog: catalog,
		log:     log.With().Str("service", "portfolio").Logger(),
	}
}

// ValidateWeights checks that every symbol exists in the catalog, every
// weight is positive, and the weights sum to 1.0 within tolerance.
func (s *Service) ValidateWeights(weights map[string]float64) error {
	if len(weights) == 0 {
		return domain.NewInputError("weights", "must not be empty")
	}

	sum := 0.0
	for symbol, w := range weights {
		if _, ok := s.catalog.Get(symbol); !ok {
			return domain.NewInputError("weights", fmt.Sprintf("unknown symbol %q", symbol))
		}
		if w <= 0 {
			return domain.NewInputError("weights", fmt.Sprintf("weight for %q must be positive", symbol))
		}
		sum += w
	}

	if math.Abs(sum-1.0) > weightTolerance {
		return domain.NewInputError("weights", fmt.Sprintf("weights must sum to 1.0, got %.6f", sum))
	}
	return nil
}

// Profile is the blended view of a weighted portfolio.
type Profile struct {
	Weights       map[string]float64 `json:"weights"`
	DividendYield float64            `json:"dividend_yield"` // annual, fractional
	ExpectedCAGR  float64            `json:"expected_cagr"`  // annual, fractional
	Names         map[string]string  `json:"names"`
}

// Resolve validates the weights and blends catalog yields and growth rates.
func (s *Service) Resolve(weights map[string]float64) (Profile, error) {
	if err := s.ValidateWeights(weights); err != nil {
		return Profile{}, err
	}

	profile := Profile{
		Weights: weights,
		Names:   make(map[string]string, len(weights)),
	}
	for symbol, w := range weights {
		entry, _ := s.catalog.Get(symbol)
		profile.DividendYield += w * entry.DividendYield
		profile.ExpectedCAGR += w * entry.ExpectedCAGR
		profile.Names[symbol] = entry.Name
	}

	s.log.Debug().
		Int("assets", len(weights)).
		Float64("dividend_yield", profile.DividendYield).
		Float64("expected_cagr", profile.ExpectedCAGR).
		Msg("Resolved portfolio profile")

	return profile, nil
}

// RebalanceAction is one buy or sell needed to reach target weights.
type RebalanceAction struct {
	Symbol        string  `json:"symbol"`
	CurrentValue  float64 `json:"current_value"`
	TargetValue   float64 `json:"target_value"`
	Amount        float64 `json:"amount"` // positive = buy, negative = sell
	CurrentWeight float64 `json:"current_weight"`
	TargetWeight  float64 `json:"target_weight"`
}

// RebalancePlan lists the actions to move current holdings to target weights.
type RebalancePlan struct {
	TotalValue float64           `json:"total_value"`
	Actions    []RebalanceAction `json:"actions"`
	MaxDrift   float64           `json:"max_drift"` // largest absolute weight deviation
}

// PlanRebalance computes buy/sell amounts that move current holdings (market
// values per symbol) to the target weights. Symbols held but absent from the
// targets are sold in full. Actions are ordered sells first, largest first,
// so a caller executing in order frees cash before buying.
func (s *Service) PlanRebalance(holdings map[string]float64, targets map[string]float64) (RebalancePlan, error) {
	if err := s.ValidateWeights(targets); err != nil {
		return RebalancePlan{}, err
	}

	total := 0.0
	for symbol, value := range holdings {
		if value < 0 {
			return RebalancePlan{}, domain.NewInputError("holdings", fmt.Sprintf("value for %q must be non-negative", symbol))
		}
		total += value
	}
	if total <= 0 {
		return RebalancePlan{}, domain.NewInputError("holdings", "total value must be positive")
	}

	symbols := make(map[string]bool, len(holdings)+len(targets))
	for symbol := range holdings {
		symbols[symbol] = true
	}
	for symbol := range targets {
		symbols[symbol] = true
	}

	plan := RebalancePlan{TotalValue: total}
	for symbol := range symbols {
		current := holdings[symbol]
		targetWeight := targets[symbol]
		target := total * targetWeight

		action := RebalanceAction{
			Symbol:        symbol,
			CurrentValue:  current,
			TargetValue:   target,
			Amount:        target - current,
			CurrentWeight: current / total,
			TargetWeight:  targetWeight,
		}
		if drift := math.Abs(action.CurrentWeight - targetWeight); drift > plan.MaxDrift {
			plan.MaxDrift = drift
		}
		if math.Abs(action.Amount) < 1e-9 {
			continue
		}
		plan.Actions = append(plan.Actions, action)
	}

	sort.Slice(plan.Actions, func(i, j int) bool {
		if plan.Actions[i].Amount != plan.Actions[j].Amount {
			return plan.Actions[i].Amount < plan.Actions[j].Amount
		}
		return plan.Actions[i].Symbol < plan.Actions[j].Symbol
	})

	return plan, nil
}
