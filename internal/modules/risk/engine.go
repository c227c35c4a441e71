// Package risk implements maintenance-ratio evaluation for a pledged stock
// position and the sizing of forced actions: margin-call top-ups, forced
// liquidation sales, and re-leverage draws.
package risk

import (
	"fmt"
	"math"

	"github.com/minghan/leversim/internal/domain"
)

// Thresholds is the immutable risk configuration for one simulation run.
// All ratios are fractional: 1.30 means 130%.
type Thresholds struct {
	Maintenance float64 `json:"maintenance"` // below this a margin call is triggered
	Liquidation float64 `json:"liquidation"` // below this a forced sale is triggered
	ReLeverage  float64 `json:"re_leverage"` // above this additional borrowing is allowed
	LTV         float64 `json:"ltv"`         // maximum loan fraction of pledged stock value
}

// DefaultThresholds returns the standard pledge-loan terms: 130% maintenance,
// 120% liquidation line, re-leverage above 180%, 60% LTV.
func DefaultThresholds() Thresholds {
	return Thresholds{
		Maintenance: 1.30,
		Liquidation: 1.20,
		ReLeverage:  1.80,
		LTV:         0.60,
	}
}

// Engine evaluates leverage health and sizes forced actions. All methods are
// pure functions of their inputs; the engine holds only the immutable
// thresholds and is safe to share across runs.
type Engine struct {
	t Thresholds
}

// NewEngine validates the thresholds and creates an engine. The ordering
// re_leverage > maintenance > liquidation is required: a configuration that
// violates it would make the threshold events overlap.
func NewEngine(t Thresholds) (*Engine, error) {
	if t.Liquidation <= 0 {
		return nil, domain.NewConfigurationError("liquidation_ratio", "must be positive")
	}
	if t.Maintenance <= t.Liquidation {
		return nil, domain.NewConfigurationError("maintenance_ratio",
			fmt.Sprintf("must exceed liquidation ratio (%v <= %v)", t.Maintenance, t.Liquidation))
	}
	if t.ReLeverage <= t.Maintenance {
		return nil, domain.NewConfigurationError("re_leverage_ratio",
			fmt.Sprintf("must exceed maintenance ratio (%v <= %v)", t.ReLeverage, t.Maintenance))
	}
	if t.LTV <= 0 || t.LTV >= 1 {
		return nil, domain.NewConfigurationError("ltv", fmt.Sprintf("must be in (0,1), got %v", t.LTV))
	}

	return &Engine{t: t}, nil
}

// Thresholds returns the configured thresholds.
func (e *Engine) Thresholds() Thresholds {
	return e.t
}

// MaintenanceRatio returns stock value divided by loan balance. An unleveraged
// position has no ratio: +Inf is returned and must never be compared against
// thresholds (the check methods treat it as healthy).
func (e *Engine) MaintenanceRatio(stockValue, loan float64) float64 {
	if loan <= 0 {
		return math.Inf(1)
	}
	return stockValue / loan
}

// IsLiquidation reports whether the ratio has breached the forced-sale line.
func (e *Engine) IsLiquidation(ratio float64) bool {
	if math.IsInf(ratio, 1) {
		return false
	}
	return ratio < e.t.Liquidation
}

// IsMarginCall reports whether the ratio is below the maintenance floor but
// at or above the liquidation line. Liquidation takes precedence at or below
// its own threshold, so the two checks are mutually exclusive for any ratio.
func (e *Engine) IsMarginCall(ratio float64) bool {
	if math.IsInf(ratio, 1) {
		return false
	}
	return ratio < e.t.Maintenance && ratio >= e.t.Liquidation
}

// IsReLeverageOpportunity reports whether the ratio comfortably exceeds the
// high-water threshold, allowing an additional loan draw.
func (e *Engine) IsReLeverageOpportunity(ratio float64) bool {
	if math.IsInf(ratio, 1) {
		return false
	}
	return ratio > e.t.ReLeverage
}

// MarginCallPlan is the sizing of a margin-call response.
type MarginCallPlan struct {
	ValueToAdd    float64 `json:"value_to_add"`   // minimum cash that restores the ratio
	CashUsed      float64 `json:"cash_used"`      // cash applied as loan repayment
	CashShortfall float64 `json:"cash_shortfall"` // portion cash could not cover
	SharesToSell  float64 `json:"shares_to_sell"` // forced partial sale covering the shortfall
	Resolved      bool    `json:"resolved"`       // false when even selling everything cannot restore the ratio
}

// MarginCallRequirement computes the minimum response that restores the
// maintenance ratio. Cash is consumed first, applied as loan repayment; any
// shortfall is covered by a partial share sale whose net proceeds (after the
// sell-side fee) also repay the loan. The sale is solved algebraically:
//
//	(V - s*p) / (L - s*p*(1-f)) >= M  =>  s*p = (M*L - V) / (M*(1-f) - 1)
//
// When even selling all shares cannot restore the ratio, Resolved is false:
// the account is insolvent, a state the caller must surface rather than
// silently under-restore.
func (e *Engine) MarginCallRequirement(stockValue, loan, availableCash, shares, sharePrice, sellFeeRate float64) MarginCallPlan {
	m := e.t.Maintenance

	// Minimum loan repayment c with V/(L-c) >= M.
	cashNeeded := loan - stockValue/m
	if cashNeeded <= 0 {
		return MarginCallPlan{Resolved: true}
	}

	plan := MarginCallPlan{ValueToAdd: cashNeeded}

	if availableCash >= cashNeeded {
		plan.CashUsed = cashNeeded
		plan.Resolved = true
		return plan
	}

	plan.CashUsed = math.Max(availableCash, 0)
	remainingLoan := loan - plan.CashUsed
	plan.CashShortfall = cashNeeded - plan.CashUsed

	// With fee rates below 1 - 1/M the denominator is positive: each unit of
	// stock sold improves the ratio.
	denom := m*(1-sellFeeRate) - 1
	if denom <= 0 || sharePrice <= 0 {
		plan.SharesToSell = shares
		plan.Resolved = false
		return plan
	}

	sellValue := (m*remainingLoan - stockValue) / denom
	sharesToSell := sellValue / sharePrice

	if sharesToSell > shares {
		plan.SharesToSell = shares
		plan.Resolved = false
		return plan
	}

	plan.SharesToSell = sharesToSell
	plan.Resolved = true
	return plan
}

// LiquidationImpact is the outcome of a forced sale.
type LiquidationImpact struct {
	SharesSold      float64 `json:"shares_sold"`
	RemainingShares float64 `json:"remaining_shares"`
	CashFromSale    float64 `json:"cash_from_sale"` // net proceeds after fee
	LoanRepaid      float64 `json:"loan_repaid"`
	RemainingLoan   float64 `json:"remaining_loan"`
	ExcessCash      float64 `json:"excess_cash"`   // proceeds beyond the loan balance
	RealizedLoss    float64 `json:"realized_loss"` // transaction cost of the forced sale
}

// LiquidationImpact sizes the forced sale triggered by a liquidation breach.
// The sale restores the account to at least the MAINTENANCE ratio, not merely
// the liquidation line, so the position is not immediately re-breached by the
// next adverse period. Net proceeds repay the loan; proceeds beyond the loan
// balance are returned as excess cash. The sale is capped at the total shares
// held.
func (e *Engine) LiquidationImpact(stockValue, loan, shares, sharePrice, sellFeeRate float64) LiquidationImpact {
	m := e.t.Maintenance

	var sharesToSell float64
	denom := m*(1-sellFeeRate) - 1
	if denom <= 0 || sharePrice <= 0 {
		sharesToSell = shares
	} else {
		sellValue := (m*loan - stockValue) / denom
		sharesToSell = sellValue / sharePrice
		if sharesToSell > shares {
			sharesToSell = shares
		}
		if sharesToSell < 0 {
			sharesToSell = 0
		}
	}

	grossProceeds := sharesToSell * sharePrice
	netProceeds := grossProceeds * (1 - sellFeeRate)

	loanRepaid := math.Min(netProceeds, loan)
	excess := netProceeds - loanRepaid

	return LiquidationImpact{
		SharesSold:      sharesToSell,
		RemainingShares: shares - sharesToSell,
		CashFromSale:    netProceeds,
		LoanRepaid:      loanRepaid,
		RemainingLoan:   loan - loanRepaid,
		ExcessCash:      excess,
		RealizedLoss:    grossProceeds - netProceeds,
	}
}

// ReLeverageAmount returns the additional loan available under the LTV cap:
// max(0, ltv*stockValue - currentLoan).
func (e *Engine) ReLeverageAmount(stockValue, currentLoan float64) float64 {
	additional := stockValue*e.t.LTV - currentLoan
	if additional < 0 {
		return 0
	}
	return additional
}
