// Package tax implements dividend tax rules: the supplementary health levy on
// single dividend payments above a threshold, and the capped annual dividend
// tax credit.
package tax

import (
	"fmt"

	"github.com/minghan/leversim/internal/domain"
	"github.com/rs/zerolog"
)

// Config holds the dividend tax parameters. Rates are fractional (0.0211 for
// 2.11%), amounts are in account currency.
type Config struct {
	PremiumRate      float64 `json:"premium_rate"`
	PremiumThreshold float64 `json:"premium_threshold"`
	CreditRate       float64 `json:"credit_rate"`
	AnnualCreditCap  float64 `json:"annual_credit_cap"`
}

// DefaultConfig returns the Taiwan dividend tax parameters: 2.11% supplementary
// premium above 20,000 per payment, 8.5% tax credit capped at 80,000 per year.
func DefaultConfig() Config {
	return Config{
		PremiumRate:      0.0211,
		PremiumThreshold: 20000,
		CreditRate:       0.085,
		AnnualCreditCap:  80000,
	}
}

// Calculator computes dividend levies and credits. It is stateful across a
// fiscal year: the cumulative credit granted is tracked so the annual cap is
// never exceeded, and the tracker resets when the year changes.
//
// A Calculator is owned by exactly one simulation run and must not be shared
// across concurrent runs.
type Calculator struct {
	cfg        Config
	year       int
	creditUsed float64
	log        zerolog.Logger
}

// NewCalculator validates the configuration and creates a calculator.
func NewCalculator(cfg Config, log zerolog.Logger) (*Calculator, error) {
	if cfg.PremiumRate < 0 || cfg.PremiumRate > 1 {
		return nil, domain.NewConfigurationError("premium_rate", fmt.Sprintf("must be in [0,1], got %v", cfg.PremiumRate))
	}
	if cfg.CreditRate < 0 || cfg.CreditRate > 1 {
		return nil, domain.NewConfigurationError("credit_rate", fmt.Sprintf("must be in [0,1], got %v", cfg.CreditRate))
	}
	if cfg.PremiumThreshold < 0 {
		return nil, domain.NewConfigurationError("premium_threshold", "must be non-negative")
	}
	if cfg.AnnualCreditCap < 0 {
		return nil, domain.NewConfigurationError("annual_credit_cap", "must be non-negative")
	}

	return &Calculator{
		cfg: cfg,
		log: log.With().Str("service", "tax").Logger(),
	}, nil
}

// DividendTax is the outcome of taxing one dividend payment.
type DividendTax struct {
	GrossDividend        float64 `json:"gross_dividend"`
	SupplementaryPremium float64 `json:"supplementary_premium"`
	TaxCredit            float64 `json:"tax_credit"`
	NetTaxImpact         float64 `json:"net_tax_impact"`
	RemainingCreditCap   float64 `json:"remaining_credit_cap"`
	NetDividend          float64 `json:"net_dividend"`
}

// CalculateDividendTax computes the supplementary premium and tax credit for a
// single dividend payment in the given fiscal year.
//
// The premium is all-or-nothing: the full rate applies to the whole payment
// once it exceeds the threshold, there is no marginal band. The credit is
// additional cash inflow, not merely an offset, so the net impact can be
// positive. Granting the credit consumes the annual cap; crossing into a new
// year resets the cap before anything is computed.
func (c *Calculator) CalculateDividendTax(cashDividend float64, year int) (DividendTax, error) {
	if cashDividend < 0 {
		return DividendTax{}, domain.NewInputError("cash_dividend", fmt.Sprintf("must be non-negative, got %v", cashDividend))
	}

	if year != c.year {
		// Year boundary crossed: the cap rolls over, unused credit does not carry.
		c.year = year
		c.creditUsed = 0
	}

	var premium float64
	if cashDividend > c.cfg.PremiumThreshold {
		premium = cashDividend * c.cfg.PremiumRate
	}

	remainingCap := c.cfg.AnnualCreditCap - c.creditUsed
	credit := cashDividend * c.cfg.CreditRate
	if credit > remainingCap {
		credit = remainingCap
	}

	// Only the granted credit consumes the cap, never the nominal amount.
	c.creditUsed += credit

	if c.creditUsed > c.cfg.AnnualCreditCap {
		return DividendTax{}, domain.NewInvariantViolation("annual_credit_cap",
			fmt.Sprintf("cumulative credit %v exceeds cap %v", c.creditUsed, c.cfg.AnnualCreditCap))
	}

	result := DividendTax{
		GrossDividend:        cashDividend,
		SupplementaryPremium: premium,
		TaxCredit:            credit,
		NetTaxImpact:         credit - premium,
		RemainingCreditCap:   c.cfg.AnnualCreditCap - c.creditUsed,
		NetDividend:          cashDividend - premium + credit,
	}

	c.log.Debug().
		Int("year", year).
		Float64("dividend", cashDividend).
		Float64("premium", premium).
		Float64("credit", credit).
		Msg("Dividend tax calculated")

	return result, nil
}

// AnnualSummary reports the state of the fiscal-year tracker.
type AnnualSummary struct {
	Year         int     `json:"year"`
	CreditUsed   float64 `json:"credit_used"`
	RemainingCap float64 `json:"remaining_cap"`
}

// AnnualSummary returns the tracker state for reporting. It has no side
// effects.
func (c *Calculator) AnnualSummary() AnnualSummary {
	return AnnualSummary{
		Year:         c.year,
		CreditUsed:   c.creditUsed,
		RemainingCap: c.cfg.AnnualCreditCap - c.creditUsed,
	}
}
