package tax

import (
	"testing"

	"github.com/minghan/leversim/internal/domain"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCalculator(t *testing.T) *Calculator {
	t.Helper()
	log := zerolog.New(nil).Level(zerolog.Disabled)
	calc, err := NewCalculator(DefaultConfig(), log)
	require.NoError(t, err)
	return calc
}

func TestNewCalculator_RejectsInvalidConfig(t *testing.T) {
	log := zerolog.New(nil).Level(zerolog.Disabled)

	tests := []struct {
		name string
		cfg  Config
	}{
		{"negative premium rate", Config{PremiumRate: -0.01, CreditRate: 0.085, AnnualCreditCap: 80000}},
		{"premium rate above one", Config{PremiumRate: 1.5, CreditRate: 0.085, AnnualCreditCap: 80000}},
		{"credit rate above one", Config{PremiumRate: 0.0211, CreditRate: 2, AnnualCreditCap: 80000}},
		{"negative threshold", Config{PremiumRate: 0.0211, PremiumThreshold: -1, CreditRate: 0.085, AnnualCreditCap: 80000}},
		{"negative cap", Config{PremiumRate: 0.0211, CreditRate: 0.085, AnnualCreditCap: -1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewCalculator(tt.cfg, log)
			require.Error(t, err)

			var cfgErr *domain.ConfigurationError
			assert.ErrorAs(t, err, &cfgErr)
		})
	}
}

func TestCalculateDividendTax_PremiumIsAllOrNothing(t *testing.T) {
	calc := newTestCalculator(t)

	// At or below the threshold: no premium at all.
	result, err := calc.CalculateDividendTax(20000, 2024)
	require.NoError(t, err)
	assert.Zero(t, result.SupplementaryPremium)

	// Above the threshold the full rate applies to the whole payment.
	result, err = calc.CalculateDividendTax(20001, 2024)
	require.NoError(t, err)
	assert.InDelta(t, 20001*0.0211, result.SupplementaryPremium, 1e-9)
}

func TestCalculateDividendTax_ReferenceScenario(t *testing.T) {
	// dividend=25,000, premium 2.11% above 20,000, credit 8.5% capped at
	// 80,000, no prior usage.
	calc := newTestCalculator(t)

	result, err := calc.CalculateDividendTax(25000, 2024)
	require.NoError(t, err)

	assert.InDelta(t, 527.50, result.SupplementaryPremium, 1e-9)
	assert.InDelta(t, 2125.00, result.TaxCredit, 1e-9)
	assert.InDelta(t, 1597.50, result.NetTaxImpact, 1e-9)
	assert.InDelta(t, 80000-2125.00, result.RemainingCreditCap, 1e-9)
}

func TestCalculateDividendTax_CreditCappedWithinYear(t *testing.T) {
	calc := newTestCalculator(t)

	// 8.5% of 900,000 would be 76,500; a second large payment must only get
	// the remainder of the 80,000 cap.
	first, err := calc.CalculateDividendTax(900000, 2024)
	require.NoError(t, err)
	assert.InDelta(t, 76500, first.TaxCredit, 1e-6)

	second, err := calc.CalculateDividendTax(900000, 2024)
	require.NoError(t, err)
	assert.InDelta(t, 3500, second.TaxCredit, 1e-6)
	assert.InDelta(t, 0, second.RemainingCreditCap, 1e-6)

	// Cap exhausted: further credits are zero, premium still applies.
	third, err := calc.CalculateDividendTax(50000, 2024)
	require.NoError(t, err)
	assert.Zero(t, third.TaxCredit)
	assert.InDelta(t, 50000*0.0211, third.SupplementaryPremium, 1e-9)
	assert.True(t, third.NetTaxImpact < 0)
}

func TestCalculateDividendTax_YearRolloverResetsCap(t *testing.T) {
	calc := newTestCalculator(t)

	_, err := calc.CalculateDividendTax(900000, 2024)
	require.NoError(t, err)
	_, err = calc.CalculateDividendTax(900000, 2024)
	require.NoError(t, err)

	summary := calc.AnnualSummary()
	assert.Equal(t, 2024, summary.Year)
	assert.InDelta(t, 80000, summary.CreditUsed, 1e-6)

	// New year: full cap available again, no cross-year carry.
	result, err := calc.CalculateDividendTax(100000, 2025)
	require.NoError(t, err)
	assert.InDelta(t, 8500, result.TaxCredit, 1e-9)

	summary = calc.AnnualSummary()
	assert.Equal(t, 2025, summary.Year)
	assert.InDelta(t, 8500, summary.CreditUsed, 1e-9)
	assert.InDelta(t, 71500, summary.RemainingCap, 1e-9)
}

func TestCalculateDividendTax_RejectsNegativeDividend(t *testing.T) {
	calc := newTestCalculator(t)

	_, err := calc.CalculateDividendTax(-1, 2024)
	require.Error(t, err)

	var inputErr *domain.InputError
	assert.ErrorAs(t, err, &inputErr)
}

func TestCalculateDividendTax_ZeroDividend(t *testing.T) {
	calc := newTestCalculator(t)

	result, err := calc.CalculateDividendTax(0, 2024)
	require.NoError(t, err)
	assert.Zero(t, result.SupplementaryPremium)
	assert.Zero(t, result.TaxCredit)
	assert.Zero(t, result.NetTaxImpact)
}

func TestAnnualSummary_HasNoSideEffects(t *testing.T) {
	calc := newTestCalculator(t)

	_, err := calc.CalculateDividendTax(30000, 2024)
	require.NoError(t, err)

	before := calc.AnnualSummary()
	again := calc.AnnualSummary()
	assert.Equal(t, before, again)
}
