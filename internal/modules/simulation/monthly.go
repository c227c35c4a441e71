// Package simulation implements the monthly wealth transition for a leveraged
// ETF accumulation account: price movement, dividend and tax handling,
// interest capitalization, contributions, and threshold-triggered forced
// actions.
package simulation

import (
	"fmt"
	"math"

	"github.com/minghan/leversim/internal/domain"
	"github.com/minghan/leversim/internal/modules/risk"
	"github.com/minghan/leversim/internal/modules/tax"
	"github.com/rs/zerolog"
)

// Config holds the per-run simulation parameters. Rates are fractional.
type Config struct {
	UseLeverage        bool    `json:"use_leverage"`
	AnnualInterestRate float64 `json:"annual_interest_rate"`
	BuyFeeRate         float64 `json:"buy_fee_rate"`
	SellFeeRate        float64 `json:"sell_fee_rate"`
	DividendFrequency  int     `json:"dividend_frequency"` // payouts per year: 0, 1, 2, 4 or 12
}

// Calculator executes one month of wealth changes. It owns no account state:
// the caller threads an AccountState through successive RunMonthlyCycle calls,
// so independent runs can execute in parallel with separate calculators.
type Calculator struct {
	cfg         Config
	riskEngine  *risk.Engine
	taxCalc     *tax.Calculator
	monthlyRate float64
	rules       []riskRule
	log         zerolog.Logger
}

// NewCalculator validates the configuration and creates a calculator. The risk
// engine and tax calculator are injected; the tax calculator must be exclusive
// to this run because it tracks fiscal-year state.
func NewCalculator(cfg Config, riskEngine *risk.Engine, taxCalc *tax.Calculator, log zerolog.Logger) (*Calculator, error) {
	if riskEngine == nil {
		return nil, domain.NewConfigurationError("risk_engine", "must not be nil")
	}
	if taxCalc == nil {
		return nil, domain.NewConfigurationError("tax_calculator", "must not be nil")
	}
	if cfg.AnnualInterestRate < 0 {
		return nil, domain.NewConfigurationError("annual_interest_rate", "must be non-negative")
	}
	if cfg.BuyFeeRate < 0 || cfg.BuyFeeRate >= 1 {
		return nil, domain.NewConfigurationError("buy_fee_rate", fmt.Sprintf("must be in [0,1), got %v", cfg.BuyFeeRate))
	}
	if cfg.SellFeeRate < 0 || cfg.SellFeeRate >= 1 {
		return nil, domain.NewConfigurationError("sell_fee_rate", fmt.Sprintf("must be in [0,1), got %v", cfg.SellFeeRate))
	}
	switch cfg.DividendFrequency {
	case 0, 1, 2, 4, 12:
	default:
		return nil, domain.NewConfigurationError("dividend_frequency", fmt.Sprintf("must be 0, 1, 2, 4 or 12, got %d", cfg.DividendFrequency))
	}

	c := &Calculator{
		cfg:        cfg,
		riskEngine: riskEngine,
		taxCalc:    taxCalc,
		// Geometric monthly rate so twelve accruals compound to the annual rate.
		monthlyRate: math.Pow(1+cfg.AnnualInterestRate, 1.0/12.0) - 1,
		log:         log.With().Str("service", "simulation").Logger(),
	}

	// Threshold events form a totally ordered decision table: liquidation
	// outranks a margin call, which outranks a re-leverage draw. The first
	// matching rule fires and the rest are skipped, so at most one event
	// applies per period.
	c.rules = []riskRule{
		{event: domain.RiskEventLiquidation, matches: riskEngine.IsLiquidation, apply: c.applyLiquidation},
		{event: domain.RiskEventMarginCall, matches: riskEngine.IsMarginCall, apply: c.applyMarginCall},
		{event: domain.RiskEventReLeverage, matches: riskEngine.IsReLeverageOpportunity, apply: c.applyReLeverage},
	}

	return c, nil
}

// Config returns the calculator configuration.
func (c *Calculator) Config() Config {
	return c.cfg
}

// MonthlyInterestRate returns the geometric monthly rate derived from the
// annual margin interest rate.
func (c *Calculator) MonthlyInterestRate() float64 {
	return c.monthlyRate
}

// riskRule is one row of the risk decision table.
type riskRule struct {
	event   domain.RiskEvent
	matches func(ratio float64) bool
	apply   func(cycle *monthlyCycle)
}

// monthlyCycle is the scratch state of one RunMonthlyCycle invocation.
type monthlyCycle struct {
	price  float64
	shares float64
	loan   float64
	cash   float64 // investable cash generated this month
	buffer float64 // persistent cash buffer, first line of margin-call defence

	result domain.PeriodResult
}

func (cy *monthlyCycle) stockValue() float64 {
	return cy.shares * cy.price
}

// RunMonthlyCycle applies one period to the account and returns the new state
// together with the period snapshot. The transition order is fixed:
//
//  1. apply the monthly return to the share price
//  2. dividend payout, taxes, ex-dividend price adjustment
//  3. capitalize loan interest into principal
//  4. invest the monthly contribution plus dividend cash (net of buy fee)
//  5. evaluate the risk decision table (liquidation > margin call > re-leverage)
//  6. initial leverage draw when leveraged with no outstanding loan
//  7. emit the snapshot, advance month and fiscal year
func (c *Calculator) RunMonthlyCycle(state domain.AccountState, in domain.PeriodInput) (domain.AccountState, domain.PeriodResult, error) {
	if err := c.validateInput(state, in); err != nil {
		return domain.AccountState{}, domain.PeriodResult{}, err
	}

	cy := &monthlyCycle{
		price:  state.SharePrice * (1 + in.MonthlyReturn),
		shares: state.Shares,
		loan:   state.Loan,
		buffer: state.CashBuffer,
	}
	cy.result = domain.PeriodResult{
		Year:          in.Year,
		Month:         in.Month,
		MonthlyReturn: in.MonthlyReturn,
		RiskEvent:     domain.RiskEventNone,
	}

	// 2. Dividend payout and taxes.
	if in.IsDividendMonth && c.cfg.DividendFrequency > 0 && cy.shares > 0 {
		if err := c.applyDividend(cy, in); err != nil {
			return domain.AccountState{}, domain.PeriodResult{}, err
		}
	}

	// 3. Interest capitalizes into principal: the loan compounds instead of
	// being paid down from cash.
	if c.cfg.UseLeverage && cy.loan > 0 {
		interest := cy.loan * c.monthlyRate
		cy.loan += interest
		cy.result.InterestAccrued = interest
	}

	// 4. Invest the contribution and any dividend cash at the post-dividend
	// price, net of the buy-side fee.
	cy.cash += in.Contribution
	c.investCash(cy)

	// 5. Risk decision table, first match wins.
	if c.cfg.UseLeverage && cy.loan > 0 {
		ratio := c.riskEngine.MaintenanceRatio(cy.stockValue(), cy.loan)
		for _, rule := range c.rules {
			if rule.matches(ratio) {
				cy.result.RiskEvent = rule.event
				rule.apply(cy)
				break
			}
		}
	}

	// 6. First leverage draw, including after a liquidation wiped the loan:
	// the account pledges its remaining shares and re-enters leverage.
	if c.cfg.UseLeverage && cy.loan == 0 && cy.shares > 0 {
		c.drawInitialLoan(cy)
	}

	newState := domain.AccountState{
		SharePrice: cy.price,
		Shares:     cy.shares,
		Loan:       cy.loan,
		CashBuffer: cy.buffer,
		MonthIndex: state.MonthIndex + 1,
		FiscalYear: in.Year,
		Month:      in.Month,
	}

	if err := c.checkInvariants(newState); err != nil {
		return domain.AccountState{}, domain.PeriodResult{}, err
	}

	c.finalizeResult(cy, &newState)

	return newState, cy.result, nil
}

func (c *Calculator) validateInput(state domain.AccountState, in domain.PeriodInput) error {
	if in.MonthlyReturn <= -1 {
		return domain.NewInputError("monthly_return", fmt.Sprintf("must be greater than -1, got %v", in.MonthlyReturn))
	}
	if in.Month < 1 || in.Month > 12 {
		return domain.NewInputError("month", fmt.Sprintf("must be in [1,12], got %d", in.Month))
	}
	if in.Contribution < 0 {
		return domain.NewInputError("contribution", "must be non-negative")
	}
	// The calendar must move forward: the tax calculator's fiscal-year
	// tracking assumes periods arrive in order.
	if in.Year < state.FiscalYear {
		return domain.NewInputError("year", fmt.Sprintf("period %d-%02d precedes fiscal year %d", in.Year, in.Month, state.FiscalYear))
	}
	if in.Year == state.FiscalYear && state.Month > 0 && in.Month <= state.Month {
		return domain.NewInputError("month", fmt.Sprintf("period %d-%02d does not advance past %d-%02d", in.Year, in.Month, state.FiscalYear, state.Month))
	}
	if in.DividendYield < 0 {
		return domain.NewInputError("dividend_yield", "must be non-negative")
	}
	if state.SharePrice <= 0 {
		return domain.NewInputError("share_price", fmt.Sprintf("must be positive, got %v", state.SharePrice))
	}
	return nil
}

// applyDividend pays the periodic dividend, applies the supplementary premium
// and tax credit, and adjusts the share price for the ex-dividend drop.
func (c *Calculator) applyDividend(cy *monthlyCycle, in domain.PeriodInput) error {
	periodYield := in.DividendYield / float64(c.cfg.DividendFrequency)
	dividendPerShare := cy.price * periodYield
	cashDividend := cy.shares * dividendPerShare

	taxResult, err := c.taxCalc.CalculateDividendTax(cashDividend, in.Year)
	if err != nil {
		return err
	}

	// The credit is real cash inflow in the same period, not a filing offset.
	cy.cash += taxResult.NetDividend

	cy.price /= 1 + periodYield

	cy.result.CashDividend = cashDividend
	cy.result.SupplementaryPremium = taxResult.SupplementaryPremium
	cy.result.TaxCredit = taxResult.TaxCredit
	cy.result.NetTaxImpact = taxResult.NetTaxImpact
	return nil
}

// investCash converts the month's investable cash into shares at the current
// price, net of the buy-side fee.
func (c *Calculator) investCash(cy *monthlyCycle) {
	if cy.cash <= 0 || cy.price <= 0 {
		return
	}
	investable := cy.cash * (1 - c.cfg.BuyFeeRate)
	bought := investable / cy.price

	cy.shares += bought
	cy.result.SharesBought += bought
	cy.result.FeesPaid += cy.cash - investable
	cy.cash = 0
}

func (c *Calculator) applyLiquidation(cy *monthlyCycle) {
	impact := c.riskEngine.LiquidationImpact(cy.stockValue(), cy.loan, cy.shares, cy.price, c.cfg.SellFeeRate)

	cy.shares = impact.RemainingShares
	cy.loan = impact.RemainingLoan
	cy.buffer += impact.ExcessCash

	cy.result.SharesSold += impact.SharesSold
	cy.result.FeesPaid += impact.RealizedLoss
	cy.result.RealizedLoss += impact.RealizedLoss

	c.log.Debug().
		Float64("shares_sold", impact.SharesSold).
		Float64("loan_repaid", impact.LoanRepaid).
		Msg("Forced liquidation")
}

func (c *Calculator) applyMarginCall(cy *monthlyCycle) {
	plan := c.riskEngine.MarginCallRequirement(cy.stockValue(), cy.loan, cy.buffer, cy.shares, cy.price, c.cfg.SellFeeRate)

	cy.buffer -= plan.CashUsed
	cy.loan -= plan.CashUsed

	if plan.SharesToSell > 0 {
		gross := plan.SharesToSell * cy.price
		net := gross * (1 - c.cfg.SellFeeRate)

		cy.shares -= plan.SharesToSell
		cy.loan -= math.Min(net, cy.loan)

		cy.result.SharesSold += plan.SharesToSell
		cy.result.FeesPaid += gross - net
		cy.result.RealizedLoss += gross - net
	}

	if !plan.Resolved {
		// Neither cash nor a feasible sale restores the ratio: insolvency,
		// reported as a distinct terminal outcome rather than under-restored.
		cy.result.Insolvent = true
		c.log.Warn().
			Float64("shortfall", plan.CashShortfall).
			Msg("Margin call could not be covered")
	}
}

func (c *Calculator) applyReLeverage(cy *monthlyCycle) {
	additional := c.riskEngine.ReLeverageAmount(cy.stockValue(), cy.loan)
	if additional <= 0 {
		cy.result.RiskEvent = domain.RiskEventNone
		return
	}

	cy.loan += additional

	investable := additional * (1 - c.cfg.BuyFeeRate)
	bought := investable / cy.price

	cy.shares += bought
	cy.result.SharesBought += bought
	cy.result.FeesPaid += additional - investable
}

// drawInitialLoan pledges the position up to the LTV cap and invests the
// proceeds.
func (c *Calculator) drawInitialLoan(cy *monthlyCycle) {
	loan := cy.stockValue() * c.riskEngine.Thresholds().LTV
	if loan <= 0 {
		return
	}
	cy.loan = loan

	investable := loan * (1 - c.cfg.BuyFeeRate)
	bought := investable / cy.price

	cy.shares += bought
	cy.result.SharesBought += bought
	cy.result.FeesPaid += loan - investable
}

func (c *Calculator) checkInvariants(state domain.AccountState) error {
	if state.Shares < 0 {
		return domain.NewInvariantViolation("shares_non_negative", fmt.Sprintf("shares = %v", state.Shares))
	}
	if state.Loan < 0 {
		return domain.NewInvariantViolation("loan_non_negative", fmt.Sprintf("loan = %v", state.Loan))
	}
	if math.IsNaN(state.SharePrice) || state.SharePrice < 0 {
		return domain.NewInvariantViolation("share_price_valid", fmt.Sprintf("price = %v", state.SharePrice))
	}
	return nil
}

func (c *Calculator) finalizeResult(cy *monthlyCycle, state *domain.AccountState) {
	cy.result.SharePrice = state.SharePrice
	cy.result.Shares = state.Shares
	cy.result.StockValue = state.StockValue()
	cy.result.Loan = state.Loan
	cy.result.CashBuffer = state.CashBuffer
	cy.result.NetEquity = state.NetEquity()

	if state.Loan > 0 {
		ratio := c.riskEngine.MaintenanceRatio(state.StockValue(), state.Loan)
		cy.result.MaintenanceRatio = &ratio
	}
}

// IsDividendMonth reports whether the given calendar month pays a dividend
// under the configured frequency. Payouts are spread evenly: quarterly pays in
// months 3, 6, 9 and 12, semi-annual in 6 and 12, annual in 12.
func (c *Calculator) IsDividendMonth(month int) bool {
	if c.cfg.DividendFrequency <= 0 || c.cfg.DividendFrequency > 12 {
		return false
	}
	interval := 12 / c.cfg.DividendFrequency
	return month%interval == 0
}

// InitialState builds the account state at simulation start: the initial
// capital is invested at the initial price net of the buy fee, and a leveraged
// account immediately draws its first loan up to the LTV cap.
func (c *Calculator) InitialState(initialCapital, initialPrice float64, startYear int) (domain.AccountState, error) {
	if initialCapital <= 0 {
		return domain.AccountState{}, domain.NewInputError("initial_capital", "must be positive")
	}
	if initialPrice <= 0 {
		return domain.AccountState{}, domain.NewInputError("initial_price", "must be positive")
	}

	invested := initialCapital * (1 - c.cfg.BuyFeeRate)
	state := domain.AccountState{
		SharePrice: initialPrice,
		Shares:     invested / initialPrice,
		FiscalYear: startYear,
	}

	if c.cfg.UseLeverage {
		loan := state.StockValue() * c.riskEngine.Thresholds().LTV
		state.Loan = loan

		investable := loan * (1 - c.cfg.BuyFeeRate)
		state.Shares += investable / initialPrice
	}

	return state, nil
}
