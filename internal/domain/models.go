package domain

// RiskEvent identifies the forced action taken during a simulated month.
// At most one event applies per period; liquidation takes precedence over a
// margin call, which takes precedence over a re-leverage draw.
type RiskEvent string

const (
	RiskEventNone        RiskEvent = "none"
	RiskEventMarginCall  RiskEvent = "margin_call"
	RiskEventLiquidation RiskEvent = "liquidation"
	RiskEventReLeverage  RiskEvent = "re_leverage"
)

// AccountState is the full simulation state at the end of a period. It is
// owned exclusively by one run and threaded functionally through every
// monthly transition: each cycle takes the previous state and returns a new
// one, never mutating in place.
type AccountState struct {
	SharePrice float64 `json:"share_price"`
	Shares     float64 `json:"shares"`
	Loan       float64 `json:"loan"`
	CashBuffer float64 `json:"cash_buffer"`
	MonthIndex int     `json:"month_index"`
	FiscalYear int     `json:"fiscal_year"`

	// Month is the calendar month of the last applied period, 0 before the
	// first. Together with FiscalYear it anchors the monotonic-calendar check
	// on the next period.
	Month int `json:"month"`
}

// StockValue returns the current market value of the held shares.
func (s AccountState) StockValue() float64 {
	return s.Shares * s.SharePrice
}

// NetEquity returns stock value plus cash buffer minus the outstanding loan.
func (s AccountState) NetEquity() float64 {
	return s.StockValue() + s.CashBuffer - s.Loan
}

// PeriodInput is one month of externally supplied market data and investor
// cash flow. Inputs are immutable once produced; the leveraged and
// unleveraged runs of a backtest consume identical inputs.
type PeriodInput struct {
	Year            int     `json:"year"`
	Month           int     `json:"month"` // calendar month, 1-12
	MonthlyReturn   float64 `json:"monthly_return"`
	Contribution    float64 `json:"contribution"`
	IsDividendMonth bool    `json:"is_dividend_month"`
	DividendYield   float64 `json:"dividend_yield"` // annual, fractional
}

// MonthlyReturn is one observed monthly price return, as supplied by the
// historical data layer or a synthetic generator.
type MonthlyReturn struct {
	Year   int     `json:"year"`
	Month  int     `json:"month"`
	Return float64 `json:"return"`
}

// PeriodResult is the write-once snapshot emitted after applying one period.
// Results are appended to an ordered series and never revisited.
type PeriodResult struct {
	Year  int `json:"year"`
	Month int `json:"month"`

	SharePrice float64 `json:"share_price"`
	Shares     float64 `json:"shares"`
	StockValue float64 `json:"stock_value"`
	Loan       float64 `json:"loan"`
	CashBuffer float64 `json:"cash_buffer"`
	NetEquity  float64 `json:"net_equity"`
	Principal  float64 `json:"principal"`

	MonthlyReturn float64 `json:"monthly_return"`
	AnnualReturn  float64 `json:"annual_return"`

	CashDividend         float64 `json:"cash_dividend"`
	SupplementaryPremium float64 `json:"supplementary_premium"`
	TaxCredit            float64 `json:"tax_credit"`
	NetTaxImpact         float64 `json:"net_tax_impact"`
	InterestAccrued      float64 `json:"interest_accrued"`

	// MaintenanceRatio is nil for an unleveraged position: with no loan the
	// ratio is undefined and must never be compared against thresholds.
	MaintenanceRatio *float64 `json:"maintenance_ratio,omitempty"`

	RiskEvent    RiskEvent `json:"risk_event"`
	SharesSold   float64   `json:"shares_sold,omitempty"`
	SharesBought float64   `json:"shares_bought,omitempty"`
	FeesPaid     float64   `json:"fees_paid,omitempty"`
	RealizedLoss float64   `json:"realized_loss,omitempty"`

	// Insolvent marks a margin call that could not be covered by cash or a
	// feasible share sale. The run continues but the account is wiped.
	Insolvent bool `json:"insolvent,omitempty"`
}
