package clientdata

import "time"

// TTL constants for cached data types.
// These are added to time.Now() when storing to calculate expires_at.
const (
	// Monthly return series only gains a new data point once a month, but a
	// daily refresh keeps the trailing month current.
	TTLReturns = 24 * time.Hour

	// Backtest results are deterministic for a given request, so the TTL
	// only bounds cache growth.
	TTLBacktestResult = 7 * 24 * time.Hour
)
