// Package etf holds the built-in instrument catalog: the Taiwan-listed ETFs
// and stocks the simulator knows dividend and growth assumptions for.
package etf

import "sort"

// Entry describes one instrument and its long-run assumptions.
type Entry struct {
	Symbol        string  `json:"symbol"`
	Name          string  `json:"name"`
	YahooSymbol   string  `json:"yahoo_symbol"`
	DividendYield float64 `json:"dividend_yield"` // annual, fractional
	ExpectedCAGR  float64 `json:"expected_cagr"`  // annual, fractional
	StockDividend float64 `json:"stock_dividend"` // annual share dividend per share, fractional
}

// Catalog is an immutable symbol lookup.
type Catalog struct {
	entries map[string]Entry
}

// DefaultCatalog returns the built-in instrument set.
func DefaultCatalog() *Catalog {
	return NewCatalog([]Entry{
		{
			Symbol:        "0050",
			Name:          "元大台灣50",
			YahooSymbol:   "0050.TW",
			DividendYield: 0.032,
			ExpectedCAGR:  0.06,
		},
		{
			Symbol:        "0056",
			Name:          "元大高股息",
			YahooSymbol:   "0056.TW",
			DividendYield: 0.065,
			ExpectedCAGR:  0.015,
		},
		{
			Symbol:        "00878",
			Name:          "國泰永續高股息",
			YahooSymbol:   "00878.TW",
			DividendYield: 0.06,
			ExpectedCAGR:  0.02,
		},
		{
			Symbol:        "2330",
			Name:          "台積電",
			YahooSymbol:   "2330.TW",
			DividendYield: 0.02,
			ExpectedCAGR:  0.13,
			StockDividend: 0.005,
		},
	})
}

// NewCatalog builds a catalog from entries. Later duplicates win.
func NewCatalog(entries []Entry) *Catalog {
	m := make(map[string]Entry, len(entries))
	for _, e := range entries {
		m[e.Symbol] = e
	}
	return &Catalog{entries: m}
}

// Get looks up an entry by symbol.
func (c *Catalog) Get(symbol string) (Entry, bool) {
	e, ok := c.entries[symbol]
	return e, ok
}

// List returns all entries sorted by symbol.
func (c *Catalog) List() []Entry {
	out := make([]Entry, 0, len(c.entries))
	for _, e := range c.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// Symbols returns all symbols sorted.
func (c *Catalog) Symbols() []string {
	out := make([]string, 0, len(c.entries))
	for s := range c.entries {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
