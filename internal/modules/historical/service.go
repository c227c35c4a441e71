// Package historical resolves monthly return histories for catalog
// instruments, backed by the Yahoo Finance client and its cache.
package historical

import (
	"errors"
	"fmt"
	"math"

	"github.com/minghan/leversim/internal/domain"
	"github.com/minghan/leversim/internal/modules/etf"
	"github.com/minghan/leversim/pkg/formulas"
	"github.com/rs/zerolog"
)

// IsUnknownSymbol reports whether err is a catalog lookup failure, as opposed
// to an upstream fetch failure.
func IsUnknownSymbol(err error) bool {
	var inputErr *domain.InputError
	return errors.As(err, &inputErr) && inputErr.Field == "symbol"
}

// ReturnsFetcher is the client contract the service needs.
type ReturnsFetcher interface {
	GetMonthlyReturns(symbol string, years int) ([]domain.MonthlyReturn, error)
	Refresh(symbol string, years int) error
}

// Service maps catalog symbols to Yahoo symbols and fetches their histories.
type Service struct {
	fetcher ReturnsFetcher
	catalog *etf.Catalog
	log     zerolog.Logger
}

// NewService creates a historical returns service.
func NewService(fetcher ReturnsFetcher, catalog *etf.Catalog, log zerolog.Logger) *Service {
	return &Service{
		fetcher: fetcher,
		catalog: catalog,
		log:     log.With().Str("service", "historical").Logger(),
	}
}

// GetReturns fetches years of monthly returns for a catalog symbol.
func (s *Service) GetReturns(symbol string, years int) ([]domain.MonthlyReturn, error) {
	entry, ok := s.catalog.Get(symbol)
	if !ok {
		return nil, domain.NewInputError("symbol", fmt.Sprintf("unknown symbol %q", symbol))
	}

	returns, err := s.fetcher.GetMonthlyReturns(entry.YahooSymbol, years)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch returns for %s: %w", symbol, err)
	}
	return returns, nil
}

// GetBlendedReturns fetches histories for every weighted symbol and blends
// them month by month. All series must cover the same months; the blend is
// truncated to the shortest series, aligned on its tail.
func (s *Service) GetBlendedReturns(weights map[string]float64, years int) ([]domain.MonthlyReturn, error) {
	if len(weights) == 0 {
		return nil, domain.NewInputError("weights", "must not be empty")
	}

	type series struct {
		weight  float64
		returns []domain.MonthlyReturn
	}

	shortest := -1
	all := make([]series, 0, len(weights))
	for symbol, w := range weights {
		returns, err := s.GetReturns(symbol, years)
		if err != nil {
			return nil, err
		}
		if shortest < 0 || len(returns) < shortest {
			shortest = len(returns)
		}
		all = append(all, series{weight: w, returns: returns})
	}
	if shortest == 0 {
		return nil, domain.NewInputError("weights", "no overlapping history for requested symbols")
	}

	blended := make([]domain.MonthlyReturn, shortest)
	for _, s := range all {
		tail := s.returns[len(s.returns)-shortest:]
		for i, r := range tail {
			blended[i].Year = r.Year
			blended[i].Month = r.Month
			blended[i].Return += s.weight * r.Return
		}
	}
	return blended, nil
}

// Stats summarizes a return history.
type Stats struct {
	Symbol           string  `json:"symbol"`
	Months           int     `json:"months"`
	MeanReturn       float64 `json:"mean_return"`        // monthly, fractional
	StdDevReturn     float64 `json:"std_dev_return"`     // monthly, fractional
	AnnualizedReturn float64 `json:"annualized_return"`  // fractional
	AnnualizedVol    float64 `json:"annualized_vol"`     // fractional
	Best             float64 `json:"best_month"`         // fractional
	Worst            float64 `json:"worst_month"`        // fractional
}

// GetStats fetches a symbol's history and summarizes it.
func (s *Service) GetStats(symbol string, years int) (Stats, error) {
	returns, err := s.GetReturns(symbol, years)
	if err != nil {
		return Stats{}, err
	}
	if len(returns) == 0 {
		return Stats{}, domain.NewInputError("symbol", fmt.Sprintf("no history for %q", symbol))
	}

	values := make([]float64, len(returns))
	growth := 1.0
	best, worst := returns[0].Return, returns[0].Return
	for i, r := range returns {
		values[i] = r.Return
		growth *= 1 + r.Return
		if r.Return > best {
			best = r.Return
		}
		if r.Return < worst {
			worst = r.Return
		}
	}

	return Stats{
		Symbol:           symbol,
		Months:           len(returns),
		MeanReturn:       formulas.Mean(values),
		StdDevReturn:     formulas.StdDev(values),
		AnnualizedReturn: formulas.AnnualizedReturn(growth, len(returns)),
		AnnualizedVol:    formulas.StdDev(values) * math.Sqrt(12),
		Best:             best,
		Worst:            worst,
	}, nil
}
