// Package yahoo fetches adjusted monthly price history from the Yahoo Finance
// chart API and converts it to monthly return series, with persistent caching.
package yahoo

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/minghan/leversim/internal/clientdata"
	"github.com/minghan/leversim/internal/domain"
	"github.com/rs/zerolog"
)

const cacheTable = "yahoo_returns"

// Client for the Yahoo Finance v8 chart API.
type Client struct {
	baseURL   string
	client    *http.Client
	log       zerolog.Logger
	cacheRepo *clientdata.Repository
	cacheTTL  time.Duration
}

// NewClient creates a new Yahoo Finance client.
// cacheRepo is optional - if nil, caching is disabled.
func NewClient(cacheRepo *clientdata.Repository, cacheTTL time.Duration, log zerolog.Logger) *Client {
	if cacheTTL <= 0 {
		cacheTTL = clientdata.TTLReturns
	}
	return &Client{
		baseURL:   "https://query1.finance.yahoo.com/v8/finance/chart",
		client:    &http.Client{Timeout: 15 * time.Second},
		log:       log.With().Str("client", "yahoo-finance").Logger(),
		cacheRepo: cacheRepo,
		cacheTTL:  cacheTTL,
	}
}

// SetBaseURL overrides the API endpoint. Used in tests.
func (c *Client) SetBaseURL(base string) {
	c.baseURL = base
}

// Series is a monthly return series for one symbol, as stored in the cache.
type Series struct {
	Symbol    string                 `json:"symbol"`
	Returns   []domain.MonthlyReturn `json:"returns"`
	FetchedAt time.Time              `json:"fetched_at"`
}

// chartResponse mirrors the part of the chart API payload we consume.
type chartResponse struct {
	Chart struct {
		Result []struct {
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Adjclose []struct {
					Adjclose []*float64 `json:"adjclose"`
				} `json:"adjclose"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

// GetMonthlyReturns fetches years of monthly returns for symbol, cache-first.
// If the API fails, returns stale cached data if available.
func (c *Client) GetMonthlyReturns(symbol string, years int) ([]domain.MonthlyReturn, error) {
	if symbol == "" {
		return nil, domain.NewInputError("symbol", "must not be empty")
	}
	if years <= 0 {
		return nil, domain.NewInputError("years", "must be positive")
	}

	if c.cacheRepo != nil {
		data, err := c.cacheRepo.GetIfFresh(cacheTable, symbol)
		if err == nil && data != nil {
			var cached Series
			if err := json.Unmarshal(data, &cached); err == nil && len(cached.Returns) > 0 {
				c.log.Debug().
					Str("symbol", symbol).
					Int("months", len(cached.Returns)).
					Msg("Cache hit")
				return trimToYears(cached.Returns, years), nil
			}
		}
	}

	returns, err := c.fetchMonthlyReturns(symbol, years)
	if err != nil {
		if stale, ok := c.getStaleFromCache(symbol); ok {
			c.log.Warn().
				Err(err).
				Str("symbol", symbol).
				Int("months", len(stale)).
				Msg("API failed, using stale cached returns")
			return trimToYears(stale, years), nil
		}
		return nil, err
	}

	if c.cacheRepo != nil {
		series := Series{Symbol: symbol, Returns: returns, FetchedAt: time.Now().UTC()}
		if err := c.cacheRepo.Store(cacheTable, symbol, series, c.cacheTTL); err != nil {
			c.log.Warn().Err(err).Str("symbol", symbol).Msg("Failed to cache returns")
		}
	}

	return trimToYears(returns, years), nil
}

// Refresh fetches from the API unconditionally and updates the cache.
func (c *Client) Refresh(symbol string, years int) error {
	returns, err := c.fetchMonthlyReturns(symbol, years)
	if err != nil {
		return err
	}
	if c.cacheRepo == nil {
		return nil
	}
	series := Series{Symbol: symbol, Returns: returns, FetchedAt: time.Now().UTC()}
	return c.cacheRepo.Store(cacheTable, symbol, series, c.cacheTTL)
}

func (c *Client) getStaleFromCache(symbol string) ([]domain.MonthlyReturn, bool) {
	if c.cacheRepo == nil {
		return nil, false
	}
	data, err := c.cacheRepo.Get(cacheTable, symbol)
	if err != nil || data == nil {
		return nil, false
	}
	var cached Series
	if err := json.Unmarshal(data, &cached); err != nil || len(cached.Returns) == 0 {
		return nil, false
	}
	return cached.Returns, true
}

func (c *Client) fetchMonthlyReturns(symbol string, years int) ([]domain.MonthlyReturn, error) {
	// Fetch one extra month so the first return has a base price.
	reqURL := fmt.Sprintf("%s/%s?range=%dy&interval=1mo&events=div", c.baseURL, url.PathEscape(symbol), years+1)
	c.log.Debug().Str("url", reqURL).Msg("Fetching chart data")

	resp, err := c.client.Get(reqURL)
	if err != nil {
		return nil, fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API returned status %d", resp.StatusCode)
	}

	var payload chartResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if payload.Chart.Error != nil {
		return nil, fmt.Errorf("API error: %s: %s", payload.Chart.Error.Code, payload.Chart.Error.Description)
	}
	if len(payload.Chart.Result) == 0 {
		return nil, fmt.Errorf("no chart result for %s", symbol)
	}

	result := payload.Chart.Result[0]
	if len(result.Indicators.Adjclose) == 0 {
		return nil, fmt.Errorf("no adjusted close data for %s", symbol)
	}

	timestamps := result.Timestamp
	prices := result.Indicators.Adjclose[0].Adjclose
	if len(timestamps) != len(prices) {
		return nil, fmt.Errorf("mismatched chart data for %s: %d timestamps, %d prices", symbol, len(timestamps), len(prices))
	}

	// Drop null price points before computing returns. Yahoo emits nulls for
	// the current partial month on some symbols.
	type point struct {
		ts    time.Time
		price float64
	}
	points := make([]point, 0, len(prices))
	for i, p := range prices {
		if p == nil || *p <= 0 {
			continue
		}
		points = append(points, point{ts: time.Unix(timestamps[i], 0).UTC(), price: *p})
	}
	if len(points) < 2 {
		return nil, fmt.Errorf("not enough price history for %s", symbol)
	}

	returns := make([]domain.MonthlyReturn, 0, len(points)-1)
	for i := 1; i < len(points); i++ {
		returns = append(returns, domain.MonthlyReturn{
			Year:   points[i].ts.Year(),
			Month:  int(points[i].ts.Month()),
			Return: points[i].price/points[i-1].price - 1,
		})
	}
	return returns, nil
}

// trimToYears keeps at most years*12 of the most recent returns.
func trimToYears(returns []domain.MonthlyReturn, years int) []domain.MonthlyReturn {
	max := years * 12
	if len(returns) <= max {
		return returns
	}
	return returns[len(returns)-max:]
}
