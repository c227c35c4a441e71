package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/minghan/leversim/internal/domain"
	"github.com/minghan/leversim/internal/modules/etf"
	"github.com/minghan/leversim/internal/modules/historical"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFetcher struct {
	series map[string][]domain.MonthlyReturn
	err    error
}

func (f *fakeFetcher) GetMonthlyReturns(symbol string, years int) ([]domain.MonthlyReturn, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.series[symbol], nil
}

func (f *fakeFetcher) Refresh(symbol string, years int) error { return f.err }

func newTestRouter(t *testing.T, fetcher historical.ReturnsFetcher) chi.Router {
	t.Helper()
	catalog := etf.DefaultCatalog()
	historicalSvc := historical.NewService(fetcher, catalog, zerolog.Nop())
	handler := NewHandler(catalog, historicalSvc, zerolog.Nop())

	r := chi.NewRouter()
	handler.RegisterRoutes(r)
	return r
}

func get(t *testing.T, router chi.Router, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestHandleList(t *testing.T) {
	router := newTestRouter(t, &fakeFetcher{})

	rec := get(t, router, "/etfs/")
	require.Equal(t, http.StatusOK, rec.Code)

	var envelope struct {
		Success bool        `json:"success"`
		Data    []etf.Entry `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.True(t, envelope.Success)
	assert.Len(t, envelope.Data, 4)
}

func TestHandleGet(t *testing.T) {
	router := newTestRouter(t, &fakeFetcher{})

	rec := get(t, router, "/etfs/0050")
	require.Equal(t, http.StatusOK, rec.Code)

	var envelope struct {
		Data etf.Entry `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.Equal(t, "0050.TW", envelope.Data.YahooSymbol)
}

func TestHandleGet_UnknownSymbol(t *testing.T) {
	router := newTestRouter(t, &fakeFetcher{})

	rec := get(t, router, "/etfs/SPY")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleGetReturns(t *testing.T) {
	fetcher := &fakeFetcher{series: map[string][]domain.MonthlyReturn{
		"0050.TW": {
			{Year: 2023, Month: 1, Return: 0.01},
			{Year: 2023, Month: 2, Return: -0.02},
		},
	}}
	router := newTestRouter(t, fetcher)

	rec := get(t, router, "/etfs/0050/returns?years=5")
	require.Equal(t, http.StatusOK, rec.Code)

	var envelope struct {
		Data struct {
			Symbol  string                 `json:"symbol"`
			Returns []domain.MonthlyReturn `json:"returns"`
			Count   int                    `json:"count"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.Equal(t, "0050", envelope.Data.Symbol)
	assert.Equal(t, 2, envelope.Data.Count)
}

func TestHandleGetReturns_UnknownSymbolIs404(t *testing.T) {
	router := newTestRouter(t, &fakeFetcher{})

	rec := get(t, router, "/etfs/SPY/returns")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleGetReturns_UpstreamFailureIs502(t *testing.T) {
	router := newTestRouter(t, &fakeFetcher{err: errors.New("rate limited")})

	rec := get(t, router, "/etfs/0050/returns")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestHandleGetStats(t *testing.T) {
	fetcher := &fakeFetcher{series: map[string][]domain.MonthlyReturn{
		"2330.TW": {
			{Year: 2023, Month: 1, Return: 0.10},
			{Year: 2023, Month: 2, Return: -0.05},
		},
	}}
	router := newTestRouter(t, fetcher)

	rec := get(t, router, "/etfs/2330/stats")
	require.Equal(t, http.StatusOK, rec.Code)

	var envelope struct {
		Data historical.Stats `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.Equal(t, "2330", envelope.Data.Symbol)
	assert.Equal(t, 2, envelope.Data.Months)
	assert.InDelta(t, 0.10, envelope.Data.Best, 1e-9)
}
