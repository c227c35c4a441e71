package handlers

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/minghan/leversim/internal/clientdata"
	"github.com/minghan/leversim/internal/domain"
	"github.com/minghan/leversim/internal/modules/etf"
	"github.com/minghan/leversim/internal/modules/portfolio"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeReturns struct {
	returns []domain.MonthlyReturn
	err     error
	calls   int
}

func (f *fakeReturns) GetBlendedReturns(weights map[string]float64, years int) ([]domain.MonthlyReturn, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.returns, nil
}

func setupCacheRepo(t *testing.T) *clientdata.Repository {
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(clientdata.Schema)
	require.NoError(t, err)

	return clientdata.NewRepository(db)
}

func newTestRouter(t *testing.T, returns ReturnsProvider, repo *clientdata.Repository) chi.Router {
	t.Helper()
	portfolioSvc := portfolio.NewService(etf.DefaultCatalog(), zerolog.Nop())
	handler := NewHandler(portfolioSvc, returns, repo, zerolog.Nop())

	r := chi.NewRouter()
	handler.RegisterRoutes(r)
	return r
}

func validBody() map[string]interface{} {
	return map[string]interface{}{
		"initial_capital":      1_000_000,
		"monthly_contribution": 10_000,
		"years":                2,
		"portfolio":            map[string]float64{"0050": 1.0},
		"dividend_frequency":   4,
		"use_historical":       false,
		"leverage": map[string]interface{}{
			"annual_interest_rate": 0.065,
		},
	}
}

func postBacktest(t *testing.T, router chi.Router, body map[string]interface{}) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/backtest", bytes.NewReader(payload))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestHandleRunBacktest_SyntheticReturns(t *testing.T) {
	router := newTestRouter(t, &fakeReturns{}, nil)

	rec := postBacktest(t, router, validBody())
	require.Equal(t, http.StatusOK, rec.Code)

	var envelope struct {
		Success bool     `json:"success"`
		Data    Response `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.True(t, envelope.Success)
	assert.False(t, envelope.Data.Cached)
	assert.InDelta(t, 0.032, envelope.Data.Profile.DividendYield, 1e-9)

	require.NotNil(t, envelope.Data.Comparison.Leverage)
	assert.Len(t, envelope.Data.Comparison.Regular.Records, 24)
}

func TestHandleRunBacktest_HistoricalReturns(t *testing.T) {
	returns := make([]domain.MonthlyReturn, 24)
	for i := range returns {
		returns[i] = domain.MonthlyReturn{Year: 2022 + i/12, Month: i%12 + 1, Return: 0.01}
	}
	fake := &fakeReturns{returns: returns}
	router := newTestRouter(t, fake, nil)

	body := validBody()
	body["use_historical"] = true

	rec := postBacktest(t, router, body)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, fake.calls)
}

func TestHandleRunBacktest_HistoricalFetchFailure(t *testing.T) {
	fake := &fakeReturns{err: assert.AnError}
	router := newTestRouter(t, fake, nil)

	body := validBody()
	body["use_historical"] = true

	rec := postBacktest(t, router, body)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestHandleRunBacktest_CachesByRequestHash(t *testing.T) {
	repo := setupCacheRepo(t)
	router := newTestRouter(t, &fakeReturns{}, repo)

	rec := postBacktest(t, router, validBody())
	require.Equal(t, http.StatusOK, rec.Code)

	rec = postBacktest(t, router, validBody())
	require.Equal(t, http.StatusOK, rec.Code)

	var envelope struct {
		Data Response `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.True(t, envelope.Data.Cached)
}

func TestHandleRunBacktest_ValidationErrors(t *testing.T) {
	router := newTestRouter(t, &fakeReturns{}, nil)

	tests := []struct {
		name   string
		mutate func(map[string]interface{})
	}{
		{"zero capital", func(b map[string]interface{}) { b["initial_capital"] = 0 }},
		{"negative contribution", func(b map[string]interface{}) { b["monthly_contribution"] = -1 }},
		{"zero years", func(b map[string]interface{}) { b["years"] = 0 }},
		{"excessive years", func(b map[string]interface{}) { b["years"] = 51 }},
		{"empty portfolio", func(b map[string]interface{}) { b["portfolio"] = map[string]float64{} }},
		{"unknown symbol", func(b map[string]interface{}) { b["portfolio"] = map[string]float64{"SPY": 1.0} }},
		{"bad weights", func(b map[string]interface{}) { b["portfolio"] = map[string]float64{"0050": 0.5} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := validBody()
			tt.mutate(body)

			rec := postBacktest(t, router, body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)

			var envelope struct {
				Success bool   `json:"success"`
				Error   string `json:"error"`
			}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
			assert.False(t, envelope.Success)
			assert.NotEmpty(t, envelope.Error)
		})
	}
}

func TestHandleRunBacktest_InvalidJSON(t *testing.T) {
	router := newTestRouter(t, &fakeReturns{}, nil)

	req := httptest.NewRequest(http.MethodPost, "/backtest", bytes.NewReader([]byte("{not json")))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleRunBacktest_CustomThresholds(t *testing.T) {
	router := newTestRouter(t, &fakeReturns{}, nil)

	body := validBody()
	body["leverage"] = map[string]interface{}{
		"annual_interest_rate": 0.05,
		"maintenance_ratio":    1.4,
		"liquidation_ratio":    1.25,
		"re_leverage_ratio":    2.0,
		"ltv":                  0.5,
	}

	rec := postBacktest(t, router, body)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandleRunBacktest_InvalidThresholdOrdering(t *testing.T) {
	router := newTestRouter(t, &fakeReturns{}, nil)

	body := validBody()
	body["leverage"] = map[string]interface{}{
		"annual_interest_rate": 0.05,
		"re_leverage_ratio":    1.0,
	}

	rec := postBacktest(t, router, body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
