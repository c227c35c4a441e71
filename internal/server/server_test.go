package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/minghan/leversim/internal/domain"
	"github.com/minghan/leversim/internal/modules/advisor"
	advisorhandlers "github.com/minghan/leversim/internal/modules/advisor/handlers"
	"github.com/minghan/leversim/internal/modules/etf"
	etfhandlers "github.com/minghan/leversim/internal/modules/etf/handlers"
	"github.com/minghan/leversim/internal/modules/historical"
	montecarlohandlers "github.com/minghan/leversim/internal/modules/montecarlo/handlers"
	"github.com/minghan/leversim/internal/modules/portfolio"
)

type noopFetcher struct{}

func (noopFetcher) GetMonthlyReturns(symbol string, years int) ([]domain.MonthlyReturn, error) {
	return nil, nil
}

func (noopFetcher) Refresh(symbol string, years int) error { return nil }

func newTestServer(t *testing.T) *Server {
	t.Helper()
	catalog := etf.DefaultCatalog()
	portfolioSvc := portfolio.NewService(catalog, zerolog.Nop())
	historicalSvc := historical.NewService(noopFetcher{}, catalog, zerolog.Nop())

	return New(Config{
		Log:     zerolog.Nop(),
		Port:    0,
		DevMode: true,
		Handlers: Handlers{
			MonteCarlo: montecarlohandlers.NewHandler(portfolioSvc, zerolog.Nop()),
			ETF:        etfhandlers.NewHandler(catalog, historicalSvc, zerolog.Nop()),
			Advisor:    advisorhandlers.NewHandler(advisor.NewService(portfolioSvc, zerolog.Nop()), zerolog.Nop()),
			System:     NewSystemHandlers(zerolog.Nop(), t.TempDir(), "test"),
		},
	})
}

func TestHealthEndpoint(t *testing.T) {
	srv := newTestServer(t)

	for _, path := range []string{"/health", "/api/health"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		srv.Router().ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code, path)

		var body map[string]string
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "ok", body["status"])
	}
}

func TestSystemStatusEndpoint(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/system/status", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var envelope struct {
		Success bool `json:"success"`
		Data    struct {
			Version       string  `json:"version"`
			UptimeSeconds int64   `json:"uptime_seconds"`
			RAMPercent    float64 `json:"ram_percent"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.True(t, envelope.Success)
	assert.Equal(t, "test", envelope.Data.Version)
	assert.GreaterOrEqual(t, envelope.Data.RAMPercent, 0.0)
}

func TestMountedModuleRoutes(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/etfs/", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	body := strings.NewReader(`{"age":30,"risk_level":"balanced","goal":"retirement","monthly_savings":10000}`)
	req = httptest.NewRequest(http.MethodPost, "/api/advisor/recommend", body)
	rec = httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestUnknownRouteIs404(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/nope", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
