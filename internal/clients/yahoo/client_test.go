package yahoo

import (
	"database/sql"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/minghan/leversim/internal/clientdata"
	"github.com/minghan/leversim/internal/domain"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupCacheRepo(t *testing.T) *clientdata.Repository {
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(clientdata.Schema)
	require.NoError(t, err)

	return clientdata.NewRepository(db)
}

// chartJSON builds a minimal chart payload with monthly timestamps starting
// January 2023 and the given adjusted closes.
func chartJSON(prices ...float64) string {
	timestamps := ""
	priceList := ""
	for i, p := range prices {
		if i > 0 {
			timestamps += ","
			priceList += ","
		}
		ts := time.Date(2023, time.Month(i+1), 1, 0, 0, 0, 0, time.UTC).Unix()
		timestamps += fmt.Sprintf("%d", ts)
		priceList += fmt.Sprintf("%g", p)
	}
	return fmt.Sprintf(`{"chart":{"result":[{"timestamp":[%s],"indicators":{"adjclose":[{"adjclose":[%s]}]}}],"error":null}}`, timestamps, priceList)
}

func newTestClient(t *testing.T, handler http.HandlerFunc, repo *clientdata.Repository) *Client {
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client := NewClient(repo, time.Hour, zerolog.Nop())
	client.SetBaseURL(srv.URL)
	return client
}

func TestGetMonthlyReturns_ComputesReturnsFromCloses(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "0050.TW")
		fmt.Fprint(w, chartJSON(100, 110, 99))
	}, nil)

	returns, err := client.GetMonthlyReturns("0050.TW", 1)
	require.NoError(t, err)
	require.Len(t, returns, 2)

	assert.Equal(t, 2023, returns[0].Year)
	assert.Equal(t, 2, returns[0].Month)
	assert.InDelta(t, 0.10, returns[0].Return, 1e-9)
	assert.InDelta(t, -0.10, returns[1].Return, 1e-9)
}

func TestGetMonthlyReturns_SkipsNullCloses(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"chart":{"result":[{"timestamp":[1672531200,1675209600,1677628800],"indicators":{"adjclose":[{"adjclose":[100,null,120]}]}}],"error":null}}`)
	}, nil)

	returns, err := client.GetMonthlyReturns("0050.TW", 1)
	require.NoError(t, err)
	require.Len(t, returns, 1)
	assert.InDelta(t, 0.20, returns[0].Return, 1e-9)
}

func TestGetMonthlyReturns_CacheHitSkipsAPI(t *testing.T) {
	repo := setupCacheRepo(t)
	calls := 0
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		fmt.Fprint(w, chartJSON(100, 110))
	}, repo)

	_, err := client.GetMonthlyReturns("0050.TW", 1)
	require.NoError(t, err)
	_, err = client.GetMonthlyReturns("0050.TW", 1)
	require.NoError(t, err)

	assert.Equal(t, 1, calls)
}

func TestGetMonthlyReturns_StaleFallbackOnAPIError(t *testing.T) {
	repo := setupCacheRepo(t)

	// Seed a stale cache entry.
	require.NoError(t, repo.Store("yahoo_returns", "0050.TW", Series{
		Symbol: "0050.TW",
		Returns: []domain.MonthlyReturn{
			{Year: 2023, Month: 2, Return: 0.05},
			{Year: 2023, Month: 3, Return: -0.02},
		},
	}, -time.Hour))

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}, repo)

	returns, err := client.GetMonthlyReturns("0050.TW", 1)
	require.NoError(t, err)
	require.Len(t, returns, 2)
	assert.InDelta(t, 0.05, returns[0].Return, 1e-9)
}

func TestGetMonthlyReturns_APIErrorNoCache(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}, nil)

	_, err := client.GetMonthlyReturns("0050.TW", 1)
	assert.Error(t, err)
}

func TestGetMonthlyReturns_ChartError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"chart":{"result":null,"error":{"code":"Not Found","description":"No data found"}}}`)
	}, nil)

	_, err := client.GetMonthlyReturns("BAD.TW", 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Not Found")
}

func TestGetMonthlyReturns_TrimsToRequestedYears(t *testing.T) {
	prices := make([]float64, 26) // 25 months of returns
	for i := range prices {
		prices[i] = 100 + float64(i)
	}
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, chartJSON(prices...))
	}, nil)

	returns, err := client.GetMonthlyReturns("0050.TW", 2)
	require.NoError(t, err)
	assert.Len(t, returns, 24)
}

func TestGetMonthlyReturns_RejectsInvalidInput(t *testing.T) {
	client := NewClient(nil, time.Hour, zerolog.Nop())

	_, err := client.GetMonthlyReturns("", 1)
	assert.Error(t, err)

	_, err = client.GetMonthlyReturns("0050.TW", 0)
	assert.Error(t, err)
}

func TestRefresh_UpdatesCache(t *testing.T) {
	repo := setupCacheRepo(t)
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, chartJSON(100, 102))
	}, repo)

	require.NoError(t, client.Refresh("0050.TW", 1))

	raw, err := repo.GetIfFresh("yahoo_returns", "0050.TW")
	require.NoError(t, err)
	assert.NotNil(t, raw)
}
