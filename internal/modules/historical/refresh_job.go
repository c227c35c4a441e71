package historical

import (
	"github.com/minghan/leversim/internal/modules/etf"
	"github.com/rs/zerolog"
)

// refreshYears is how much history each refresh pulls. Long enough for any
// backtest horizon the API accepts.
const refreshYears = 30

// RefreshJob re-fetches return histories for every catalog instrument so the
// cache stays warm. Scheduled daily; failures for one symbol do not stop the
// others.
type RefreshJob struct {
	fetcher ReturnsFetcher
	catalog *etf.Catalog
	log     zerolog.Logger
}

// NewRefreshJob creates a new returns refresh job.
func NewRefreshJob(fetcher ReturnsFetcher, catalog *etf.Catalog, log zerolog.Logger) *RefreshJob {
	return &RefreshJob{
		fetcher: fetcher,
		catalog: catalog,
		log:     log.With().Str("job", "returns_refresh").Logger(),
	}
}

// Run refreshes every catalog symbol. Returns the last error seen, if any.
func (j *RefreshJob) Run() error {
	var lastErr error
	refreshed := 0

	for _, entry := range j.catalog.List() {
		if err := j.fetcher.Refresh(entry.YahooSymbol, refreshYears); err != nil {
			j.log.Warn().
				Err(err).
				Str("symbol", entry.Symbol).
				Str("yahoo_symbol", entry.YahooSymbol).
				Msg("Failed to refresh returns")
			lastErr = err
			continue
		}
		refreshed++
	}

	j.log.Info().
		Int("refreshed", refreshed).
		Int("total", len(j.catalog.List())).
		Msg("Returns refresh completed")

	return lastErr
}

// Name returns the job name for scheduling and logging.
func (j *RefreshJob) Name() string {
	return "returns_refresh"
}
