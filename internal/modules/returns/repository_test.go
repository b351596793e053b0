package returns

import (
	"database/sql"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func newTestRepo(t *testing.T) *Repository {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	db.SetMaxOpenConns(1)

	_, err = db.Exec(`
		CREATE TABLE prices (
			ticker TEXT NOT NULL,
			date TEXT NOT NULL,
			close REAL NOT NULL,
			PRIMARY KEY (ticker, date)
		);
	`)
	require.NoError(t, err)

	return NewRepository(db, zerolog.Nop())
}

func day(d int) time.Time {
	return time.Date(2025, 6, d, 0, 0, 0, 0, time.UTC)
}

func TestReturnsWindowComputesDailyReturns(t *testing.T) {
	repo := newTestRepo(t)

	require.NoError(t, repo.UpsertPrices([]Price{
		{Ticker: "AAPL", Date: day(1), Close: 100},
		{Ticker: "AAPL", Date: day(2), Close: 110},
		{Ticker: "AAPL", Date: day(3), Close: 99},
	}))

	series, err := repo.ReturnsWindow(day(3), 10)
	require.NoError(t, err)

	// First date has no prior close and is dropped
	require.Equal(t, 2, series.Len())

	col, ok := series.Column("AAPL")
	require.True(t, ok)
	assert.InDelta(t, 0.10, col[0], 1e-12)
	assert.InDelta(t, -0.10, col[1], 1e-12)
}

func TestReturnsWindowForwardFillsGaps(t *testing.T) {
	repo := newTestRepo(t)

	// MSFT is missing on day 2; its return there is 0 and day 3 is
	// computed against the day 1 close
	require.NoError(t, repo.UpsertPrices([]Price{
		{Ticker: "AAPL", Date: day(1), Close: 100},
		{Ticker: "AAPL", Date: day(2), Close: 101},
		{Ticker: "AAPL", Date: day(3), Close: 102},
		{Ticker: "MSFT", Date: day(1), Close: 200},
		{Ticker: "MSFT", Date: day(3), Close: 220},
	}))

	series, err := repo.ReturnsWindow(day(3), 10)
	require.NoError(t, err)
	require.Equal(t, 2, series.Len())

	col, ok := series.Column("MSFT")
	require.True(t, ok)
	assert.Equal(t, 0.0, col[0])
	assert.InDelta(t, 0.10, col[1], 1e-12)
}

func TestReturnsWindowExcludesPricesOutsideWindow(t *testing.T) {
	repo := newTestRepo(t)

	require.NoError(t, repo.UpsertPrices([]Price{
		{Ticker: "AAPL", Date: day(1), Close: 50},
		{Ticker: "AAPL", Date: day(10), Close: 100},
		{Ticker: "AAPL", Date: day(11), Close: 105},
		{Ticker: "AAPL", Date: day(12), Close: 110},
	}))

	series, err := repo.ReturnsWindow(day(12), 3)
	require.NoError(t, err)
	assert.Equal(t, 2, series.Len(), "day 1 lies outside the lookback window")
}

func TestReturnsWindowEmptyStore(t *testing.T) {
	repo := newTestRepo(t)

	series, err := repo.ReturnsWindow(day(30), 10)
	require.NoError(t, err)
	assert.True(t, series.IsEmpty())
}

func TestUpsertPricesReplacesExistingClose(t *testing.T) {
	repo := newTestRepo(t)

	require.NoError(t, repo.UpsertPrices([]Price{
		{Ticker: "AAPL", Date: day(1), Close: 100},
		{Ticker: "AAPL", Date: day(2), Close: 110},
	}))
	// Correction arrives for day 2
	require.NoError(t, repo.UpsertPrices([]Price{
		{Ticker: "AAPL", Date: day(2), Close: 120},
	}))

	series, err := repo.ReturnsWindow(day(2), 5)
	require.NoError(t, err)

	col, ok := series.Column("AAPL")
	require.True(t, ok)
	require.Len(t, col, 1)
	assert.InDelta(t, 0.20, col[0], 1e-12)
}

func TestPortfolioReturnsUsesWeights(t *testing.T) {
	series := NewSeries()
	series.Dates = []time.Time{day(2), day(3)}
	series.Columns = map[string][]float64{
		"AAPL": {0.10, -0.10},
		"MSFT": {0.02, 0.04},
	}

	portfolio := series.PortfolioReturns(map[string]float64{"AAPL": 0.5, "MSFT": 0.5})
	require.Len(t, portfolio, 2)
	assert.InDelta(t, 0.06, portfolio[0], 1e-12)
	assert.InDelta(t, -0.03, portfolio[1], 1e-12)
}
