package snapshots

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
		CREATE TABLE portfolio_snapshots (
			portfolio_id TEXT NOT NULL,
			date TEXT NOT NULL,
			assets TEXT NOT NULL,
			created_at TEXT NOT NULL,
			PRIMARY KEY (portfolio_id, date)
		);
	`)
	require.NoError(t, err)

	return NewRepository(db, zerolog.Nop())
}

func day(d int) time.Time {
	return time.Date(2025, 6, d, 0, 0, 0, 0, time.UTC)
}

func testSnapshot(portfolioID string, date time.Time) *Snapshot {
	return &Snapshot{
		PortfolioID: portfolioID,
		Date:        date,
		Assets: []Asset{
			{Ticker: "AAPL", Weight: 0.6, Sector: "Technology"},
			{Ticker: "MSFT", Weight: 0.4, Sector: "Technology"},
		},
	}
}

func TestInsertAndGetRoundTrip(t *testing.T) {
	repo := newTestRepo(t)

	require.NoError(t, repo.Insert(testSnapshot("growth-fund", day(30))))

	got, err := repo.Get("growth-fund", day(30))
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "growth-fund", got.PortfolioID)
	assert.Equal(t, day(30), got.Date)
	require.Len(t, got.Assets, 2)
	assert.Equal(t, "AAPL", got.Assets[0].Ticker)
	assert.InDelta(t, 0.6, got.Assets[0].Weight, 1e-12)
	assert.False(t, got.CreatedAt.IsZero())
}

func TestInsertIsImmutable(t *testing.T) {
	repo := newTestRepo(t)

	require.NoError(t, repo.Insert(testSnapshot("growth-fund", day(30))))

	// A second insert for the same key is ignored, not overwritten
	changed := testSnapshot("growth-fund", day(30))
	changed.Assets = []Asset{{Ticker: "NVDA", Weight: 1.0}}
	require.NoError(t, repo.Insert(changed))

	got, err := repo.Get("growth-fund", day(30))
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "AAPL", got.Assets[0].Ticker)
}

func TestInsertRejectsEmptyAssets(t *testing.T) {
	repo := newTestRepo(t)

	err := repo.Insert(&Snapshot{PortfolioID: "p1", Date: day(1)})
	assert.Error(t, err)
}

func TestInsertRejectsBadWeights(t *testing.T) {
	repo := newTestRepo(t)

	err := repo.Insert(&Snapshot{
		PortfolioID: "p1",
		Date:        day(1),
		Assets: []Asset{
			{Ticker: "AAPL", Weight: 0.6},
			{Ticker: "MSFT", Weight: 0.5},
		},
	})
	assert.Error(t, err)
}

func TestGetMissingReturnsNil(t *testing.T) {
	repo := newTestRepo(t)

	got, err := repo.Get("ghost", day(1))
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestListKeysOrdering(t *testing.T) {
	repo := newTestRepo(t)

	require.NoError(t, repo.Insert(testSnapshot("b-fund", day(2))))
	require.NoError(t, repo.Insert(testSnapshot("a-fund", day(3))))
	require.NoError(t, repo.Insert(testSnapshot("a-fund", day(1))))

	keys, err := repo.ListKeys("")
	require.NoError(t, err)
	require.Len(t, keys, 3)

	assert.Equal(t, Key{PortfolioID: "a-fund", Date: day(1)}, keys[0])
	assert.Equal(t, Key{PortfolioID: "a-fund", Date: day(3)}, keys[1])
	assert.Equal(t, Key{PortfolioID: "b-fund", Date: day(2)}, keys[2])
}

func TestListKeysFilteredByPortfolio(t *testing.T) {
	repo := newTestRepo(t)

	require.NoError(t, repo.Insert(testSnapshot("a-fund", day(1))))
	require.NoError(t, repo.Insert(testSnapshot("b-fund", day(1))))

	keys, err := repo.ListKeys("a-fund")
	require.NoError(t, err)
	require.Len(t, keys, 1)
	assert.Equal(t, "a-fund", keys[0].PortfolioID)
}

func TestWeights(t *testing.T) {
	repo := newTestRepo(t)

	require.NoError(t, repo.Insert(testSnapshot("growth-fund", day(30))))

	weights, err := repo.Weights("growth-fund", day(30))
	require.NoError(t, err)
	assert.InDelta(t, 0.6, weights["AAPL"], 1e-12)
	assert.InDelta(t, 0.4, weights["MSFT"], 1e-12)

	_, err = repo.Weights("growth-fund", day(29))
	assert.Error(t, err)
}

func TestPortfolios(t *testing.T) {
	repo := newTestRepo(t)

	require.NoError(t, repo.Insert(testSnapshot("b-fund", day(1))))
	require.NoError(t, repo.Insert(testSnapshot("a-fund", day(1))))
	require.NoError(t, repo.Insert(testSnapshot("a-fund", day(2))))

	ids, err := repo.Portfolios()
	require.NoError(t, err)
	assert.Equal(t, []string{"a-fund", "b-fund"}, ids)
}
