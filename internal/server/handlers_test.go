package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/AndreChuabio/NoSQL-Portfolio-Risk-Analytics/internal/cache"
	"github.com/AndreChuabio/NoSQL-Portfolio-Risk-Analytics/internal/cache/cachetest"
	"github.com/AndreChuabio/NoSQL-Portfolio-Risk-Analytics/internal/modules/metrics"
	"github.com/AndreChuabio/NoSQL-Portfolio-Risk-Analytics/internal/modules/snapshots"
)

type serverEnv struct {
	server    *Server
	metrics   *metrics.Repository
	snapshots *snapshots.Repository
	cache     *cache.Manager
	fake      *cachetest.FakeClient
}

func newServerEnv(t *testing.T) *serverEnv {
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
		CREATE TABLE risk_metrics (
			portfolio_id TEXT NOT NULL,
			date TEXT NOT NULL,
			var_95 REAL NOT NULL,
			expected_shortfall REAL NOT NULL,
			sharpe_ratio REAL NOT NULL,
			beta REAL NOT NULL,
			portfolio_volatility REAL NOT NULL,
			confidence_level REAL NOT NULL,
			n_simulations INTEGER NOT NULL,
			window INTEGER NOT NULL,
			computed_at TEXT NOT NULL,
			PRIMARY KEY (portfolio_id, date)
		);
	`)
	require.NoError(t, err)

	log := zerolog.Nop()
	metricRepo := metrics.NewRepository(db, log)
	snapshotRepo := snapshots.NewRepository(db, log)

	fake := cachetest.NewFakeClient()
	manager := cache.NewManager(fake, time.Minute, log)

	srv := New(Config{
		Log:       log,
		Port:      0,
		DevMode:   true,
		Snapshots: snapshotRepo,
		Metrics:   metricRepo,
		Cache:     manager,
	})

	return &serverEnv{
		server:    srv,
		metrics:   metricRepo,
		snapshots: snapshotRepo,
		cache:     manager,
		fake:      fake,
	}
}

func seedRecord(t *testing.T, env *serverEnv, portfolioID string, date time.Time, varValue float64) {
	t.Helper()
	require.NoError(t, env.metrics.UpsertBatch([]metrics.Record{{
		PortfolioID:         portfolioID,
		Date:                date,
		VaR95:               varValue,
		ExpectedShortfall:   varValue - 0.005,
		SharpeRatio:         1.2,
		Beta:                1.05,
		PortfolioVolatility: 0.18,
		Params:              metrics.SimulationParams{ConfidenceLevel: 0.95, Simulations: 1000, Window: 20},
		ComputedAt:          time.Now().UTC(),
	}}))
}

func doGET(t *testing.T, env *serverEnv, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rr := httptest.NewRecorder()
	env.server.Router().ServeHTTP(rr, req)
	return rr
}

func TestLatestMetricsFallsBackToStore(t *testing.T) {
	env := newServerEnv(t)
	seedRecord(t, env, "growth-fund", time.Date(2025, 6, 30, 0, 0, 0, 0, time.UTC), -0.021)

	rr := doGET(t, env, "/api/portfolios/growth-fund/metrics/latest")
	require.Equal(t, http.StatusOK, rr.Code)

	var resp metricsResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "store", resp.Source)
	assert.InDelta(t, -0.021, resp.Metrics[cache.MetricVaR], 1e-12)
	assert.InDelta(t, 1.05, resp.Metrics[cache.MetricBeta], 1e-12)
}

func TestLatestMetricsServedFromCache(t *testing.T) {
	env := newServerEnv(t)

	require.NoError(t, env.cache.PublishMetrics(context.Background(), "growth-fund", cache.MetricSet{
		VaR95:             -0.019,
		ExpectedShortfall: -0.024,
		SharpeRatio:       1.1,
		Beta:              0.95,
		Volatility:        0.2,
	}))

	rr := doGET(t, env, "/api/portfolios/growth-fund/metrics/latest")
	require.Equal(t, http.StatusOK, rr.Code)

	var resp metricsResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "cache", resp.Source)
	assert.InDelta(t, -0.019, resp.Metrics[cache.MetricVaR], 1e-12)
}

func TestPartialCacheViewFallsBackToStore(t *testing.T) {
	env := newServerEnv(t)
	seedRecord(t, env, "growth-fund", time.Date(2025, 6, 30, 0, 0, 0, 0, time.UTC), -0.021)

	// Only one of the five metric keys is cached
	require.NoError(t, env.cache.SetMetric(context.Background(), "growth-fund", cache.MetricVaR, -0.5))

	rr := doGET(t, env, "/api/portfolios/growth-fund/metrics/latest")
	require.Equal(t, http.StatusOK, rr.Code)

	var resp metricsResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "store", resp.Source)
	assert.InDelta(t, -0.021, resp.Metrics[cache.MetricVaR], 1e-12)
}

func TestLatestMetricsNotFound(t *testing.T) {
	env := newServerEnv(t)

	rr := doGET(t, env, "/api/portfolios/ghost/metrics/latest")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestMetricHistory(t *testing.T) {
	env := newServerEnv(t)
	now := time.Now().UTC()
	seedRecord(t, env, "growth-fund", now.AddDate(0, 0, -2), -0.01)
	seedRecord(t, env, "growth-fund", now.AddDate(0, 0, -1), -0.012)

	rr := doGET(t, env, "/api/portfolios/growth-fund/metrics/history?days=30")
	require.Equal(t, http.StatusOK, rr.Code)

	var resp struct {
		Count   int              `json:"count"`
		Records []metrics.Record `json:"records"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Count)
	require.Len(t, resp.Records, 2)
	assert.True(t, resp.Records[0].Date.Before(resp.Records[1].Date), "history is oldest first")
}

func TestMetricHistoryRejectsBadDays(t *testing.T) {
	env := newServerEnv(t)

	rr := doGET(t, env, "/api/portfolios/growth-fund/metrics/history?days=zero")
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = doGET(t, env, "/api/portfolios/growth-fund/metrics/history?days=-5")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestAlertsEndpoint(t *testing.T) {
	env := newServerEnv(t)
	seedRecord(t, env, "growth-fund", time.Date(2025, 6, 30, 0, 0, 0, 0, time.UTC), -0.03)

	rr := doGET(t, env, "/api/portfolios/growth-fund/alerts")
	require.Equal(t, http.StatusOK, rr.Code)

	var resp struct {
		Alerts []struct {
			Severity string `json:"severity"`
			Type     string `json:"type"`
		} `json:"alerts"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Alerts)
	assert.Equal(t, "critical", resp.Alerts[0].Severity)
	assert.Equal(t, "VaR Critical", resp.Alerts[0].Type)
}

func TestListPortfolios(t *testing.T) {
	env := newServerEnv(t)
	require.NoError(t, env.snapshots.Insert(&snapshots.Snapshot{
		PortfolioID: "growth-fund",
		Date:        time.Date(2025, 6, 30, 0, 0, 0, 0, time.UTC),
		Assets:      []snapshots.Asset{{Ticker: "AAPL", Weight: 1.0}},
	}))

	rr := doGET(t, env, "/api/portfolios")
	require.Equal(t, http.StatusOK, rr.Code)

	var resp struct {
		Count      int      `json:"count"`
		Portfolios []string `json:"portfolios"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Count)
	assert.Equal(t, []string{"growth-fund"}, resp.Portfolios)
}

func TestListSnapshots(t *testing.T) {
	env := newServerEnv(t)
	require.NoError(t, env.snapshots.Insert(&snapshots.Snapshot{
		PortfolioID: "growth-fund",
		Date:        time.Date(2025, 6, 29, 0, 0, 0, 0, time.UTC),
		Assets:      []snapshots.Asset{{Ticker: "AAPL", Weight: 1.0}},
	}))
	require.NoError(t, env.snapshots.Insert(&snapshots.Snapshot{
		PortfolioID: "growth-fund",
		Date:        time.Date(2025, 6, 30, 0, 0, 0, 0, time.UTC),
		Assets:      []snapshots.Asset{{Ticker: "AAPL", Weight: 1.0}},
	}))

	rr := doGET(t, env, "/api/portfolios/growth-fund/snapshots")
	require.Equal(t, http.StatusOK, rr.Code)

	var resp struct {
		Count int      `json:"count"`
		Dates []string `json:"dates"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Count)
	assert.Equal(t, []string{"2025-06-29", "2025-06-30"}, resp.Dates)
}

func TestTriggerBackfillWithoutJob(t *testing.T) {
	env := newServerEnv(t)

	req := httptest.NewRequest(http.MethodPost, "/api/jobs/backfill", nil)
	rr := httptest.NewRecorder()
	env.server.Router().ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "error", resp["status"])
}
