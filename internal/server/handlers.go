package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/AndreChuabio/NoSQL-Portfolio-Risk-Analytics/internal/cache"
)

const defaultHistoryDays = 60

// metricsResponse is the payload for the latest-metrics endpoint.
// Source reports whether the values came from the cache or from the
// durable store fallback.
type metricsResponse struct {
	PortfolioID string             `json:"portfolio_id"`
	Metrics     map[string]float64 `json:"metrics"`
	Source      string             `json:"source"`
	AsOf        time.Time          `json:"as_of"`
}

// handleLatestMetrics serves a portfolio's current metrics, cache
// first. A cache miss is not an error: the durable store's most
// recent record is the fallback.
// GET /api/portfolios/{portfolioID}/metrics/latest
func (s *Server) handleLatestMetrics(w http.ResponseWriter, r *http.Request) {
	portfolioID := chi.URLParam(r, "portfolioID")

	if resp, ok := s.metricsFromCache(r, portfolioID); ok {
		s.writeJSON(w, resp)
		return
	}

	rec, err := s.metrics.Latest(portfolioID)
	if err != nil {
		s.log.Error().Err(err).Str("portfolio", portfolioID).Msg("Failed to load latest metrics")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if rec == nil {
		http.Error(w, "No metrics for portfolio", http.StatusNotFound)
		return
	}

	s.writeJSON(w, metricsResponse{
		PortfolioID: portfolioID,
		Metrics: map[string]float64{
			cache.MetricVaR:        rec.VaR95,
			cache.MetricES:         rec.ExpectedShortfall,
			cache.MetricSharpe:     rec.SharpeRatio,
			cache.MetricBeta:       rec.Beta,
			cache.MetricVolatility: rec.PortfolioVolatility,
		},
		Source: "store",
		AsOf:   rec.ComputedAt,
	})
}

// metricsFromCache assembles the response from cached entries. All
// five metrics must hit; a partial view is treated as a full miss.
func (s *Server) metricsFromCache(r *http.Request, portfolioID string) (metricsResponse, bool) {
	if s.cache == nil {
		return metricsResponse{}, false
	}

	values := make(map[string]float64, len(cache.MetricTypes))
	var asOf time.Time

	for _, metricType := range cache.MetricTypes {
		lookup, err := s.cache.GetMetric(r.Context(), portfolioID, metricType)
		if err != nil {
			s.log.Warn().Err(err).Str("portfolio", portfolioID).Msg("Cache read failed, falling back to store")
			return metricsResponse{}, false
		}
		if !lookup.Hit {
			return metricsResponse{}, false
		}
		values[metricType] = lookup.Value
		asOf = lookup.TS
	}

	return metricsResponse{
		PortfolioID: portfolioID,
		Metrics:     values,
		Source:      "cache",
		AsOf:        asOf,
	}, true
}

// handleMetricHistory serves a portfolio's trailing metric records.
// GET /api/portfolios/{portfolioID}/metrics/history?days=60
func (s *Server) handleMetricHistory(w http.ResponseWriter, r *http.Request) {
	portfolioID := chi.URLParam(r, "portfolioID")

	days := defaultHistoryDays
	if v := r.URL.Query().Get("days"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			http.Error(w, "Invalid days parameter", http.StatusBadRequest)
			return
		}
		days = parsed
	}

	records, err := s.metrics.History(portfolioID, days)
	if err != nil {
		s.log.Error().Err(err).Str("portfolio", portfolioID).Msg("Failed to load metric history")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	s.writeJSON(w, map[string]interface{}{
		"portfolio_id": portfolioID,
		"days":         days,
		"count":        len(records),
		"records":      records,
	})
}

// handleAlerts serves a portfolio's alert evaluation plus the cached
// alert flags.
// GET /api/portfolios/{portfolioID}/alerts
func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	portfolioID := chi.URLParam(r, "portfolioID")

	rec, err := s.metrics.Latest(portfolioID)
	if err != nil {
		s.log.Error().Err(err).Str("portfolio", portfolioID).Msg("Failed to load latest metrics")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if rec == nil {
		http.Error(w, "No metrics for portfolio", http.StatusNotFound)
		return
	}

	history, err := s.metrics.History(portfolioID, defaultHistoryDays)
	if err != nil {
		s.log.Warn().Err(err).Str("portfolio", portfolioID).Msg("Failed to load metric history for alerting")
	}
	sharpeHistory := make([]float64, 0, len(history))
	for _, h := range history {
		sharpeHistory = append(sharpeHistory, h.SharpeRatio)
	}

	evaluated := s.evaluator.Evaluate(rec, sharpeHistory)

	var cachedFlags map[string]bool
	if s.cache != nil {
		cachedFlags, err = s.cache.GetAlerts(r.Context(), portfolioID)
		if err != nil {
			s.log.Warn().Err(err).Str("portfolio", portfolioID).Msg("Failed to read cached alert flags")
		}
	}

	s.writeJSON(w, map[string]interface{}{
		"portfolio_id": portfolioID,
		"as_of":        rec.Date,
		"alerts":       evaluated,
		"cached_flags": cachedFlags,
	})
}

// handleListPortfolios serves the known portfolio identifiers.
// GET /api/portfolios
func (s *Server) handleListPortfolios(w http.ResponseWriter, r *http.Request) {
	ids, err := s.snapshots.Portfolios()
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to list portfolios")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	s.writeJSON(w, map[string]interface{}{
		"count":      len(ids),
		"portfolios": ids,
	})
}

// handleListSnapshots serves a portfolio's snapshot dates.
// GET /api/portfolios/{portfolioID}/snapshots
func (s *Server) handleListSnapshots(w http.ResponseWriter, r *http.Request) {
	portfolioID := chi.URLParam(r, "portfolioID")

	keys, err := s.snapshots.ListKeys(portfolioID)
	if err != nil {
		s.log.Error().Err(err).Str("portfolio", portfolioID).Msg("Failed to list snapshots")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	dates := make([]string, 0, len(keys))
	for _, key := range keys {
		dates = append(dates, key.Date.Format("2006-01-02"))
	}

	s.writeJSON(w, map[string]interface{}{
		"portfolio_id": portfolioID,
		"count":        len(dates),
		"dates":        dates,
	})
}

// handleTriggerBackfill runs the backfill sweep immediately.
// POST /api/jobs/backfill
func (s *Server) handleTriggerBackfill(w http.ResponseWriter, r *http.Request) {
	if s.backfillJob == nil {
		s.writeJSON(w, map[string]string{
			"status":  "error",
			"message": "Backfill job not registered",
		})
		return
	}

	s.log.Info().Msg("Manual backfill triggered")
	go func() {
		if err := s.backfillJob.Run(); err != nil {
			s.log.Error().Err(err).Msg("Manual backfill failed")
		}
	}()

	w.WriteHeader(http.StatusAccepted)
	s.writeJSON(w, map[string]string{
		"status":  "started",
		"message": "Backfill sweep started",
	})
}

// handleHealth reports process, store, and cache health.
// GET /api/health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	stores := make(map[string]string)
	healthy := true

	check := func(name string, err error) {
		if err != nil {
			stores[name] = "unhealthy: " + err.Error()
			healthy = false
		} else {
			stores[name] = "healthy"
		}
	}
	if s.historyDB != nil {
		check(s.historyDB.Name(), s.historyDB.QuickCheck(ctx))
	}
	if s.portfolioDB != nil {
		check(s.portfolioDB.Name(), s.portfolioDB.QuickCheck(ctx))
	}

	cacheStatus := "disabled"
	if s.cache != nil {
		if err := s.cache.HealthCheck(ctx); err != nil {
			cacheStatus = "unhealthy: " + err.Error()
		} else {
			cacheStatus = "healthy"
		}
	}

	cpuAvg, memUsed := systemStats(s)

	status := "ok"
	code := http.StatusOK
	if !healthy {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"status":         status,
		"uptime_seconds": int(time.Since(s.startupTime).Seconds()),
		"stores":         stores,
		"cache":          cacheStatus,
		"cpu_percent":    cpuAvg,
		"memory_percent": memUsed,
	})
}

// systemStats returns average CPU and RAM usage percentages
func systemStats(s *Server) (float64, float64) {
	cpuPercent, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil {
		s.log.Warn().Err(err).Msg("Failed to get CPU percentage")
		cpuPercent = []float64{0}
	}

	memStat, err := mem.VirtualMemory()
	if err != nil {
		s.log.Warn().Err(err).Msg("Failed to get memory statistics")
		return 0, 0
	}

	cpuAvg := 0.0
	if len(cpuPercent) > 0 {
		cpuAvg = cpuPercent[0]
	}

	return cpuAvg, memStat.UsedPercent
}

// writeJSON writes a JSON response
func (s *Server) writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Error().Err(err).Msg("Failed to encode JSON response")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}
