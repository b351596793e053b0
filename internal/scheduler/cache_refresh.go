package scheduler

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/AndreChuabio/NoSQL-Portfolio-Risk-Analytics/internal/cache"
	"github.com/AndreChuabio/NoSQL-Portfolio-Risk-Analytics/internal/modules/alerts"
	"github.com/AndreChuabio/NoSQL-Portfolio-Risk-Analytics/internal/modules/metrics"
	"github.com/AndreChuabio/NoSQL-Portfolio-Risk-Analytics/internal/modules/snapshots"
)

// CacheRefreshJob republishes each portfolio's latest metric record to
// the cache. Runs on an interval shorter than the cache TTL so current
// values stay warm between backfill sweeps; a refresh failure only
// means readers fall back to the durable store until the next tick.
type CacheRefreshJob struct {
	snapshots *snapshots.Repository
	metrics   *metrics.Repository
	cache     *cache.Manager
	evaluator *alerts.Evaluator
	log       zerolog.Logger
}

// NewCacheRefreshJob creates a new cache refresh job
func NewCacheRefreshJob(
	snapshotRepo *snapshots.Repository,
	metricRepo *metrics.Repository,
	cacheManager *cache.Manager,
	log zerolog.Logger,
) *CacheRefreshJob {
	return &CacheRefreshJob{
		snapshots: snapshotRepo,
		metrics:   metricRepo,
		cache:     cacheManager,
		evaluator: alerts.NewEvaluator(alerts.DefaultThresholds()),
		log:       log.With().Str("job", "cache_refresh").Logger(),
	}
}

// Name returns the job name
func (j *CacheRefreshJob) Name() string {
	return "cache_refresh"
}

// Run republishes the latest durable record per portfolio
func (j *CacheRefreshJob) Run() error {
	ctx := context.Background()

	portfolios, err := j.snapshots.Portfolios()
	if err != nil {
		return err
	}

	refreshed := 0
	for _, portfolioID := range portfolios {
		rec, err := j.metrics.Latest(portfolioID)
		if err != nil {
			j.log.Warn().Err(err).Str("portfolio", portfolioID).Msg("Failed to load latest record")
			continue
		}
		if rec == nil {
			continue
		}

		set := cache.MetricSet{
			VaR95:             rec.VaR95,
			ExpectedShortfall: rec.ExpectedShortfall,
			SharpeRatio:       rec.SharpeRatio,
			Beta:              rec.Beta,
			Volatility:        rec.PortfolioVolatility,
		}
		if err := j.cache.PublishMetrics(ctx, portfolioID, set); err != nil {
			j.log.Warn().Err(err).Str("portfolio", portfolioID).Msg("Cache refresh failed")
			continue
		}

		flags := j.evaluator.Flags(rec, j.sharpeHistory(portfolioID))
		if err := j.cache.SetAlerts(ctx, portfolioID, flags); err != nil {
			j.log.Warn().Err(err).Str("portfolio", portfolioID).Msg("Alert refresh failed")
		}

		refreshed++
	}

	j.log.Debug().Int("portfolios", refreshed).Msg("Cache refreshed")
	return nil
}

func (j *CacheRefreshJob) sharpeHistory(portfolioID string) []float64 {
	records, err := j.metrics.History(portfolioID, 60)
	if err != nil {
		j.log.Warn().Err(err).Str("portfolio", portfolioID).Msg("Failed to load Sharpe history")
		return nil
	}
	history := make([]float64, 0, len(records))
	for _, rec := range records {
		history = append(history, rec.SharpeRatio)
	}
	return history
}
