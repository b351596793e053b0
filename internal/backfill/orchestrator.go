// Package backfill sweeps every stored portfolio snapshot in
// ascending date order, computes the five risk metrics for each, and
// flushes the results to the durable store in fixed-size batches. The
// chronologically latest result per portfolio is then published to the
// cache.
package backfill

import (
	"context"
	"errors"
	"hash/fnv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/AndreChuabio/NoSQL-Portfolio-Risk-Analytics/internal/cache"
	"github.com/AndreChuabio/NoSQL-Portfolio-Risk-Analytics/internal/modules/alerts"
	"github.com/AndreChuabio/NoSQL-Portfolio-Risk-Analytics/internal/modules/metrics"
	"github.com/AndreChuabio/NoSQL-Portfolio-Risk-Analytics/internal/modules/returns"
	"github.com/AndreChuabio/NoSQL-Portfolio-Risk-Analytics/internal/modules/risk"
	"github.com/AndreChuabio/NoSQL-Portfolio-Risk-Analytics/internal/modules/snapshots"
)

const dateLayout = "2006-01-02"

// Snapshot processing states. Terminal states within one run are
// Skipped, Failed, Persisted, and Cached; a later run may recompute
// and overwrite a persisted result.
const (
	StatePending   = "PENDING"
	StateComputing = "COMPUTING"
	StateSkipped   = "SKIPPED"
	StateFailed    = "FAILED"
	StatePersisted = "PERSISTED"
	StateCached    = "CACHED"
)

// Batch outcomes
const (
	BatchCommitted = "COMMITTED"
	BatchFailed    = "FAILED"
)

const (
	// DefaultBatchSize bounds memory and makes partial-failure
	// recovery coarse-grained: a batch either fully commits or is
	// retried as a unit.
	DefaultBatchSize = 50

	// ExtraLookbackDays pads the price query beyond the rolling
	// window to absorb weekends, holidays, and listing gaps.
	ExtraLookbackDays = 30

	batchRetries = 3
	retryBackoff = 500 * time.Millisecond
)

// Options configures one orchestration run
type Options struct {
	Window          int
	Simulations     int
	Confidence      float64
	BatchSize       int
	BenchmarkTicker string
	SkipCache       bool
}

// DefaultOptions returns the standard run configuration
func DefaultOptions() Options {
	return Options{
		Window:          risk.DefaultWindow,
		Simulations:     risk.DefaultSimulations,
		Confidence:      risk.DefaultConfidence,
		BatchSize:       DefaultBatchSize,
		BenchmarkTicker: "SPY",
	}
}

// BatchResult records the outcome of one durable-store flush
type BatchResult struct {
	Index   int    `json:"index"`
	Status  string `json:"status"`
	Records int    `json:"records"`
	Reason  string `json:"reason,omitempty"`
}

// RunSummary reports one full sweep
type RunSummary struct {
	RunID      string        `json:"run_id"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Total      int           `json:"total_snapshots"`
	Persisted  int           `json:"persisted"`
	Skipped    int           `json:"skipped"`
	Failed     int           `json:"failed"`
	Cached     int           `json:"cached"`
	Batches    []BatchResult `json:"batches"`
}

// Orchestrator drives the snapshot sweep
type Orchestrator struct {
	snapshots *snapshots.Repository
	returns   *returns.Repository
	metrics   *metrics.Repository
	cache     *cache.Manager
	evaluator *alerts.Evaluator
	opts      Options
	log       zerolog.Logger
}

// New creates an orchestrator. The cache manager may be nil, in which
// case the publish step is skipped entirely.
func New(
	snapshotRepo *snapshots.Repository,
	returnsRepo *returns.Repository,
	metricRepo *metrics.Repository,
	cacheManager *cache.Manager,
	opts Options,
	log zerolog.Logger,
) *Orchestrator {
	if opts.Window <= 0 {
		opts.Window = risk.DefaultWindow
	}
	if opts.Simulations <= 0 {
		opts.Simulations = risk.DefaultSimulations
	}
	if opts.Confidence <= 0 {
		opts.Confidence = risk.DefaultConfidence
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.BenchmarkTicker == "" {
		opts.BenchmarkTicker = "SPY"
	}

	return &Orchestrator{
		snapshots: snapshotRepo,
		returns:   returnsRepo,
		metrics:   metricRepo,
		cache:     cacheManager,
		evaluator: alerts.NewEvaluator(alerts.DefaultThresholds()),
		opts:      opts,
		log:       log.With().Str("component", "backfill").Logger(),
	}
}

// deriveSeed maps a snapshot identity to a stable simulation seed so
// re-running the sweep on unchanged data reproduces every record
// bit-for-bit.
func deriveSeed(portfolioID string, date time.Time) int64 {
	h := fnv.New64a()
	h.Write([]byte(portfolioID))
	h.Write([]byte{0})
	h.Write([]byte(date.UTC().Format(dateLayout)))
	return int64(h.Sum64())
}

// Run sweeps every snapshot (or one portfolio's when portfolioID is
// non-empty) and returns the run summary. Individual snapshot and
// batch failures never abort the sweep.
func (o *Orchestrator) Run(ctx context.Context, portfolioID string) (*RunSummary, error) {
	summary := &RunSummary{
		RunID:     uuid.New().String(),
		StartedAt: time.Now().UTC(),
	}
	runLog := o.log.With().Str("run_id", summary.RunID).Logger()

	keys, err := o.snapshots.ListKeys(portfolioID)
	if err != nil {
		return nil, err
	}
	summary.Total = len(keys)

	runLog.Info().
		Int("snapshots", len(keys)).
		Str("portfolio_filter", portfolioID).
		Int("window", o.opts.Window).
		Int("batch_size", o.opts.BatchSize).
		Msg("Starting backfill sweep")

	// Latest successfully persisted record per portfolio. Keys arrive
	// date-ascending, so the last committed record wins.
	latest := make(map[string]*metrics.Record)

	var pending []metrics.Record
	flush := func() {
		if len(pending) == 0 {
			return
		}
		result := o.flushBatch(pending, len(summary.Batches), runLog)
		summary.Batches = append(summary.Batches, result)
		if result.Status == BatchCommitted {
			summary.Persisted += len(pending)
			for i := range pending {
				rec := pending[i]
				prev, ok := latest[rec.PortfolioID]
				if !ok || rec.Date.After(prev.Date) {
					latest[rec.PortfolioID] = &rec
				}
			}
		} else {
			summary.Failed += len(pending)
		}
		pending = pending[:0]
	}

	for _, key := range keys {
		rec, state := o.computeSnapshot(key, runLog)
		switch state {
		case StateSkipped:
			summary.Skipped++
		case StateFailed:
			summary.Failed++
		default:
			pending = append(pending, *rec)
			if len(pending) >= o.opts.BatchSize {
				flush()
			}
		}
	}
	flush()

	if o.cache != nil && !o.opts.SkipCache {
		summary.Cached = o.publishLatest(ctx, latest, runLog)
	}

	summary.FinishedAt = time.Now().UTC()
	runLog.Info().
		Int("total", summary.Total).
		Int("persisted", summary.Persisted).
		Int("skipped", summary.Skipped).
		Int("failed", summary.Failed).
		Int("cached", summary.Cached).
		Dur("elapsed", summary.FinishedAt.Sub(summary.StartedAt)).
		Msg("Backfill sweep complete")

	return summary, nil
}

// computeSnapshot runs the five calculators for one snapshot. Thin or
// missing history is an expected, counted condition, not an error.
func (o *Orchestrator) computeSnapshot(key snapshots.Key, runLog zerolog.Logger) (*metrics.Record, string) {
	snapLog := runLog.With().
		Str("portfolio", key.PortfolioID).
		Str("date", key.Date.Format(dateLayout)).
		Logger()

	snapshot, err := o.snapshots.Get(key.PortfolioID, key.Date)
	if err != nil {
		snapLog.Error().Err(err).Msg("Failed to load snapshot")
		return nil, StateFailed
	}
	if snapshot == nil {
		snapLog.Warn().Msg("Snapshot vanished mid-sweep")
		return nil, StateFailed
	}

	weights := snapshot.Weights()

	lookback := o.opts.Window + ExtraLookbackDays
	series, err := o.returns.ReturnsWindow(key.Date, lookback)
	if err != nil {
		snapLog.Error().Err(err).Msg("Failed to load return history")
		return nil, StateFailed
	}

	if series.Len() < o.opts.Window {
		snapLog.Debug().Int("rows", series.Len()).Msg("Insufficient history, skipping")
		return nil, StateSkipped
	}
	for _, ticker := range snapshot.Tickers() {
		if !series.HasTicker(ticker) {
			snapLog.Debug().Str("ticker", ticker).Msg("No price history for holding, skipping")
			return nil, StateSkipped
		}
	}
	if !series.HasTicker(o.opts.BenchmarkTicker) {
		snapLog.Debug().Str("ticker", o.opts.BenchmarkTicker).Msg("No benchmark history, skipping")
		return nil, StateSkipped
	}

	seed := deriveSeed(key.PortfolioID, key.Date)
	params := risk.SimulationParams{
		Confidence:  o.opts.Confidence,
		Simulations: o.opts.Simulations,
		Seed:        &seed,
	}

	varValue, err := risk.PortfolioVaR(series, weights, params)
	if err != nil {
		snapLog.Error().Err(err).Msg("VaR computation failed")
		return nil, StateFailed
	}
	esValue, err := risk.ExpectedShortfall(series, weights, params)
	if err != nil {
		snapLog.Error().Err(err).Msg("Expected shortfall computation failed")
		return nil, StateFailed
	}
	sharpe, err := risk.SharpeRatio(series, weights, o.opts.Window)
	if err != nil {
		return nil, o.classifyCalcError(err, "Sharpe", snapLog)
	}
	beta, err := risk.BetaFromSeries(series, weights, o.opts.BenchmarkTicker, o.opts.Window)
	if err != nil {
		return nil, o.classifyCalcError(err, "Beta", snapLog)
	}
	volatility, err := risk.RollingVolatility(series, weights, o.opts.Window)
	if err != nil {
		return nil, o.classifyCalcError(err, "Volatility", snapLog)
	}

	return &metrics.Record{
		PortfolioID:         key.PortfolioID,
		Date:                key.Date,
		VaR95:               varValue,
		ExpectedShortfall:   esValue,
		SharpeRatio:         sharpe,
		Beta:                beta,
		PortfolioVolatility: volatility,
		Params: metrics.SimulationParams{
			ConfidenceLevel: o.opts.Confidence,
			Simulations:     o.opts.Simulations,
			Window:          o.opts.Window,
		},
		ComputedAt: time.Now().UTC(),
	}, StateComputing
}

func (o *Orchestrator) classifyCalcError(err error, calc string, snapLog zerolog.Logger) string {
	if errors.Is(err, risk.ErrInsufficientData) || errors.Is(err, risk.ErrZeroVariance) {
		snapLog.Debug().Err(err).Str("calculator", calc).Msg("Skipping snapshot")
		return StateSkipped
	}
	snapLog.Error().Err(err).Str("calculator", calc).Msg("Computation failed")
	return StateFailed
}

// flushBatch upserts one batch with retries. A batch either fully
// commits or is reported failed; either way the sweep continues.
func (o *Orchestrator) flushBatch(records []metrics.Record, index int, runLog zerolog.Logger) BatchResult {
	var lastErr error
	for attempt := 1; attempt <= batchRetries; attempt++ {
		lastErr = o.metrics.UpsertBatch(records)
		if lastErr == nil {
			runLog.Debug().Int("batch", index).Int("records", len(records)).Msg("Batch committed")
			return BatchResult{Index: index, Status: BatchCommitted, Records: len(records)}
		}
		runLog.Warn().Err(lastErr).
			Int("batch", index).
			Int("attempt", attempt).
			Msg("Batch flush failed, retrying")
		if attempt < batchRetries {
			time.Sleep(retryBackoff * time.Duration(attempt))
		}
	}

	runLog.Error().Err(lastErr).Int("batch", index).Msg("Batch failed after retries")
	return BatchResult{
		Index:   index,
		Status:  BatchFailed,
		Records: len(records),
		Reason:  lastErr.Error(),
	}
}

// publishLatest pushes each portfolio's newest record to the cache.
// Cache failures are logged and counted against the summary but never
// fail the run; readers fall back to the durable store.
func (o *Orchestrator) publishLatest(ctx context.Context, latest map[string]*metrics.Record, runLog zerolog.Logger) int {
	cached := 0
	for portfolioID, rec := range latest {
		set := cache.MetricSet{
			VaR95:             rec.VaR95,
			ExpectedShortfall: rec.ExpectedShortfall,
			SharpeRatio:       rec.SharpeRatio,
			Beta:              rec.Beta,
			Volatility:        rec.PortfolioVolatility,
		}
		if err := o.cache.PublishMetrics(ctx, portfolioID, set); err != nil {
			runLog.Warn().Err(err).Str("portfolio", portfolioID).Msg("Cache publish failed, durable store remains authoritative")
			continue
		}

		flags := o.evaluator.Flags(rec, o.sharpeHistory(portfolioID, runLog))
		if err := o.cache.SetAlerts(ctx, portfolioID, flags); err != nil {
			runLog.Warn().Err(err).Str("portfolio", portfolioID).Msg("Alert publish failed")
		}

		cached++
	}
	return cached
}

func (o *Orchestrator) sharpeHistory(portfolioID string, runLog zerolog.Logger) []float64 {
	records, err := o.metrics.History(portfolioID, 60)
	if err != nil {
		runLog.Warn().Err(err).Str("portfolio", portfolioID).Msg("Failed to load Sharpe history for alerting")
		return nil
	}
	history := make([]float64, 0, len(records))
	for _, rec := range records {
		history = append(history, rec.SharpeRatio)
	}
	return history
}
