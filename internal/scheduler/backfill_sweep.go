package scheduler

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/AndreChuabio/NoSQL-Portfolio-Risk-Analytics/internal/backfill"
)

// BackfillSweepJob runs the full metric backfill across every stored
// snapshot. Scheduled nightly after market data ingestion.
type BackfillSweepJob struct {
	orchestrator *backfill.Orchestrator
	log          zerolog.Logger
}

// NewBackfillSweepJob creates a new backfill sweep job
func NewBackfillSweepJob(orchestrator *backfill.Orchestrator, log zerolog.Logger) *BackfillSweepJob {
	return &BackfillSweepJob{
		orchestrator: orchestrator,
		log:          log.With().Str("job", "backfill_sweep").Logger(),
	}
}

// Name returns the job name
func (j *BackfillSweepJob) Name() string {
	return "backfill_sweep"
}

// Run executes the full sweep. Partial completion is acceptable; the
// next run heals it via idempotent upserts.
func (j *BackfillSweepJob) Run() error {
	summary, err := j.orchestrator.Run(context.Background(), "")
	if err != nil {
		return err
	}

	j.log.Info().
		Str("run_id", summary.RunID).
		Int("total", summary.Total).
		Int("persisted", summary.Persisted).
		Int("skipped", summary.Skipped).
		Int("failed", summary.Failed).
		Int("cached", summary.Cached).
		Msg("Backfill sweep finished")

	return nil
}
