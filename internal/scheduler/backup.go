package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/AndreChuabio/NoSQL-Portfolio-Risk-Analytics/internal/reliability"
)

// BackupJob archives the stores to object storage and rotates old
// archives. Scheduled daily, off-peak.
type BackupJob struct {
	service       *reliability.BackupService
	retentionDays int
	log           zerolog.Logger
}

// NewBackupJob creates a new backup job
func NewBackupJob(service *reliability.BackupService, retentionDays int, log zerolog.Logger) *BackupJob {
	return &BackupJob{
		service:       service,
		retentionDays: retentionDays,
		log:           log.With().Str("job", "backup").Logger(),
	}
}

// Name returns the job name
func (j *BackupJob) Name() string {
	return "backup"
}

// Run creates and uploads a backup, then rotates old archives
func (j *BackupJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Minute)
	defer cancel()

	if err := j.service.CreateAndUploadBackup(ctx); err != nil {
		return err
	}

	if err := j.service.RotateOldBackups(ctx, j.retentionDays); err != nil {
		j.log.Warn().Err(err).Msg("Backup rotation failed")
	}

	return nil
}
