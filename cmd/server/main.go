// Package main is the entry point for the portfolio risk analytics
// service. It wires the stores, the metric cache, the backfill
// scheduler, and the HTTP read API, then runs until interrupted.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/AndreChuabio/NoSQL-Portfolio-Risk-Analytics/internal/backfill"
	"github.com/AndreChuabio/NoSQL-Portfolio-Risk-Analytics/internal/cache"
	"github.com/AndreChuabio/NoSQL-Portfolio-Risk-Analytics/internal/config"
	"github.com/AndreChuabio/NoSQL-Portfolio-Risk-Analytics/internal/database"
	"github.com/AndreChuabio/NoSQL-Portfolio-Risk-Analytics/internal/modules/metrics"
	"github.com/AndreChuabio/NoSQL-Portfolio-Risk-Analytics/internal/modules/returns"
	"github.com/AndreChuabio/NoSQL-Portfolio-Risk-Analytics/internal/modules/snapshots"
	"github.com/AndreChuabio/NoSQL-Portfolio-Risk-Analytics/internal/reliability"
	"github.com/AndreChuabio/NoSQL-Portfolio-Risk-Analytics/internal/scheduler"
	"github.com/AndreChuabio/NoSQL-Portfolio-Risk-Analytics/internal/server"
	"github.com/AndreChuabio/NoSQL-Portfolio-Risk-Analytics/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallbackLog := logger.New(logger.Config{Level: "info", Pretty: true})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})
	logger.SetGlobalLogger(log)

	log.Info().Msg("Starting risk analytics service")

	// Durable stores
	historyDB, err := database.New(database.Config{
		Name:    "history",
		Path:    filepath.Join(cfg.DataDir, "history.db"),
		Profile: database.ProfileAppend,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open history store")
	}
	defer historyDB.Close()

	portfolioDB, err := database.New(database.Config{
		Name:    "portfolio",
		Path:    filepath.Join(cfg.DataDir, "portfolio.db"),
		Profile: database.ProfileStandard,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open portfolio store")
	}
	defer portfolioDB.Close()

	for _, db := range []*database.DB{historyDB, portfolioDB} {
		if err := db.Migrate(); err != nil {
			log.Fatal().Err(err).Str("database", db.Name()).Msg("Failed to run migrations")
		}
	}

	// Repositories
	returnsRepo := returns.NewRepository(historyDB.Conn(), log)
	snapshotRepo := snapshots.NewRepository(portfolioDB.Conn(), log)
	metricRepo := metrics.NewRepository(portfolioDB.Conn(), log)

	// Volatile store. The service runs without it; readers then hit
	// the durable store directly.
	var cacheManager *cache.Manager
	redisClient, err := cache.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		log.Warn().Err(err).Msg("Redis unavailable, running without metric cache")
	} else {
		cacheManager = cache.NewManager(redisClient, time.Duration(cfg.CacheTTL)*time.Second, log)
		defer redisClient.Close()
	}

	orchestrator := backfill.New(snapshotRepo, returnsRepo, metricRepo, cacheManager, backfill.Options{
		Window:          cfg.RollingWindow,
		Simulations:     cfg.Simulations,
		Confidence:      cfg.Confidence,
		BatchSize:       cfg.BatchSize,
		BenchmarkTicker: cfg.BenchmarkTicker,
	}, log)

	// Background jobs
	sched := scheduler.New(log)

	backfillJob := scheduler.NewBackfillSweepJob(orchestrator, log)
	if err := sched.AddJob(cfg.BackfillSchedule, backfillJob); err != nil {
		log.Fatal().Err(err).Msg("Failed to register backfill job")
	}

	if cacheManager != nil {
		refreshJob := scheduler.NewCacheRefreshJob(snapshotRepo, metricRepo, cacheManager, log)
		if err := sched.AddJob(cfg.CacheRefreshSchedule, refreshJob); err != nil {
			log.Fatal().Err(err).Msg("Failed to register cache refresh job")
		}
	}

	if cfg.Backup.Enabled {
		objectStore, err := reliability.NewObjectStore(context.Background(), reliability.ObjectStoreConfig{
			Endpoint:    cfg.Backup.Endpoint,
			Region:      cfg.Backup.Region,
			Bucket:      cfg.Backup.Bucket,
			AccessKeyID: cfg.Backup.AccessKeyID,
			SecretKey:   cfg.Backup.SecretKey,
		}, log)
		if err != nil {
			log.Error().Err(err).Msg("Failed to initialize backup object store, backups disabled")
		} else {
			backupSvc := reliability.NewBackupService(
				objectStore,
				[]*database.DB{historyDB, portfolioDB},
				cfg.DataDir,
				log,
			)
			backupJob := scheduler.NewBackupJob(backupSvc, cfg.Backup.RetentionDays, log)
			if err := sched.AddJob(cfg.BackupSchedule, backupJob); err != nil {
				log.Fatal().Err(err).Msg("Failed to register backup job")
			}
		}
	}

	sched.Start()
	defer sched.Stop()

	// HTTP read API
	srv := server.New(server.Config{
		Log:         log,
		Port:        cfg.Port,
		DevMode:     cfg.DevMode,
		HistoryDB:   historyDB,
		PortfolioDB: portfolioDB,
		Snapshots:   snapshotRepo,
		Metrics:     metricRepo,
		Cache:       cacheManager,
	})
	srv.SetBackfillJob(backfillJob)

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("HTTP server stopped")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}
}
