// Package main runs a one-shot metric backfill sweep from the command
// line. Useful for initial population, recovery after a failed
// scheduled run, and recomputing a single portfolio.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"
	"path/filepath"
	"time"

	"github.com/AndreChuabio/NoSQL-Portfolio-Risk-Analytics/internal/backfill"
	"github.com/AndreChuabio/NoSQL-Portfolio-Risk-Analytics/internal/cache"
	"github.com/AndreChuabio/NoSQL-Portfolio-Risk-Analytics/internal/config"
	"github.com/AndreChuabio/NoSQL-Portfolio-Risk-Analytics/internal/database"
	"github.com/AndreChuabio/NoSQL-Portfolio-Risk-Analytics/internal/modules/metrics"
	"github.com/AndreChuabio/NoSQL-Portfolio-Risk-Analytics/internal/modules/returns"
	"github.com/AndreChuabio/NoSQL-Portfolio-Risk-Analytics/internal/modules/snapshots"
	"github.com/AndreChuabio/NoSQL-Portfolio-Risk-Analytics/pkg/logger"
)

func main() {
	portfolioID := flag.String("portfolio", "", "restrict the sweep to one portfolio")
	batchSize := flag.Int("batch-size", 0, "override the durable-store batch size")
	skipCache := flag.Bool("skip-cache", false, "skip the cache publish step")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fallbackLog := logger.New(logger.Config{Level: "info", Pretty: true})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: true,
	})

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

	var cacheManager *cache.Manager
	if !*skipCache {
		redisClient, err := cache.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			log.Warn().Err(err).Msg("Redis unavailable, skipping cache publish")
		} else {
			cacheManager = cache.NewManager(redisClient, time.Duration(cfg.CacheTTL)*time.Second, log)
			defer redisClient.Close()
		}
	}

	opts := backfill.Options{
		Window:          cfg.RollingWindow,
		Simulations:     cfg.Simulations,
		Confidence:      cfg.Confidence,
		BatchSize:       cfg.BatchSize,
		BenchmarkTicker: cfg.BenchmarkTicker,
		SkipCache:       *skipCache,
	}
	if *batchSize > 0 {
		opts.BatchSize = *batchSize
	}

	orchestrator := backfill.New(
		snapshots.NewRepository(portfolioDB.Conn(), log),
		returns.NewRepository(historyDB.Conn(), log),
		metrics.NewRepository(portfolioDB.Conn(), log),
		cacheManager,
		opts,
		log,
	)

	summary, err := orchestrator.Run(context.Background(), *portfolioID)
	if err != nil {
		log.Fatal().Err(err).Msg("Backfill sweep failed")
	}

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(summary); err != nil {
		log.Fatal().Err(err).Msg("Failed to encode run summary")
	}

	// Partial completion is still useful; only a sweep that persisted
	// nothing while failing counts as a hard failure.
	if summary.Failed > 0 && summary.Persisted == 0 {
		os.Exit(1)
	}
}
