// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	DataDir  string // Base directory for the SQLite stores, always absolute
	Port     int
	DevMode  bool
	LogLevel string

	// Volatile store (Redis)
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	CacheTTL      int // seconds; dashboard freshness contract

	// Risk engine defaults
	BenchmarkTicker string
	RollingWindow   int
	Simulations     int
	Confidence      float64
	BatchSize       int

	// Cron schedules (robfig/cron syntax, with seconds field)
	BackfillSchedule     string
	CacheRefreshSchedule string
	BackupSchedule       string

	Backup *BackupConfig
}

// BackupConfig holds S3-compatible backup configuration.
// Endpoint is optional: when empty the SDK default resolver is used,
// when set it points at an S3-compatible service such as Cloudflare R2.
type BackupConfig struct {
	Enabled       bool
	Endpoint      string
	Region        string
	Bucket        string
	AccessKeyID   string
	SecretKey     string
	RetentionDays int
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := getEnv("RISK_DATA_DIR", "")
	if dataDir == "" {
		dataDir = "./data"
	}

	// Always resolve to absolute path
	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}

	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:  absDataDir,
		Port:     getEnvAsInt("PORT", 8080),
		DevMode:  getEnvAsBool("DEV_MODE", false),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvAsInt("REDIS_DB", 0),
		CacheTTL:      getEnvAsInt("CACHE_TTL_SECONDS", 60),

		BenchmarkTicker: getEnv("BENCHMARK_TICKER", "SPY"),
		RollingWindow:   getEnvAsInt("ROLLING_WINDOW", 20),
		Simulations:     getEnvAsInt("VAR_SIMULATIONS", 1000),
		Confidence:      getEnvAsFloat("VAR_CONFIDENCE", 0.95),
		BatchSize:       getEnvAsInt("BACKFILL_BATCH_SIZE", 50),

		BackfillSchedule:     getEnv("BACKFILL_SCHEDULE", "0 0 2 * * *"),
		CacheRefreshSchedule: getEnv("CACHE_REFRESH_SCHEDULE", "@every 30s"),
		BackupSchedule:       getEnv("BACKUP_SCHEDULE", "0 0 4 * * *"),

		Backup: loadBackupConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if required configuration is present
func (c *Config) Validate() error {
	if c.CacheTTL <= 0 {
		return fmt.Errorf("cache TTL must be positive, got %d", c.CacheTTL)
	}
	if c.RollingWindow < 2 {
		return fmt.Errorf("rolling window must be at least 2, got %d", c.RollingWindow)
	}
	if c.Simulations < 100 {
		return fmt.Errorf("minimum 100 simulations required, got %d", c.Simulations)
	}
	if c.Backup.Enabled && c.Backup.Bucket == "" {
		return fmt.Errorf("backups enabled but BACKUP_S3_BUCKET is not set")
	}
	return nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

// loadBackupConfig loads backup configuration; disabled unless a bucket is configured
func loadBackupConfig() *BackupConfig {
	return &BackupConfig{
		Enabled:       getEnvAsBool("BACKUP_ENABLED", false),
		Endpoint:      getEnv("BACKUP_S3_ENDPOINT", ""),
		Region:        getEnv("BACKUP_S3_REGION", "auto"),
		Bucket:        getEnv("BACKUP_S3_BUCKET", ""),
		AccessKeyID:   getEnv("BACKUP_S3_ACCESS_KEY_ID", ""),
		SecretKey:     getEnv("BACKUP_S3_SECRET_ACCESS_KEY", ""),
		RetentionDays: getEnvAsInt("BACKUP_RETENTION_DAYS", 14),
	}
}
