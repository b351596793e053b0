package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Metric type keys. Cache keys follow <metric_type>:<portfolio_id>.
const (
	MetricVaR        = "VaR_95"
	MetricES         = "ES"
	MetricSharpe     = "Sharpe"
	MetricBeta       = "Beta"
	MetricVolatility = "Volatility"

	alertKeyType = "Alert"
)

// MetricTypes lists the published metric keys in a stable order
var MetricTypes = []string{MetricVaR, MetricES, MetricSharpe, MetricBeta, MetricVolatility}

// DefaultTTL bounds how long a cached value counts as current
const DefaultTTL = 60 * time.Second

// Client is the subset of redis.Client the manager uses. Narrowed for
// substitution of fakes in tests.
type Client interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	TxPipeline() redis.Pipeliner
	HGetAll(ctx context.Context, key string) *redis.MapStringStringCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Ping(ctx context.Context) *redis.StatusCmd
}

// Entry is the cached value payload: one metric value and the UTC
// timestamp it was published at. Readers must not trust a value beyond
// its timestamp plus the TTL.
type Entry struct {
	Value float64   `json:"value"`
	TS    time.Time `json:"ts"`
}

// Lookup is the tagged result of a cache read: either a hit carrying
// the entry, or a miss. A miss (including expiry) means "no current
// value"; it is never an error.
type Lookup struct {
	Hit   bool
	Value float64
	TS    time.Time
}

// MetricSet carries the five metric values published together for a
// portfolio
type MetricSet struct {
	VaR95             float64
	ExpectedShortfall float64
	SharpeRatio       float64
	Beta              float64
	Volatility        float64
}

// Manager publishes and reads the per-portfolio metric cache
type Manager struct {
	client Client
	ttl    time.Duration
	log    zerolog.Logger
}

// NewManager creates a cache manager with the given TTL
func NewManager(client Client, ttl time.Duration, log zerolog.Logger) *Manager {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Manager{
		client: client,
		ttl:    ttl,
		log:    log.With().Str("component", "cache").Logger(),
	}
}

// TTL returns the configured entry lifetime
func (m *Manager) TTL() time.Duration {
	return m.ttl
}

func buildKey(metricType, portfolioID string) string {
	return fmt.Sprintf("%s:%s", metricType, portfolioID)
}

// SetMetric caches a single metric value with the manager's TTL
func (m *Manager) SetMetric(ctx context.Context, portfolioID, metricType string, value float64) error {
	payload, err := json.Marshal(Entry{Value: value, TS: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("failed to marshal cache entry: %w", err)
	}

	key := buildKey(metricType, portfolioID)
	if err := m.client.Set(ctx, key, payload, m.ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache %s for %s: %w", metricType, portfolioID, err)
	}

	m.log.Debug().Str("key", key).Float64("value", value).Msg("Cached metric")
	return nil
}

// GetMetric reads a cached metric. Expired or absent keys return a
// miss, not an error.
func (m *Manager) GetMetric(ctx context.Context, portfolioID, metricType string) (Lookup, error) {
	key := buildKey(metricType, portfolioID)

	raw, err := m.client.Get(ctx, key).Result()
	if err == redis.Nil {
		m.log.Debug().Str("key", key).Msg("Cache miss")
		return Lookup{}, nil
	}
	if err != nil {
		return Lookup{}, fmt.Errorf("failed to read cache key %s: %w", key, err)
	}

	var entry Entry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		return Lookup{}, fmt.Errorf("malformed cache entry at %s: %w", key, err)
	}

	return Lookup{Hit: true, Value: entry.Value, TS: entry.TS}, nil
}

// PublishMetrics writes all five metric keys for a portfolio in one
// atomic step: either every key becomes visible with the new values or
// none does, so readers never observe a partially-updated portfolio.
func (m *Manager) PublishMetrics(ctx context.Context, portfolioID string, set MetricSet) error {
	now := time.Now().UTC()
	values := map[string]float64{
		MetricVaR:        set.VaR95,
		MetricES:         set.ExpectedShortfall,
		MetricSharpe:     set.SharpeRatio,
		MetricBeta:       set.Beta,
		MetricVolatility: set.Volatility,
	}

	pipe := m.client.TxPipeline()
	for _, metricType := range MetricTypes {
		payload, err := json.Marshal(Entry{Value: values[metricType], TS: now})
		if err != nil {
			return fmt.Errorf("failed to marshal cache entry: %w", err)
		}
		pipe.Set(ctx, buildKey(metricType, portfolioID), payload, m.ttl)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to publish metrics for %s: %w", portfolioID, err)
	}

	m.log.Info().
		Str("portfolio", portfolioID).
		Float64("var_95", set.VaR95).
		Float64("es", set.ExpectedShortfall).
		Float64("sharpe", set.SharpeRatio).
		Float64("beta", set.Beta).
		Float64("volatility", set.Volatility).
		Msg("Published metrics to cache")

	return nil
}

// SetAlerts writes a portfolio's alert flags as one hash with the
// manager's TTL. The flags and the expiry are applied in a single
// pipeline so readers see a consistent alert view.
func (m *Manager) SetAlerts(ctx context.Context, portfolioID string, flags map[string]bool) error {
	if len(flags) == 0 {
		return nil
	}

	key := buildKey(alertKeyType, portfolioID)

	fields := make([]interface{}, 0, len(flags)*2)
	for name, triggered := range flags {
		fields = append(fields, name, fmt.Sprintf("%t", triggered))
	}

	pipe := m.client.TxPipeline()
	pipe.HSet(ctx, key, fields...)
	pipe.Expire(ctx, key, m.ttl)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to set alerts for %s: %w", portfolioID, err)
	}

	m.log.Debug().Str("portfolio", portfolioID).Int("flags", len(flags)).Msg("Published alert flags")
	return nil
}

// GetAlerts reads a portfolio's alert flags. An absent hash returns an
// empty map.
func (m *Manager) GetAlerts(ctx context.Context, portfolioID string) (map[string]bool, error) {
	key := buildKey(alertKeyType, portfolioID)

	raw, err := m.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read alerts for %s: %w", portfolioID, err)
	}

	flags := make(map[string]bool, len(raw))
	for name, value := range raw {
		flags[name] = value == "true"
	}
	return flags, nil
}

// ClearPortfolio removes every cached key for a portfolio
func (m *Manager) ClearPortfolio(ctx context.Context, portfolioID string) (int64, error) {
	keys := make([]string, 0, len(MetricTypes)+1)
	for _, metricType := range MetricTypes {
		keys = append(keys, buildKey(metricType, portfolioID))
	}
	keys = append(keys, buildKey(alertKeyType, portfolioID))

	deleted, err := m.client.Del(ctx, keys...).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to clear cache for %s: %w", portfolioID, err)
	}

	m.log.Info().Str("portfolio", portfolioID).Int64("deleted", deleted).Msg("Cleared portfolio cache")
	return deleted, nil
}

// HealthCheck verifies the volatile store is reachable
func (m *Manager) HealthCheck(ctx context.Context) error {
	if err := m.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}
