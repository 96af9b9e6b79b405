package db

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/extra/redisotel/v9"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/openmediate/gateway/internal/models"
)

// ConfigUpdateChannel is the pub/sub channel instances listen on to learn
// that mediation configuration changed and a reload is due.
const ConfigUpdateChannel = "mediation-config-updates"

// RedisStore wraps a redis client and context for operations.
type RedisStore struct {
	Client *redis.Client
	Ctx    context.Context
}

// InitRedis initializes a Redis client and returns a RedisStore.
func InitRedis(addr string) (*RedisStore, error) {
	rs := &RedisStore{
		Client: redis.NewClient(&redis.Options{Addr: addr}),
		Ctx:    context.Background(),
	}

	// Add OpenTelemetry instrumentation to Redis client
	if err := redisotel.InstrumentTracing(rs.Client); err != nil {
		return nil, fmt.Errorf("failed to instrument redis tracing: %w", err)
	}

	if err := rs.Client.Ping(rs.Ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	zap.L().Info("Connected to Redis", zap.String("addr", addr))
	return rs, nil
}

// IncrementImpression increments the frequency counter for (userID,
// placementID). Sets a TTL of `window` if it's the first impression.
// Returns the current count.
func (r *RedisStore) IncrementImpression(userID, placementID string, window time.Duration) (int64, error) {
	key := fmt.Sprintf("freqcap:%s:%s", userID, placementID)
	val, err := r.Client.Incr(r.Ctx, key).Result()
	if err != nil {
		return 0, err
	}
	if val == 1 {
		r.Client.Expire(r.Ctx, key, window)
	}
	return val, nil
}

// GetImpressionCount returns the current frequency counter for (userID,
// placementID) without incrementing it. Missing keys count as zero.
func (r *RedisStore) GetImpressionCount(userID, placementID string) (int64, error) {
	key := fmt.Sprintf("freqcap:%s:%s", userID, placementID)
	val, err := r.Client.Get(r.Ctx, key).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	return val, err
}

// MarkNoFill records a no-fill for a network on a placement. The network is
// skipped for that placement until the backoff TTL expires.
func (r *RedisStore) MarkNoFill(placementID string, networkID int, backoff time.Duration) error {
	key := fmt.Sprintf("nofill:%s:%d", placementID, networkID)
	return r.Client.Set(r.Ctx, key, 1, backoff).Err()
}

// IsBackedOff reports whether a network is inside its no-fill backoff window
// for a placement.
func (r *RedisStore) IsBackedOff(placementID string, networkID int) (bool, error) {
	key := fmt.Sprintf("nofill:%s:%d", placementID, networkID)
	n, err := r.Client.Exists(r.Ctx, key).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// AddRevenue accumulates fill count and CPM revenue for a network. The
// counters feed the eCPM auto-ranking refresh.
func (r *RedisStore) AddRevenue(networkID int, priceCPM float64) error {
	day := time.Now().Format("2006-01-02")
	fillKey := fmt.Sprintf("rev:network:%d:%s:fills", networkID, day)
	sumKey := fmt.Sprintf("rev:network:%d:%s:cpm", networkID, day)
	if val, err := r.Client.Incr(r.Ctx, fillKey).Result(); err != nil {
		return err
	} else if val == 1 {
		r.Client.Expire(r.Ctx, fillKey, 48*time.Hour)
	}
	if err := r.Client.IncrByFloat(r.Ctx, sumKey, priceCPM).Err(); err != nil {
		return err
	}
	r.Client.Expire(r.Ctx, sumKey, 48*time.Hour)
	return nil
}

// GetRevenueStats returns today's fill count and summed CPM for a network.
func (r *RedisStore) GetRevenueStats(networkID int) (fills int64, cpmSum float64) {
	day := time.Now().Format("2006-01-02")
	fillKey := fmt.Sprintf("rev:network:%d:%s:fills", networkID, day)
	sumKey := fmt.Sprintf("rev:network:%d:%s:cpm", networkID, day)
	fills, _ = r.Client.Get(r.Ctx, fillKey).Int64()
	cpmSum, _ = r.Client.Get(r.Ctx, sumKey).Float64()
	return fills, cpmSum
}

// SetUserConsent caches a user's default consent record. It is applied to
// requests from that user that carry no consent signals of their own.
func (r *RedisStore) SetUserConsent(userID string, c models.Consent, ttl time.Duration) error {
	payload, err := json.Marshal(c)
	if err != nil {
		return err
	}
	key := fmt.Sprintf("consent:%s", userID)
	return r.Client.Set(r.Ctx, key, payload, ttl).Err()
}

// GetUserConsent returns the cached consent record for a user, or nil when
// none is stored.
func (r *RedisStore) GetUserConsent(userID string) (*models.Consent, error) {
	key := fmt.Sprintf("consent:%s", userID)
	payload, err := r.Client.Get(r.Ctx, key).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var c models.Consent
	if err := json.Unmarshal(payload, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// Close shuts down the Redis client.
func (r *RedisStore) Close() {
	if r != nil && r.Client != nil {
		if err := r.Client.Close(); err != nil {
			zap.L().Error("redis close", zap.Error(err))
		}
	}
}
