package ratelimit

import (
	"fmt"
	"strconv"
	"sync"

	"github.com/openmediate/gateway/internal/observability"
)

// NetworkLimiter manages rate limiting across partner networks.
//
// Each network gets its own token bucket, created lazily on first access.
// The limiter reports activity through an injected metrics registry.
type NetworkLimiter struct {
	buckets map[int]*TokenBucket // Network ID -> token bucket
	mu      sync.RWMutex         // Protects the buckets map
	config  Config
	metrics observability.MetricsRegistry
}

// Config holds the configuration for rate limiting.
type Config struct {
	Capacity   int  // Token bucket capacity (burst allowance)
	RefillRate int  // Tokens added per second (sustained rate)
	Enabled    bool // Whether rate limiting is active
}

// NewNetworkLimiter creates a new per-network rate limiter with the given
// configuration.
func NewNetworkLimiter(config Config, metrics observability.MetricsRegistry) *NetworkLimiter {
	return &NetworkLimiter{
		buckets: make(map[int]*TokenBucket),
		config:  config,
		metrics: metrics,
	}
}

// Allow checks if a partner call to the given network should go out. It
// returns true when a token is available or rate limiting is disabled. The
// method creates buckets for new networks automatically and updates metrics
// via the injected registry.
func (nl *NetworkLimiter) Allow(networkID int) bool {
	if !nl.config.Enabled {
		return true
	}

	label := strconv.Itoa(networkID)
	nl.metrics.IncrementRateLimitRequests(label)

	nl.mu.RLock()
	bucket, exists := nl.buckets[networkID]
	nl.mu.RUnlock()

	if !exists {
		// Double-checked locking pattern to avoid race conditions
		nl.mu.Lock()
		bucket, exists = nl.buckets[networkID]
		if !exists {
			bucket = NewTokenBucket(nl.config.Capacity, nl.config.RefillRate)
			nl.buckets[networkID] = bucket
		}
		nl.mu.Unlock()
	}

	allowed := bucket.Allow()
	if !allowed {
		nl.metrics.IncrementRateLimitHits(label)
	}
	return allowed
}

// Stats contains rate limiting statistics for a single network.
type Stats struct {
	NetworkID int     `json:"network_id"`
	Hits      int64   `json:"hits"`
	Total     int64   `json:"total"`
	HitRate   float64 `json:"hit_rate"`
}

// String returns a human-readable representation of the statistics.
func (s Stats) String() string {
	return fmt.Sprintf("network %d: %d/%d hits (%.2f%%)", s.NetworkID, s.Hits, s.Total, s.HitRate*100)
}

// GetStats returns a snapshot of rate limiting statistics for all networks.
func (nl *NetworkLimiter) GetStats() map[int]Stats {
	nl.mu.RLock()
	defer nl.mu.RUnlock()

	stats := make(map[int]Stats, len(nl.buckets))
	for id, bucket := range nl.buckets {
		hits, total := bucket.Stats()
		hitRate := 0.0
		if total > 0 {
			hitRate = float64(hits) / float64(total)
		}
		stats[id] = Stats{NetworkID: id, Hits: hits, Total: total, HitRate: hitRate}
	}
	return stats
}
