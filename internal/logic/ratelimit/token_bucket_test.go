package ratelimit

import (
	"testing"
	"time"

	"github.com/openmediate/gateway/internal/observability"
)

func TestTokenBucket_Allow(t *testing.T) {
	bucket := NewTokenBucket(5, 1) // 5 tokens, refill 1 per second

	// Should allow 5 requests initially
	for i := 0; i < 5; i++ {
		if !bucket.Allow() {
			t.Errorf("Expected request %d to be allowed", i+1)
		}
	}

	// 6th request should be blocked
	if bucket.Allow() {
		t.Error("Expected 6th request to be blocked")
	}

	hits, total := bucket.Stats()
	if hits != 1 {
		t.Errorf("Expected 1 hit, got %d", hits)
	}
	if total != 6 {
		t.Errorf("Expected 6 total requests, got %d", total)
	}
}

func TestTokenBucket_Refill(t *testing.T) {
	bucket := NewTokenBucket(2, 10) // 2 tokens, refill 10 per second

	bucket.Allow()
	bucket.Allow()

	if bucket.Allow() {
		t.Error("Expected request to be blocked")
	}

	// 200ms at 10 tokens/sec refills 2 tokens
	time.Sleep(200 * time.Millisecond)

	if !bucket.Allow() {
		t.Error("Expected request to be allowed after refill")
	}
}

func TestNetworkLimiter_PerNetworkBuckets(t *testing.T) {
	limiter := NewNetworkLimiter(Config{Capacity: 1, RefillRate: 1, Enabled: true}, &observability.MockMetricsRegistry{})

	if !limiter.Allow(1) {
		t.Error("first call for network 1 should pass")
	}
	if limiter.Allow(1) {
		t.Error("second call for network 1 should be limited")
	}
	// A different network has its own bucket.
	if !limiter.Allow(2) {
		t.Error("first call for network 2 should pass")
	}

	stats := limiter.GetStats()
	if stats[1].Hits != 1 || stats[1].Total != 2 {
		t.Errorf("network 1 stats = %+v, want 1 hit of 2", stats[1])
	}
}

func TestNetworkLimiter_Disabled(t *testing.T) {
	limiter := NewNetworkLimiter(Config{Capacity: 0, RefillRate: 0, Enabled: false}, &observability.MockMetricsRegistry{})
	for i := 0; i < 10; i++ {
		if !limiter.Allow(1) {
			t.Fatal("disabled limiter must always allow")
		}
	}
}
