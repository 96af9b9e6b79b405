package logic

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"

	"github.com/openmediate/gateway/internal/db"
	"github.com/openmediate/gateway/internal/models"
)

func setupTestRedis(t *testing.T) *db.RedisStore {
	t.Helper()
	mr := miniredis.RunT(t)
	store := &db.RedisStore{
		Client: goredis.NewClient(&goredis.Options{Addr: mr.Addr()}),
		Ctx:    context.Background(),
	}
	t.Cleanup(store.Close)
	return store
}

func TestHasUserExceededFrequencyCap(t *testing.T) {
	testCases := []struct {
		name                string
		placement           models.Placement
		userID              string
		impressionsToPreLog int
		expectedResult      bool
	}{
		{
			name:                "No prior impressions, cap 3",
			placement:           models.Placement{ID: "plc-801", FrequencyCap: 3, FrequencyWindowSec: 60},
			userID:              "user1",
			impressionsToPreLog: 0,
			expectedResult:      false,
		},
		{
			name:                "2 prior impressions, cap 3",
			placement:           models.Placement{ID: "plc-802", FrequencyCap: 3, FrequencyWindowSec: 60},
			userID:              "user2",
			impressionsToPreLog: 2,
			expectedResult:      false,
		},
		{
			name:                "3 prior impressions, cap 3 (meets cap)",
			placement:           models.Placement{ID: "plc-803", FrequencyCap: 3, FrequencyWindowSec: 60},
			userID:              "user3",
			impressionsToPreLog: 3,
			expectedResult:      true,
		},
		{
			name:                "1 prior impression, cap 1",
			placement:           models.Placement{ID: "plc-804", FrequencyCap: 1, FrequencyWindowSec: 60},
			userID:              "user4",
			impressionsToPreLog: 1,
			expectedResult:      true,
		},
		{
			name:                "Zero cap falls back to default",
			placement:           models.Placement{ID: "plc-805"},
			userID:              "user5",
			impressionsToPreLog: DefaultFrequencyCap - 1,
			expectedResult:      false,
		},
		{
			name:                "Default cap reached",
			placement:           models.Placement{ID: "plc-806"},
			userID:              "user6",
			impressionsToPreLog: DefaultFrequencyCap,
			expectedResult:      true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			store := setupTestRedis(t)
			for i := 0; i < tc.impressionsToPreLog; i++ {
				if err := IncrementFrequencyCap(store, tc.userID, &tc.placement); err != nil {
					t.Fatalf("pre-log impression: %v", err)
				}
			}

			exceeded, err := HasUserExceededFrequencyCap(store, tc.userID, &tc.placement)
			if err != nil {
				t.Fatalf("check cap: %v", err)
			}
			if exceeded != tc.expectedResult {
				t.Fatalf("expected exceeded=%v, got %v", tc.expectedResult, exceeded)
			}
		})
	}
}

func TestHasUserExceededFrequencyCap_NilStore(t *testing.T) {
	placement := &models.Placement{ID: "plc-1", FrequencyCap: 1}
	if _, err := HasUserExceededFrequencyCap(nil, "user1", placement); err != ErrNilRedisStore {
		t.Fatalf("expected ErrNilRedisStore, got %v", err)
	}
}

func TestHasUserExceededFrequencyCap_NilPlacement(t *testing.T) {
	store := setupTestRedis(t)
	exceeded, err := HasUserExceededFrequencyCap(store, "user1", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if exceeded {
		t.Fatal("nil placement must never be capped")
	}
}

func TestNoFillBackoff(t *testing.T) {
	store := setupTestRedis(t)

	backed, err := IsNetworkBackedOff(store, "plc-1", 1)
	if err != nil {
		t.Fatalf("check backoff: %v", err)
	}
	if backed {
		t.Fatal("network must not start backed off")
	}

	if err := MarkNetworkNoFill(store, "plc-1", 1, time.Minute); err != nil {
		t.Fatalf("mark no fill: %v", err)
	}

	backed, err = IsNetworkBackedOff(store, "plc-1", 1)
	if err != nil {
		t.Fatalf("check backoff: %v", err)
	}
	if !backed {
		t.Fatal("network must be backed off after a no fill")
	}

	// Backoff is scoped per placement and per network.
	if backed, _ = IsNetworkBackedOff(store, "plc-2", 1); backed {
		t.Fatal("backoff must not leak across placements")
	}
	if backed, _ = IsNetworkBackedOff(store, "plc-1", 2); backed {
		t.Fatal("backoff must not leak across networks")
	}
}
