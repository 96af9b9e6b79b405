package logic

import (
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/openmediate/gateway/internal/db"
	"github.com/openmediate/gateway/internal/models"
)

// Default frequency cap settings if a placement does not specify them
const (
	DefaultFrequencyCap    = 10
	DefaultFrequencyWindow = 1 * time.Hour
)

// HasUserExceededFrequencyCap returns true if the user has exceeded the
// allowed number of ads for a placement within its configured window.
func HasUserExceededFrequencyCap(store *db.RedisStore, userID string, placement *models.Placement) (bool, error) {
	if store == nil || store.Client == nil {
		return false, ErrNilRedisStore
	}
	if placement == nil {
		return false, nil
	}
	cap := DefaultFrequencyCap
	if placement.FrequencyCap > 0 {
		cap = placement.FrequencyCap
	}

	// Get current count without incrementing
	val, err := store.GetImpressionCount(userID, placement.ID)
	if err != nil {
		if err == redis.Nil {
			return false, nil
		}
		zap.L().Error("redis freqcap", zap.Error(err))
		// Fail open — allow the ad if Redis is down or slow
		return false, nil
	}
	return val >= int64(cap), nil
}

// IncrementFrequencyCap increments the frequency counter for a user and
// placement. This should be called AFTER a successful fill, not during
// eligibility checks.
func IncrementFrequencyCap(store *db.RedisStore, userID string, placement *models.Placement) error {
	if store == nil || store.Client == nil {
		return ErrNilRedisStore
	}

	if placement == nil {
		return nil
	}
	window := DefaultFrequencyWindow
	if placement.FrequencyWindowSec > 0 {
		window = time.Duration(placement.FrequencyWindowSec) * time.Second
	}

	if _, err := store.IncrementImpression(userID, placement.ID, window); err != nil {
		zap.L().Error("failed to increment frequency cap", zap.Error(err))
		return err
	}
	return nil
}
