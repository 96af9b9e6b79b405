package logic

import (
	"time"

	"go.uber.org/zap"

	"github.com/openmediate/gateway/internal/db"
)

// DefaultNoFillBackoff is how long a network is skipped for a placement
// after it reports no fill. Partner no-fill decisions are sticky on their
// side for minutes, so hammering the same network only burns the timeout
// budget of every request in between.
const DefaultNoFillBackoff = 2 * time.Minute

// IsNetworkBackedOff reports whether a network is inside its no-fill backoff
// window for a placement. Redis errors fail open: a missed backoff costs one
// wasted partner call, a false positive costs revenue.
func IsNetworkBackedOff(store *db.RedisStore, placementID string, networkID int) (bool, error) {
	if store == nil || store.Client == nil {
		return false, ErrNilRedisStore
	}
	backed, err := store.IsBackedOff(placementID, networkID)
	if err != nil {
		zap.L().Error("redis nofill backoff", zap.Error(err))
		return false, nil
	}
	return backed, nil
}

// MarkNetworkNoFill starts the backoff window for a network on a placement.
func MarkNetworkNoFill(store *db.RedisStore, placementID string, networkID int, backoff time.Duration) error {
	if store == nil || store.Client == nil {
		return ErrNilRedisStore
	}
	if backoff <= 0 {
		backoff = DefaultNoFillBackoff
	}
	if err := store.MarkNoFill(placementID, networkID, backoff); err != nil {
		zap.L().Error("failed to mark no-fill backoff", zap.Error(err))
		return err
	}
	return nil
}
