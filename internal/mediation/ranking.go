package mediation

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/openmediate/gateway/internal/db"
	"github.com/openmediate/gateway/internal/models"
)

// DefaultRankingInterval is how often observed eCPMs are refreshed from the
// revenue counters.
const DefaultRankingInterval = 5 * time.Minute

// RefreshECPM recomputes each network's observed eCPM from today's Redis
// revenue counters and swaps the values into the data store. Networks without
// fills today keep their previous eCPM. When pg is non-nil the values are
// also persisted so restarts do not reset the ranking.
func RefreshECPM(store models.MediationDataStore, redisStore *db.RedisStore, pg *db.Postgres, logger *zap.Logger) error {
	if redisStore == nil {
		return nil
	}

	updates := make(map[int]float64)
	for _, n := range store.GetAllNetworks() {
		fills, cpmSum := redisStore.GetRevenueStats(n.ID)
		if fills == 0 {
			continue
		}
		updates[n.ID] = cpmSum / float64(fills)
	}
	if len(updates) == 0 {
		return nil
	}

	if err := store.UpdateNetworksECPM(updates); err != nil {
		return err
	}

	if pg != nil {
		for id, ecpm := range updates {
			if err := pg.PersistNetworkECPM(id, ecpm); err != nil {
				logger.Error("persist network ecpm", zap.Error(err), zap.Int("network_id", id))
			}
		}
	}

	logger.Info("network eCPM ranking refreshed", zap.Int("networks", len(updates)))
	return nil
}

// StartAutoRanker runs RefreshECPM on a ticker until ctx is cancelled.
func StartAutoRanker(ctx context.Context, store models.MediationDataStore, redisStore *db.RedisStore, pg *db.Postgres, interval time.Duration, logger *zap.Logger) {
	if interval <= 0 {
		interval = DefaultRankingInterval
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := RefreshECPM(store, redisStore, pg, logger); err != nil {
					logger.Error("ecpm refresh", zap.Error(err))
				}
			}
		}
	}()
}
