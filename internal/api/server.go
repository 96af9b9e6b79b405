package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/openmediate/gateway/internal/adapter"
	"github.com/openmediate/gateway/internal/analytics"
	"github.com/openmediate/gateway/internal/config"
	"github.com/openmediate/gateway/internal/db"
	"github.com/openmediate/gateway/internal/geoip"
	"github.com/openmediate/gateway/internal/macros"
	"github.com/openmediate/gateway/internal/mediation"
	"github.com/openmediate/gateway/internal/models"
	"github.com/openmediate/gateway/internal/observability"

	"go.uber.org/zap"
)

// Server groups dependencies for HTTP handlers.
type Server struct {
	Logger       *zap.Logger
	Store        *db.RedisStore
	DB           *db.DB
	PG           *db.Postgres
	Engine       *mediation.Engine
	Registry     *adapter.Registry
	ClickHouseDB *sql.DB
	Analytics    analytics.AnalyticsService
	GeoIP        *geoip.GeoIP
	DebugTrace   bool
	TokenSecret  []byte
	TokenTTL     time.Duration
	reloadMu     sync.Mutex
	DataStore    models.MediationDataStore
	Metrics      observability.MetricsRegistry
	Config       config.Config
	MacroService *macros.Service
}

// NewServer constructs a Server.
func NewServer(logger *zap.Logger, store *db.RedisStore, database *db.DB, pg *db.Postgres, engine *mediation.Engine, registry *adapter.Registry, ch *sql.DB, analyticsSvc analytics.AnalyticsService, geo *geoip.GeoIP, debug bool, secret []byte, ttl time.Duration, dataStore models.MediationDataStore, metrics observability.MetricsRegistry, cfg config.Config) *Server {
	return &Server{
		Logger:       logger,
		Store:        store,
		DB:           database,
		PG:           pg,
		Engine:       engine,
		Registry:     registry,
		ClickHouseDB: ch,
		Analytics:    analyticsSvc,
		GeoIP:        geo,
		DebugTrace:   debug,
		TokenSecret:  secret,
		TokenTTL:     ttl,
		DataStore:    dataStore,
		Metrics:      metrics,
		Config:       cfg,
		MacroService: macros.NewService(logger),
	}
}

// UpdateMessage is published on the config update channel when mediation
// configuration changes, so peer instances reload without waiting for the
// periodic ticker.
type UpdateMessage struct {
	Entity string `json:"entity"`
	Action string `json:"action"`
	ID     any    `json:"id"`
}

func (s *Server) notifyUpdate(entity string, action string, id any) {
	if s.Store == nil || s.Store.Client == nil {
		s.Logger.Warn("redis store not available, skipping update notification")
		return
	}
	msg := UpdateMessage{Entity: entity, Action: action, ID: id}
	payload, err := json.Marshal(msg)
	if err != nil {
		s.Logger.Error("failed to marshal update message", zap.Error(err))
		return
	}

	ctx := context.Background()
	if err := s.Store.Client.Publish(ctx, db.ConfigUpdateChannel, payload).Err(); err != nil {
		s.Logger.Error("failed to publish update message", zap.Error(err))
	}
}

// Reload refreshes publishers, placements, networks and house creatives from
// Postgres and resets cached adapter instances so credential changes take
// effect.
func (s *Server) Reload() error {
	s.reloadMu.Lock()
	defer s.reloadMu.Unlock()

	if s.PG == nil {
		return fmt.Errorf("postgres unavailable")
	}

	publishers, err := s.PG.LoadPublishers()
	if err != nil {
		return fmt.Errorf("load publishers: %w", err)
	}

	placements, err := s.PG.LoadPlacements()
	if err != nil {
		return fmt.Errorf("load placements: %w", err)
	}

	networks, err := s.PG.LoadNetworks()
	if err != nil {
		return fmt.Errorf("load networks: %w", err)
	}

	creatives, err := s.PG.LoadHouseCreatives()
	if err != nil {
		return fmt.Errorf("load house creatives: %w", err)
	}

	// Use MediationDataStore for atomic reload of all data
	if err := s.DataStore.ReloadAll(publishers, placements, networks, creatives); err != nil {
		return fmt.Errorf("reload mediation data: %w", err)
	}

	database, err := db.Init(s.PG, s.DataStore)
	if err != nil {
		return fmt.Errorf("init db: %w", err)
	}
	s.DB = database

	if s.Registry != nil {
		s.Registry.Reset()
	}

	return nil
}
