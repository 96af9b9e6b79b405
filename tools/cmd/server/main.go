package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/openmediate/gateway/internal/adapter"
	"github.com/openmediate/gateway/internal/adapter/house"
	"github.com/openmediate/gateway/internal/adapter/httpnet"
	"github.com/openmediate/gateway/internal/analytics"
	"github.com/openmediate/gateway/internal/api"
	"github.com/openmediate/gateway/internal/config"
	"github.com/openmediate/gateway/internal/consent"
	"github.com/openmediate/gateway/internal/db"
	"github.com/openmediate/gateway/internal/geoip"
	"github.com/openmediate/gateway/internal/logic/ratelimit"
	"github.com/openmediate/gateway/internal/mediation"
	"github.com/openmediate/gateway/internal/middleware"
	"github.com/openmediate/gateway/internal/models"
	"github.com/openmediate/gateway/internal/observability"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

func main() {
	cfg := config.Load()

	logger, err := observability.InitLoggerWithService(cfg.ServiceName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}

	defer func() {
		if err := logger.Sync(); err != nil {
			fmt.Fprintf(os.Stderr, "failed to sync logger: %v\n", err)
		}
	}()

	if err := run(logger, cfg); err != nil {
		logger.Error("server error", zap.Error(err))
		os.Exit(1)
	}
}

func run(logger *zap.Logger, cfg config.Config) error {

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.TracingEnabled {
		shutdown, err := observability.InitTracing(ctx, logger, cfg.ServiceName, cfg.OTLPEndpoint, cfg.TracingSampleRate)
		if err != nil {
			return fmt.Errorf("init tracing: %w", err)
		}
		defer shutdown()
	}

	pg, err := db.InitPostgres(cfg.PostgresDSN, cfg.DBMaxOpenConns, cfg.DBMaxIdleConns, cfg.DBConnMaxLifetime, cfg.DBConnMaxIdleTime)
	if err != nil {
		return fmt.Errorf("failed to connect postgres: %w", err)
	}
	defer pg.Close()

	// Initialize the data store first, before loading any data
	dataStore := models.NewInMemoryMediationDataStore()

	// Load mediation configuration from Postgres
	publishers, err := pg.LoadPublishers()
	if err != nil {
		return fmt.Errorf("load publishers: %w", err)
	}

	placements, err := pg.LoadPlacements()
	if err != nil {
		return fmt.Errorf("load placements: %w", err)
	}

	networks, err := pg.LoadNetworks()
	if err != nil {
		return fmt.Errorf("load networks: %w", err)
	}

	creatives, err := pg.LoadHouseCreatives()
	if err != nil {
		return fmt.Errorf("load house creatives: %w", err)
	}

	// Use the data store's atomic ReloadAll to populate everything at once
	if err := dataStore.ReloadAll(publishers, placements, networks, creatives); err != nil {
		return fmt.Errorf("populate mediation data store: %w", err)
	}

	database, err := db.Init(pg, dataStore)
	if err != nil {
		return fmt.Errorf("failed to load db: %w", err)
	}
	store, err := db.InitRedis(cfg.RedisAddr)
	if err != nil {
		return fmt.Errorf("failed to connect redis: %w", err)
	}
	defer store.Close()

	// Initialize metrics registry
	metricsRegistry := observability.NewPrometheusRegistry()

	analyticsSvc, err := analytics.InitClickHouse(cfg.ClickHouseDSN, store, metricsRegistry)
	if err != nil {
		return fmt.Errorf("failed to connect clickhouse: %w", err)
	}
	defer analyticsSvc.Close()

	geoSvc, err := geoip.Init(cfg.GeoIPDB)
	if err != nil {
		return fmt.Errorf("failed to load geoip db: %w", err)
	}
	defer func() { _ = geoSvc.Close() }()

	// Initialize the per-network rate limiter
	rateLimiterConfig := ratelimit.Config{
		Capacity:   cfg.RateLimitCapacity,
		RefillRate: cfg.RateLimitRefillRate,
		Enabled:    cfg.RateLimitEnabled,
	}
	rateLimiter := ratelimit.NewNetworkLimiter(rateLimiterConfig, metricsRegistry)

	// Adapter registry: every servable network kind is registered here.
	// Partner calls share one instrumented HTTP client whose transport
	// timeout backstops the per-call context deadline.
	registry := adapter.NewRegistry(adapter.Options{
		Logger: logger,
		HTTPClient: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
			Timeout:   2 * cfg.AdapterTimeout,
		},
		DataStore: dataStore,
	})
	registry.Register(models.NetworkKindHTTP, httpnet.New)
	registry.Register(models.NetworkKindHouse, house.New)
	logger.Info("adapters registered", zap.Any("kinds", registry.Kinds()))

	engine := &mediation.Engine{
		Store:     dataStore,
		Redis:     store,
		Registry:  registry,
		Consent:   consent.NewResolver(geoSvc),
		Geo:       geoSvc,
		Limiter:   rateLimiter,
		Analytics: analyticsSvc,
		Metrics:   metricsRegistry,
		Logger:    logger,
		Config: mediation.Config{
			AdapterTimeout: cfg.AdapterTimeout,
			NoFillBackoff:  cfg.NoFillBackoff,
			AutoRank:       cfg.AutoRank,
		},
	}

	if cfg.AutoRank {
		mediation.StartAutoRanker(ctx, dataStore, store, pg, cfg.AutoRankInterval, logger)
		logger.Info("eCPM auto-ranking enabled", zap.Duration("interval", cfg.AutoRankInterval))
	}

	srvDeps := api.NewServer(logger, store, database, pg, engine, registry, analyticsSvc.DB, analyticsSvc, geoSvc, cfg.DebugTrace, []byte(cfg.TokenSecret), cfg.TokenTTL, dataStore, metricsRegistry, cfg)

	r := mux.NewRouter()
	r.Use(middleware.WithTraceLogger(logger))
	r.HandleFunc("/mediate", srvDeps.MediateHandler).Methods("POST")
	r.HandleFunc("/impression", srvDeps.ImpressionHandler).Methods("GET")
	r.HandleFunc("/click", srvDeps.ClickHandler).Methods("GET")
	r.HandleFunc("/event", srvDeps.EventHandler).Methods("GET")
	r.HandleFunc("/consent", srvDeps.ConsentHandler).Methods("POST")
	r.HandleFunc("/health", srvDeps.HealthHandler).Methods("GET")
	r.HandleFunc("/reload", srvDeps.ReloadHandler).Methods("POST")

	// Read-only configuration and reporting endpoints
	admin := r.PathPrefix("/api").Subrouter()
	admin.HandleFunc("/publishers", srvDeps.ListPublishers).Methods("GET")
	admin.HandleFunc("/placements", srvDeps.ListPlacements).Methods("GET")
	admin.HandleFunc("/placements/{id}/waterfall", srvDeps.GetWaterfall).Methods("GET")
	admin.HandleFunc("/networks", srvDeps.ListNetworks).Methods("GET")
	admin.HandleFunc("/reports/mediation", srvDeps.MediationReportHandler).Methods("GET")

	// metrics endpoint (includes rate limiting metrics)
	r.Handle("/metrics", promhttp.Handler())

	addr := ":" + cfg.Port

	srv := &http.Server{
		Addr:         addr,
		Handler:      otelhttp.NewHandler(r, "openmediate"),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	logger.Info("Mediation gateway running", zap.String("addr", addr))

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("listen: %w", err)
		}
	}()

	if cfg.ReloadInterval > 0 {
		ticker := time.NewTicker(cfg.ReloadInterval)
		go func() {
			for {
				select {
				case <-ticker.C:
					if err := srvDeps.Reload(); err != nil {
						logger.Error("auto reload", zap.Error(err))
					}
				case <-ctx.Done():
					ticker.Stop()
					return
				}
			}
		}()
	}

	// Reload immediately when a peer publishes a configuration change.
	go func() {
		sub := store.Client.Subscribe(ctx, db.ConfigUpdateChannel)
		defer func() { _ = sub.Close() }()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-sub.Channel():
				if !ok {
					return
				}
				logger.Info("config update received", zap.String("payload", msg.Payload))
				if err := srvDeps.Reload(); err != nil {
					logger.Error("pubsub reload", zap.Error(err))
				}
			}
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	return nil
}
