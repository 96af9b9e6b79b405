package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap/zaptest"

	"github.com/openmediate/gateway/internal/adapter"
	"github.com/openmediate/gateway/internal/analytics"
	"github.com/openmediate/gateway/internal/config"
	"github.com/openmediate/gateway/internal/consent"
	"github.com/openmediate/gateway/internal/db"
	"github.com/openmediate/gateway/internal/geoip"
	"github.com/openmediate/gateway/internal/macros"
	"github.com/openmediate/gateway/internal/mediation"
	"github.com/openmediate/gateway/internal/models"
	"github.com/openmediate/gateway/internal/observability"
	"github.com/openmediate/gateway/internal/token"
)

const testUA = "Mozilla/5.0 (iPhone; CPU iPhone OS 16_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/16.0 Mobile/15E148 Safari/604.1"

// scriptedAdapter answers Load from a per-network script, so handler tests
// can drive the waterfall outcome without real partner calls.
type scriptedAdapter struct {
	networkID int
	script    map[int]func() (*models.AdFill, error)
}

func (a *scriptedAdapter) Kind() models.NetworkKind { return models.NetworkKindHTTP }

func (a *scriptedAdapter) Load(_ context.Context, req *adapter.LoadRequest) (*models.AdFill, error) {
	if fn, ok := a.script[a.networkID]; ok {
		return fn()
	}
	return nil, adapter.E(adapter.CodeNoFill, req.Network.Name, nil)
}

type mediateTestEnv struct {
	server *Server
	script map[int]func() (*models.AdFill, error)
	sink   *analytics.MockAnalytics
}

func newMediateTestEnv(t *testing.T) *mediateTestEnv {
	t.Helper()
	logger := zaptest.NewLogger(t)

	// NewServer registers macro metrics on the default registry; give each
	// test env its own registry so repeated construction does not panic with
	// a duplicate registration.
	prevRegisterer := prometheus.DefaultRegisterer
	prevGatherer := prometheus.DefaultGatherer
	reg := prometheus.NewRegistry()
	prometheus.DefaultRegisterer = reg
	prometheus.DefaultGatherer = reg
	t.Cleanup(func() {
		prometheus.DefaultRegisterer = prevRegisterer
		prometheus.DefaultGatherer = prevGatherer
	})

	mr := miniredis.RunT(t)
	redisStore := &db.RedisStore{
		Client: goredis.NewClient(&goredis.Options{Addr: mr.Addr()}),
		Ctx:    context.Background(),
	}
	t.Cleanup(redisStore.Close)

	dataStore := models.NewTestMediationDataStore()
	if err := dataStore.SetPublishers([]models.Publisher{{ID: 1, Name: "pub", Domain: "pub.example.com", APIKey: "test-key"}}); err != nil {
		t.Fatalf("set publishers: %v", err)
	}
	if err := dataStore.SetNetworks([]models.Network{
		{ID: 1, Name: "alpha", Kind: models.NetworkKindHTTP, Active: true},
	}); err != nil {
		t.Fatalf("set networks: %v", err)
	}
	if err := dataStore.SetPlacements([]models.Placement{{
		ID:          "plc-1",
		PublisherID: 1,
		Width:       320,
		Height:      50,
		Formats:     []models.AdFormat{models.FormatBanner},
		Networks:    []models.NetworkEntry{{NetworkID: 1, Priority: 1}},
	}}); err != nil {
		t.Fatalf("set placements: %v", err)
	}
	if err := dataStore.SetHouseCreatives([]models.HouseCreative{{
		ID:          7,
		PlacementID: "plc-1",
		Markup:      "<div>house</div>",
		Width:       320,
		Height:      50,
		Format:      models.FormatBanner,
		ClickURL:    "https://example.com/landing?cr={CREATIVE_ID}&req={AUCTION_ID}",
		Active:      true,
	}}); err != nil {
		t.Fatalf("set house creatives: %v", err)
	}

	script := map[int]func() (*models.AdFill, error){}
	registry := adapter.NewRegistry(adapter.Options{DataStore: dataStore})
	registry.Register(models.NetworkKindHTTP, func(n *models.Network, _ adapter.Options) (adapter.Adapter, error) {
		return &scriptedAdapter{networkID: n.ID, script: script}, nil
	})

	sink := analytics.NewMockAnalytics()
	engine := &mediation.Engine{
		Store:     dataStore,
		Redis:     redisStore,
		Registry:  registry,
		Consent:   consent.NewResolver(nil),
		Analytics: sink,
		Metrics:   &observability.MockMetricsRegistry{},
		Logger:    logger,
	}

	server := NewServer(
		logger,
		redisStore,
		nil,
		nil,
		engine,
		registry,
		nil,
		sink,
		&geoip.GeoIP{},
		false,
		[]byte("test-secret-key-that-is-long-enough"),
		time.Hour,
		dataStore,
		&observability.MockMetricsRegistry{},
		config.Config{},
	)
	// Use testing macro service to avoid metrics conflicts
	server.MacroService = macros.NewServiceForTesting(logger)

	return &mediateTestEnv{server: server, script: script, sink: sink}
}

func postMediate(t *testing.T, env *mediateTestEnv, apiKey string) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(models.MediationRequest{
		ID:          "req-1",
		PlacementID: "plc-1",
		User:        models.User{ID: "user-1"},
		Device:      models.Device{UA: testUA},
		Ext:         models.RequestExt{PublisherID: 1},
	})
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/mediate", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set("X-API-Key", apiKey)
	}
	req.RemoteAddr = "192.0.2.1:12345"
	rec := httptest.NewRecorder()
	env.server.MediateHandler(rec, req)
	return rec
}

func TestMediateHandler_InvalidAPIKey(t *testing.T) {
	env := newMediateTestEnv(t)

	rec := postMediate(t, env, "wrong-key")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestMediateHandler_Fill(t *testing.T) {
	env := newMediateTestEnv(t)
	env.script[1] = func() (*models.AdFill, error) {
		return &models.AdFill{
			NetworkID:   1,
			NetworkName: "alpha",
			CreativeID:  "cr-1",
			Markup:      "<div>partner ad</div>",
			Width:       320,
			Height:      50,
			PriceCPM:    2.0,
			Currency:    "USD",
		}, nil
	}

	rec := postMediate(t, env, "test-key")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp models.MediationResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.Filled {
		t.Fatalf("expected fill, got error %q", resp.Error)
	}
	if !strings.HasPrefix(resp.ImpURL, "/impression?t=") {
		t.Fatalf("unexpected impurl %q", resp.ImpURL)
	}
	if !strings.HasPrefix(resp.ClickURL, "/click?t=") {
		t.Fatalf("unexpected clkurl %q", resp.ClickURL)
	}
	if resp.Fill == nil || !strings.Contains(resp.Fill.Markup, "partner ad") {
		t.Fatalf("expected wrapped markup, got %+v", resp.Fill)
	}
	if !strings.Contains(resp.Fill.Markup, "/impression?t=") {
		t.Fatalf("expected impression pixel in markup: %s", resp.Fill.Markup)
	}
	if resp.Attempts != nil {
		t.Fatalf("attempts must be dropped without debug, got %v", resp.Attempts)
	}

	// The embedded token must verify and carry the winning fill.
	tok := strings.TrimPrefix(resp.ImpURL, "/impression?t=")
	claims, err := token.Verify(tok, env.server.TokenSecret, env.server.TokenTTL)
	if err != nil {
		t.Fatalf("verify token: %v", err)
	}
	if claims.NetworkName != "alpha" || claims.PriceCPM != 2.0 {
		t.Fatalf("unexpected claims %+v", claims)
	}
}

func TestMediateHandler_NoFill(t *testing.T) {
	env := newMediateTestEnv(t)

	rec := postMediate(t, env, "test-key")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp models.MediationResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Filled {
		t.Fatal("expected no fill")
	}
	if resp.Error != string(adapter.CodeNoFill) {
		t.Fatalf("expected no_fill code, got %q", resp.Error)
	}
	if resp.ImpURL != "" || resp.ClickURL != "" {
		t.Fatal("no-fill responses must not carry tracking URLs")
	}
}

func TestClickHandler_HouseRedirect(t *testing.T) {
	env := newMediateTestEnv(t)
	srv := env.server

	tok, err := token.Generate(token.Claims{
		RequestID:   "req-click",
		PlacementID: "plc-1",
		NetworkID:   2,
		NetworkName: "house",
		CreativeID:  "7",
		UserID:      "user-1",
		PublisherID: 1,
		PriceCPM:    0,
	}, srv.TokenSecret)
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/click?t="+tok, nil)
	req.Header.Set("User-Agent", testUA)
	req.RemoteAddr = "192.0.2.1:12345"
	rec := httptest.NewRecorder()

	srv.ClickHandler(rec, req)
	if rec.Code != http.StatusFound {
		t.Fatalf("expected 302, got %d: %s", rec.Code, rec.Body.String())
	}
	location := rec.Header().Get("Location")
	if !strings.Contains(location, "cr=7") {
		t.Fatalf("expected expanded creative ID in location: %s", location)
	}
	if !strings.Contains(location, "req=req-click") {
		t.Fatalf("expected expanded request ID in location: %s", location)
	}

	if clicks := env.sink.EventsOfType(analytics.EventClick); len(clicks) != 1 {
		t.Fatalf("expected 1 click event, got %d", len(clicks))
	}
}

func TestClickHandler_PartnerFillPixel(t *testing.T) {
	env := newMediateTestEnv(t)
	srv := env.server

	tok, err := token.Generate(token.Claims{
		RequestID:   "req-click",
		PlacementID: "plc-1",
		NetworkID:   1,
		NetworkName: "alpha",
		CreativeID:  "cr-1",
		UserID:      "user-1",
		PublisherID: 1,
		PriceCPM:    2.0,
	}, srv.TokenSecret)
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/click?t="+tok, nil)
	req.Header.Set("User-Agent", testUA)
	req.RemoteAddr = "192.0.2.1:12345"
	rec := httptest.NewRecorder()

	srv.ClickHandler(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 pixel, got %d", rec.Code)
	}
	if location := rec.Header().Get("Location"); location != "" {
		t.Fatalf("partner clicks must not redirect, got %s", location)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "image/gif" {
		t.Fatalf("expected gif pixel, got %q", ct)
	}
}
