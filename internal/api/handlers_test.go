package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"

	"github.com/openmediate/gateway/internal/analytics"
	"github.com/openmediate/gateway/internal/config"
	"github.com/openmediate/gateway/internal/db"
	"github.com/openmediate/gateway/internal/models"
	"github.com/openmediate/gateway/internal/observability"
	"github.com/openmediate/gateway/internal/token"

	"go.uber.org/zap"
)

func newTestServer() *Server {
	return &Server{
		Logger:      zap.NewNop(),
		Analytics:   analytics.NewMockAnalytics(),
		DataStore:   models.NewTestMediationDataStore(),
		TokenSecret: []byte("secret"),
		TokenTTL:    time.Millisecond,
		Metrics:     observability.NewNoOpRegistry(),
	}
}

func testClaims() token.Claims {
	return token.Claims{
		RequestID:   "req-1",
		PlacementID: "plc-1",
		NetworkID:   1,
		NetworkName: "alpha",
		CreativeID:  "cr-1",
		UserID:      "user-1",
		PublisherID: 1,
		PriceCPM:    2.5,
		Currency:    "USD",
	}
}

func TestImpressionHandler_MissingToken(t *testing.T) {
	srv := newTestServer()

	req := httptest.NewRequest(http.MethodGet, "/impression", nil)
	rec := httptest.NewRecorder()

	srv.ImpressionHandler(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestImpressionHandler_ExpiredToken(t *testing.T) {
	srv := newTestServer()
	tok, _ := token.Generate(testClaims(), srv.TokenSecret)
	time.Sleep(10 * time.Millisecond)
	req := httptest.NewRequest(http.MethodGet, "/impression?t="+url.QueryEscape(tok), nil)
	rec := httptest.NewRecorder()

	srv.ImpressionHandler(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestImpressionHandler_UnknownPlacement(t *testing.T) {
	srv := newTestServer()
	srv.TokenTTL = time.Hour
	tok, _ := token.Generate(testClaims(), srv.TokenSecret)

	req := httptest.NewRequest(http.MethodGet, "/impression?t="+url.QueryEscape(tok), nil)
	rec := httptest.NewRecorder()

	srv.ImpressionHandler(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestImpressionHandler_RecordsRevenue(t *testing.T) {
	srv := newTestServer()
	srv.TokenTTL = time.Hour
	if err := srv.DataStore.SetPlacements([]models.Placement{{ID: "plc-1", PublisherID: 1}}); err != nil {
		t.Fatalf("set placements: %v", err)
	}
	tok, _ := token.Generate(testClaims(), srv.TokenSecret)

	req := httptest.NewRequest(http.MethodGet, "/impression?t="+url.QueryEscape(tok), nil)
	req.RemoteAddr = "192.0.2.1:12345"
	rec := httptest.NewRecorder()

	srv.ImpressionHandler(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "image/gif" {
		t.Fatalf("expected gif pixel, got %q", ct)
	}

	sink := srv.Analytics.(*analytics.MockAnalytics)
	events := sink.EventsOfType(analytics.EventImpression)
	if len(events) != 1 {
		t.Fatalf("expected 1 impression event, got %d", len(events))
	}
	if events[0].PriceCPM != 2.5 {
		t.Fatalf("expected price 2.5 booked, got %v", events[0].PriceCPM)
	}
}

func TestEventHandler_UnknownType(t *testing.T) {
	srv := newTestServer()
	srv.TokenTTL = time.Hour
	tok, _ := token.Generate(testClaims(), srv.TokenSecret)

	req := httptest.NewRequest(http.MethodGet, "/event?type=conversion&t="+url.QueryEscape(tok), nil)
	rec := httptest.NewRecorder()

	srv.EventHandler(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown event type, got %d", rec.Code)
	}
}

func TestEventHandler_Reward(t *testing.T) {
	srv := newTestServer()
	srv.TokenTTL = time.Hour
	if err := srv.DataStore.SetPlacements([]models.Placement{{ID: "plc-1", PublisherID: 1}}); err != nil {
		t.Fatalf("set placements: %v", err)
	}
	tok, _ := token.Generate(testClaims(), srv.TokenSecret)

	req := httptest.NewRequest(http.MethodGet, "/event?type=reward&t="+url.QueryEscape(tok), nil)
	req.RemoteAddr = "192.0.2.1:12345"
	rec := httptest.NewRecorder()

	srv.EventHandler(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	sink := srv.Analytics.(*analytics.MockAnalytics)
	events := sink.EventsOfType("reward")
	if len(events) != 1 {
		t.Fatalf("expected 1 reward event, got %d", len(events))
	}
	if events[0].NetworkID == nil || *events[0].NetworkID != 1 {
		t.Fatalf("expected network 1 on reward event, got %v", events[0].NetworkID)
	}
}

func TestHealthHandler(t *testing.T) {
	srv := newTestServer()

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()

	srv.HealthHandler(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["status"] != "ok" {
		t.Fatalf("expected status ok, got %q", body["status"])
	}
}

func TestConsentHandler_NoRedis(t *testing.T) {
	srv := newTestServer()

	payload, _ := json.Marshal(ConsentRequest{UserID: "user-1"})
	req := httptest.NewRequest(http.MethodPost, "/consent", bytes.NewReader(payload))
	rec := httptest.NewRecorder()

	srv.ConsentHandler(rec, req)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 without redis, got %d", rec.Code)
	}
}

func TestConsentHandler_StoresRecord(t *testing.T) {
	mr := miniredis.RunT(t)
	store := &db.RedisStore{
		Client: goredis.NewClient(&goredis.Options{Addr: mr.Addr()}),
		Ctx:    context.Background(),
	}
	t.Cleanup(store.Close)

	srv := newTestServer()
	srv.Store = store
	srv.Config = config.Config{ConsentTTL: time.Hour}

	gdpr := true
	payload, _ := json.Marshal(ConsentRequest{
		UserID:  "user-1",
		Consent: models.Consent{GDPRApplies: &gdpr, TCString: "CQABCD"},
	})
	req := httptest.NewRequest(http.MethodPost, "/consent", bytes.NewReader(payload))
	rec := httptest.NewRecorder()

	srv.ConsentHandler(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d: %s", rec.Code, rec.Body.String())
	}

	stored, err := store.GetUserConsent("user-1")
	if err != nil {
		t.Fatalf("get consent: %v", err)
	}
	if stored == nil || stored.TCString != "CQABCD" {
		t.Fatalf("expected stored TC string, got %+v", stored)
	}
}

func TestConsentHandler_MissingUserID(t *testing.T) {
	mr := miniredis.RunT(t)
	store := &db.RedisStore{
		Client: goredis.NewClient(&goredis.Options{Addr: mr.Addr()}),
		Ctx:    context.Background(),
	}
	t.Cleanup(store.Close)

	srv := newTestServer()
	srv.Store = store

	req := httptest.NewRequest(http.MethodPost, "/consent", bytes.NewReader([]byte(`{"consent":{}}`)))
	rec := httptest.NewRecorder()

	srv.ConsentHandler(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}
