package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/openmediate/gateway/internal/logic/render"
	"github.com/openmediate/gateway/internal/middleware"
	"github.com/openmediate/gateway/internal/models"
	"github.com/openmediate/gateway/internal/observability"
	"github.com/openmediate/gateway/internal/token"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("openmediate")

// decodeMediationRequest reads and unmarshals a mediation request body.
func decodeMediationRequest(r *http.Request) (*models.MediationRequest, error) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	defer func() {
		_ = r.Body.Close()
	}()

	var req models.MediationRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, fmt.Errorf("parse json: %w", err)
	}
	return &req, nil
}

// writeMediationResponse writes the given response as JSON, dropping the
// waterfall attempt trace unless debug output was requested.
func writeMediationResponse(w http.ResponseWriter, resp *models.MediationResponse, debug bool) error {
	if !debug {
		resp.Attempts = nil
	}
	w.Header().Set("Content-Type", "application/json")
	return json.NewEncoder(w).Encode(resp)
}

// MediateHandler handles POST /mediate requests: it runs the waterfall for
// one ad opportunity and returns either a fill with signed tracking URLs or
// a no-fill response carrying the terminal mediation error code.
func (s *Server) MediateHandler(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "MediateHandler",
		trace.WithAttributes(
			attribute.String("http.method", "POST"),
			attribute.String("http.route", "/mediate"),
		))
	defer span.End()

	// Get trace-aware logger from middleware
	logger := middleware.LoggerFromRequest(r, s.Logger)

	start := time.Now()
	const endpoint = "mediate"
	const method = "POST"

	req, err := decodeMediationRequest(r)
	if err != nil {
		logger.Error("decode request", zap.Error(err), zap.String("event_type", "ad_request"))
		s.Metrics.IncrementRequests(endpoint, method, "400")
		s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}

	if req.PlacementID == "" || req.User.ID == "" {
		logger.Error("missing required fields", zap.String("event_type", "ad_request"))
		s.Metrics.IncrementRequests(endpoint, method, "400")
		s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
		http.Error(w, "placement_id and user.id required", http.StatusBadRequest)
		return
	}

	pub := models.GetPublisherByID(s.DataStore, req.Ext.PublisherID)
	if pub == nil {
		logger.Error("unknown publisher", zap.Int("publisher_id", req.Ext.PublisherID))
		s.Metrics.IncrementRequests(endpoint, method, "400")
		s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
		http.Error(w, "unknown publisher", http.StatusBadRequest)
		return
	}

	apiKey := r.Header.Get("X-API-Key")
	if apiKey == "" || apiKey != pub.APIKey {
		logger.Error("invalid api key",
			zap.Int("publisher_id", req.Ext.PublisherID),
			zap.String("request_id", req.ID))
		s.Metrics.IncrementRequests(endpoint, method, "401")
		s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	// Fill in the device IP from transport headers when the body omits it.
	if req.Device.IP == "" {
		if req.Device.IP = r.Header.Get("X-Forwarded-For"); req.Device.IP == "" {
			req.Device.IP, _, _ = net.SplitHostPort(r.RemoteAddr)
		}
	}

	span.SetAttributes(
		attribute.String("placement_id", req.PlacementID),
		attribute.String("user_id", req.User.ID),
		attribute.Int("publisher_id", req.Ext.PublisherID),
		attribute.String("format", string(req.Format)),
	)

	if observability.ShouldSample(observability.GetSamplingRate()) {
		logger.Info("ad request", zap.String("request_id", req.ID), zap.String("user_id", req.User.ID), zap.String("event_type", "ad_request"))
	}

	debugEnabled := s.DebugTrace || r.URL.Query().Get("debug") == "1"

	result := s.Engine.Mediate(ctx, req)
	resp := &models.MediationResponse{ID: req.ID, Attempts: result.Attempts}

	if !result.Filled {
		span.SetAttributes(attribute.String("mediation.result", string(result.Code)))
		resp.Error = string(result.Code)
		s.Metrics.IncrementRequests(endpoint, method, "200")
		s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
		if err := writeMediationResponse(w, resp, debugEnabled); err != nil {
			http.Error(w, "failed to encode response", http.StatusInternalServerError)
		}
		return
	}

	fill := result.Fill
	span.SetAttributes(
		attribute.String("mediation.result", "fill"),
		attribute.Int("mediation.network_id", fill.NetworkID),
		attribute.String("mediation.network", fill.NetworkName),
		attribute.Float64("mediation.price_cpm", fill.PriceCPM),
	)

	tok, err := token.Generate(token.Claims{
		RequestID:    req.ID,
		PlacementID:  req.PlacementID,
		NetworkID:    fill.NetworkID,
		NetworkName:  fill.NetworkName,
		CreativeID:   fill.CreativeID,
		UserID:       req.User.ID,
		PublisherID:  req.Ext.PublisherID,
		PriceCPM:     fill.PriceCPM,
		Currency:     fill.Currency,
		CustomParams: req.Ext.CustomParams,
	}, s.TokenSecret)
	if err != nil {
		logger.Error("failed to generate token", zap.Error(err), zap.String("request_id", req.ID))
		s.Metrics.IncrementRequests(endpoint, method, "500")
		s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
		http.Error(w, "internal server error (token generation)", http.StatusInternalServerError)
		return
	}

	impURL := "/impression?t=" + url.QueryEscape(tok)
	clkURL := "/click?t=" + url.QueryEscape(tok)

	resp.Filled = true
	resp.ImpURL = impURL
	resp.ClickURL = clkURL
	resp.Fill = fill
	// House fills route clicks through the gateway; partner markup carries
	// its own click handling, so the wrap only injects ours for house ads.
	wrapClick := ""
	if fill.PriceCPM == 0 {
		wrapClick = clkURL
	}
	resp.Fill.Markup = render.Wrap(fill, impURL, wrapClick)

	if observability.ShouldSample(observability.GetSamplingRate()) {
		logger.Info("ad filled",
			zap.String("request_id", req.ID),
			zap.String("network", fill.NetworkName),
			zap.String("event_type", "fill"))
	}

	s.Metrics.IncrementRequests(endpoint, method, "200")
	s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))

	if err := writeMediationResponse(w, resp, debugEnabled); err != nil {
		http.Error(w, "failed to encode response", http.StatusInternalServerError)
	}
}
