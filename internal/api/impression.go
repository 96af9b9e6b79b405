package api

import (
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/openmediate/gateway/internal/logic"
	"github.com/openmediate/gateway/internal/middleware"
	"github.com/openmediate/gateway/internal/models"
	"github.com/openmediate/gateway/internal/observability"
	"github.com/openmediate/gateway/internal/token"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// pixelGIF is a 1x1 transparent GIF returned by tracking endpoints.
var pixelGIF = []byte{
	0x47, 0x49, 0x46, 0x38, 0x39, 0x61, 0x01, 0x00, 0x01, 0x00, 0x80, 0x00,
	0x00, 0x00, 0x00, 0x00, 0xff, 0xff, 0xff, 0x21, 0xf9, 0x04, 0x01, 0x00,
	0x00, 0x00, 0x00, 0x2c, 0x00, 0x00, 0x00, 0x00, 0x01, 0x00, 0x01, 0x00,
	0x00, 0x02, 0x02, 0x44, 0x01, 0x00, 0x3b,
}

// sendPixelResponse sends a 1x1 tracking pixel response
func (s *Server) sendPixelResponse(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "image/gif")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(pixelGIF)
}

// clientDevice resolves device type and country from the tracking request
// itself; tracking callbacks come straight from the device, not the SDK body.
func (s *Server) clientDevice(r *http.Request) (deviceType, country string) {
	ip := r.Header.Get("X-Forwarded-For")
	if ip == "" {
		ip, _, _ = net.SplitHostPort(r.RemoteAddr)
	}
	dc := logic.ResolveDevice(s.GeoIP, r.UserAgent(), ip)
	return dc.DeviceType, dc.Country
}

// ImpressionHandler handles GET /impression pixel requests: the "ad was
// shown" callback. It books the fill's revenue against the winning network.
func (s *Server) ImpressionHandler(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "ImpressionHandler",
		trace.WithAttributes(
			attribute.String("http.method", "GET"),
			attribute.String("http.route", "/impression"),
		))
	defer span.End()

	// Get trace-aware logger from middleware
	logger := middleware.LoggerFromRequest(r, s.Logger)

	start := time.Now()
	const endpoint = "impression"
	const method = "GET"

	if s.Analytics == nil {
		span.RecordError(fmt.Errorf("analytics unavailable"))
		span.SetStatus(codes.Error, "analytics unavailable")
		logger.Error("analytics unavailable")
		s.Metrics.IncrementImpressions("500")
		s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
		http.Error(w, "analytics unavailable", http.StatusInternalServerError)
		return
	}

	tok := r.URL.Query().Get("t")
	if tok == "" {
		logger.Warn("missing token")
		s.Metrics.IncrementImpressions("401")
		s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
		http.Error(w, "token required", http.StatusUnauthorized)
		return
	}
	claims, err := token.Verify(tok, s.TokenSecret, s.TokenTTL)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid token")
		logger.Warn("token verify", zap.Error(err))
		s.Metrics.IncrementImpressions("401")
		s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	span.SetAttributes(
		attribute.String("request_id", claims.RequestID),
		attribute.String("placement_id", claims.PlacementID),
		attribute.Int("network_id", claims.NetworkID),
		attribute.String("creative_id", claims.CreativeID),
	)

	placement := s.DataStore.GetPlacement(claims.PlacementID)
	if placement == nil {
		logger.Error("unknown placement", zap.String("placement_id", claims.PlacementID))
		s.Metrics.IncrementImpressions("400")
		s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
		http.Error(w, "unknown placement", http.StatusBadRequest)
		return
	}

	deviceType, country := s.clientDevice(r)

	dc := models.DeviceContext{DeviceType: deviceType, Country: country}
	if err := s.Analytics.RecordImpression(ctx, claims.RequestID, placement, claims.NetworkID, claims.NetworkName, claims.CreativeID, claims.PriceCPM, dc); err != nil {
		logger.Error("analytics record", zap.Error(err))
		s.Metrics.IncrementImpressions("500")
		s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
		http.Error(w, "analytics error", http.StatusInternalServerError)
		return
	}

	if observability.ShouldSample(observability.GetSamplingRate()) {
		logger.Info("impression", zap.String("request_id", claims.RequestID), zap.String("network", claims.NetworkName), zap.String("event_type", "impression"))
	}
	s.Metrics.IncrementEvent("impression")

	s.Metrics.IncrementImpressions("200")
	s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
	s.sendPixelResponse(w)
}
