package api

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/openmediate/gateway/internal/macros"
	"github.com/openmediate/gateway/internal/middleware"
	"github.com/openmediate/gateway/internal/models"
	"github.com/openmediate/gateway/internal/token"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// ClickHandler handles GET /click requests. Clicks on house creatives
// redirect to the creative's expanded click-through URL; clicks on partner
// fills return a tracking pixel since the partner markup handles its own
// navigation.
func (s *Server) ClickHandler(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "ClickHandler",
		trace.WithAttributes(
			attribute.String("http.method", "GET"),
			attribute.String("http.route", "/click"),
		))
	defer span.End()

	// Get trace-aware logger from middleware
	logger := middleware.LoggerFromRequest(r, s.Logger)

	start := time.Now()
	const endpoint = "click"
	const method = "GET"

	if s.Analytics == nil {
		span.RecordError(fmt.Errorf("analytics unavailable"))
		span.SetStatus(codes.Error, "analytics unavailable")
		logger.Error("analytics unavailable")
		s.Metrics.IncrementRequests(endpoint, method, "500")
		s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
		http.Error(w, "analytics unavailable", http.StatusInternalServerError)
		return
	}

	tok := r.URL.Query().Get("t")
	if tok == "" {
		logger.Warn("missing token")
		s.Metrics.IncrementRequests(endpoint, method, "401")
		s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
		http.Error(w, "token required", http.StatusUnauthorized)
		return
	}
	claims, err := token.Verify(tok, s.TokenSecret, s.TokenTTL)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid token")
		logger.Warn("token verify", zap.Error(err))
		s.Metrics.IncrementRequests(endpoint, method, "401")
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
		s.Metrics.IncrementRequests(endpoint, method, "400")
		s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
		http.Error(w, "unknown placement", http.StatusBadRequest)
		return
	}

	deviceType, country := s.clientDevice(r)
	dc := models.DeviceContext{DeviceType: deviceType, Country: country}

	if err := s.Analytics.RecordClick(ctx, claims.RequestID, placement, claims.NetworkID, claims.NetworkName, claims.CreativeID, dc); err != nil {
		logger.Error("analytics record", zap.Error(err))
		s.Metrics.IncrementRequests(endpoint, method, "500")
		s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
		http.Error(w, "analytics error", http.StatusInternalServerError)
		return
	}
	s.Metrics.IncrementEvent("click")

	destinationURL := s.houseDestination(placement, claims)

	if destinationURL != "" {
		// Validate URL before redirecting
		if parsedURL, err := url.Parse(destinationURL); err != nil {
			logger.Error("invalid destination URL",
				zap.String("url", destinationURL),
				zap.Error(err))
			s.Metrics.IncrementRequests(endpoint, method, "200")
			s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
			s.sendPixelResponse(w)
		} else if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
			logger.Warn("unsafe destination URL scheme",
				zap.String("url", destinationURL),
				zap.String("scheme", parsedURL.Scheme))
			s.Metrics.IncrementRequests(endpoint, method, "200")
			s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
			s.sendPixelResponse(w)
		} else {
			logger.Debug("redirecting to destination URL",
				zap.String("url", destinationURL),
				zap.String("request_id", claims.RequestID))
			s.Metrics.IncrementEvent("click_redirect")
			s.Metrics.IncrementRequests(endpoint, method, "302")
			s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
			http.Redirect(w, r, destinationURL, http.StatusFound)
		}
	} else {
		// Partner fill or house creative without a click URL: pixel only.
		s.Metrics.IncrementRequests(endpoint, method, "200")
		s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
		s.sendPixelResponse(w)
	}
}

// houseDestination resolves the click-through URL when the clicked fill was
// a house creative, expanding its macros from the token claims. Partner
// fills return "".
func (s *Server) houseDestination(placement *models.Placement, claims token.Claims) string {
	if s.MacroService == nil {
		return ""
	}
	id, err := strconv.Atoi(claims.CreativeID)
	if err != nil {
		return ""
	}
	var creative *models.HouseCreative
	for _, c := range s.DataStore.GetHouseCreatives(placement.ID) {
		if c.ID == id {
			hc := c
			creative = &hc
			break
		}
	}
	if creative == nil {
		return ""
	}
	// House fills carry no price; a priced fill with a colliding numeric
	// creative ID belongs to a partner network.
	if claims.PriceCPM > 0 {
		return ""
	}
	tc := macros.NewTrackingContextFromClaims(claims)
	dest, err := s.MacroService.GetDestinationURL(creative, tc)
	if err != nil {
		s.Logger.Error("expand destination URL",
			zap.Int("creative_id", creative.ID),
			zap.Error(err))
		return ""
	}
	return dest
}
