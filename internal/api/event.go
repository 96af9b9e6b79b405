package api

import (
	"net/http"
	"time"

	"github.com/openmediate/gateway/internal/analytics"
	"github.com/openmediate/gateway/internal/token"

	"go.uber.org/zap"
)

// AllowedEventTypes lists the SDK lifecycle event names accepted by the
// server beyond impressions and clicks. Each corresponds to a callback the
// client SDK fires while an ad is on screen.
var AllowedEventTypes = map[string]struct{}{
	"reward":  {}, // user earned the reward of a rewarded ad
	"closed":  {}, // user dismissed an interstitial or rewarded ad
	"expired": {}, // a loaded ad expired before it was shown
}

// EventHandler handles GET /event pixel requests.
func (s *Server) EventHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	const endpoint = "event"
	const method = "GET"

	if s.Analytics == nil {
		s.Logger.Error("analytics unavailable")
		s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
		http.Error(w, "analytics unavailable", http.StatusInternalServerError)
		return
	}

	tok := r.URL.Query().Get("t")
	if tok == "" {
		s.Logger.Warn("missing token")
		s.Metrics.IncrementEvent("bad_event")
		s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
		http.Error(w, "token required", http.StatusUnauthorized)
		return
	}
	claims, err := token.Verify(tok, s.TokenSecret, s.TokenTTL)
	if err != nil {
		s.Logger.Warn("token verify", zap.Error(err))
		s.Metrics.IncrementEvent("bad_event")
		s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	evType := r.URL.Query().Get("type")
	if evType == "" {
		s.Logger.Error("missing event type")
		s.Metrics.IncrementEvent("bad_event")
		s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
		http.Error(w, "type required", http.StatusBadRequest)
		return
	}

	if _, ok := AllowedEventTypes[evType]; !ok {
		s.Logger.Error("unknown event type", zap.String("type", evType))
		s.Metrics.IncrementEvent("bad_event")
		s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
		http.Error(w, "unknown event type", http.StatusBadRequest)
		return
	}

	placement := s.DataStore.GetPlacement(claims.PlacementID)
	if placement == nil {
		s.Logger.Error("unknown placement", zap.String("placement_id", claims.PlacementID))
		s.Metrics.IncrementEvent("bad_event")
		s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
		http.Error(w, "unknown placement", http.StatusBadRequest)
		return
	}

	deviceType, country := s.clientDevice(r)

	ev := analytics.Event{
		EventType:   evType,
		RequestID:   claims.RequestID,
		PlacementID: placement.ID,
	}
	pub := int32(placement.PublisherID)
	ev.PublisherID = &pub
	if claims.NetworkID > 0 {
		nid := int32(claims.NetworkID)
		ev.NetworkID = &nid
		name := claims.NetworkName
		ev.NetworkName = &name
	}
	if claims.CreativeID != "" {
		cr := claims.CreativeID
		ev.CreativeID = &cr
	}
	if deviceType != "" {
		ev.DeviceType = &deviceType
	}
	if country != "" {
		ev.Country = &country
	}

	if err := s.Analytics.RecordEvent(r.Context(), ev); err != nil {
		s.Logger.Error("analytics record", zap.Error(err))
		s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
		http.Error(w, "analytics error", http.StatusInternalServerError)
		return
	}
	s.Logger.Info("lifecycle event", zap.String("request_id", claims.RequestID), zap.String("event_type", evType))
	s.Metrics.IncrementEvent(evType)
	s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
	s.sendPixelResponse(w)
}
