package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/openmediate/gateway/internal/models"

	"go.uber.org/zap"
)

// ConsentRequest is the wire format for POST /consent: a user's default
// privacy signals, applied to later mediation requests that carry none of
// their own.
type ConsentRequest struct {
	UserID  string         `json:"user_id"`
	Consent models.Consent `json:"consent"`
}

// ConsentHandler handles POST /consent requests. The record is cached in
// Redis with the configured TTL; the gateway stores the signals verbatim and
// leaves their legal interpretation to the partner networks.
func (s *Server) ConsentHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	const endpoint = "consent"
	const method = "POST"

	if s.Store == nil || s.Store.Client == nil {
		s.Logger.Error("redis unavailable")
		s.Metrics.IncrementRequests(endpoint, method, "503")
		s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
		http.Error(w, "consent storage unavailable", http.StatusServiceUnavailable)
		return
	}

	var req ConsentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.Logger.Warn("decode consent", zap.Error(err))
		s.Metrics.IncrementRequests(endpoint, method, "400")
		s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	if req.UserID == "" {
		s.Metrics.IncrementRequests(endpoint, method, "400")
		s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
		http.Error(w, "user_id required", http.StatusBadRequest)
		return
	}

	if err := s.Store.SetUserConsent(req.UserID, req.Consent, s.Config.ConsentTTL); err != nil {
		s.Logger.Error("store consent", zap.Error(err), zap.String("user_id", req.UserID))
		s.Metrics.IncrementRequests(endpoint, method, "500")
		s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
		http.Error(w, "failed to store consent", http.StatusInternalServerError)
		return
	}

	s.Logger.Info("consent recorded",
		zap.String("user_id", req.UserID),
		zap.Bool("has_tc_string", req.Consent.HasGDPRConsent()),
		zap.Bool("coppa", req.Consent.COPPA))
	s.Metrics.IncrementRequests(endpoint, method, "204")
	s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
	w.WriteHeader(http.StatusNoContent)
}
