package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/openmediate/gateway/internal/reporting"

	"go.uber.org/zap"
)

// MediationReportHandler handles GET /api/reports/mediation requests.
// Generates a mediation performance report: fills, fill rate and revenue
// broken down by partner network and by placement.
//
// Query Parameters:
//   - days: Number of days to include in the report (default: 7, max: 365)
//   - publisher_id: Restrict to one publisher (default: all)
//
// Response: JSON containing MediationSummary.
func (s *Server) MediationReportHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	const endpoint = "/api/reports/mediation"
	method := r.Method

	if s.ClickHouseDB == nil {
		s.Logger.Error("clickhouse unavailable")
		s.Metrics.IncrementRequests(endpoint, method, "500")
		s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
		http.Error(w, "analytics database unavailable", http.StatusInternalServerError)
		return
	}

	days := 7
	if daysParam := r.URL.Query().Get("days"); daysParam != "" {
		parsedDays, err := strconv.Atoi(daysParam)
		if err != nil || parsedDays <= 0 {
			s.Metrics.IncrementRequests(endpoint, method, "400")
			s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
			http.Error(w, "invalid days parameter", http.StatusBadRequest)
			return
		}
		if parsedDays > 365 {
			parsedDays = 365 // Cap at 365 days
		}
		days = parsedDays
	}

	publisherID := 0
	if pubParam := r.URL.Query().Get("publisher_id"); pubParam != "" {
		id, err := strconv.Atoi(pubParam)
		if err != nil || id <= 0 {
			s.Metrics.IncrementRequests(endpoint, method, "400")
			s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
			http.Error(w, "invalid publisher_id", http.StatusBadRequest)
			return
		}
		if s.DataStore.GetPublisher(id) == nil {
			s.Metrics.IncrementRequests(endpoint, method, "404")
			s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
			http.Error(w, "publisher not found", http.StatusNotFound)
			return
		}
		publisherID = id
	}

	summary, err := reporting.GenerateMediationReport(r.Context(), s.ClickHouseDB, publisherID, days)
	if err != nil {
		s.Logger.Error("failed to generate mediation report",
			zap.Int("publisher_id", publisherID),
			zap.Int("days", days),
			zap.Error(err))
		s.Metrics.IncrementRequests(endpoint, method, "500")
		s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
		http.Error(w, "failed to generate report", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(summary); err != nil {
		s.Logger.Error("failed to encode mediation report response", zap.Error(err))
		s.Metrics.IncrementRequests(endpoint, method, "500")
		s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
		return
	}

	s.Logger.Info("mediation report generated",
		zap.Int("publisher_id", publisherID),
		zap.Int("days", days),
		zap.Int("networks", len(summary.NetworkTotals)))

	s.Metrics.IncrementRequests(endpoint, method, "200")
	s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
}
