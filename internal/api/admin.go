package api

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
)

// helper function to write JSON response
func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// Read-only configuration endpoints. Mediation configuration is mutated in
// Postgres (by the publisher dashboard, outside this service) and picked up
// via /reload; the gateway only exposes inspection.

// ListPublishers handles GET /api/publishers.
func (s *Server) ListPublishers(w http.ResponseWriter, r *http.Request) {
	if s.DataStore == nil {
		http.Error(w, "data store unavailable", http.StatusInternalServerError)
		return
	}
	writeJSON(w, s.DataStore.GetAllPublishers())
}

// ListPlacements handles GET /api/placements.
func (s *Server) ListPlacements(w http.ResponseWriter, r *http.Request) {
	if s.DataStore == nil {
		http.Error(w, "data store unavailable", http.StatusInternalServerError)
		return
	}
	writeJSON(w, s.DataStore.GetAllPlacements())
}

// ListNetworks handles GET /api/networks. Credentials are redacted.
func (s *Server) ListNetworks(w http.ResponseWriter, r *http.Request) {
	if s.DataStore == nil {
		http.Error(w, "data store unavailable", http.StatusInternalServerError)
		return
	}
	networks := s.DataStore.GetAllNetworks()
	for i := range networks {
		networks[i].APIKey = ""
	}
	writeJSON(w, networks)
}

// GetWaterfall handles GET /api/placements/{id}/waterfall: the active
// networks configured for a placement, before per-request eligibility
// checks.
func (s *Server) GetWaterfall(w http.ResponseWriter, r *http.Request) {
	if s.DB == nil {
		http.Error(w, "config unavailable", http.StatusInternalServerError)
		return
	}
	id := mux.Vars(r)["id"]
	if s.DataStore.GetPlacement(id) == nil {
		http.Error(w, "placement not found", http.StatusNotFound)
		return
	}
	networks := s.DB.WaterfallFor(id)
	for i := range networks {
		networks[i].APIKey = ""
	}
	writeJSON(w, networks)
}
