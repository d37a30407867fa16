package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/savvyfin/advisor/internal/connections"
	"github.com/savvyfin/advisor/internal/store"
)

type healthResponse struct {
	Status        string `json:"status"`
	Database      string `json:"database"`
	ActiveStreams int    `json:"active_streams"`
}

// HandleHealth reports liveness, database reachability and how many
// response streams are currently running.
func HandleHealth(st *store.Store, manager *connections.Manager, w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:        "healthy",
		Database:      "connected",
		ActiveStreams: manager.ActiveStreams(),
	}

	if err := st.Health(r.Context()); err != nil {
		log.Warn().Err(err).Msg("Database health check failed")
		resp.Status = "degraded"
		resp.Database = "disconnected"
	}

	w.Header().Set("Content-Type", "application/json")
	if resp.Status != "healthy" {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.Error().Err(err).Msg("Failed to encode health response")
	}
}
