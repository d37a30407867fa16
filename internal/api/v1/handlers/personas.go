package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/savvyfin/advisor/internal/api/v1/middleware"
	"github.com/savvyfin/advisor/internal/services/advisor/models"
	"github.com/savvyfin/advisor/internal/services/persona"
	"github.com/savvyfin/advisor/internal/store"
	"github.com/savvyfin/advisor/pkg/httpext"
)

type personaResponse struct {
	Profile *models.PersonaSnapshot `json:"profile"`
}

// HandleGetPersona returns the caller's stored persona profile
func HandleGetPersona(personaService *persona.Service, w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r)
	if !ok {
		httpext.JsonError(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	snapshot, err := personaService.Get(r.Context(), userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			httpext.JsonError(w, "No persona profile found", http.StatusNotFound)
			return
		}
		log.Error().Err(err).Msg("Failed to load persona profile")
		httpext.JsonError(w, "Failed to load persona profile", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(personaResponse{Profile: snapshot}); err != nil {
		log.Error().Err(err).Msg("Failed to encode persona response")
	}
}

// HandleGeneratePersona runs the persona pipeline for the caller
func HandleGeneratePersona(personaService *persona.Service, w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r)
	if !ok {
		httpext.JsonError(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	snapshot, err := personaService.Generate(r.Context(), userID)
	if err != nil {
		switch {
		case errors.Is(err, persona.ErrNoSignals):
			httpext.JsonError(w, "Could not generate a Persona Profile for this user. Ensure there are enough transactions.", http.StatusNotFound)
		case errors.Is(err, persona.ErrGeneratorUnavailable):
			httpext.JsonError(w, "Persona generation is unavailable", http.StatusServiceUnavailable)
		default:
			log.Error().Err(err).Str("user_id", userID.String()).Msg("Persona generation failed")
			httpext.JsonError(w, "An internal error occurred while generating the Persona Profile", http.StatusInternalServerError)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(personaResponse{Profile: snapshot}); err != nil {
		log.Error().Err(err).Msg("Failed to encode persona response")
	}
}
