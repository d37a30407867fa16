package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/savvyfin/advisor/internal/api/v1/middleware"
	"github.com/savvyfin/advisor/internal/services/insight"
	"github.com/savvyfin/advisor/internal/store"
	"github.com/savvyfin/advisor/pkg/httpext"
)

type insightsResponse struct {
	Success  bool              `json:"success"`
	Insights *insight.Insights `json:"insights,omitempty"`
	Message  string            `json:"message"`
}

type summaryResponse struct {
	Success          bool   `json:"success"`
	FinancialSummary string `json:"financial_summary,omitempty"`
	Message          string `json:"message"`
	SetupRequired    bool   `json:"setup_required,omitempty"`
	Error            string `json:"error,omitempty"`
}

type setupRequest struct {
	PhoneNumber string `json:"phone_number" validate:"required"`
}

type setupResponse struct {
	Success         bool     `json:"success"`
	Message         string   `json:"message"`
	PhoneNumber     string   `json:"phone_number"`
	FeaturesEnabled []string `json:"features_enabled,omitempty"`
	Note            string   `json:"note,omitempty"`
}

// HandleGetInsights serves the structured financial analysis
func HandleGetInsights(insightService *insight.Service, w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r)
	if !ok {
		httpext.JsonError(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	insights, err := insightService.Insights(r.Context(), userID)
	if err != nil {
		writeInsightError(w, err, "Failed to generate financial insights")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(insightsResponse{
		Success:  true,
		Insights: insights,
		Message:  "Financial insights generated successfully",
	}); err != nil {
		log.Error().Err(err).Msg("Failed to encode insights response")
	}
}

// HandleGetFinancialSummary serves the prompt-ready financial context
func HandleGetFinancialSummary(insightService *insight.Service, w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r)
	if !ok {
		httpext.JsonError(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	w.Header().Set("Content-Type", "application/json")

	summary, err := insightService.Summary(r.Context(), userID)
	if err != nil {
		var resp summaryResponse
		switch {
		case errors.Is(err, insight.ErrNoPhoneNumber), errors.Is(err, insight.ErrNotConfigured):
			resp = summaryResponse{
				Success:       false,
				Message:       "Financial data integration is not set up. Please add your phone number first.",
				SetupRequired: true,
			}
		case errors.Is(err, store.ErrNotFound):
			httpext.JsonError(w, "User not found", http.StatusNotFound)
			return
		default:
			log.Warn().Err(err).Str("user_id", userID.String()).Msg("Failed to retrieve financial summary")
			resp = summaryResponse{
				Success: false,
				Message: "Unable to retrieve financial data",
				Error:   "aggregator_connection_failed",
			}
		}
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			log.Error().Err(err).Msg("Failed to encode summary response")
		}
		return
	}

	if err := json.NewEncoder(w).Encode(summaryResponse{
		Success:          true,
		FinancialSummary: summary,
		Message:          "Financial summary retrieved successfully",
	}); err != nil {
		log.Error().Err(err).Msg("Failed to encode summary response")
	}
}

// HandleGetInsightStatus reports aggregator availability for the caller
func HandleGetInsightStatus(insightService *insight.Service, w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r)
	if !ok {
		httpext.JsonError(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	status, err := insightService.Status(r.Context(), userID)
	if err != nil {
		writeInsightError(w, err, "Failed to check integration status")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(status); err != nil {
		log.Error().Err(err).Msg("Failed to encode status response")
	}
}

// HandleSetupInsights links a phone number and verifies it against the aggregator
func HandleSetupInsights(insightService *insight.Service, w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r)
	if !ok {
		httpext.JsonError(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req setupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpext.JsonError(w, "Invalid request format", http.StatusBadRequest)
		return
	}
	if err := validate.Struct(req); err != nil {
		jsonValidationError(w, err)
		return
	}

	authenticated, err := insightService.Setup(r.Context(), userID, req.PhoneNumber)
	if err != nil {
		writeInsightError(w, err, "Failed to set up financial data integration")
		return
	}

	resp := setupResponse{
		Success:     authenticated,
		PhoneNumber: req.PhoneNumber,
	}
	if authenticated {
		resp.Message = "Financial data integration set up successfully"
		resp.FeaturesEnabled = []string{
			"Enhanced financial insights",
			"Real-time portfolio data",
			"Personalized investment advice",
			"Credit score integration",
		}
	} else {
		resp.Message = "Phone number updated but aggregator authentication failed"
		resp.Note = "Please ensure this phone number is registered with the aggregator"
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.Error().Err(err).Msg("Failed to encode setup response")
	}
}

func writeInsightError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, insight.ErrNotConfigured):
		httpext.JsonError(w, "Financial aggregator integration is not configured", http.StatusServiceUnavailable)
	case errors.Is(err, insight.ErrNoPhoneNumber):
		httpext.JsonError(w, "Phone number required for financial data integration", http.StatusBadRequest)
	case errors.Is(err, store.ErrNotFound):
		httpext.JsonError(w, "User not found", http.StatusNotFound)
	default:
		log.Error().Err(err).Msg(fallback)
		httpext.JsonError(w, fallback, http.StatusInternalServerError)
	}
}
