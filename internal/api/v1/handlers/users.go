package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/savvyfin/advisor/internal/api/v1/middleware"
	"github.com/savvyfin/advisor/internal/store"
	"github.com/savvyfin/advisor/pkg/httpext"
)

type profileUpdateRequest struct {
	FullName         *string  `json:"full_name"`
	MonthlyIncome    *float64 `json:"monthly_income" validate:"omitempty,gte=0"`
	EmploymentStatus *string  `json:"employment_status"`
	FinancialGoal    *string  `json:"financial_goal"`
	RiskTolerance    *string  `json:"risk_tolerance"`
	PhoneNumber      *string  `json:"phone_number"`
}

// HandleGetProfile returns the caller's profile
func HandleGetProfile(st *store.Store, w http.ResponseWriter, r *http.Request) {
	HandleMe(st, w, r)
}

// HandleUpdateProfile applies a partial profile update; absent fields are left untouched
func HandleUpdateProfile(st *store.Store, w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r)
	if !ok {
		httpext.JsonError(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req profileUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Warn().Err(err).Msg("Client sent malformed profile update")
		httpext.JsonError(w, "Invalid request format", http.StatusBadRequest)
		return
	}

	if err := validate.Struct(req); err != nil {
		jsonValidationError(w, err)
		return
	}

	user, err := st.UpdateUserProfile(r.Context(), userID, store.ProfileUpdate{
		FullName:         req.FullName,
		MonthlyIncome:    req.MonthlyIncome,
		EmploymentStatus: req.EmploymentStatus,
		FinancialGoal:    req.FinancialGoal,
		RiskTolerance:    req.RiskTolerance,
		PhoneNumber:      req.PhoneNumber,
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			httpext.JsonError(w, "User not found", http.StatusNotFound)
			return
		}
		log.Error().Err(err).Msg("Failed to update profile")
		httpext.JsonError(w, "Failed to update profile", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(newUserResponse(user)); err != nil {
		log.Error().Err(err).Msg("Failed to encode profile response")
	}
}
