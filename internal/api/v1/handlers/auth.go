package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"

	"github.com/savvyfin/advisor/internal/api/v1/middleware"
	"github.com/savvyfin/advisor/internal/services/auth"
	"github.com/savvyfin/advisor/internal/store"
	"github.com/savvyfin/advisor/pkg/httpext"
)

// single validator instance shared by all handlers, it caches struct info
var validate = validator.New(validator.WithRequiredStructEnabled())

// jsonValidationError reports a rejected request body with the validator's
// explanation carried in the description field
func jsonValidationError(w http.ResponseWriter, err error) {
	httpext.JsonErrorWithDetails(w, http.StatusBadRequest, httpext.ErrorResponse{
		Error:            "Invalid request",
		ErrorDescription: err.Error(),
	})
}

type registerRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
	FullName string `json:"full_name" validate:"required"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

type userResponse struct {
	ID               string    `json:"id"`
	Email            string    `json:"email"`
	FullName         string    `json:"full_name"`
	MonthlyIncome    float64   `json:"monthly_income"`
	EmploymentStatus string    `json:"employment_status"`
	FinancialGoal    string    `json:"financial_goal"`
	RiskTolerance    string    `json:"risk_tolerance"`
	PhoneNumber      string    `json:"phone_number"`
	CreatedAt        time.Time `json:"created_at"`
}

func newUserResponse(user *store.User) userResponse {
	return userResponse{
		ID:               user.ID.String(),
		Email:            user.Email,
		FullName:         user.FullName,
		MonthlyIncome:    user.MonthlyIncome,
		EmploymentStatus: user.EmploymentStatus,
		FinancialGoal:    user.FinancialGoal,
		RiskTolerance:    user.RiskTolerance,
		PhoneNumber:      user.PhoneNumber,
		CreatedAt:        user.CreatedAt,
	}
}

// HandleRegister creates a new account
func HandleRegister(authService *auth.Service, st *store.Store, w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Warn().Err(err).Msg("Client sent malformed registration request")
		httpext.JsonError(w, "Invalid request format", http.StatusBadRequest)
		return
	}

	if err := validate.Struct(req); err != nil {
		log.Warn().Err(err).Msg("Registration validation failed")
		jsonValidationError(w, err)
		return
	}

	hashed, err := authService.HashPassword(req.Password)
	if err != nil {
		log.Error().Err(err).Msg("Failed to hash password")
		httpext.JsonError(w, "Failed to register user", http.StatusInternalServerError)
		return
	}

	user, err := st.CreateUser(r.Context(), req.Email, hashed, req.FullName)
	if err != nil {
		if errors.Is(err, store.ErrDuplicateEmail) {
			httpext.JsonError(w, "Email already registered", http.StatusBadRequest)
			return
		}
		log.Error().Err(err).Msg("Failed to create user")
		httpext.JsonError(w, "Failed to register user", http.StatusInternalServerError)
		return
	}

	log.Info().Str("user_id", user.ID.String()).Msg("Registered new user")

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(newUserResponse(user)); err != nil {
		log.Error().Err(err).Msg("Failed to encode registration response")
	}
}

// HandleLogin verifies credentials and issues an access token
func HandleLogin(authService *auth.Service, st *store.Store, w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Warn().Err(err).Msg("Client sent malformed login request")
		httpext.JsonError(w, "Invalid request format", http.StatusBadRequest)
		return
	}

	if err := validate.Struct(req); err != nil {
		jsonValidationError(w, err)
		return
	}

	user, err := st.GetUserByEmail(r.Context(), req.Email)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			log.Error().Err(err).Msg("Failed to look up user for login")
		}
		// Identical response for unknown email and bad password
		httpext.JsonError(w, "Incorrect email or password", http.StatusUnauthorized)
		return
	}

	if !authService.VerifyPassword(user.HashedPassword, req.Password) {
		httpext.JsonError(w, "Incorrect email or password", http.StatusUnauthorized)
		return
	}

	token, expiresIn, err := authService.IssueToken(user.ID)
	if err != nil {
		log.Error().Err(err).Msg("Failed to sign access token")
		httpext.JsonError(w, "Failed to issue token", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(tokenResponse{
		AccessToken: token,
		TokenType:   "bearer",
		ExpiresIn:   expiresIn,
	}); err != nil {
		log.Error().Err(err).Msg("Failed to encode token response")
	}
}

// HandleMe returns the account behind the presented token
func HandleMe(st *store.Store, w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r)
	if !ok {
		httpext.JsonError(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	user, err := st.GetUserByID(r.Context(), userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			httpext.JsonError(w, "User not found", http.StatusNotFound)
			return
		}
		log.Error().Err(err).Msg("Failed to load current user")
		httpext.JsonError(w, "Failed to load user", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(newUserResponse(user)); err != nil {
		log.Error().Err(err).Msg("Failed to encode user response")
	}
}
