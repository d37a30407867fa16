package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/savvyfin/advisor/internal/services/auth"
	"github.com/savvyfin/advisor/pkg/httpext"
)

type contextKey string

const (
	tokenValidationKey contextKey = "tokenValidation"
)

func RequireAuth() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString := auth.ExtractToken(r)
			if tokenString == "" {
				httpext.JsonError(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			validation := auth.ValidateToken(tokenString)
			if !validation.Valid {
				httpext.JsonError(w, "Invalid token", http.StatusUnauthorized)
				return
			}

			// Store validation result in context
			ctx := context.WithValue(r.Context(), tokenValidationKey, &validation)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetUserID retrieves the authenticated user ID from the request context
func GetUserID(r *http.Request) (uuid.UUID, bool) {
	if validation, ok := r.Context().Value(tokenValidationKey).(*auth.TokenValidationResult); ok {
		return validation.UserID, true
	}
	return uuid.Nil, false
}
