package auth

import (
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/savvyfin/advisor/internal/config"
)

func TestPasswordHashing(t *testing.T) {
	s := NewService()

	hashed, err := s.HashPassword("correct horse battery staple")
	require.NoError(t, err)
	assert.NotEqual(t, "correct horse battery staple", hashed)

	assert.True(t, s.VerifyPassword(hashed, "correct horse battery staple"))
	assert.False(t, s.VerifyPassword(hashed, "wrong password"))
}

func TestIssueAndValidateToken(t *testing.T) {
	restore := config.SetJWTSecret([]byte("test-secret-key"))
	defer restore()

	s := NewService()
	userID := uuid.New()

	tokenString, expiresIn, err := s.IssueToken(userID)
	require.NoError(t, err)
	assert.NotEmpty(t, tokenString)
	assert.Greater(t, expiresIn, 0)

	result := ValidateToken(tokenString)
	assert.True(t, result.Valid)
	assert.Equal(t, userID, result.UserID)
	assert.True(t, result.ExpiresAt.After(time.Now()))
}

func TestValidateTokenRejectsGarbage(t *testing.T) {
	restore := config.SetJWTSecret([]byte("test-secret-key"))
	defer restore()

	tests := []struct {
		name  string
		token string
	}{
		{name: "empty", token: ""},
		{name: "not a jwt", token: "definitely-not-a-token"},
		{name: "wrong signature", token: "eyJhbGciOiJIUzI1NiIsInR5cCI6IkpXVCJ9.eyJzdWIiOiIxMjM0NTY3ODkwIn0.invalid"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ValidateToken(tt.token)
			assert.False(t, result.Valid)
		})
	}
}

func TestValidateTokenRejectsForeignSecret(t *testing.T) {
	restore := config.SetJWTSecret([]byte("signing-secret"))
	s := NewService()
	tokenString, _, err := s.IssueToken(uuid.New())
	require.NoError(t, err)
	restore()

	restore = config.SetJWTSecret([]byte("different-secret"))
	defer restore()

	result := ValidateToken(tokenString)
	assert.False(t, result.Valid)
}

func TestExtractToken(t *testing.T) {
	tests := []struct {
		name     string
		header   string
		expected string
	}{
		{name: "valid bearer", header: "Bearer abc123", expected: "abc123"},
		{name: "missing header", header: "", expected: ""},
		{name: "wrong scheme", header: "Basic abc123", expected: ""},
		{name: "no token part", header: "Bearer", expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := http.NewRequest("GET", "/api/v1/users/me", nil)
			require.NoError(t, err)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}

			assert.Equal(t, tt.expected, ExtractToken(req))
		})
	}
}
