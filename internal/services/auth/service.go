package auth

import (
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"

	"github.com/savvyfin/advisor/internal/config"
)

// TokenValidationResult carries the outcome of a bearer token check
type TokenValidationResult struct {
	Valid     bool
	UserID    uuid.UUID
	ExpiresAt time.Time
}

type CustomClaims struct {
	jwt.RegisteredClaims
}

type Service struct {
	tokenLifetime time.Duration
}

func NewService() *Service {
	return &Service{
		tokenLifetime: config.GetAccessTokenLifetime(),
	}
}

func ExtractToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		log.Debug().Msg("No Authorization header found")
		return ""
	}

	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		log.Warn().Str("header", authHeader).Msg("Malformed Authorization header")
		return ""
	}

	return parts[1]
}

// HashPassword derives a bcrypt hash for storage
func (s *Service) HashPassword(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

// VerifyPassword checks a plaintext password against its stored hash
func (s *Service) VerifyPassword(hashedPassword, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(password)) == nil
}

// IssueToken signs an access token for the user. Returns the compact token
// and its lifetime in seconds.
func (s *Service) IssueToken(userID uuid.UUID) (string, int, error) {
	claims := CustomClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(s.tokenLifetime)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ID:        uuid.New().String(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(config.GetJWTSecret())
	if err != nil {
		return "", 0, err
	}

	return tokenString, int(s.tokenLifetime.Seconds()), nil
}

// ValidateToken parses and verifies a bearer token
func ValidateToken(tokenString string) TokenValidationResult {
	result := TokenValidationResult{Valid: false}

	token, err := jwt.ParseWithClaims(tokenString, &CustomClaims{}, func(token *jwt.Token) (interface{}, error) {
		return config.GetJWTSecret(), nil
	})

	if err != nil {
		log.Debug().Err(err).Msg("Failed to parse token")
		return result
	}

	if claims, ok := token.Claims.(*CustomClaims); ok && token.Valid {
		userID, err := uuid.Parse(claims.Subject)
		if err != nil {
			log.Error().Str("subject", claims.Subject).Msg("Token subject is not a user ID")
			return result
		}

		result.Valid = true
		result.UserID = userID
		result.ExpiresAt = claims.ExpiresAt.Time
		return result
	}

	log.Debug().Msg("Invalid token claims")
	return result
}
