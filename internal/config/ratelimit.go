package config

import (
	"time"

	"github.com/rs/zerolog/log"
)

type RateLimitConfig struct {
	Enabled bool
	MaxHits int
	Window  time.Duration
}

func GetRateLimitConfig(key string) RateLimitConfig {
	enabled := GetEnvOrDefault("RATELIMIT_ENABLED", "false") == "true"

	configs := map[string]RateLimitConfig{
		"global": {
			Enabled: enabled,
			MaxHits: parseEnvInt("RATELIMIT_GLOBAL", 1000), // 1000 requests per minute globally
			Window:  time.Minute,
		},
		"auth_token": {
			Enabled: enabled,
			MaxHits: parseEnvInt("RATELIMIT_AUTH_TOKEN", 30), // 30 requests per minute
			Window:  time.Minute,
		},
		"chat_message": {
			Enabled: enabled,
			MaxHits: parseEnvInt("RATELIMIT_CHAT_MESSAGE", 120), // 120 requests per minute
			Window:  time.Minute,
		},
		"persona_generate": {
			Enabled: enabled,
			MaxHits: parseEnvInt("RATELIMIT_PERSONA_GENERATE", 10), // 10 requests per minute
			Window:  time.Minute,
		},
	}

	if config, exists := configs[key]; exists {
		return config
	}

	log.Warn().Str("key", key).Msg("No rate limit config found for key")
	return RateLimitConfig{Enabled: false}
}
