package config

import "time"

// GetPersonaCacheTTL returns how long generated persona snapshots stay cached
func GetPersonaCacheTTL() time.Duration {
	return parseEnvDuration("PERSONA_CACHE_TTL", time.Hour)
}
