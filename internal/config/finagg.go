package config

func GetFinAggBaseURL() string {
	return GetEnvOrDefault("FINAGG_BASE_URL", "")
}
