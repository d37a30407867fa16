package config

func GetQlooAPIKey() string {
	return GetEnvOrDefault("QLOO_API_KEY", "")
}

func GetQlooBaseURL() string {
	return GetEnvOrDefault("QLOO_BASE_URL", "https://api.qloo.com")
}
