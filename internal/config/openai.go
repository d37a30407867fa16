package config

// GetOpenAIKey returns the OpenAI API key, or an empty string when unset
func GetOpenAIKey() string {
	return GetEnvOrDefault("OPENAI_KEY", "")
}

// GetOpenAIBaseURL returns an override for the OpenAI API endpoint, for
// proxies and API-compatible backends. Empty means the default endpoint.
func GetOpenAIBaseURL() string {
	return GetEnvOrDefault("OPENAI_BASE_URL", "")
}
