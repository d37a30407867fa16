package config

// GetServerAddr returns the address the HTTP server binds to
func GetServerAddr() string {
	return GetEnvOrDefault("SERVER_ADDR", ":8080")
}
