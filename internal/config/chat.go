package config

// GetChatModel returns the completion model used for advisory responses
func GetChatModel() string {
	return GetEnvOrDefault("CHAT_MODEL", "gpt-4o")
}

// GetChatMemoryLimit returns how many prior messages are loaded into the
// conversation snapshot before a completion request
func GetChatMemoryLimit() int {
	return parseEnvInt("CHAT_MEMORY_LIMIT", 20)
}

// PersistPartialResponses reports whether partially streamed responses are
// written to the conversation record when a stream aborts or errors.
// When false, only completed responses are persisted.
func PersistPartialResponses() bool {
	return parseEnvBool("CHAT_PERSIST_PARTIAL", true)
}
