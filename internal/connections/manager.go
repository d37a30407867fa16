package connections

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// TimeoutConfig holds the various timeout settings for WebSocket connections
type TimeoutConfig struct {
	PongWait   time.Duration
	PingPeriod time.Duration
	WriteWait  time.Duration
}

// DefaultTimeouts provides sensible default timeout values
var DefaultTimeouts = TimeoutConfig{
	PongWait:   30 * time.Second,
	PingPeriod: 27 * time.Second, // (PongWait * 9) / 10
	WriteWait:  10 * time.Second,
}

// StreamInfo describes one in-flight response stream
type StreamInfo struct {
	UserID    uuid.UUID
	Transport string
	StartedAt time.Time
}

// Manager tracks in-flight response streams across transports. Handlers
// register a stream when generation starts and release it when the
// response has been finalized, so health reporting can count live streams.
type Manager struct {
	streams  sync.Map
	timeouts TimeoutConfig
}

// NewManager creates a stream registry with the specified timeouts
func NewManager(timeouts TimeoutConfig) *Manager {
	return &Manager{
		timeouts: timeouts,
	}
}

// Register records a new stream and returns its handle
func (m *Manager) Register(userID uuid.UUID, transport string) uuid.UUID {
	id := uuid.New()
	m.streams.Store(id, StreamInfo{
		UserID:    userID,
		Transport: transport,
		StartedAt: time.Now(),
	})
	return id
}

// Release removes a finished stream
func (m *Manager) Release(id uuid.UUID) {
	m.streams.Delete(id)
}

// ActiveStreams returns the number of streams currently running
func (m *Manager) ActiveStreams() int {
	count := 0
	m.streams.Range(func(key, value interface{}) bool {
		count++
		return true
	})
	return count
}

// Contains reports whether a stream handle is still registered
func (m *Manager) Contains(id uuid.UUID) bool {
	_, exists := m.streams.Load(id)
	return exists
}

// GetTimeouts returns the current timeout configuration
func (m *Manager) GetTimeouts() TimeoutConfig {
	return m.timeouts
}
