package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLimiterAllowsUpToMax(t *testing.T) {
	limiter := NewLimiter(time.Minute, 3)

	for i := 0; i < 3; i++ {
		assert.True(t, limiter.Allow("203.0.113.9"), "hit %d should pass", i+1)
	}
	assert.False(t, limiter.Allow("203.0.113.9"), "hit over the limit should be denied")
}

func TestLimiterKeysAreIndependent(t *testing.T) {
	limiter := NewLimiter(time.Minute, 1)

	assert.True(t, limiter.Allow("203.0.113.9"))
	assert.False(t, limiter.Allow("203.0.113.9"))
	assert.True(t, limiter.Allow("198.51.100.4"), "a saturated key must not affect others")
}

func TestLimiterWindowExpiry(t *testing.T) {
	limiter := NewLimiter(40*time.Millisecond, 2)

	assert.True(t, limiter.Allow("203.0.113.9"))
	assert.True(t, limiter.Allow("203.0.113.9"))
	assert.False(t, limiter.Allow("203.0.113.9"))

	// Old hits fall out of the window and stop counting
	time.Sleep(50 * time.Millisecond)
	assert.True(t, limiter.Allow("203.0.113.9"))
}

func TestLimiterConcurrentHits(t *testing.T) {
	limiter := NewLimiter(time.Minute, 50)

	allowed := make(chan bool, 100)
	for i := 0; i < 100; i++ {
		go func() {
			allowed <- limiter.Allow("shared")
		}()
	}

	passed := 0
	for i := 0; i < 100; i++ {
		if <-allowed {
			passed++
		}
	}
	assert.Equal(t, 50, passed)
}
