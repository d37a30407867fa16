package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreRoundTrip(t *testing.T) {
	s := NewService(nil)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "summary:user1", "net worth ₹411753", time.Minute))

	value, found, err := s.Get(ctx, "summary:user1")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "net worth ₹411753", value)

	t.Run("miss", func(t *testing.T) {
		_, found, err := s.Get(ctx, "summary:nobody")
		require.NoError(t, err)
		assert.False(t, found)
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, s.Delete(ctx, "summary:user1"))
		_, found, err := s.Get(ctx, "summary:user1")
		require.NoError(t, err)
		assert.False(t, found)
	})
}

func TestMemoryStoreExpiry(t *testing.T) {
	s := NewService(nil)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "ephemeral", "value", 10*time.Millisecond))

	_, found, err := s.Get(ctx, "ephemeral")
	require.NoError(t, err)
	assert.True(t, found)

	time.Sleep(25 * time.Millisecond)

	_, found, err = s.Get(ctx, "ephemeral")
	require.NoError(t, err)
	assert.False(t, found)
}
