package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryCacheExpiry(t *testing.T) {
	c := NewInMemoryCache(0)
	defer c.Close()
	now := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "auth|abc", "user-1", 60))
	v, ok := c.Get(ctx, "auth|abc")
	assert.True(t, ok)
	assert.Equal(t, "user-1", v)

	now = now.Add(61 * time.Second)
	_, ok = c.Get(ctx, "auth|abc")
	assert.False(t, ok)

	c.sweep()
	assert.Equal(t, 0, c.Len())
}

func TestInMemoryCacheDelete(t *testing.T) {
	c := NewInMemoryCache(time.Minute)
	defer c.Close()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", 1, 60))
	require.NoError(t, c.Delete(ctx, "k"))
	_, ok := c.Get(ctx, "k")
	assert.False(t, ok)

	c.Close()
	c.Close()
}
