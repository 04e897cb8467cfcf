package ratelimit_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fd1az/quote-engine/internal/ratelimit"
)

func TestLimiter_Burst(t *testing.T) {
	l := ratelimit.New(0.001, 2)

	assert.True(t, l.Allow())
	assert.True(t, l.Allow())
	assert.False(t, l.Allow())
	assert.Greater(t, l.RetryAfter(), time.Second)
}

func TestLimiter_Unlimited(t *testing.T) {
	l := ratelimit.New(0, 0)
	for i := 0; i < 1000; i++ {
		require.True(t, l.Allow())
	}
	assert.Zero(t, l.RetryAfter())
}

func TestLimiter_WaitHonorsContext(t *testing.T) {
	l := ratelimit.New(0.001, 1)
	require.True(t, l.Allow())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.Error(t, l.Wait(ctx))
}

func TestKeyed_SeparateBucketsAndEviction(t *testing.T) {
	k, err := ratelimit.NewKeyed(0.001, 1, 2)
	require.NoError(t, err)

	assert.True(t, k.Allow("10.0.0.1"))
	assert.False(t, k.Allow("10.0.0.1"))
	assert.True(t, k.Allow("10.0.0.2"))
	assert.Same(t, k.Get("10.0.0.2"), k.Get("10.0.0.2"))

	// A third client evicts the least recently used one, which then starts over.
	assert.True(t, k.Allow("10.0.0.3"))
	assert.Equal(t, 2, k.Len())
	assert.True(t, k.Allow("10.0.0.1"))
}
