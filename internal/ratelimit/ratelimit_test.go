package ratelimit

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWindowKey(t *testing.T) {
	l := NewRedisLimiter(nil, 10, time.Minute)
	base := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	l.now = func() time.Time { return base }
	first := l.windowKey("gate-in-1")
	l.now = func() time.Time { return base.Add(59 * time.Second) }
	assert.Equal(t, first, l.windowKey("gate-in-1"))

	l.now = func() time.Time { return base.Add(time.Minute) }
	assert.NotEqual(t, first, l.windowKey("gate-in-1"))
	assert.NotEqual(t, first, l.windowKey("gate-out-1"))
}

func TestAllow_DisabledWhenLimitZero(t *testing.T) {
	l := NewRedisLimiter(nil, 0, time.Minute)
	ok, err := l.Allow(context.Background(), "gate-in-1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestAllow_FailsOpen(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { client.Close() })

	ok, err := NewRedisLimiter(client, 5, time.Minute).Allow(context.Background(), "gate-in-1")
	assert.Error(t, err)
	assert.True(t, ok)
}

func TestConnect(t *testing.T) {
	c, err := Connect("redis://localhost:6379/2")
	require.NoError(t, err)
	assert.Equal(t, 2, c.Options().DB)
	c.Close()

	c, err = Connect("localhost:6380")
	require.NoError(t, err)
	assert.Equal(t, "localhost:6380", c.Options().Addr)
	c.Close()

	_, err = Connect("redis://%zz")
	assert.Error(t, err)
}

// Runs against a real server when PARKGATE_TEST_REDIS_ADDR is set.
func TestAllow_Redis(t *testing.T) {
	addr := os.Getenv("PARKGATE_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("PARKGATE_TEST_REDIS_ADDR not set")
	}
	client, err := Connect(addr)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	l := NewRedisLimiter(client, 2, time.Minute)
	key := "test-" + time.Now().Format("150405.000000000")
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		ok, err := l.Allow(ctx, key)
		require.NoError(t, err)
		assert.True(t, ok, "request %d", i)
	}
	ok, err := l.Allow(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)
}
