package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestKey(t *testing.T) {
	assert.Equal(t, "stats", key("", "stats"))
	assert.Equal(t, "optimizer:stats", key("optimizer", "stats"))
}

// redisClient connects to OPTIMIZER_TEST_REDIS_ADDR or skips.
func redisClient(t *testing.T) *redis.Client {
	addr := os.Getenv("OPTIMIZER_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("OPTIMIZER_TEST_REDIS_ADDR not set")
	}
	client, err := NewClient(context.Background(), Config{Address: addr})
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return client
}

func TestSnapshotCacheRoundTrip(t *testing.T) {
	client := redisClient(t)
	ctx := context.Background()
	c := NewSnapshotCache(client, "optimizer-test-"+t.Name(), time.Minute, zap.NewNop())

	var missing map[string]int
	found, err := c.Get(ctx, "absent", &missing)
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, c.Put(ctx, "stats", map[string]int{"profiles": 3}))
	var got map[string]int
	found, err = c.Get(ctx, "stats", &got)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 3, got["profiles"])
}

func TestRedisLockerExcludes(t *testing.T) {
	client := redisClient(t)
	ctx := context.Background()
	prefix := "optimizer-test-" + t.Name()

	a := NewRedisLocker(client, prefix, zap.NewNop())
	b := NewRedisLocker(client, prefix, zap.NewNop())

	release, ok, err := a.TryLock(ctx, "sweep", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = b.TryLock(ctx, "sweep", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	release()
	releaseB, ok, err := b.TryLock(ctx, "sweep", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
	releaseB()
}
