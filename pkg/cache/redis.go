// Package cache holds the Redis-backed snapshot cache and sweep lock.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Config contains the Redis connection settings.
type Config struct {
	Address      string
	Password     string
	Database     int
	PoolSize     int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	KeyPrefix    string
}

// NewClient connects to Redis and verifies the connection.
func NewClient(ctx context.Context, cfg Config) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.Database,
		PoolSize:     cfg.PoolSize,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return rdb, nil
}

func key(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + ":" + name
}

// SnapshotCache stores JSON snapshots with a TTL.
type SnapshotCache struct {
	client redis.Cmdable
	prefix string
	ttl    time.Duration
	logger *zap.Logger
}

func NewSnapshotCache(client redis.Cmdable, prefix string, ttl time.Duration, logger *zap.Logger) *SnapshotCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SnapshotCache{client: client, prefix: prefix, ttl: ttl, logger: logger}
}

// Put stores v under name.
func (c *SnapshotCache) Put(ctx context.Context, name string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot %s: %w", name, err)
	}
	if err := c.client.Set(ctx, key(c.prefix, name), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to store snapshot %s: %w", name, err)
	}
	c.logger.Debug("Snapshot cached", zap.String("name", name), zap.Duration("ttl", c.ttl))
	return nil
}

// Get decodes the snapshot into out. It reports false when nothing is cached.
func (c *SnapshotCache) Get(ctx context.Context, name string, out interface{}) (bool, error) {
	data, err := c.client.Get(ctx, key(c.prefix, name)).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read snapshot %s: %w", name, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return false, fmt.Errorf("failed to decode snapshot %s: %w", name, err)
	}
	return true, nil
}

// releaseScript deletes the lock only if this owner still holds it.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// RedisLocker is a best-effort mutual exclusion across replicas.
type RedisLocker struct {
	client redis.Cmdable
	prefix string
	owner  string
	logger *zap.Logger
}

func NewRedisLocker(client redis.Cmdable, prefix string, logger *zap.Logger) *RedisLocker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisLocker{
		client: client,
		prefix: key(prefix, "lock"),
		owner:  uuid.NewString(),
		logger: logger,
	}
}

// TryLock acquires name for ttl. The returned release func is safe to call
// once the lock has expired.
func (l *RedisLocker) TryLock(ctx context.Context, name string, ttl time.Duration) (func(), bool, error) {
	k := key(l.prefix, name)
	token := l.owner + ":" + uuid.NewString()

	ok, err := l.client.SetNX(ctx, k, token, ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("failed to acquire lock %s: %w", name, err)
	}
	if !ok {
		return nil, false, nil
	}

	release := func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := releaseScript.Run(releaseCtx, l.client, []string{k}, token).Err(); err != nil && !errors.Is(err, redis.Nil) {
			l.logger.Warn("Failed to release lock", zap.String("lock", name), zap.Error(err))
		}
	}
	return release, true, nil
}
