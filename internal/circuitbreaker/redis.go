package circuitbreaker

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

const redisComponent = "embedding-cache"

// RedisWrapper guards the commands the embedding cache issues.
type RedisWrapper struct {
	client *redis.Client
	cb     *Breaker
}

// NewRedisWrapper wraps client with a breaker configured from CB_REDIS_*.
func NewRedisWrapper(client *redis.Client, logger *zap.Logger) *RedisWrapper {
	cb := New(DependencyRedis, SettingsFor(DependencyRedis), logger)
	DefaultRegistry.Register(redisComponent, cb)
	return &RedisWrapper{client: client, cb: cb}
}

// Ping checks connectivity.
func (rw *RedisWrapper) Ping(ctx context.Context) error {
	err := rw.cb.Execute(ctx, func() error {
		return rw.client.Ping(ctx).Err()
	})
	RecordRequest(DependencyRedis, redisComponent, rw.cb.State(), err == nil)
	return err
}

// GetBytes returns the raw value at key. A missing key yields redis.Nil and
// does not count against the breaker.
func (rw *RedisWrapper) GetBytes(ctx context.Context, key string) ([]byte, error) {
	var (
		val    []byte
		getErr error
	)
	err := rw.cb.Execute(ctx, func() error {
		val, getErr = rw.client.Get(ctx, key).Bytes()
		if getErr == redis.Nil {
			return nil
		}
		return getErr
	})
	RecordRequest(DependencyRedis, redisComponent, rw.cb.State(), err == nil)
	if err != nil {
		return nil, err
	}
	return val, getErr
}

// Set stores value with a ttl.
func (rw *RedisWrapper) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	err := rw.cb.Execute(ctx, func() error {
		return rw.client.Set(ctx, key, value, ttl).Err()
	})
	RecordRequest(DependencyRedis, redisComponent, rw.cb.State(), err == nil)
	return err
}

// Del removes keys.
func (rw *RedisWrapper) Del(ctx context.Context, keys ...string) error {
	err := rw.cb.Execute(ctx, func() error {
		return rw.client.Del(ctx, keys...).Err()
	})
	RecordRequest(DependencyRedis, redisComponent, rw.cb.State(), err == nil)
	return err
}

// Close closes the underlying client.
func (rw *RedisWrapper) Close() error {
	return rw.client.Close()
}

// IsOpen reports whether the breaker is currently rejecting calls.
func (rw *RedisWrapper) IsOpen() bool {
	return rw.cb.State() == StateOpen
}
