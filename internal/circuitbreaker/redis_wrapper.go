package circuitbreaker

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisWrapper guards the cache calls made by the dashboard. A cache miss
// (redis.Nil) is a successful call.
type RedisWrapper struct {
	client *redis.Client
	cb     *Breaker
	logger *zap.Logger
}

func NewRedisWrapper(client *redis.Client, logger *zap.Logger) *RedisWrapper {
	return &RedisWrapper{
		client: client,
		cb:     New("redis", instrument(RedisConfig()), logger),
		logger: logger,
	}
}

func (rw *RedisWrapper) Ping(ctx context.Context) error {
	return guard(ctx, rw.cb, func() error { return rw.client.Ping(ctx).Err() })
}

// Get returns redis.Nil on a miss.
func (rw *RedisWrapper) Get(ctx context.Context, key string) ([]byte, error) {
	var val []byte
	var miss bool
	err := guard(ctx, rw.cb, func() error {
		var err error
		val, err = rw.client.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			miss = true
			return nil
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	if miss {
		return nil, redis.Nil
	}
	return val, nil
}

func (rw *RedisWrapper) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return guard(ctx, rw.cb, func() error { return rw.client.Set(ctx, key, value, ttl).Err() })
}

func (rw *RedisWrapper) Del(ctx context.Context, keys ...string) error {
	return guard(ctx, rw.cb, func() error { return rw.client.Del(ctx, keys...).Err() })
}

// Client returns the unguarded client.
func (rw *RedisWrapper) Client() *redis.Client { return rw.client }

func (rw *RedisWrapper) IsCircuitBreakerOpen() bool {
	return rw.cb.State() == StateOpen
}
