package circuitbreaker

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// RedisWrapper guards the Redis commands the cache and analytics layers
// use. redis.Nil is a miss, not a breaker failure.
type RedisWrapper struct {
	client *redis.Client
	cb     *Breaker
}

func NewRedisWrapper(client *redis.Client, logger *zap.Logger) *RedisWrapper {
	cb := New("redis", instrument("redis", "cache", RedisConfig()), logger)
	return &RedisWrapper{client: client, cb: cb}
}

func (rw *RedisWrapper) Ping(ctx context.Context) *redis.StatusCmd {
	var result *redis.StatusCmd
	err := rw.cb.Execute(ctx, func() error {
		result = rw.client.Ping(ctx)
		return result.Err()
	})
	recordRequest("redis", "cache", err == nil)
	if err != nil {
		result = redis.NewStatusCmd(ctx)
		result.SetErr(err)
	}
	return result
}

func (rw *RedisWrapper) Get(ctx context.Context, key string) *redis.StringCmd {
	var result *redis.StringCmd
	err := rw.cb.Execute(ctx, func() error {
		result = rw.client.Get(ctx, key)
		if result.Err() == redis.Nil {
			return nil
		}
		return result.Err()
	})
	recordRequest("redis", "cache", err == nil)
	if err != nil {
		result = redis.NewStringCmd(ctx)
		result.SetErr(err)
	}
	return result
}

func (rw *RedisWrapper) MGet(ctx context.Context, keys ...string) *redis.SliceCmd {
	var result *redis.SliceCmd
	err := rw.cb.Execute(ctx, func() error {
		result = rw.client.MGet(ctx, keys...)
		return result.Err()
	})
	recordRequest("redis", "cache", err == nil)
	if err != nil {
		result = redis.NewSliceCmd(ctx)
		result.SetErr(err)
	}
	return result
}

func (rw *RedisWrapper) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	var result *redis.StatusCmd
	err := rw.cb.Execute(ctx, func() error {
		result = rw.client.Set(ctx, key, value, expiration)
		return result.Err()
	})
	recordRequest("redis", "cache", err == nil)
	if err != nil {
		result = redis.NewStatusCmd(ctx)
		result.SetErr(err)
	}
	return result
}

func (rw *RedisWrapper) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	var result *redis.IntCmd
	err := rw.cb.Execute(ctx, func() error {
		result = rw.client.Del(ctx, keys...)
		return result.Err()
	})
	recordRequest("redis", "cache", err == nil)
	if err != nil {
		result = redis.NewIntCmd(ctx)
		result.SetErr(err)
	}
	return result
}

// XAdd appends an analytics event to a stream.
func (rw *RedisWrapper) XAdd(ctx context.Context, args *redis.XAddArgs) *redis.StringCmd {
	var result *redis.StringCmd
	err := rw.cb.Execute(ctx, func() error {
		result = rw.client.XAdd(ctx, args)
		return result.Err()
	})
	recordRequest("redis", "cache", err == nil)
	if err != nil {
		result = redis.NewStringCmd(ctx)
		result.SetErr(err)
	}
	return result
}

// Open reports whether the breaker is currently rejecting commands.
func (rw *RedisWrapper) Open() bool { return rw.cb.State() == StateOpen }

func (rw *RedisWrapper) Close() error { return rw.client.Close() }

// Client returns the raw client for commands the wrapper does not cover.
func (rw *RedisWrapper) Client() *redis.Client { return rw.client }
