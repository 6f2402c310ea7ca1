package api

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisClient is the slice of the redis client the rate limiters use. Poll
// data never goes through here; redis only backs request accounting.
type RedisClient interface {
	Incr(ctx context.Context, key string) *redis.IntCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
	Pipeline() redis.Pipeliner
}
