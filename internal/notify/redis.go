package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Stream appends are tiny and best-effort; short timeouts keep a sick Redis
// from holding webhook responses.
const (
	redisDialTimeout = 2 * time.Second
	redisIOTimeout   = 500 * time.Millisecond
	redisPoolSize    = 10
	redisPingTimeout = 2 * time.Second
)

func redisOptions(addr string) *redis.Options {
	return &redis.Options{
		Addr:            addr,
		DialTimeout:     redisDialTimeout,
		ReadTimeout:     redisIOTimeout,
		WriteTimeout:    redisIOTimeout,
		PoolSize:        redisPoolSize,
		ConnMaxIdleTime: 5 * time.Minute,
	}
}

// OpenRedis returns a client for the lifecycle stream after a successful PING.
func OpenRedis(ctx context.Context, addr string) (*redis.Client, error) {
	if addr == "" {
		return nil, errors.New("notify: redis addr is required")
	}
	rdb := redis.NewClient(redisOptions(addr))

	pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("notify: redis ping: %w", err)
	}
	return rdb, nil
}
