package redisclient

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

// Client wraps the shared Redis connection. The process holds at most one;
// Get initializes it lazily and returns nil when Redis is not configured.
// Every caller must treat a nil *Client as "feature disabled".
type Client struct {
	rdb *redis.Client
}

var (
	initOnce sync.Once
	shared   *Client
)

// Get returns the process-wide client, initializing it on first call.
// An empty addr disables Redis entirely and Get returns nil.
func Get(addr, password string, db int) *Client {
	initOnce.Do(func() {
		if addr == "" {
			return
		}
		rdb := redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
			DB:       db,
		})

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := rdb.Ping(ctx).Err(); err != nil {
			// Leave shared nil: rate limiting degrades to disabled rather
			// than taking the service down.
			_ = rdb.Close()
			return
		}
		shared = &Client{rdb: rdb}
	})
	return shared
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	if c == nil {
		return nil
	}
	return c.rdb.Close()
}

// Allow counts one hit against scope+key in a fixed one-minute window and
// reports whether the caller is still under limit. Fails open on Redis
// errors: a broken limiter must not reject legitimate webhooks.
func (c *Client) Allow(ctx context.Context, scope, key string, limit int) bool {
	if c == nil || limit <= 0 {
		return true
	}

	bucket := fmt.Sprintf("rl:%s:%s:%d", scope, key, time.Now().Unix()/60)

	pipe := c.rdb.TxPipeline()
	incr := pipe.Incr(ctx, bucket)
	pipe.Expire(ctx, bucket, 2*time.Minute)
	if _, err := pipe.Exec(ctx); err != nil {
		return true
	}

	return incr.Val() <= int64(limit)
}
