package redis

import (
	"context"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
)

// RateLimiter is a fixed-window counter per key. The window starts on the
// first hit and the counter dies with it.
type RateLimiter struct {
	cli    *redis.Client
	limit  int64
	window time.Duration
}

func NewRateLimiter(c *Client, limit int, window time.Duration) *RateLimiter {
	if window <= 0 {
		window = time.Minute
	}
	return &RateLimiter{cli: c.cli, limit: int64(limit), window: window}
}

// Allow counts one hit on key and reports whether it is within the limit.
func (r *RateLimiter) Allow(ctx context.Context, key string) (bool, error) {
	n, _, err := r.hit(ctx, key)
	if err != nil {
		return false, err
	}
	return n <= r.limit, nil
}

// RetryAfter is how long key stays over the limit; zero when it is not.
func (r *RateLimiter) RetryAfter(ctx context.Context, key string) (time.Duration, error) {
	n, err := r.cli.Get(ctx, key).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	if n <= r.limit {
		return 0, nil
	}
	ttl, err := r.cli.PTTL(ctx, key).Result()
	if err != nil || ttl < 0 {
		return 0, err
	}
	return ttl, nil
}

// hit increments and reads the ttl in one round trip. A counter left without
// a ttl, e.g. by a client that died between INCR and PEXPIRE, gets one here.
func (r *RateLimiter) hit(ctx context.Context, key string) (int64, time.Duration, error) {
	var incr *redis.IntCmd
	var pttl *redis.DurationCmd
	_, err := r.cli.TxPipelined(ctx, func(p redis.Pipeliner) error {
		incr = p.Incr(ctx, key)
		pttl = p.PTTL(ctx, key)
		return nil
	})
	if err != nil {
		return 0, 0, err
	}
	ttl := pttl.Val()
	if ttl < 0 {
		if err := r.cli.PExpire(ctx, key, r.window).Err(); err != nil {
			return 0, 0, err
		}
		ttl = r.window
	}
	return incr.Val(), ttl, nil
}

// UserUpdateKey namespaces the inbound update counter of one Telegram user.
func UserUpdateKey(userID int64) string {
	return "rate_limit:" + strconv.FormatInt(userID, 10) + ":updates"
}
