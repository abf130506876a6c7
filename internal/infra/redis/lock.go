package redis

import (
	"context"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// ErrLockHeld is returned when another holder owns the key.
var ErrLockHeld = errors.New("lock held elsewhere")

// Locker hands out single-holder leases. Each lease is a random token stored
// under the key with a ttl, so a crashed holder frees the key on its own.
type Locker struct {
	cli *redis.Client
}

func NewLocker(c *Client) *Locker {
	return &Locker{cli: c.cli}
}

// TryLock makes one attempt at key and returns the token that releases it.
func (l *Locker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, error) {
	token := uuid.NewString()
	ok, err := l.cli.SetNX(ctx, key, token, ttl).Result()
	switch {
	case err != nil:
		return "", err
	case !ok:
		return "", ErrLockHeld
	}
	return token, nil
}

// releaseScript deletes KEYS[1] only while it still holds ARGV[1].
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) ~= ARGV[1] then return 0 end
return redis.call("DEL", KEYS[1])`)

// Unlock releases key if token still owns it. A lease that already lapsed or
// moved to another holder is left alone and is not an error.
func (l *Locker) Unlock(ctx context.Context, key, token string) error {
	return releaseScript.Run(ctx, l.cli, []string{key}, token).Err()
}
