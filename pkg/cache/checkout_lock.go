package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var ErrLockHeld = errors.New("checkout lock held")

// CheckoutLock serialises checkouts of one user across instances.
type CheckoutLock interface {
	// Acquire takes the lock for userID. It returns ErrLockHeld when another checkout owns it.
	// The returned release func is safe to call once the checkout ends, whatever its outcome.
	Acquire(ctx context.Context, userID int64) (release func(context.Context), err error)
}

// releaseScript deletes the key only while it still carries our token, so an expired lease
// that was re-acquired by another checkout is never released by us.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

type RedisCheckoutLock struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
}

func NewRedisCheckoutLock(client *redis.Client, keyPrefix string, ttl time.Duration) *RedisCheckoutLock {
	return &RedisCheckoutLock{client: client, keyPrefix: keyPrefix, ttl: ttl}
}

func (l *RedisCheckoutLock) Acquire(ctx context.Context, userID int64) (func(context.Context), error) {
	key := fmt.Sprintf("%s:%d", l.keyPrefix, userID)
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire checkout lock: %w", err)
	}
	if !ok {
		return nil, ErrLockHeld
	}
	return func(ctx context.Context) {
		_ = releaseScript.Run(ctx, l.client, []string{key}, token).Err()
	}, nil
}

// NoopCheckoutLock is used when Redis is not configured; concurrent checkouts are not excluded.
type NoopCheckoutLock struct{}

func (NoopCheckoutLock) Acquire(context.Context, int64) (func(context.Context), error) {
	return func(context.Context) {}, nil
}
