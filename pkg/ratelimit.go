package pkg

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// maxLocalBuckets bounds the per-user map; full (idle) buckets are dropped past it.
const maxLocalBuckets = 10000

// CheckoutLimiter combines a local per-user rate.Limiter with a per-user Redis counter.
// The local bucket throttles a user on this instance, the Redis window caps the same user across instances.
// A zero rate disables both checks.
type CheckoutLimiter struct {
	mu          sync.Mutex
	buckets     map[int64]*rate.Limiter
	ratePerSec  rate.Limit
	burst       int
	redisClient *redis.Client // nil disables the distributed check
	keyPrefix   string        // e.g: "order-api:checkout"
	window      time.Duration // counter expiry, e.g: 1m
	perUser     int64         // max checkouts per user per window
	logger      *zap.Logger
}

// NewCheckoutLimiter creates a limiter; if ratePerSec=0, it's unlimited.
func NewCheckoutLimiter(redisClient *redis.Client, keyPrefix string, ratePerSec, burst int, window time.Duration, logger *zap.Logger) *CheckoutLimiter {
	return &CheckoutLimiter{
		buckets:     make(map[int64]*rate.Limiter),
		ratePerSec:  rate.Limit(ratePerSec),
		burst:       burst,
		redisClient: redisClient,
		keyPrefix:   keyPrefix,
		window:      window,
		perUser:     int64(burst),
		logger:      logger,
	}
}

// Allow reports whether userID may start another checkout now.
func (l *CheckoutLimiter) Allow(ctx context.Context, userID int64) bool {
	if l.ratePerSec <= 0 {
		return true // Unlimited
	}

	// Local check first (fast path)
	if !l.bucket(userID).Allow() {
		return false
	}
	if l.redisClient == nil {
		return true
	}

	key := fmt.Sprintf("%s:%d", l.keyPrefix, userID)
	pipe := l.redisClient.Pipeline()
	incr := pipe.Incr(ctx, key)
	pipe.ExpireNX(ctx, key, l.window)
	if _, err := pipe.Exec(ctx); err != nil {
		l.logger.Error("redis rate limit error; falling back to local", zap.Error(err))
		return true
	}

	if count := incr.Val(); count > l.perUser {
		l.logger.Warn("checkout rate limit exceeded", zap.Int64(UserId, userID), zap.Int64("count", count))
		return false
	}
	return true
}

func (l *CheckoutLimiter) bucket(userID int64) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	if b, ok := l.buckets[userID]; ok {
		return b
	}
	if len(l.buckets) >= maxLocalBuckets {
		now := time.Now()
		for id, b := range l.buckets {
			// A refilled bucket behaves exactly like a new one.
			if b.TokensAt(now) >= float64(l.burst) {
				delete(l.buckets, id)
			}
		}
	}
	b := rate.NewLimiter(l.ratePerSec, l.burst)
	l.buckets[userID] = b
	return b
}
