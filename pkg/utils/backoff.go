package utils

import (
	"math"
	"math/rand"
	"time"
)

// CalculateExponentialBackoffWithJitter computes a jittered exponential backoff delay.
// - count: Retry attempt number (1-based, e.g., 1 for first retry)
// - base: Base delay (e.g., 200 * time.Millisecond)
// - max: Maximum allowable delay (e.g., 2 * time.Second)
func CalculateExponentialBackoffWithJitter(count int, base time.Duration, max time.Duration) time.Duration {
	if count <= 0 || base <= 0 {
		return 0
	}

	// Exponential backoff: base * 2^(count-1), computed in float64 so large counts cannot overflow
	baseDelay := max
	if f := float64(base) * math.Pow(2, float64(count-1)); f < float64(max) {
		baseDelay = time.Duration(f)
	}

	// Jitter in [-12.5%, +12.5%] to avoid synchronised retries
	if spread := int64(baseDelay / 4); spread > 0 {
		baseDelay += time.Duration(rand.Int63n(spread)) - baseDelay/8
	}

	if baseDelay > max {
		baseDelay = max
	}
	return baseDelay
}
