package utils

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"uptofetch/internal"
)

// TokenBucketLimiter caps transfer bandwidth using a token bucket. A rate of
// zero or less disables limiting.
type TokenBucketLimiter struct {
	mutex      sync.Mutex
	rate       int64
	bucket     int64
	maxBucket  int64
	lastUpdate time.Time
	now        func() time.Time
}

// NewTokenBucketLimiter creates a new rate limiter
func NewTokenBucketLimiter(bytesPerSecond int64) *TokenBucketLimiter {
	return &TokenBucketLimiter{
		rate:       bytesPerSecond,
		bucket:     bytesPerSecond,
		maxBucket:  bytesPerSecond,
		lastUpdate: time.Now(),
		now:        time.Now,
	}
}

var _ internal.RateLimiter = (*TokenBucketLimiter)(nil)

// Wait blocks until n bytes may be transferred or ctx is done
func (r *TokenBucketLimiter) Wait(ctx context.Context, n int) error {
	wait := r.reserve(int64(n))
	if wait <= 0 {
		return nil
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// reserve takes n tokens, going into debt if needed, and returns how long the
// caller must wait for the debt to be repaid.
func (r *TokenBucketLimiter) reserve(n int64) time.Duration {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if r.rate <= 0 {
		return 0
	}

	now := r.now()
	elapsed := now.Sub(r.lastUpdate)
	r.lastUpdate = now

	r.bucket += int64(elapsed.Seconds() * float64(r.rate))
	if r.bucket > r.maxBucket {
		r.bucket = r.maxBucket
	}

	r.bucket -= n
	if r.bucket >= 0 {
		return 0
	}

	deficit := -r.bucket
	return time.Duration(float64(deficit) / float64(r.rate) * float64(time.Second))
}

// SetRate updates the rate limit
func (r *TokenBucketLimiter) SetRate(bytesPerSecond int64) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	r.rate = bytesPerSecond
	r.maxBucket = bytesPerSecond
	if r.bucket > r.maxBucket {
		r.bucket = r.maxBucket
	}
}

// Rate returns the current limit in bytes per second
func (r *TokenBucketLimiter) Rate() int64 {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.rate
}

var rateLimitPattern = regexp.MustCompile(`^(\d+(?:\.\d+)?)\s*([KMGT]?)(B?)$`)

// ParseRateLimit parses human-readable rate limit strings ("512K", "5M",
// "1.5MB", "2048"). An empty string means unlimited.
func ParseRateLimit(rateStr string) (int64, error) {
	rateStr = strings.ToUpper(strings.TrimSpace(rateStr))
	if rateStr == "" {
		return 0, nil
	}

	matches := rateLimitPattern.FindStringSubmatch(rateStr)
	if matches == nil {
		return 0, fmt.Errorf("invalid rate format: %s (supported: 1024, 512K, 5M, 1.5MB, 1G)", rateStr)
	}

	value, err := strconv.ParseFloat(matches[1], 64)
	if err != nil {
		return 0, fmt.Errorf("invalid numeric value in rate: %s", matches[1])
	}

	multiplier := map[string]float64{
		"":  1,
		"K": 1 << 10,
		"M": 1 << 20,
		"G": 1 << 30,
		"T": 1 << 40,
	}[matches[2]]

	result := value * multiplier
	if result > float64(1<<62) {
		return 0, fmt.Errorf("rate value overflow: %s", rateStr)
	}

	return int64(result), nil
}
