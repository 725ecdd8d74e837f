package ingest

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultRateLimitKey = "ingest"
	rateLimitWindow     = time.Second
)

// RateLimiter bounds submissions per second across every relay sharing one Redis.
// It uses a sliding window and fails open when Redis is unavailable.
type RateLimiter struct {
	client *redis.Client
	key    string
	limit  int
}

var _ Limiter = (*RateLimiter)(nil)

// NewRateLimiter creates a limiter admitting limit submissions per second; 0 means unlimited.
func NewRateLimiter(client *redis.Client, limit int) *RateLimiter {
	return &RateLimiter{
		client: client,
		key:    defaultRateLimitKey,
		limit:  limit,
	}
}

// WithKey sets the counter name, letting separate relays share a Redis without sharing a limit.
func (rl *RateLimiter) WithKey(key string) *RateLimiter {
	return &RateLimiter{
		client: rl.client,
		key:    key,
		limit:  rl.limit,
	}
}

// Limit returns the configured submissions per second.
func (rl *RateLimiter) Limit() int {
	return rl.limit
}

// Allow records one submission and reports whether it fits in the window.
func (rl *RateLimiter) Allow(ctx context.Context) bool {
	if rl.limit <= 0 {
		return true
	}

	allowed, err := rl.allowSlidingWindow(ctx)
	if err != nil {
		log.Warn("rate limiter unavailable, allowing submission", "error", err)
		return true
	}
	return allowed
}

// Entries older than the window are trimmed before counting.
var slidingWindowScript = redis.NewScript(`
	local key = KEYS[1]
	local now = tonumber(ARGV[1])
	local window = tonumber(ARGV[2])
	local limit = tonumber(ARGV[3])

	redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)

	local count = redis.call('ZCARD', key)
	if count < limit then
		redis.call('ZADD', key, now, now .. '-' .. math.random())
		redis.call('EXPIRE', key, window / 1000 + 1)
		return 1
	end

	return 0
`)

func (rl *RateLimiter) allowSlidingWindow(ctx context.Context) (bool, error) {
	result, err := slidingWindowScript.Run(ctx, rl.client,
		[]string{rateLimitKey(rl.key)},
		time.Now().UnixMilli(),
		rateLimitWindow.Milliseconds(),
		rl.limit,
	).Int()
	if err != nil {
		return false, err
	}
	return result == 1, nil
}

// CurrentRate returns the submissions counted in the current window.
func (rl *RateLimiter) CurrentRate(ctx context.Context) (int64, error) {
	key := rateLimitKey(rl.key)
	cutoff := time.Now().UnixMilli() - rateLimitWindow.Milliseconds()

	pipe := rl.client.Pipeline()
	pipe.ZRemRangeByScore(ctx, key, "-inf", strconv.FormatInt(cutoff, 10))
	count := pipe.ZCard(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return count.Val(), nil
}

// Reset clears the window.
func (rl *RateLimiter) Reset(ctx context.Context) error {
	return rl.client.Del(ctx, rateLimitKey(rl.key)).Err()
}

func rateLimitKey(key string) string {
	return "relayproxy:ratelimit:" + key
}
