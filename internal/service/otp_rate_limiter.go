package service

import (
	"context"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// OTPRateLimiter gates OTP reissue per normalized email address.
type OTPRateLimiter interface {
	Allow(key string) bool
}

// INCR+EXPIRE as one script so the window starts atomically with the first hit.
const otpAllowScript = `
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("EXPIRE", KEYS[1], ARGV[1])
end
return current
`

type redisOTPRateLimiter struct {
	client redisEvaler
	window time.Duration
	max    int
	prefix string
}

type redisEvaler interface {
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd
}

// NewRedisOTPRateLimiter allows at most max OTP sends per window and key.
// A nil client yields a nil limiter, which allows everything: Redis is an
// optional dependency.
func NewRedisOTPRateLimiter(client *redis.Client, window time.Duration, max int) OTPRateLimiter {
	if client == nil {
		return nil
	}
	if window <= 0 {
		window = time.Minute
	}
	if max <= 0 {
		max = 1
	}
	return &redisOTPRateLimiter{
		client: client,
		window: window,
		max:    max,
		prefix: "otp:rl:",
	}
}

func (l *redisOTPRateLimiter) Allow(key string) bool {
	normalized := strings.ToLower(strings.TrimSpace(key))
	if normalized == "" {
		return false
	}

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	seconds := int(l.window.Seconds())
	count, err := l.client.Eval(ctx, otpAllowScript, []string{l.prefix + normalized}, seconds).Int()
	if err != nil {
		// Fail open: a Redis outage should not block verification mail.
		return true
	}
	return count <= l.max
}
