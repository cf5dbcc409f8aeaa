package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

type fakeEvaler struct {
	counts map[string]int64
	err    error

	lastKey string
}

func (f *fakeEvaler) Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd {
	cmd := redis.NewCmd(ctx)
	if f.err != nil {
		cmd.SetErr(f.err)
		return cmd
	}
	f.lastKey = keys[0]
	f.counts[keys[0]]++
	cmd.SetVal(f.counts[keys[0]])
	return cmd
}

func newFakeLimiter(evaler *fakeEvaler, max int) *redisOTPRateLimiter {
	return &redisOTPRateLimiter{client: evaler, window: time.Minute, max: max, prefix: "otp:rl:"}
}

func TestRedisOTPRateLimiter_AllowWithinBudget(t *testing.T) {
	evaler := &fakeEvaler{counts: map[string]int64{}}
	limiter := newFakeLimiter(evaler, 2)

	if !limiter.Allow("alice@example.com") {
		t.Error("first call should be allowed")
	}
	if !limiter.Allow("alice@example.com") {
		t.Error("second call should be allowed")
	}
	if limiter.Allow("alice@example.com") {
		t.Error("third call should be throttled")
	}

	// Other keys have their own budget.
	if !limiter.Allow("bob@example.com") {
		t.Error("a different email must not share the window")
	}
}

func TestRedisOTPRateLimiter_NormalizesKey(t *testing.T) {
	evaler := &fakeEvaler{counts: map[string]int64{}}
	limiter := newFakeLimiter(evaler, 1)

	limiter.Allow("  Alice@Example.COM  ")
	if evaler.lastKey != "otp:rl:alice@example.com" {
		t.Errorf("key = %q, want normalized lowercase", evaler.lastKey)
	}

	if limiter.Allow("") {
		t.Error("empty key must be rejected")
	}
}

func TestRedisOTPRateLimiter_FailsOpen(t *testing.T) {
	evaler := &fakeEvaler{err: errors.New("redis: connection refused")}
	limiter := newFakeLimiter(evaler, 1)

	if !limiter.Allow("alice@example.com") {
		t.Error("a Redis outage must not block OTP delivery")
	}
}

func TestNewRedisOTPRateLimiter_NilClient(t *testing.T) {
	if limiter := NewRedisOTPRateLimiter(nil, time.Minute, 1); limiter != nil {
		t.Error("nil client should yield a nil limiter")
	}
}
