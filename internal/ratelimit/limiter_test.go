package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"op-platform/core/internal/platform/errs"
)

func newTestLimiter(t *testing.T, limit int, window time.Duration) (*miniredis.Miniredis, *Limiter) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, NewLimiter(client, limit, window)
}

func TestAllowWithinBudget(t *testing.T) {
	_, l := newTestLimiter(t, 3, time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := l.Allow(ctx, "10.0.0.1:/verify"); err != nil {
			t.Fatalf("hit %d: %v", i+1, err)
		}
	}
}

func TestAllowOverBudget(t *testing.T) {
	_, l := newTestLimiter(t, 2, time.Minute)
	ctx := context.Background()

	_ = l.Allow(ctx, "k")
	_ = l.Allow(ctx, "k")

	err := l.Allow(ctx, "k")
	rl, ok := errs.RateLimited(err)
	if !ok {
		t.Fatalf("got %v, want RateLimitedError", err)
	}
	if rl.RetryAfter <= 0 || rl.RetryAfter > time.Minute {
		t.Fatalf("retry-after = %v, want within the window", rl.RetryAfter)
	}
}

func TestKeysAreIndependent(t *testing.T) {
	_, l := newTestLimiter(t, 1, time.Minute)
	ctx := context.Background()

	if err := l.Allow(ctx, "a:/x"); err != nil {
		t.Fatalf("first key: %v", err)
	}
	if err := l.Allow(ctx, "b:/x"); err != nil {
		t.Fatalf("second key must have its own budget: %v", err)
	}
	if err := l.Allow(ctx, "a:/x"); err == nil {
		t.Fatal("first key should be over budget")
	}
}

func TestWindowResets(t *testing.T) {
	mr, l := newTestLimiter(t, 1, time.Minute)
	ctx := context.Background()

	_ = l.Allow(ctx, "k")
	if err := l.Allow(ctx, "k"); err == nil {
		t.Fatal("expected over-budget before the window lapses")
	}

	mr.FastForward(61 * time.Second)

	if err := l.Allow(ctx, "k"); err != nil {
		t.Fatalf("after window reset: %v", err)
	}
}

func TestRedisDownIsDependencyError(t *testing.T) {
	mr, l := newTestLimiter(t, 5, time.Minute)
	mr.Close()

	err := l.Allow(context.Background(), "k")
	if !errors.Is(err, errs.ErrDependencyUnavailable) {
		t.Fatalf("got %v, want ErrDependencyUnavailable", err)
	}
}
