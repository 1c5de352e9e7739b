package repository

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *RedisCodeStore) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, NewRedisCodeStore(client)
}

func TestRedisCodeStore_SaveReplacesPriorEntry(t *testing.T) {
	ctx := context.Background()
	_, store := newTestRedis(t)

	if err := store.SaveCode(ctx, "a@x.com", "111111", 5*time.Minute); err != nil {
		t.Fatalf("SaveCode: %v", err)
	}
	if err := store.SaveCode(ctx, "a@x.com", "222222", 5*time.Minute); err != nil {
		t.Fatalf("SaveCode: %v", err)
	}

	code, err := store.GetCode(ctx, "a@x.com")
	if err != nil {
		t.Fatalf("GetCode: %v", err)
	}
	if code != "222222" {
		t.Errorf("code = %q, want the replacement %q", code, "222222")
	}
}

func TestRedisCodeStore_ConsumeCodeIsSingleUse(t *testing.T) {
	ctx := context.Background()
	_, store := newTestRedis(t)

	if err := store.SaveCode(ctx, "a@x.com", "123456", 5*time.Minute); err != nil {
		t.Fatalf("SaveCode: %v", err)
	}

	code, err := store.ConsumeCode(ctx, "a@x.com")
	if err != nil {
		t.Fatalf("ConsumeCode: %v", err)
	}
	if code != "123456" {
		t.Errorf("consumed %q, want %q", code, "123456")
	}

	// The first consumer removed the entry, so a second one sees nothing.
	code, err = store.ConsumeCode(ctx, "a@x.com")
	if err != nil {
		t.Fatalf("second ConsumeCode: %v", err)
	}
	if code != "" {
		t.Errorf("second consume = %q, want empty", code)
	}
}

func TestRedisCodeStore_SaveResetsAttempts(t *testing.T) {
	ctx := context.Background()
	_, store := newTestRedis(t)

	if _, err := store.IncrementAttempts(ctx, "a@x.com", time.Minute); err != nil {
		t.Fatalf("IncrementAttempts: %v", err)
	}
	if _, err := store.IncrementAttempts(ctx, "a@x.com", time.Minute); err != nil {
		t.Fatalf("IncrementAttempts: %v", err)
	}
	if err := store.SaveCode(ctx, "a@x.com", "123456", time.Minute); err != nil {
		t.Fatalf("SaveCode: %v", err)
	}

	count, err := store.IncrementAttempts(ctx, "a@x.com", time.Minute)
	if err != nil {
		t.Fatalf("IncrementAttempts: %v", err)
	}
	if count != 1 {
		t.Errorf("attempts after fresh code = %d, want 1", count)
	}
}

func TestRedisCodeStore_GetCodeExpiry(t *testing.T) {
	ctx := context.Background()
	mr, store := newTestRedis(t)

	if err := store.SaveCode(ctx, "a@x.com", "123456", 300*time.Second); err != nil {
		t.Fatalf("SaveCode: %v", err)
	}

	mr.FastForward(301 * time.Second)

	code, err := store.GetCode(ctx, "a@x.com")
	if err != nil {
		t.Fatalf("GetCode: %v", err)
	}
	if code != "" {
		t.Errorf("expired entry should be gone, got %q", code)
	}
}

func TestRedisCodeStore_DeleteCode(t *testing.T) {
	ctx := context.Background()
	_, store := newTestRedis(t)

	if err := store.SaveCode(ctx, "a@x.com", "123456", time.Minute); err != nil {
		t.Fatalf("SaveCode: %v", err)
	}
	if err := store.DeleteCode(ctx, "a@x.com"); err != nil {
		t.Fatalf("DeleteCode: %v", err)
	}
	code, err := store.GetCode(ctx, "a@x.com")
	if err != nil {
		t.Fatalf("GetCode: %v", err)
	}
	if code != "" {
		t.Errorf("deleted entry should be gone, got %q", code)
	}
}

func TestRedisCodeStore_ResendWindow(t *testing.T) {
	ctx := context.Background()
	mr, store := newTestRedis(t)

	for want := int64(1); want <= 3; want++ {
		count, err := store.IncrementResend(ctx, "a@x.com", 5*time.Minute)
		if err != nil {
			t.Fatalf("IncrementResend: %v", err)
		}
		if count != want {
			t.Errorf("resend count = %d, want %d", count, want)
		}
	}

	ttl, err := store.ResendTTL(ctx, "a@x.com")
	if err != nil {
		t.Fatalf("ResendTTL: %v", err)
	}
	if ttl <= 0 || ttl > 5*time.Minute {
		t.Errorf("ResendTTL = %v, want within (0, 5m]", ttl)
	}

	// Window elapses; the counter starts over.
	mr.FastForward(5*time.Minute + time.Second)
	count, err := store.IncrementResend(ctx, "a@x.com", 5*time.Minute)
	if err != nil {
		t.Fatalf("IncrementResend: %v", err)
	}
	if count != 1 {
		t.Errorf("resend count after window = %d, want 1", count)
	}
}

func TestRedisCodeStore_ResendTTLNoWindow(t *testing.T) {
	ctx := context.Background()
	_, store := newTestRedis(t)

	ttl, err := store.ResendTTL(ctx, "nobody@x.com")
	if err != nil {
		t.Fatalf("ResendTTL: %v", err)
	}
	if ttl != 0 {
		t.Errorf("ResendTTL with no window = %v, want 0", ttl)
	}
}
