package repository

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"op-platform/core/internal/platform/errs"
)

const (
	codeKeyPrefix     = "otp:code:"
	attemptsKeyPrefix = "otp:attempts:"
	resendKeyPrefix   = "otp:resend:"
	cooldownKeyPrefix = "otp:failed:"
)

// RedisCodeStore is the live, single-use side of OTP storage: one TTL-bound
// entry per identifier plus the resend and attempt counters.
type RedisCodeStore struct {
	client *redis.Client
}

// NewRedisCodeStore returns a CodeStore backed by the given Redis client.
func NewRedisCodeStore(client *redis.Client) *RedisCodeStore {
	return &RedisCodeStore{client: client}
}

// SaveCode stores code under the identifier with the given TTL. A single SET
// fully replaces any prior value and TTL, so at most one entry exists per
// identifier. The attempt counter is reset alongside: a fresh code grants a
// fresh attempt budget.
func (s *RedisCodeStore) SaveCode(ctx context.Context, identifier, code string, ttl time.Duration) error {
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, codeKeyPrefix+identifier, code, ttl)
	pipe.Del(ctx, attemptsKeyPrefix+identifier)
	if _, err := pipe.Exec(ctx); err != nil {
		return errs.Dependency(err)
	}
	return nil
}

// GetCode returns the stored code, or "" when the entry is absent or expired.
func (s *RedisCodeStore) GetCode(ctx context.Context, identifier string) (string, error) {
	val, err := s.client.Get(ctx, codeKeyPrefix+identifier).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", nil
		}
		return "", errs.Dependency(err)
	}
	return val, nil
}

// ConsumeCode removes the entry and returns the value it held, or "" when the
// entry was already gone. GETDEL makes read-and-remove one operation, so of
// two concurrent consumers exactly one sees the code.
func (s *RedisCodeStore) ConsumeCode(ctx context.Context, identifier string) (string, error) {
	val, err := s.client.GetDel(ctx, codeKeyPrefix+identifier).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", nil
		}
		return "", errs.Dependency(err)
	}
	return val, nil
}

// DeleteCode removes the entry, enforcing single use.
func (s *RedisCodeStore) DeleteCode(ctx context.Context, identifier string) error {
	if err := s.client.Del(ctx, codeKeyPrefix+identifier).Err(); err != nil {
		return errs.Dependency(err)
	}
	return nil
}

// IncrementAttempts bumps the failed-attempt counter. The window TTL is set
// atomically with the first increment, so two concurrent failures cannot both
// observe count 1.
func (s *RedisCodeStore) IncrementAttempts(ctx context.Context, identifier string, window time.Duration) (int64, error) {
	return s.fixedWindowIncr(ctx, attemptsKeyPrefix+identifier, window)
}

// IncrementResend bumps the resend counter for the identifier's cooldown window.
func (s *RedisCodeStore) IncrementResend(ctx context.Context, identifier string, window time.Duration) (int64, error) {
	return s.fixedWindowIncr(ctx, resendKeyPrefix+identifier, window)
}

// ResendTTL returns the remaining time of the resend window; zero when no
// window is open.
func (s *RedisCodeStore) ResendTTL(ctx context.Context, identifier string) (time.Duration, error) {
	ttl, err := s.client.TTL(ctx, resendKeyPrefix+identifier).Result()
	if err != nil {
		return 0, errs.Dependency(err)
	}
	if ttl < 0 {
		return 0, nil
	}
	return ttl, nil
}

// SetCooldown records an attempt-limit lockout for the identifier.
func (s *RedisCodeStore) SetCooldown(ctx context.Context, identifier string, ttl time.Duration) error {
	key := cooldownKeyPrefix + identifier
	pipe := s.client.TxPipeline()
	pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return errs.Dependency(err)
	}
	return nil
}

func (s *RedisCodeStore) fixedWindowIncr(ctx context.Context, key string, window time.Duration) (int64, error) {
	count, err := s.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, errs.Dependency(err)
	}
	if count == 1 {
		if err := s.client.Expire(ctx, key, window).Err(); err != nil {
			return 0, errs.Dependency(err)
		}
	}
	return count, nil
}
