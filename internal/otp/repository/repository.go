package repository

import (
	"context"
	"time"

	"op-platform/core/internal/otp/domain"
)

// Repository defines durable persistence for OTP records. This is the audit
// and attempt-limiting side of the engine; the live single-use check runs
// against the CodeStore.
type Repository interface {
	// GetActive returns the unused, unexpired record for the tuple, or nil.
	GetActive(ctx context.Context, identifier string, channel domain.Channel, purpose domain.Purpose) (*domain.Record, error)
	// CreateOrRefresh inserts a record for the tuple, or refreshes the active
	// one in place (new code hash and expiry, send_count+1, verify_count reset).
	CreateOrRefresh(ctx context.Context, r *domain.Record) (*domain.Record, error)
	// IncrementVerifyCount atomically bumps the attempt counter and returns the new value.
	IncrementVerifyCount(ctx context.Context, id string) (int, error)
	// MarkUsed consumes the record; an already-used record reports ErrNotFound.
	MarkUsed(ctx context.Context, id string) error
	// MarkUsedByIdentifier consumes every active record for the identifier.
	MarkUsedByIdentifier(ctx context.Context, identifier string) error
	MarkSent(ctx context.Context, id string) error
	// DeleteExpired removes every record past its expiry and returns the count removed.
	DeleteExpired(ctx context.Context) (int64, error)
}

// CodeStore defines the ephemeral side of the engine: TTL-bound codes and the
// counters that throttle resends and verification attempts.
type CodeStore interface {
	// SaveCode stores code for identifier with the given TTL, fully replacing
	// any previous entry, and resets the attempt counter.
	SaveCode(ctx context.Context, identifier, code string, ttl time.Duration) error
	// GetCode returns the stored code, or "" when absent or expired.
	GetCode(ctx context.Context, identifier string) (string, error)
	// ConsumeCode atomically removes the entry and returns the value it held,
	// or "" when already gone.
	ConsumeCode(ctx context.Context, identifier string) (string, error)
	// DeleteCode removes the entry; used for single-use consumption.
	DeleteCode(ctx context.Context, identifier string) error
	// IncrementAttempts bumps the failed-attempt counter for identifier,
	// starting its TTL window on first increment, and returns the new count.
	IncrementAttempts(ctx context.Context, identifier string, window time.Duration) (int64, error)
	// IncrementResend bumps the resend counter for identifier, starting its
	// window on first increment, and returns the new count.
	IncrementResend(ctx context.Context, identifier string, window time.Duration) (int64, error)
	// ResendTTL returns the remaining time of the resend window.
	ResendTTL(ctx context.Context, identifier string) (time.Duration, error)
	// SetCooldown records an attempt-limit lockout for identifier.
	SetCooldown(ctx context.Context, identifier string, ttl time.Duration) error
}
