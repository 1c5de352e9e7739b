// Package errs defines the error taxonomy shared by the engines. Services
// return these errors (or types wrapping them); the HTTP layer maps each kind
// to a transport status and a stable machine-readable code.
package errs

import (
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrNotFound is returned when an account, token, or OTP record is absent.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned on duplicate email or identifier.
	ErrConflict = errors.New("already exists")
	// ErrInvalidOrExpired is returned when an OTP does not match or has lapsed.
	ErrInvalidOrExpired = errors.New("code is invalid or has expired")
	// ErrAttemptsExceeded is returned when the verify-count ceiling is hit.
	ErrAttemptsExceeded = errors.New("maximum verification attempts exceeded")
	// ErrUnauthorized is returned for a bad, expired, or revoked token.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrDependencyUnavailable is returned when a store or collaborator call
	// times out or fails to connect. Callers may retry.
	ErrDependencyUnavailable = errors.New("dependency unavailable")
)

// RateLimitedError is returned when a resend or request ceiling is hit.
// RetryAfter is derived from the remaining TTL of the counter window.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited, retry after %s", e.RetryAfter.Round(time.Second))
}

// RateLimited reports whether err is a RateLimitedError and returns it.
func RateLimited(err error) (*RateLimitedError, bool) {
	var rl *RateLimitedError
	if errors.As(err, &rl) {
		return rl, true
	}
	return nil, false
}

// AccountNotActiveError is returned when authentication is attempted against
// an account whose status does not permit it.
type AccountNotActiveError struct {
	Reason string
}

func (e *AccountNotActiveError) Error() string {
	return "account not active: " + e.Reason
}

// Dependency wraps err as ErrDependencyUnavailable, keeping the cause in the
// message for logs. Returns nil if err is nil.
func Dependency(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %v", ErrDependencyUnavailable, err)
}

// IsUniqueViolation reports whether err is a Postgres unique-constraint
// violation (SQLSTATE 23505).
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
