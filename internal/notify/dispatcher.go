// Package notify delivers OTP codes out of band. Dispatch is best effort:
// a delivery failure never rolls back issuance.
package notify

import "context"

// Dispatcher sends a one-time code to a destination (email address or phone number).
type Dispatcher interface {
	SendCode(ctx context.Context, destination, code, displayName string) error
}

// Noop discards every code. Used in tests and when no SMTP host is configured.
type Noop struct{}

func (Noop) SendCode(ctx context.Context, destination, code, displayName string) error {
	return nil
}
