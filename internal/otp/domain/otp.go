package domain

import "time"

// Purpose is what an OTP proves control of an identifier for.
type Purpose string

const (
	PurposeRegistration  Purpose = "registration"
	PurposePasswordReset Purpose = "password_reset"
	PurposeLogin         Purpose = "login"
	PurposeVerifyEmail   Purpose = "verify_email"
	PurposeVerifyPhone   Purpose = "verify_phone"
)

// Valid reports whether p is a defined purpose.
func (p Purpose) Valid() bool {
	switch p {
	case PurposeRegistration, PurposePasswordReset, PurposeLogin, PurposeVerifyEmail, PurposeVerifyPhone:
		return true
	}
	return false
}

// Channel is the delivery channel for an OTP.
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelPhone Channel = "phone"
)

// Valid reports whether c is a defined channel.
func (c Channel) Valid() bool {
	return c == ChannelEmail || c == ChannelPhone
}

// Record is the durable audit row for an issued OTP. At most one active
// (unused, unexpired) record exists per (identifier, channel, purpose) tuple;
// a resend refreshes the existing row instead of inserting a second one.
// The plaintext code is never persisted: only its bcrypt hash.
type Record struct {
	ID          string
	Identifier  string
	Channel     Channel
	Purpose     Purpose
	CodeHash    string
	Used        bool
	Sent        bool
	SendCount   int
	VerifyCount int
	AccountID   string // optional back-reference; empty when issued pre-registration
	DeviceInfo  string
	CreatedAt   time.Time
	ExpiresAt   time.Time
}

// Expired reports whether the record's expiry has passed.
func (r *Record) Expired(now time.Time) bool {
	return now.After(r.ExpiresAt)
}

// Active reports whether the record can still validate a code.
func (r *Record) Active(now time.Time) bool {
	return !r.Used && !r.Expired(now)
}

// ExceededAttempts reports whether the verify-count ceiling has been hit.
func (r *Record) ExceededAttempts(maxAttempts int) bool {
	return r.VerifyCount >= maxAttempts
}
