package domain

import (
	"errors"
	"time"
)

// Account is the core customer identity record.
type Account struct {
	ID         string
	Email      string
	Name       string
	Phone      string
	Address    string
	Status     Status
	Verified   bool
	UserID     string // external identity id from the users service; empty until registration completes
	GoogleID   string
	FacebookID string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Status is the account lifecycle state. Only the constants below are valid;
// repositories must never persist any other value.
type Status string

const (
	StatusPending   Status = "pending"
	StatusActive    Status = "active"
	StatusSuspended Status = "suspended"
	StatusLocked    Status = "locked"
	StatusBanned    Status = "banned"
	StatusInactive  Status = "inactive"
	StatusDeleted   Status = "deleted"
)

// Valid reports whether s is one of the defined lifecycle states.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusActive, StatusSuspended, StatusLocked,
		StatusBanned, StatusInactive, StatusDeleted:
		return true
	}
	return false
}

// Description returns the human-readable reason used in AccountNotActive errors.
func (s Status) Description() string {
	switch s {
	case StatusPending:
		return "account is awaiting verification"
	case StatusActive:
		return "account is active"
	case StatusSuspended:
		return "account is temporarily suspended"
	case StatusLocked:
		return "account is locked"
	case StatusBanned:
		return "account is permanently banned"
	case StatusInactive:
		return "account is inactive"
	case StatusDeleted:
		return "account has been deleted"
	}
	return "account status is unknown"
}

// CanTransitionTo reports whether the lifecycle permits moving from s to next.
// Deleted is terminal. Pending may only activate or be deleted. Every
// non-terminal state may be soft-deleted.
func (s Status) CanTransitionTo(next Status) bool {
	if !next.Valid() || s == next {
		return false
	}
	if s == StatusDeleted {
		return false
	}
	if next == StatusDeleted {
		return true
	}
	switch s {
	case StatusPending:
		return next == StatusActive
	case StatusActive, StatusSuspended, StatusLocked, StatusBanned, StatusInactive:
		// Admin/policy moves between active and the restricted states.
		return next == StatusActive || next == StatusSuspended || next == StatusLocked ||
			next == StatusBanned || next == StatusInactive
	}
	return false
}

// CanAuthenticate reports whether an account in this state may obtain a session token.
func (a *Account) CanAuthenticate() bool {
	return a.Status == StatusActive
}

// Validate validates the account for persistence.
func (a *Account) Validate() error {
	if a.Email == "" {
		return errors.New("email is required")
	}
	if a.Name == "" {
		return errors.New("name is required")
	}
	if a.Status == "" {
		a.Status = StatusPending
	}
	if !a.Status.Valid() {
		return errors.New("invalid account status")
	}
	return nil
}

// Update holds the explicitly updatable account fields. A nil pointer leaves
// the column unchanged. Status and verification changes go through their own
// repository methods, not Update.
type Update struct {
	Name    *string
	Phone   *string
	Address *string
}
