package domain

import "time"

// Token represents one issued bearer credential tied to a device. An account
// may hold several live tokens at once; issuing a new one never revokes its
// siblings.
type Token struct {
	ID          string
	AccountID   string
	AccessToken string
	DeviceInfo  string
	IPAddress   string
	Active      bool
	CreatedAt   time.Time
	ExpiresAt   time.Time
}

// Expired reports whether the token's expiry has passed.
func (t *Token) Expired(now time.Time) bool {
	return now.After(t.ExpiresAt)
}

// Usable reports whether the token authenticates requests: it must be both
// active and unexpired. A row that outlived its expiry but was not yet swept
// is not usable.
func (t *Token) Usable(now time.Time) bool {
	return t.Active && !t.Expired(now)
}
