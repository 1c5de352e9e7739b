package security

import (
	"testing"
	"time"
)

func TestTokenProvider_RoundTrip(t *testing.T) {
	p := NewTokenProvider("test-secret", "op-core", 30*time.Minute)

	token, expiresAt, err := p.IssueAccess("acct-1", "a@x.com")
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}
	if token == "" {
		t.Fatal("IssueAccess returned empty token")
	}
	if time.Until(expiresAt) <= 0 {
		t.Error("expiresAt should be in the future")
	}

	accountID, err := p.ValidateAccess(token)
	if err != nil {
		t.Fatalf("ValidateAccess: %v", err)
	}
	if accountID != "acct-1" {
		t.Errorf("accountID = %q, want %q", accountID, "acct-1")
	}
}

func TestTokenProvider_WrongSecret(t *testing.T) {
	p := NewTokenProvider("secret-a", "op-core", time.Minute)
	other := NewTokenProvider("secret-b", "op-core", time.Minute)

	token, _, err := p.IssueAccess("acct-1", "a@x.com")
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}
	if _, err := other.ValidateAccess(token); err == nil {
		t.Error("ValidateAccess should reject token signed with another secret")
	}
}

func TestTokenProvider_WrongIssuer(t *testing.T) {
	p := NewTokenProvider("secret", "issuer-a", time.Minute)
	other := NewTokenProvider("secret", "issuer-b", time.Minute)

	token, _, err := p.IssueAccess("acct-1", "a@x.com")
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}
	if _, err := other.ValidateAccess(token); err == nil {
		t.Error("ValidateAccess should reject token from another issuer")
	}
}

func TestTokenProvider_Expired(t *testing.T) {
	p := NewTokenProvider("secret", "op-core", -time.Minute)

	token, _, err := p.IssueAccess("acct-1", "a@x.com")
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}
	if _, err := p.ValidateAccess(token); err == nil {
		t.Error("ValidateAccess should reject expired token")
	}
}

func TestTokenProvider_Garbage(t *testing.T) {
	p := NewTokenProvider("secret", "op-core", time.Minute)
	if _, err := p.ValidateAccess("not-a-token"); err == nil {
		t.Error("ValidateAccess should reject garbage input")
	}
}
