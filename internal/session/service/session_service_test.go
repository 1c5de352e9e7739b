package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	accountdomain "op-platform/core/internal/account/domain"
	"op-platform/core/internal/platform/errs"
	"op-platform/core/internal/session/domain"
)

type fakeTokenRepo struct {
	mu     sync.Mutex
	tokens map[string]*domain.Token
}

func newFakeTokenRepo() *fakeTokenRepo {
	return &fakeTokenRepo{tokens: make(map[string]*domain.Token)}
}

func (f *fakeTokenRepo) Create(_ context.Context, t *domain.Token) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.tokens {
		if existing.AccessToken == t.AccessToken {
			return errs.ErrConflict
		}
	}
	cp := *t
	f.tokens[cp.ID] = &cp
	return nil
}

func (f *fakeTokenRepo) GetByAccessToken(_ context.Context, accessToken string) (*domain.Token, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range f.tokens {
		if t.AccessToken == accessToken {
			cp := *t
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeTokenRepo) ListActiveByAccount(_ context.Context, accountID string) ([]*domain.Token, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := time.Now().UTC()
	var out []*domain.Token
	for _, t := range f.tokens {
		if t.AccountID == accountID && t.Usable(now) {
			cp := *t
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeTokenRepo) Revoke(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tokens[id]
	if !ok || !t.Active {
		return errs.ErrNotFound
	}
	t.Active = false
	return nil
}

func (f *fakeTokenRepo) RevokeAllByAccount(_ context.Context, accountID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, t := range f.tokens {
		if t.AccountID == accountID && t.Active {
			t.Active = false
			n++
		}
	}
	return n, nil
}

func (f *fakeTokenRepo) DeactivateExpired(_ context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := time.Now().UTC()
	var n int64
	for _, t := range f.tokens {
		if t.Active && t.Expired(now) {
			t.Active = false
			n++
		}
	}
	return n, nil
}

type fakeAccountSource struct {
	mu       sync.Mutex
	accounts map[string]*accountdomain.Account
}

func (f *fakeAccountSource) GetByID(_ context.Context, id string) (*accountdomain.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.accounts[id]
	if !ok {
		return nil, nil
	}
	cp := *a
	return &cp, nil
}

type fakeIssuer struct {
	mu  sync.Mutex
	n   int
	ttl time.Duration
}

func (f *fakeIssuer) IssueAccess(accountID, _ string) (string, time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.n++
	return fmt.Sprintf("tok-%s-%d", accountID, f.n), time.Now().UTC().Add(f.ttl), nil
}

func newTestService(t *testing.T) (*SessionService, *fakeTokenRepo, *fakeAccountSource, *fakeIssuer) {
	t.Helper()
	repo := newFakeTokenRepo()
	accounts := &fakeAccountSource{accounts: map[string]*accountdomain.Account{
		"acct-1": {ID: "acct-1", Email: "a@b.com", Status: accountdomain.StatusActive, Verified: true},
		"acct-2": {ID: "acct-2", Email: "c@d.com", Status: accountdomain.StatusSuspended},
	}}
	issuer := &fakeIssuer{ttl: 30 * time.Minute}
	return NewSessionService(repo, accounts, issuer, nil), repo, accounts, issuer
}

func TestIssueAndAuthenticate(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	tok, err := svc.Issue(ctx, "acct-1", "pixel-8", "10.0.0.1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if tok.AccessToken == "" || !tok.Active {
		t.Fatalf("issued token not usable: %+v", tok)
	}

	got, acct, err := svc.Authenticate(ctx, tok.AccessToken)
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if got.ID != tok.ID || acct.ID != "acct-1" {
		t.Fatalf("authenticate resolved wrong token/account: %s / %s", got.ID, acct.ID)
	}
}

func TestIssueRequiresActiveAccount(t *testing.T) {
	svc, _, _, _ := newTestService(t)

	_, err := svc.Issue(context.Background(), "acct-2", "", "")
	var notActive *errs.AccountNotActiveError
	if !errors.As(err, &notActive) {
		t.Fatalf("got %v, want AccountNotActiveError", err)
	}
	if notActive.Reason == "" {
		t.Fatal("expected a human-readable reason")
	}

	if _, err := svc.Issue(context.Background(), "missing", "", ""); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("unknown account: got %v, want ErrNotFound", err)
	}
}

func TestMultiDeviceTokensAreIndependent(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	phone, err := svc.Issue(ctx, "acct-1", "phone", "")
	if err != nil {
		t.Fatalf("issue phone: %v", err)
	}
	laptop, err := svc.Issue(ctx, "acct-1", "laptop", "")
	if err != nil {
		t.Fatalf("issue laptop: %v", err)
	}

	if err := svc.Revoke(ctx, phone.AccessToken); err != nil {
		t.Fatalf("revoke phone: %v", err)
	}

	if _, _, err := svc.Authenticate(ctx, phone.AccessToken); !errors.Is(err, errs.ErrUnauthorized) {
		t.Fatalf("revoked token: got %v, want ErrUnauthorized", err)
	}
	if _, _, err := svc.Authenticate(ctx, laptop.AccessToken); err != nil {
		t.Fatalf("sibling token must stay valid: %v", err)
	}
}

func TestAuthenticateRejectsExpiredRow(t *testing.T) {
	svc, repo, _, issuer := newTestService(t)
	ctx := context.Background()

	issuer.ttl = -time.Minute
	tok, err := svc.Issue(ctx, "acct-1", "", "")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	// Row still active in the store, but past expiry.
	if stored := repo.tokens[tok.ID]; !stored.Active {
		t.Fatal("precondition: row should still be flagged active")
	}
	if _, _, err := svc.Authenticate(ctx, tok.AccessToken); !errors.Is(err, errs.ErrUnauthorized) {
		t.Fatalf("expired token: got %v, want ErrUnauthorized", err)
	}
}

func TestAuthenticateUnknownToken(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	if _, _, err := svc.Authenticate(context.Background(), "no-such-token"); !errors.Is(err, errs.ErrUnauthorized) {
		t.Fatalf("got %v, want ErrUnauthorized", err)
	}
	if _, _, err := svc.Authenticate(context.Background(), ""); !errors.Is(err, errs.ErrUnauthorized) {
		t.Fatalf("empty bearer: got %v, want ErrUnauthorized", err)
	}
}

func TestRevokeAll(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	var last *domain.Token
	for i := 0; i < 3; i++ {
		tok, err := svc.Issue(ctx, "acct-1", fmt.Sprintf("device-%d", i), "")
		if err != nil {
			t.Fatalf("issue %d: %v", i, err)
		}
		last = tok
	}

	n, err := svc.RevokeAll(ctx, "acct-1")
	if err != nil {
		t.Fatalf("revoke all: %v", err)
	}
	if n != 3 {
		t.Fatalf("revoked %d, want 3", n)
	}
	if _, _, err := svc.Authenticate(ctx, last.AccessToken); !errors.Is(err, errs.ErrUnauthorized) {
		t.Fatalf("token after revoke-all: got %v, want ErrUnauthorized", err)
	}

	// Second pass finds nothing left to revoke.
	n, err = svc.RevokeAll(ctx, "acct-1")
	if err != nil || n != 0 {
		t.Fatalf("second revoke-all: n=%d err=%v, want 0, nil", n, err)
	}
}

func TestListActiveMarksCurrent(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.Issue(ctx, "acct-1", "phone", ""); err != nil {
		t.Fatalf("issue: %v", err)
	}
	b, err := svc.Issue(ctx, "acct-1", "laptop", "")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	list, listErr := svc.ListActive(ctx, "acct-1", b.AccessToken)
	if listErr != nil {
		t.Fatalf("list: %v", listErr)
	}
	if len(list) != 2 {
		t.Fatalf("listed %d tokens, want 2", len(list))
	}
	for _, item := range list {
		wantCurrent := item.ID == b.ID
		if item.IsCurrent != wantCurrent {
			t.Fatalf("token %s: is_current=%v, want %v", item.ID, item.IsCurrent, wantCurrent)
		}
	}
}

func TestSweepExpired(t *testing.T) {
	svc, repo, _, issuer := newTestService(t)
	ctx := context.Background()

	issuer.ttl = -time.Minute
	stale, _ := svc.Issue(ctx, "acct-1", "old", "")
	issuer.ttl = 30 * time.Minute
	live, _ := svc.Issue(ctx, "acct-1", "new", "")

	n, err := svc.SweepExpired(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if n != 1 {
		t.Fatalf("swept %d, want 1", n)
	}
	if repo.tokens[stale.ID].Active {
		t.Fatal("stale row should be deactivated")
	}
	if !repo.tokens[live.ID].Active {
		t.Fatal("live row must survive the sweep")
	}
}
