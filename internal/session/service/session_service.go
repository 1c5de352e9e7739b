package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	accountdomain "op-platform/core/internal/account/domain"
	"op-platform/core/internal/platform/errs"
	"op-platform/core/internal/session/domain"
)

const writeTimeout = 5 * time.Second

// TokenRepo is the persistence the engine needs for issued tokens.
type TokenRepo interface {
	Create(ctx context.Context, t *domain.Token) error
	GetByAccessToken(ctx context.Context, accessToken string) (*domain.Token, error)
	ListActiveByAccount(ctx context.Context, accountID string) ([]*domain.Token, error)
	Revoke(ctx context.Context, id string) error
	RevokeAllByAccount(ctx context.Context, accountID string) (int64, error)
	DeactivateExpired(ctx context.Context) (int64, error)
}

// AccountSource resolves accounts for gating and authentication.
type AccountSource interface {
	GetByID(ctx context.Context, id string) (*accountdomain.Account, error)
}

// TokenIssuer mints the bearer string carried by a token row.
type TokenIssuer interface {
	IssueAccess(accountID, email string) (string, time.Time, error)
}

// ActiveToken is a token row annotated with whether it belongs to the caller's
// own credential.
type ActiveToken struct {
	*domain.Token
	IsCurrent bool
}

// SessionService issues bearer tokens, authenticates them against their rows,
// and revokes them. A token authenticates only while its row is active and
// unexpired; the signed string alone proves nothing once the row is revoked.
type SessionService struct {
	tokens   TokenRepo
	accounts AccountSource
	issuer   TokenIssuer
	logger   *zap.Logger
}

// NewSessionService returns a SessionService with the given dependencies.
func NewSessionService(tokens TokenRepo, accounts AccountSource, issuer TokenIssuer, logger *zap.Logger) *SessionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionService{tokens: tokens, accounts: accounts, issuer: issuer, logger: logger}
}

// Issue mints a token for the account and records it. Only active accounts
// may hold tokens; any other lifecycle state fails with AccountNotActiveError.
// Siblings on other devices stay valid.
func (s *SessionService) Issue(ctx context.Context, accountID, deviceInfo, ipAddress string) (*domain.Token, error) {
	acct, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if acct == nil {
		return nil, errs.ErrNotFound
	}
	if !acct.CanAuthenticate() {
		return nil, &errs.AccountNotActiveError{Reason: acct.Status.Description()}
	}

	accessToken, expiresAt, err := s.issuer.IssueAccess(acct.ID, acct.Email)
	if err != nil {
		return nil, err
	}

	t := &domain.Token{
		ID:          uuid.New().String(),
		AccountID:   acct.ID,
		AccessToken: accessToken,
		DeviceInfo:  deviceInfo,
		IPAddress:   ipAddress,
		Active:      true,
		CreatedAt:   time.Now().UTC(),
		ExpiresAt:   expiresAt,
	}

	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), writeTimeout)
	defer cancel()
	if err := s.tokens.Create(wctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// Authenticate resolves the bearer string to its account. A token that is
// absent, revoked, or past expiry fails with ErrUnauthorized even if the row
// still exists. The account must still be in a state that permits login.
func (s *SessionService) Authenticate(ctx context.Context, accessToken string) (*domain.Token, *accountdomain.Account, error) {
	if accessToken == "" {
		return nil, nil, errs.ErrUnauthorized
	}

	t, err := s.tokens.GetByAccessToken(ctx, accessToken)
	if err != nil {
		return nil, nil, err
	}
	if t == nil || !t.Usable(time.Now().UTC()) {
		return nil, nil, errs.ErrUnauthorized
	}

	acct, err := s.accounts.GetByID(ctx, t.AccountID)
	if err != nil {
		return nil, nil, err
	}
	if acct == nil {
		return nil, nil, errs.ErrUnauthorized
	}
	if !acct.CanAuthenticate() {
		return nil, nil, &errs.AccountNotActiveError{Reason: acct.Status.Description()}
	}
	return t, acct, nil
}

// Revoke deactivates the token presented as accessToken. Revoking an unknown
// or already-revoked token fails with ErrUnauthorized.
func (s *SessionService) Revoke(ctx context.Context, accessToken string) error {
	t, err := s.tokens.GetByAccessToken(ctx, accessToken)
	if err != nil {
		return err
	}
	if t == nil || !t.Active {
		return errs.ErrUnauthorized
	}

	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), writeTimeout)
	defer cancel()
	if err := s.tokens.Revoke(wctx, t.ID); err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return errs.ErrUnauthorized
		}
		return err
	}
	return nil
}

// RevokeAll deactivates every active token the account holds, across all
// devices, and returns the count.
func (s *SessionService) RevokeAll(ctx context.Context, accountID string) (int64, error) {
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), writeTimeout)
	defer cancel()
	n, err := s.tokens.RevokeAllByAccount(wctx, accountID)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.Info("revoked all tokens", zap.String("account_id", accountID), zap.Int64("count", n))
	}
	return n, nil
}

// ListActive returns the account's live tokens, flagging the one matching
// currentToken so a device list can mark "this device".
func (s *SessionService) ListActive(ctx context.Context, accountID, currentToken string) ([]ActiveToken, error) {
	list, err := s.tokens.ListActiveByAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	out := make([]ActiveToken, len(list))
	for i, t := range list {
		out[i] = ActiveToken{Token: t, IsCurrent: currentToken != "" && t.AccessToken == currentToken}
	}
	return out, nil
}

// SweepExpired deactivates token rows past their expiry and returns the count.
// Run from the background sweeper or piggy-backed on request handling.
func (s *SessionService) SweepExpired(ctx context.Context) (int64, error) {
	n, err := s.tokens.DeactivateExpired(ctx)
	if err != nil {
		return 0, errs.Dependency(err)
	}
	if n > 0 {
		s.logger.Info("deactivated expired tokens", zap.Int64("count", n))
	}
	return n, nil
}
