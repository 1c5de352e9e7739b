package service

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"op-platform/core/internal/account/domain"
	"op-platform/core/internal/identity"
	"op-platform/core/internal/platform/errs"
)

// AccountRepo is the minimal account repository needed by the account service.
type AccountRepo interface {
	GetByID(ctx context.Context, id string) (*domain.Account, error)
	GetByEmail(ctx context.Context, email string) (*domain.Account, error)
	Create(ctx context.Context, a *domain.Account) error
	Update(ctx context.Context, id string, upd domain.Update) error
	UpdateStatus(ctx context.Context, id string, status domain.Status) error
	MarkVerified(ctx context.Context, id string) error
	SoftDelete(ctx context.Context, id string) error
}

// IdentityClient creates the external login identity on the users service.
type IdentityClient interface {
	CreateUser(ctx context.Context, req identity.CreateUserRequest) (string, error)
}

// AccountService implements registration and the account lifecycle state machine.
type AccountService struct {
	repo     AccountRepo
	identity IdentityClient
	logger   *zap.Logger
}

// NewAccountService returns an AccountService with the given dependencies.
func NewAccountService(repo AccountRepo, identityClient IdentityClient, logger *zap.Logger) *AccountService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AccountService{repo: repo, identity: identityClient, logger: logger}
}

// RegisterRequest holds the fields accepted at registration.
type RegisterRequest struct {
	Email    string
	Name     string
	Password string
	Phone    string
	Address  string
}

// Register creates the external login identity and then the local account in
// pending status. The duplicate-email check runs before the external call, and
// the local row is committed only after the collaborator succeeds, so a remote
// failure leaves no local state behind.
func (s *AccountService) Register(ctx context.Context, req RegisterRequest) (*domain.Account, error) {
	email := strings.TrimSpace(strings.ToLower(req.Email))
	if err := validateEmail(email); err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.Name) == "" {
		return nil, errors.New("name is required")
	}

	existing, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		return nil, errs.Dependency(err)
	}
	if existing != nil {
		return nil, errs.ErrConflict
	}

	userID, err := s.identity.CreateUser(ctx, identity.CreateUserRequest{
		Username: email,
		Email:    email,
		Password: req.Password,
		FullName: strings.TrimSpace(req.Name),
		Phone:    req.Phone,
		Address:  req.Address,
	})
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	acct := &domain.Account{
		ID:        uuid.New().String(),
		Email:     email,
		Name:      strings.TrimSpace(req.Name),
		Phone:     req.Phone,
		Address:   req.Address,
		Status:    domain.StatusPending,
		UserID:    userID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := acct.Validate(); err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, acct); err != nil {
		if errors.Is(err, errs.ErrConflict) {
			return nil, errs.ErrConflict
		}
		return nil, errs.Dependency(err)
	}
	s.logger.Info("account registered", zap.String("account_id", acct.ID))
	return acct, nil
}

// Get returns the account for id, or ErrNotFound.
func (s *AccountService) Get(ctx context.Context, id string) (*domain.Account, error) {
	acct, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, errs.Dependency(err)
	}
	if acct == nil {
		return nil, errs.ErrNotFound
	}
	return acct, nil
}

// GetByEmail returns the account for email, or ErrNotFound.
func (s *AccountService) GetByEmail(ctx context.Context, email string) (*domain.Account, error) {
	acct, err := s.repo.GetByEmail(ctx, strings.TrimSpace(strings.ToLower(email)))
	if err != nil {
		return nil, errs.Dependency(err)
	}
	if acct == nil {
		return nil, errs.ErrNotFound
	}
	return acct, nil
}

// Activate moves a pending account to active after successful verification and
// sets the verified flag.
func (s *AccountService) Activate(ctx context.Context, id string) error {
	acct, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if acct.Status != domain.StatusActive {
		if !acct.Status.CanTransitionTo(domain.StatusActive) {
			return &errs.AccountNotActiveError{Reason: acct.Status.Description()}
		}
		if err := s.repo.UpdateStatus(ctx, id, domain.StatusActive); err != nil {
			return errs.Dependency(err)
		}
	}
	if !acct.Verified {
		if err := s.repo.MarkVerified(ctx, id); err != nil {
			return errs.Dependency(err)
		}
	}
	s.logger.Info("account activated", zap.String("account_id", id))
	return nil
}

// ChangeStatus applies an admin or policy driven lifecycle transition.
// Invalid transitions (e.g. out of deleted) fail with AccountNotActiveError.
func (s *AccountService) ChangeStatus(ctx context.Context, id string, next domain.Status) error {
	acct, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if !acct.Status.CanTransitionTo(next) {
		return &errs.AccountNotActiveError{Reason: acct.Status.Description()}
	}
	if err := s.repo.UpdateStatus(ctx, id, next); err != nil {
		return errs.Dependency(err)
	}
	s.logger.Info("account status changed",
		zap.String("account_id", id),
		zap.String("from", string(acct.Status)),
		zap.String("to", string(next)))
	return nil
}

// Update applies the explicitly listed profile fields.
func (s *AccountService) Update(ctx context.Context, id string, upd domain.Update) error {
	if err := s.repo.Update(ctx, id, upd); err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return errs.ErrNotFound
		}
		return errs.Dependency(err)
	}
	return nil
}

// Delete soft-deletes the account. The record is retained with deleted status.
func (s *AccountService) Delete(ctx context.Context, id string) error {
	return s.ChangeStatus(ctx, id, domain.StatusDeleted)
}

// RequireActive returns the account if it may authenticate, otherwise
// AccountNotActiveError carrying the status description.
func (s *AccountService) RequireActive(ctx context.Context, id string) (*domain.Account, error) {
	acct, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !acct.CanAuthenticate() {
		return nil, &errs.AccountNotActiveError{Reason: acct.Status.Description()}
	}
	return acct, nil
}

var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

func validateEmail(email string) error {
	if email == "" {
		return errors.New("email is required")
	}
	if !emailPattern.MatchString(email) {
		return errors.New("invalid email format")
	}
	return nil
}
