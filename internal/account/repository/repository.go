package repository

import (
	"context"

	"op-platform/core/internal/account/domain"
)

// Repository defines persistence for accounts.
type Repository interface {
	GetByID(ctx context.Context, id string) (*domain.Account, error)
	GetByEmail(ctx context.Context, email string) (*domain.Account, error)
	Create(ctx context.Context, a *domain.Account) error
	Update(ctx context.Context, id string, upd domain.Update) error
	UpdateStatus(ctx context.Context, id string, status domain.Status) error
	MarkVerified(ctx context.Context, id string) error
	SoftDelete(ctx context.Context, id string) error
}
