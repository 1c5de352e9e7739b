package repository

import (
	"context"

	"op-platform/core/internal/session/domain"
)

// Repository defines persistence for issued tokens.
type Repository interface {
	Create(ctx context.Context, t *domain.Token) error
	GetByAccessToken(ctx context.Context, accessToken string) (*domain.Token, error)
	ListActiveByAccount(ctx context.Context, accountID string) ([]*domain.Token, error)
	Revoke(ctx context.Context, id string) error
	RevokeAllByAccount(ctx context.Context, accountID string) (int64, error)
	DeactivateExpired(ctx context.Context) (int64, error)
}
