package repository

import (
	"context"
	"time"

	"op-platform/core/internal/audit/domain"
)

// Repository defines persistence for request logs.
type Repository interface {
	Create(ctx context.Context, l *domain.RequestLog) error
	ListRecent(ctx context.Context, limit int) ([]*domain.RequestLog, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}
