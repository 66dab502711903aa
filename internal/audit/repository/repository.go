package repository

import (
	"context"

	"enterprise-mfa/backend/internal/audit/domain"
)

// Repository defines persistence for MFA audit events. The table is
// append-only; there is no update or delete.
type Repository interface {
	GetByID(ctx context.Context, id string) (*domain.Event, error)
	ListByUser(ctx context.Context, userID string, limit, offset int32) ([]*domain.Event, error)
	Create(ctx context.Context, e *domain.Event) error
}
