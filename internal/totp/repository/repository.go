package repository

import (
	"context"

	"enterprise-mfa/backend/internal/totp/domain"
)

// Repository defines persistence for TOTP enrollments.
type Repository interface {
	// GetByUser returns the enrollment for userID, or nil if none.
	GetByUser(ctx context.Context, userID string) (*domain.Enrollment, error)
	// SaveUnconfirmed upserts an unconfirmed enrollment, replacing any
	// existing unconfirmed secret. Must not touch a confirmed row.
	SaveUnconfirmed(ctx context.Context, e *domain.Enrollment) error
	// Confirm atomically marks the pending enrollment confirmed. Returns
	// false when there is no unconfirmed row to confirm.
	Confirm(ctx context.Context, userID string) (bool, error)
	// Delete removes the enrollment. Returns false when none existed.
	Delete(ctx context.Context, userID string) (bool, error)
}
