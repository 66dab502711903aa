package repository

import (
	"context"

	"enterprise-mfa/backend/internal/sms/domain"
)

// Repository defines persistence for SMS enrollments.
type Repository interface {
	// GetByUser returns the enrollment for userID, or nil if none.
	GetByUser(ctx context.Context, userID string) (*domain.Enrollment, error)
	// Save upserts the enrollment row for its user.
	Save(ctx context.Context, e *domain.Enrollment) error
	// Delete removes the enrollment. Returns false when none existed.
	Delete(ctx context.Context, userID string) (bool, error)
}
