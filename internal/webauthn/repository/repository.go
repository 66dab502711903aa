package repository

import (
	"context"

	"enterprise-mfa/backend/internal/webauthn/domain"
)

// Repository defines persistence for WebAuthn credentials.
type Repository interface {
	// ListByUser returns all credentials registered for userID.
	ListByUser(ctx context.Context, userID string) ([]domain.Credential, error)
	// GetByCredentialID returns the credential, or nil if not found.
	GetByCredentialID(ctx context.Context, credentialID []byte) (*domain.Credential, error)
	// Create inserts a new credential.
	Create(ctx context.Context, c *domain.Credential) error
	// UpdateUsage sets the sign counter and last-used timestamp after a
	// successful assertion.
	UpdateUsage(ctx context.Context, credentialID []byte, signCount uint32) error
	// Delete removes one credential of one user. Returns false when the pair
	// did not exist.
	Delete(ctx context.Context, credentialID []byte, userID string) (bool, error)
	// DeleteByUser removes all credentials of one user, returning how many
	// were removed.
	DeleteByUser(ctx context.Context, userID string) (int64, error)
	// DeleteAll removes every credential. Admin-only global disable.
	DeleteAll(ctx context.Context) (int64, error)
}
