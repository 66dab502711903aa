package repository

import (
	"context"

	"enterprise-mfa/backend/internal/backupcode/domain"
)

// Repository defines persistence for backup codes.
type Repository interface {
	// ListUnused returns the user's unconsumed codes ordered by position.
	ListUnused(ctx context.Context, userID string) ([]domain.Code, error)
	// CountUnused returns how many codes remain.
	CountUnused(ctx context.Context, userID string) (int, error)
	// ReplaceSet atomically removes the user's existing codes and inserts the
	// new set. Either the whole new set is active afterwards or the old set
	// remains; no intermediate state is observable.
	ReplaceSet(ctx context.Context, userID string, codes []domain.Code) error
	// MarkUsed consumes the code iff it is still unused. The conditional
	// update is the compare-and-swap that makes consumption single use.
	MarkUsed(ctx context.Context, id string) (bool, error)
	// DeleteByUser removes all codes of one user.
	DeleteByUser(ctx context.Context, userID string) (int64, error)
}
