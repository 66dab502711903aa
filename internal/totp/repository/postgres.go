package repository

import (
	"context"
	"database/sql"
	"errors"

	"enterprise-mfa/backend/internal/totp/domain"
)

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a TOTP enrollment repository that uses the
// given db.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// GetByUser returns the enrollment for userID, or nil if not found.
func (r *PostgresRepository) GetByUser(ctx context.Context, userID string) (*domain.Enrollment, error) {
	var e domain.Enrollment
	err := r.db.QueryRowContext(ctx, `
		SELECT user_id, secret_enc, confirmed, created_at
		FROM totp_enrollments WHERE user_id = $1`, userID).
		Scan(&e.UserID, &e.SecretEnc, &e.Confirmed, &e.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &e, nil
}

// SaveUnconfirmed upserts an unconfirmed enrollment. The upsert only fires
// for unconfirmed rows; a confirmed row is left untouched and the caller is
// expected to have checked enrollment state first.
func (r *PostgresRepository) SaveUnconfirmed(ctx context.Context, e *domain.Enrollment) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO totp_enrollments (user_id, secret_enc, confirmed, created_at)
		VALUES ($1, $2, FALSE, $3)
		ON CONFLICT (user_id) DO UPDATE
		SET secret_enc = EXCLUDED.secret_enc, created_at = EXCLUDED.created_at
		WHERE totp_enrollments.confirmed = FALSE`,
		e.UserID, e.SecretEnc, e.CreatedAt)
	return err
}

// Confirm marks the pending enrollment confirmed in one atomic update.
func (r *PostgresRepository) Confirm(ctx context.Context, userID string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE totp_enrollments SET confirmed = TRUE
		WHERE user_id = $1 AND confirmed = FALSE`, userID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// Delete removes the enrollment for userID.
func (r *PostgresRepository) Delete(ctx context.Context, userID string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM totp_enrollments WHERE user_id = $1`, userID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}
