package repository

import (
	"context"
	"database/sql"
	"fmt"

	"enterprise-mfa/backend/internal/backupcode/domain"
)

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a backup code repository that uses the
// given db.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// ListUnused returns the user's unconsumed codes ordered by position.
func (r *PostgresRepository) ListUnused(ctx context.Context, userID string) ([]domain.Code, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, code_hash, position, generated_at, used_at
		FROM backup_codes
		WHERE user_id = $1 AND used_at IS NULL
		ORDER BY position ASC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.Code
	for rows.Next() {
		var c domain.Code
		var usedAt sql.NullTime
		if err := rows.Scan(&c.ID, &c.UserID, &c.CodeHash, &c.Position, &c.GeneratedAt, &usedAt); err != nil {
			return nil, err
		}
		if usedAt.Valid {
			t := usedAt.Time.UTC()
			c.UsedAt = &t
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// CountUnused returns how many codes remain.
func (r *PostgresRepository) CountUnused(ctx context.Context, userID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM backup_codes
		WHERE user_id = $1 AND used_at IS NULL`, userID).Scan(&n)
	return n, err
}

// ReplaceSet removes the user's existing codes and inserts the new set in one
// transaction.
func (r *PostgresRepository) ReplaceSet(ctx context.Context, userID string, codes []domain.Code) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM backup_codes WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("delete previous set: %w", err)
	}
	for _, c := range codes {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO backup_codes (id, user_id, code_hash, position, generated_at)
			VALUES ($1, $2, $3, $4, $5)`,
			c.ID, c.UserID, c.CodeHash, c.Position, c.GeneratedAt); err != nil {
			return fmt.Errorf("insert code %d: %w", c.Position, err)
		}
	}
	return tx.Commit()
}

// MarkUsed consumes the code iff it is still unused.
func (r *PostgresRepository) MarkUsed(ctx context.Context, id string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE backup_codes SET used_at = NOW()
		WHERE id = $1 AND used_at IS NULL`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// DeleteByUser removes all codes of one user.
func (r *PostgresRepository) DeleteByUser(ctx context.Context, userID string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM backup_codes WHERE user_id = $1`, userID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
