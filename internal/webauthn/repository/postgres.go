package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"enterprise-mfa/backend/internal/webauthn/domain"
)

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a WebAuthn credential repository that uses
// the given db.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const credentialColumns = `credential_id, user_id, public_key, attestation_type, transports, sign_count, nickname, created_at, last_used_at`

// ListByUser returns all credentials registered for userID, oldest first.
func (r *PostgresRepository) ListByUser(ctx context.Context, userID string) ([]domain.Credential, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+credentialColumns+`
		FROM webauthn_credentials WHERE user_id = $1
		ORDER BY created_at ASC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.Credential
	for rows.Next() {
		c, err := scanCredential(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

// GetByCredentialID returns the credential, or nil if not found.
func (r *PostgresRepository) GetByCredentialID(ctx context.Context, credentialID []byte) (*domain.Credential, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+credentialColumns+`
		FROM webauthn_credentials WHERE credential_id = $1`, credentialID)
	c, err := scanCredential(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return c, nil
}

// Create inserts a new credential.
func (r *PostgresRepository) Create(ctx context.Context, c *domain.Credential) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO webauthn_credentials (
			credential_id, user_id, public_key, attestation_type,
			transports, sign_count, nickname, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		c.CredentialID, c.UserID, c.PublicKey, c.AttestationType,
		strings.Join(c.Transports, ","), c.SignCount, c.Nickname, c.CreatedAt)
	return err
}

// UpdateUsage sets the sign counter and last-used timestamp.
func (r *PostgresRepository) UpdateUsage(ctx context.Context, credentialID []byte, signCount uint32) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE webauthn_credentials
		SET sign_count = $2, last_used_at = NOW()
		WHERE credential_id = $1`, credentialID, signCount)
	return err
}

// Delete removes one credential of one user.
func (r *PostgresRepository) Delete(ctx context.Context, credentialID []byte, userID string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM webauthn_credentials
		WHERE credential_id = $1 AND user_id = $2`, credentialID, userID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// DeleteByUser removes all credentials of one user.
func (r *PostgresRepository) DeleteByUser(ctx context.Context, userID string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM webauthn_credentials WHERE user_id = $1`, userID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// DeleteAll removes every credential.
func (r *PostgresRepository) DeleteAll(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM webauthn_credentials`)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanCredential(row rowScanner) (*domain.Credential, error) {
	var c domain.Credential
	var transports sql.NullString
	var lastUsed sql.NullTime
	err := row.Scan(&c.CredentialID, &c.UserID, &c.PublicKey, &c.AttestationType,
		&transports, &c.SignCount, &c.Nickname, &c.CreatedAt, &lastUsed)
	if err != nil {
		return nil, err
	}
	if transports.Valid && transports.String != "" {
		c.Transports = strings.Split(transports.String, ",")
	}
	if lastUsed.Valid {
		t := lastUsed.Time.UTC()
		c.LastUsedAt = &t
	}
	return &c, nil
}
