package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"enterprise-mfa/backend/internal/sms/domain"
)

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns an SMS enrollment repository that uses the
// given db.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// GetByUser returns the enrollment for userID, or nil if not found.
func (r *PostgresRepository) GetByUser(ctx context.Context, userID string) (*domain.Enrollment, error) {
	var e domain.Enrollment
	var vHash, vSalt, oHash, oSalt sql.NullString
	var vExp, oSent, windowStart sql.NullTime
	err := r.db.QueryRowContext(ctx, `
		SELECT user_id, phone_enc, verified,
		       verification_code_hash, verification_code_salt, verification_expires_at,
		       otp_code_hash, otp_code_salt, otp_sent_at,
		       otp_send_count, otp_send_window_start, created_at
		FROM sms_enrollments WHERE user_id = $1`, userID).
		Scan(&e.UserID, &e.PhoneEnc, &e.Verified,
			&vHash, &vSalt, &vExp,
			&oHash, &oSalt, &oSent,
			&e.OTPSendCount, &windowStart, &e.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	e.VerificationCodeHash = vHash.String
	e.VerificationCodeSalt = vSalt.String
	if vExp.Valid {
		t := vExp.Time
		e.VerificationExpires = &t
	}
	e.OTPCodeHash = oHash.String
	e.OTPCodeSalt = oSalt.String
	if oSent.Valid {
		t := oSent.Time
		e.OTPSentAt = &t
	}
	if windowStart.Valid {
		t := windowStart.Time
		e.OTPSendWindowStart = &t
	}
	return &e, nil
}

// Save upserts the enrollment row for its user.
func (r *PostgresRepository) Save(ctx context.Context, e *domain.Enrollment) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO sms_enrollments (
			user_id, phone_enc, verified,
			verification_code_hash, verification_code_salt, verification_expires_at,
			otp_code_hash, otp_code_salt, otp_sent_at,
			otp_send_count, otp_send_window_start, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (user_id) DO UPDATE SET
			phone_enc = EXCLUDED.phone_enc,
			verified = EXCLUDED.verified,
			verification_code_hash = EXCLUDED.verification_code_hash,
			verification_code_salt = EXCLUDED.verification_code_salt,
			verification_expires_at = EXCLUDED.verification_expires_at,
			otp_code_hash = EXCLUDED.otp_code_hash,
			otp_code_salt = EXCLUDED.otp_code_salt,
			otp_sent_at = EXCLUDED.otp_sent_at,
			otp_send_count = EXCLUDED.otp_send_count,
			otp_send_window_start = EXCLUDED.otp_send_window_start`,
		e.UserID, e.PhoneEnc, e.Verified,
		nullStr(e.VerificationCodeHash), nullStr(e.VerificationCodeSalt), nullTime(e.VerificationExpires),
		nullStr(e.OTPCodeHash), nullStr(e.OTPCodeSalt), nullTime(e.OTPSentAt),
		e.OTPSendCount, nullTime(e.OTPSendWindowStart), e.CreatedAt)
	return err
}

// Delete removes the enrollment for userID.
func (r *PostgresRepository) Delete(ctx context.Context, userID string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM sms_enrollments WHERE user_id = $1`, userID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func nullStr(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
