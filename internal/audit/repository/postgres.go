package repository

import (
	"context"
	"database/sql"
	"errors"

	"enterprise-mfa/backend/internal/audit/domain"
)

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns an audit event repository that uses the given
// db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create appends the audit event. The event must have ID set.
func (r *PostgresRepository) Create(ctx context.Context, e *domain.Event) error {
	adminID := sql.NullString{String: e.AdminID, Valid: e.AdminID != ""}
	reason := sql.NullString{String: e.Reason, Valid: e.Reason != ""}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO mfa_audit_events (id, user_id, admin_id, event_type, method, status, reason, client_ip, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		e.ID, e.UserID, adminID, e.EventType, e.Method, string(e.Status), reason, e.ClientIP, e.CreatedAt)
	return err
}

// GetByID returns the audit event for id, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.Event, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, user_id, admin_id, event_type, method, status, reason, client_ip, created_at
		FROM mfa_audit_events WHERE id = $1`, id)
	e, err := scanEvent(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return e, nil
}

// ListByUser returns audit events for the given user, newest first,
// paginated by limit and offset.
func (r *PostgresRepository) ListByUser(ctx context.Context, userID string, limit, offset int32) ([]*domain.Event, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, admin_id, event_type, method, status, reason, client_ip, created_at
		FROM mfa_audit_events WHERE user_id = $1
		ORDER BY created_at DESC LIMIT $2 OFFSET $3`, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*domain.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (*domain.Event, error) {
	var e domain.Event
	var adminID, reason sql.NullString
	var status string
	if err := row.Scan(&e.ID, &e.UserID, &adminID, &e.EventType, &e.Method, &status, &reason, &e.ClientIP, &e.CreatedAt); err != nil {
		return nil, err
	}
	e.AdminID = adminID.String
	e.Reason = reason.String
	e.Status = domain.Status(status)
	return &e, nil
}
