package domain

import "time"

// Status is the outcome of an audited MFA attempt.
type Status string

const (
	StatusSuccess Status = "SUCCESS"
	StatusFailure Status = "FAILURE"
)

// MFA method labels used in audit events and metrics.
const (
	MethodTOTP       = "totp"
	MethodSMS        = "sms"
	MethodWebAuthn   = "webauthn"
	MethodBackupCode = "backup_code"
)

// Event is one append-only MFA audit record. Events are never mutated or
// deleted by the MFA services.
type Event struct {
	ID        string
	UserID    string
	AdminID   string // empty unless an administrator acted on the user
	EventType string // e.g. "VERIFY", "ENROLL", "ADMIN_CONSUME"
	Method    string
	Status    Status
	Reason    string // machine-readable failure reason, empty on success
	ClientIP  string
	CreatedAt time.Time
}
