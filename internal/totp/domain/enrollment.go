package domain

import "time"

// Enrollment is a user's TOTP secret (stored in totp_enrollments).
// At most one row per user; the secret is encrypted at rest. An unconfirmed
// secret is replaced when a new one is generated.
type Enrollment struct {
	UserID    string
	SecretEnc string
	Confirmed bool
	CreatedAt time.Time
}
