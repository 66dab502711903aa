// Package mfa holds primitives shared by the MFA method services:
// reason-coded verification failures, numeric code generation and hashing,
// and phone number helpers.
package mfa

import "fmt"

// Reason is a machine-readable verification failure code. The orchestrator
// maps these to client-facing messages; this package never decides transport
// status codes.
type Reason string

const (
	ReasonInvalidCode         Reason = "INVALID_CODE"
	ReasonExpiredCode         Reason = "EXPIRED_CODE"
	ReasonRateLimited         Reason = "RATE_LIMITED"
	ReasonNoEnrollmentPending Reason = "NO_ENROLLMENT_PENDING"
	ReasonOTPNotSent          Reason = "OTP_NOT_SENT"
)

// VerificationError is a permanent per-attempt verification failure. It is
// never retried by the services themselves.
type VerificationError struct {
	Reason Reason
	Method string
}

func (e *VerificationError) Error() string {
	return fmt.Sprintf("mfa: %s verification failed: %s", e.Method, e.Reason)
}

// Failed returns a VerificationError for the given method and reason.
func Failed(method string, reason Reason) *VerificationError {
	return &VerificationError{Method: method, Reason: reason}
}

// ReasonOf returns the reason code carried by err, or "" if err is not a
// VerificationError.
func ReasonOf(err error) Reason {
	if ve, ok := err.(*VerificationError); ok {
		return ve.Reason
	}
	return ""
}
