package domain

import "time"

// Enrollment is a user's SMS MFA state (stored in sms_enrollments).
// Exactly one row per user. The phone number is encrypted at rest; codes are
// stored only as salted hashes.
type Enrollment struct {
	UserID   string
	PhoneEnc string
	Verified bool

	// Pending phone-verification code, set during enrollment.
	VerificationCodeHash string
	VerificationCodeSalt string
	VerificationExpires  *time.Time

	// Last login OTP. OTPSentAt anchors the 5-minute acceptance step.
	OTPCodeHash string
	OTPCodeSalt string
	OTPSentAt   *time.Time

	// Send-side rate limiting.
	OTPSendCount       int
	OTPSendWindowStart *time.Time

	CreatedAt time.Time
}
