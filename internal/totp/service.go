// Package totp implements enrollment and time-window verification for
// RFC 6238 time-based one-time passwords.
package totp

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base32"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"

	"enterprise-mfa/backend/internal/audit"
	auditdomain "enterprise-mfa/backend/internal/audit/domain"
	"enterprise-mfa/backend/internal/mfa"
	"enterprise-mfa/backend/internal/platform/ratelimit"
	"enterprise-mfa/backend/internal/security"
	"enterprise-mfa/backend/internal/totp/domain"
	totprepo "enterprise-mfa/backend/internal/totp/repository"
)

// Step and tolerance: a code is accepted for the current 30-second step and
// one step either side, a 90-second total window.
const (
	Period     = 30
	Skew       = 1
	secretSize = 20
)

// Failure window for verification rate limiting.
const (
	maxVerifyFailures   = 5
	verifyFailureWindow = 15 * time.Minute
)

// Sentinel errors; the orchestrator maps them to client-facing responses.
var (
	ErrAlreadyEnrolled     = errors.New("totp: user already has a confirmed secret")
	ErrNotEnrolled         = errors.New("totp: user has no confirmed secret")
	ErrNoPendingEnrollment = errors.New("totp: no unconfirmed secret to confirm")
	ErrSecretMismatch      = errors.New("totp: supplied secret does not match the pending one")
)

var b32 = base32.StdEncoding.WithPadding(base32.NoPadding)

// Service implements TOTP enrollment and verification.
// State machine per user: UNENROLLED -> SECRET_GENERATED (unconfirmed)
// -> CONFIRMED -> (disable) -> UNENROLLED.
type Service struct {
	repo    totprepo.Repository
	enc     *security.Encryptor
	limiter *ratelimit.Limiter
	auditor audit.Recorder
	nowF    func() time.Time
}

// NewService returns a TOTP service. auditor must not be nil; every attempt
// is recorded.
func NewService(repo totprepo.Repository, enc *security.Encryptor, auditor audit.Recorder) *Service {
	return &Service{
		repo:    repo,
		enc:     enc,
		limiter: ratelimit.NewLimiter(maxVerifyFailures, verifyFailureWindow),
		auditor: auditor,
		nowF:    time.Now,
	}
}

// IsEnabled reports whether the user has a confirmed TOTP secret. Read-only.
func (s *Service) IsEnabled(ctx context.Context, userID string) (bool, error) {
	e, err := s.repo.GetByUser(ctx, userID)
	if err != nil {
		return false, err
	}
	return e != nil && e.Confirmed, nil
}

// GenerateSecret creates a fresh base32 secret for the user and stores it
// encrypted and unconfirmed, discarding any earlier unconfirmed secret.
// Fails with ErrAlreadyEnrolled when a confirmed secret exists.
func (s *Service) GenerateSecret(ctx context.Context, userID string) (string, error) {
	existing, err := s.repo.GetByUser(ctx, userID)
	if err != nil {
		return "", err
	}
	if existing != nil && existing.Confirmed {
		s.record(ctx, userID, "ENROLL", auditdomain.StatusFailure, "already enrolled")
		return "", ErrAlreadyEnrolled
	}
	raw := make([]byte, secretSize)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	secret := b32.EncodeToString(raw)
	secretEnc, err := s.enc.Encrypt(secret)
	if err != nil {
		return "", err
	}
	if err := s.repo.SaveUnconfirmed(ctx, &domain.Enrollment{
		UserID:    userID,
		SecretEnc: secretEnc,
		CreatedAt: s.nowF().UTC(),
	}); err != nil {
		return "", fmt.Errorf("totp: persist secret: %w", err)
	}
	s.record(ctx, userID, "ENROLL", auditdomain.StatusSuccess, "")
	return secret, nil
}

// OtpauthURI builds the otpauth:// URI for client-side QR rendering.
// Pure function, no I/O.
func OtpauthURI(accountName, secret, issuer string) string {
	v := url.Values{}
	v.Set("secret", secret)
	v.Set("issuer", issuer)
	v.Set("algorithm", "SHA1")
	v.Set("digits", "6")
	v.Set("period", fmt.Sprintf("%d", Period))
	u := url.URL{
		Scheme:   "otpauth",
		Host:     "totp",
		Path:     "/" + issuer + ":" + accountName,
		RawQuery: v.Encode(),
	}
	return u.String()
}

// ConfirmEnrollment marks the pending secret as confirmed. The caller must
// echo the secret it was handed; a mismatch leaves the pending state
// untouched. On any failure the prior state remains; the update is a single
// atomic write.
func (s *Service) ConfirmEnrollment(ctx context.Context, userID, secret string) error {
	e, err := s.repo.GetByUser(ctx, userID)
	if err != nil {
		return err
	}
	if e == nil || e.Confirmed {
		s.record(ctx, userID, "CONFIRM", auditdomain.StatusFailure, "no pending enrollment")
		return ErrNoPendingEnrollment
	}
	stored, err := s.enc.Decrypt(e.SecretEnc)
	if err != nil {
		return fmt.Errorf("totp: decrypt secret: %w", err)
	}
	if subtle.ConstantTimeCompare([]byte(stored), []byte(secret)) != 1 {
		s.record(ctx, userID, "CONFIRM", auditdomain.StatusFailure, "secret mismatch")
		return ErrSecretMismatch
	}
	ok, err := s.repo.Confirm(ctx, userID)
	if err != nil {
		return fmt.Errorf("totp: confirm enrollment: %w", err)
	}
	if !ok {
		s.record(ctx, userID, "CONFIRM", auditdomain.StatusFailure, "no pending enrollment")
		return ErrNoPendingEnrollment
	}
	s.record(ctx, userID, "CONFIRM", auditdomain.StatusSuccess, "")
	return nil
}

// VerifyCode checks code against the user's confirmed secret for the current
// step ±1. The limiter is consulted before the code so a correct code cannot
// bypass an exhausted window; failures count toward it and success resets it.
func (s *Service) VerifyCode(ctx context.Context, userID, code string) (bool, error) {
	e, err := s.repo.GetByUser(ctx, userID)
	if err != nil {
		return false, err
	}
	if e == nil || !e.Confirmed {
		s.record(ctx, userID, "VERIFY", auditdomain.StatusFailure, string(mfa.ReasonNoEnrollmentPending))
		return false, mfa.Failed(auditdomain.MethodTOTP, mfa.ReasonNoEnrollmentPending)
	}
	if s.limiter.Exceeded(userID) {
		s.record(ctx, userID, "VERIFY", auditdomain.StatusFailure, string(mfa.ReasonRateLimited))
		return false, mfa.Failed(auditdomain.MethodTOTP, mfa.ReasonRateLimited)
	}
	secret, err := s.enc.Decrypt(e.SecretEnc)
	if err != nil {
		return false, fmt.Errorf("totp: decrypt secret: %w", err)
	}
	valid, err := totp.ValidateCustom(code, secret, s.nowF().UTC(), totp.ValidateOpts{
		Period:    Period,
		Skew:      Skew,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	if err != nil || !valid {
		s.limiter.Record(userID)
		s.record(ctx, userID, "VERIFY", auditdomain.StatusFailure, string(mfa.ReasonInvalidCode))
		return false, mfa.Failed(auditdomain.MethodTOTP, mfa.ReasonInvalidCode)
	}
	s.limiter.Reset(userID)
	s.record(ctx, userID, "VERIFY", auditdomain.StatusSuccess, "")
	return true, nil
}

// Disable removes the user's confirmed secret. Fails with ErrNotEnrolled when
// TOTP is not enabled.
func (s *Service) Disable(ctx context.Context, userID string) error {
	e, err := s.repo.GetByUser(ctx, userID)
	if err != nil {
		return err
	}
	if e == nil || !e.Confirmed {
		s.record(ctx, userID, "DISABLE", auditdomain.StatusFailure, "not enrolled")
		return ErrNotEnrolled
	}
	if _, err := s.repo.Delete(ctx, userID); err != nil {
		return fmt.Errorf("totp: delete enrollment: %w", err)
	}
	s.record(ctx, userID, "DISABLE", auditdomain.StatusSuccess, "")
	return nil
}

func (s *Service) record(ctx context.Context, userID, eventType string, status auditdomain.Status, reason string) {
	s.auditor.Record(ctx, auditdomain.Event{
		UserID:    userID,
		EventType: eventType,
		Method:    auditdomain.MethodTOTP,
		Status:    status,
		Reason:    reason,
	})
}
