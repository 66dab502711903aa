// Package sms implements phone enrollment and SMS one-time-code verification
// backed by an external delivery gateway.
package sms

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"enterprise-mfa/backend/internal/audit"
	auditdomain "enterprise-mfa/backend/internal/audit/domain"
	"enterprise-mfa/backend/internal/mfa"
	"enterprise-mfa/backend/internal/platform/ratelimit"
	"enterprise-mfa/backend/internal/security"
	"enterprise-mfa/backend/internal/sms/domain"
	"enterprise-mfa/backend/internal/sms/gateway"
	smsrepo "enterprise-mfa/backend/internal/sms/repository"
)

const (
	// VerificationTTL bounds the phone-verification code sent on enrollment.
	VerificationTTL = 10 * time.Minute
	// OTPStep is the OTP acceptance step; with one step of tolerance either
	// side the total window is 15 minutes.
	OTPStep = 5 * time.Minute
	// OTPSkew is the step tolerance.
	OTPSkew = 1

	maxVerifyFailures = 5

	maxSendsPerWindow = 5
	sendWindow        = 30 * time.Minute

	sendTimeout    = 30 * time.Second
	maxSendRetries = 3
)

// Sentinel errors.
var (
	ErrNotEnrolled = errors.New("sms: user has no verified phone number")
)

// Service implements SMS MFA. Verification failures carry mfa reason codes;
// gateway failures surface as *gateway.ProviderError after retries.
type Service struct {
	repo    smsrepo.Repository
	sender  gateway.Sender
	enc     *security.Encryptor
	limiter *ratelimit.Limiter
	auditor audit.Recorder
	nowF    func() time.Time
}

// NewService returns an SMS service. The limiter window matches the
// verification code TTL so "5 failures within the active window" holds for
// both enrollment and OTP codes.
func NewService(repo smsrepo.Repository, sender gateway.Sender, enc *security.Encryptor, auditor audit.Recorder) *Service {
	return &Service{
		repo:    repo,
		sender:  sender,
		enc:     enc,
		limiter: ratelimit.NewLimiter(maxVerifyFailures, VerificationTTL),
		auditor: auditor,
		nowF:    time.Now,
	}
}

// EnrollPhoneNumber stores phone encrypted with a fresh verification code and
// delivers the code through the gateway. Re-enrolling replaces the previous
// phone and resets the verified flag.
func (s *Service) EnrollPhoneNumber(ctx context.Context, userID, phone string) error {
	if err := mfa.ValidatePhoneNumber(phone); err != nil {
		s.record(ctx, userID, "ENROLL", auditdomain.StatusFailure, "invalid phone number")
		return err
	}
	code, err := mfa.GenerateCode()
	if err != nil {
		return err
	}
	salt, err := mfa.NewSalt()
	if err != nil {
		return err
	}
	phoneEnc, err := s.enc.Encrypt(phone)
	if err != nil {
		return err
	}
	now := s.nowF().UTC()
	expires := now.Add(VerificationTTL)
	e := &domain.Enrollment{
		UserID:               userID,
		PhoneEnc:             phoneEnc,
		Verified:             false,
		VerificationCodeHash: mfa.HashCode(code, salt),
		VerificationCodeSalt: salt,
		VerificationExpires:  &expires,
		CreatedAt:            now,
	}
	if err := s.repo.Save(ctx, e); err != nil {
		return fmt.Errorf("sms: persist enrollment: %w", err)
	}
	s.limiter.Reset(enrollKey(userID))
	if err := s.deliver(ctx, phone, code); err != nil {
		s.record(ctx, userID, "ENROLL", auditdomain.StatusFailure, "delivery failed")
		return err
	}
	s.record(ctx, userID, "ENROLL", auditdomain.StatusSuccess, "")
	return nil
}

// VerifyEnrollmentCode checks the phone-verification code. After 5 failures
// within the enrollment window further attempts fail as rate-limited
// regardless of correctness; expired codes fail as expired; a missing pending
// enrollment is its own failure.
func (s *Service) VerifyEnrollmentCode(ctx context.Context, userID, code string) error {
	e, err := s.repo.GetByUser(ctx, userID)
	if err != nil {
		return err
	}
	if e == nil || e.VerificationCodeHash == "" {
		s.record(ctx, userID, "ENROLL_VERIFY", auditdomain.StatusFailure, string(mfa.ReasonNoEnrollmentPending))
		return mfa.Failed(auditdomain.MethodSMS, mfa.ReasonNoEnrollmentPending)
	}
	if s.limiter.Exceeded(enrollKey(userID)) {
		s.record(ctx, userID, "ENROLL_VERIFY", auditdomain.StatusFailure, string(mfa.ReasonRateLimited))
		return mfa.Failed(auditdomain.MethodSMS, mfa.ReasonRateLimited)
	}
	if e.VerificationExpires == nil || s.nowF().UTC().After(*e.VerificationExpires) {
		s.limiter.Record(enrollKey(userID))
		s.record(ctx, userID, "ENROLL_VERIFY", auditdomain.StatusFailure, string(mfa.ReasonExpiredCode))
		return mfa.Failed(auditdomain.MethodSMS, mfa.ReasonExpiredCode)
	}
	if !mfa.CodeEqual(code, e.VerificationCodeSalt, e.VerificationCodeHash) {
		s.limiter.Record(enrollKey(userID))
		s.record(ctx, userID, "ENROLL_VERIFY", auditdomain.StatusFailure, string(mfa.ReasonInvalidCode))
		return mfa.Failed(auditdomain.MethodSMS, mfa.ReasonInvalidCode)
	}
	e.Verified = true
	e.VerificationCodeHash = ""
	e.VerificationCodeSalt = ""
	e.VerificationExpires = nil
	if err := s.repo.Save(ctx, e); err != nil {
		return fmt.Errorf("sms: persist verified enrollment: %w", err)
	}
	s.limiter.Reset(enrollKey(userID))
	s.record(ctx, userID, "ENROLL_VERIFY", auditdomain.StatusSuccess, "")
	return nil
}

// SendOTPCode generates and delivers a fresh OTP. Sends are bounded per
// rolling window; the counter and lastSentAt live on the enrollment row.
func (s *Service) SendOTPCode(ctx context.Context, userID string) error {
	e, err := s.repo.GetByUser(ctx, userID)
	if err != nil {
		return err
	}
	if e == nil || !e.Verified {
		s.record(ctx, userID, "OTP_SEND", auditdomain.StatusFailure, "not enrolled")
		return ErrNotEnrolled
	}
	now := s.nowF().UTC()
	if e.OTPSendWindowStart == nil || now.Sub(*e.OTPSendWindowStart) >= sendWindow {
		e.OTPSendWindowStart = &now
		e.OTPSendCount = 0
	}
	if e.OTPSendCount >= maxSendsPerWindow {
		s.record(ctx, userID, "OTP_SEND", auditdomain.StatusFailure, string(mfa.ReasonRateLimited))
		return mfa.Failed(auditdomain.MethodSMS, mfa.ReasonRateLimited)
	}
	code, err := mfa.GenerateCode()
	if err != nil {
		return err
	}
	salt, err := mfa.NewSalt()
	if err != nil {
		return err
	}
	phone, err := s.enc.Decrypt(e.PhoneEnc)
	if err != nil {
		return fmt.Errorf("sms: decrypt phone: %w", err)
	}
	e.OTPCodeHash = mfa.HashCode(code, salt)
	e.OTPCodeSalt = salt
	e.OTPSentAt = &now
	e.OTPSendCount++
	if err := s.repo.Save(ctx, e); err != nil {
		return fmt.Errorf("sms: persist otp: %w", err)
	}
	s.limiter.Reset(otpKey(userID))
	if err := s.deliver(ctx, phone, code); err != nil {
		s.record(ctx, userID, "OTP_SEND", auditdomain.StatusFailure, "delivery failed")
		return err
	}
	s.record(ctx, userID, "OTP_SEND", auditdomain.StatusSuccess, "")
	return nil
}

// VerifyOTPCode checks an OTP against the stored hash. The code is accepted
// while the current 5-minute step is within one step of the step it was sent
// in (15-minute total window). "No OTP sent" is distinct from "invalid code".
func (s *Service) VerifyOTPCode(ctx context.Context, userID, code string) error {
	e, err := s.repo.GetByUser(ctx, userID)
	if err != nil {
		return err
	}
	if e == nil || !e.Verified {
		s.record(ctx, userID, "OTP_VERIFY", auditdomain.StatusFailure, string(mfa.ReasonNoEnrollmentPending))
		return mfa.Failed(auditdomain.MethodSMS, mfa.ReasonNoEnrollmentPending)
	}
	if e.OTPCodeHash == "" || e.OTPSentAt == nil {
		s.record(ctx, userID, "OTP_VERIFY", auditdomain.StatusFailure, string(mfa.ReasonOTPNotSent))
		return mfa.Failed(auditdomain.MethodSMS, mfa.ReasonOTPNotSent)
	}
	if s.limiter.Exceeded(otpKey(userID)) {
		s.record(ctx, userID, "OTP_VERIFY", auditdomain.StatusFailure, string(mfa.ReasonRateLimited))
		return mfa.Failed(auditdomain.MethodSMS, mfa.ReasonRateLimited)
	}
	now := s.nowF().UTC()
	sentStep := e.OTPSentAt.Unix() / int64(OTPStep.Seconds())
	nowStep := now.Unix() / int64(OTPStep.Seconds())
	if nowStep-sentStep > OTPSkew || nowStep < sentStep {
		s.limiter.Record(otpKey(userID))
		s.record(ctx, userID, "OTP_VERIFY", auditdomain.StatusFailure, string(mfa.ReasonExpiredCode))
		return mfa.Failed(auditdomain.MethodSMS, mfa.ReasonExpiredCode)
	}
	if !mfa.CodeEqual(code, e.OTPCodeSalt, e.OTPCodeHash) {
		s.limiter.Record(otpKey(userID))
		s.record(ctx, userID, "OTP_VERIFY", auditdomain.StatusFailure, string(mfa.ReasonInvalidCode))
		return mfa.Failed(auditdomain.MethodSMS, mfa.ReasonInvalidCode)
	}
	// Single use: clear the hash so a replay is OTP_NOT_SENT.
	e.OTPCodeHash = ""
	e.OTPCodeSalt = ""
	e.OTPSentAt = nil
	if err := s.repo.Save(ctx, e); err != nil {
		return fmt.Errorf("sms: persist otp consumption: %w", err)
	}
	s.limiter.Reset(otpKey(userID))
	s.record(ctx, userID, "OTP_VERIFY", auditdomain.StatusSuccess, "")
	return nil
}

// Disable removes the user's SMS enrollment.
func (s *Service) Disable(ctx context.Context, userID string) error {
	ok, err := s.repo.Delete(ctx, userID)
	if err != nil {
		return fmt.Errorf("sms: delete enrollment: %w", err)
	}
	if !ok {
		s.record(ctx, userID, "DISABLE", auditdomain.StatusFailure, "not enrolled")
		return ErrNotEnrolled
	}
	s.record(ctx, userID, "DISABLE", auditdomain.StatusSuccess, "")
	return nil
}

// EnrolledPhoneNumber returns the verified phone in masked display form,
// e.g. "+1-415-***-2671".
func (s *Service) EnrolledPhoneNumber(ctx context.Context, userID string) (string, error) {
	e, err := s.repo.GetByUser(ctx, userID)
	if err != nil {
		return "", err
	}
	if e == nil || !e.Verified {
		return "", ErrNotEnrolled
	}
	phone, err := s.enc.Decrypt(e.PhoneEnc)
	if err != nil {
		return "", fmt.Errorf("sms: decrypt phone: %w", err)
	}
	return mfa.MaskPhoneNumber(phone), nil
}

// deliver sends code to phone, retrying provider failures with exponential
// backoff under a hard timeout. No per-user lock is held here; a slow
// provider must not block verification of already-issued codes.
func (s *Service) deliver(ctx context.Context, phone, code string) error {
	sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()
	op := func() error {
		err := s.sender.SendCode(sendCtx, phone, code)
		var pe *gateway.ProviderError
		if err != nil && !errors.As(err, &pe) {
			return backoff.Permanent(err)
		}
		return err
	}
	b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), maxSendRetries), sendCtx)
	return backoff.Retry(op, b)
}

func enrollKey(userID string) string { return "enroll:" + userID }
func otpKey(userID string) string    { return "otp:" + userID }

func (s *Service) record(ctx context.Context, userID, eventType string, status auditdomain.Status, reason string) {
	s.auditor.Record(ctx, auditdomain.Event{
		UserID:    userID,
		EventType: eventType,
		Method:    auditdomain.MethodSMS,
		Status:    status,
		Reason:    reason,
	})
}
