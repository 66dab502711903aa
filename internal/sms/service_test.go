package sms

import (
	"context"
	"encoding/hex"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	auditdomain "enterprise-mfa/backend/internal/audit/domain"
	"enterprise-mfa/backend/internal/mfa"
	"enterprise-mfa/backend/internal/security"
	"enterprise-mfa/backend/internal/sms/domain"
	"enterprise-mfa/backend/internal/sms/gateway"
)

type memSmsRepo struct {
	mu sync.Mutex
	m  map[string]*domain.Enrollment
}

func newMemSmsRepo() *memSmsRepo {
	return &memSmsRepo{m: make(map[string]*domain.Enrollment)}
}

func (r *memSmsRepo) GetByUser(ctx context.Context, userID string) (*domain.Enrollment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.m[userID]; ok {
		cp := *e
		return &cp, nil
	}
	return nil, nil
}

func (r *memSmsRepo) Save(ctx context.Context, e *domain.Enrollment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *e
	r.m[e.UserID] = &cp
	return nil
}

func (r *memSmsRepo) Delete(ctx context.Context, userID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.m[userID]
	delete(r.m, userID)
	return ok, nil
}

type memRecorder struct {
	mu     sync.Mutex
	events []auditdomain.Event
}

func (r *memRecorder) Record(ctx context.Context, e auditdomain.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *memRecorder) last() auditdomain.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.events[len(r.events)-1]
}

// memSender captures delivered codes; failFor makes the first N sends return
// a *gateway.ProviderError.
type memSender struct {
	mu      sync.Mutex
	sent    []string
	phones  []string
	failFor int
}

func (s *memSender) SendCode(ctx context.Context, phone, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failFor > 0 {
		s.failFor--
		return &gateway.ProviderError{Err: errors.New("unreachable")}
	}
	s.sent = append(s.sent, code)
	s.phones = append(s.phones, phone)
	return nil
}

func (s *memSender) lastCode() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sent[len(s.sent)-1]
}

func newSmsTestService(t *testing.T) (*Service, *memSender, *memRecorder) {
	t.Helper()
	enc, err := security.NewEncryptor(hex.EncodeToString(make([]byte, 32)))
	if err != nil {
		t.Fatalf("NewEncryptor: %v", err)
	}
	sender := &memSender{}
	rec := &memRecorder{}
	return NewService(newMemSmsRepo(), sender, enc, rec), sender, rec
}

const testPhone = "+14155552671"

func enrollVerified(t *testing.T, s *Service, sender *memSender, userID string) {
	t.Helper()
	ctx := context.Background()
	if err := s.EnrollPhoneNumber(ctx, userID, testPhone); err != nil {
		t.Fatalf("EnrollPhoneNumber: %v", err)
	}
	if err := s.VerifyEnrollmentCode(ctx, userID, sender.lastCode()); err != nil {
		t.Fatalf("VerifyEnrollmentCode: %v", err)
	}
}

func TestEnrollAndVerifyPhone(t *testing.T) {
	s, sender, rec := newSmsTestService(t)
	ctx := context.Background()

	if err := s.EnrollPhoneNumber(ctx, "u1", "911"); err == nil {
		t.Error("short number should be rejected")
	}
	enrollVerified(t, s, sender, "u1")
	if e := rec.last(); e.Status != auditdomain.StatusSuccess || e.EventType != "ENROLL_VERIFY" {
		t.Errorf("audit event = %+v, want ENROLL_VERIFY SUCCESS", e)
	}

	masked, err := s.EnrolledPhoneNumber(ctx, "u1")
	if err != nil {
		t.Fatalf("EnrolledPhoneNumber: %v", err)
	}
	if masked != "+1-415-***-2671" {
		t.Errorf("masked = %q, want +1-415-***-2671", masked)
	}
	if strings.Contains(masked, "555") {
		t.Errorf("masked %q leaks middle digits", masked)
	}
}

func TestVerifyEnrollment_WrongThenReplay(t *testing.T) {
	s, sender, _ := newSmsTestService(t)
	ctx := context.Background()
	if err := s.EnrollPhoneNumber(ctx, "u", testPhone); err != nil {
		t.Fatalf("EnrollPhoneNumber: %v", err)
	}
	if err := s.VerifyEnrollmentCode(ctx, "u", "000000"); mfa.ReasonOf(err) != mfa.ReasonInvalidCode {
		t.Errorf("wrong code reason = %q, want INVALID_CODE", mfa.ReasonOf(err))
	}
	if err := s.VerifyEnrollmentCode(ctx, "u", sender.lastCode()); err != nil {
		t.Fatalf("correct code: %v", err)
	}
	// The code was consumed; verifying again has no pending enrollment.
	if err := s.VerifyEnrollmentCode(ctx, "u", sender.lastCode()); mfa.ReasonOf(err) != mfa.ReasonNoEnrollmentPending {
		t.Errorf("replay reason = %q, want NO_ENROLLMENT_PENDING", mfa.ReasonOf(err))
	}
}

func TestVerifyEnrollment_Expired(t *testing.T) {
	s, sender, _ := newSmsTestService(t)
	ctx := context.Background()
	base := time.Unix(1700000000, 0).UTC()
	s.nowF = func() time.Time { return base }
	if err := s.EnrollPhoneNumber(ctx, "u", testPhone); err != nil {
		t.Fatalf("EnrollPhoneNumber: %v", err)
	}
	s.nowF = func() time.Time { return base.Add(VerificationTTL + time.Second) }
	if err := s.VerifyEnrollmentCode(ctx, "u", sender.lastCode()); mfa.ReasonOf(err) != mfa.ReasonExpiredCode {
		t.Errorf("reason = %q, want EXPIRED_CODE", mfa.ReasonOf(err))
	}
}

func TestVerifyEnrollment_RateLimited(t *testing.T) {
	s, sender, _ := newSmsTestService(t)
	ctx := context.Background()
	if err := s.EnrollPhoneNumber(ctx, "u", testPhone); err != nil {
		t.Fatalf("EnrollPhoneNumber: %v", err)
	}
	for i := 0; i < 5; i++ {
		_ = s.VerifyEnrollmentCode(ctx, "u", "000000")
	}
	// Correct code, but the attempt budget is spent.
	if err := s.VerifyEnrollmentCode(ctx, "u", sender.lastCode()); mfa.ReasonOf(err) != mfa.ReasonRateLimited {
		t.Errorf("reason = %q, want RATE_LIMITED", mfa.ReasonOf(err))
	}
}

func TestSendAndVerifyOTP(t *testing.T) {
	s, sender, rec := newSmsTestService(t)
	ctx := context.Background()
	enrollVerified(t, s, sender, "u")

	// Verifying before any send is its own failure mode.
	if err := s.VerifyOTPCode(ctx, "u", "123456"); mfa.ReasonOf(err) != mfa.ReasonOTPNotSent {
		t.Errorf("reason = %q, want OTP_NOT_SENT", mfa.ReasonOf(err))
	}

	if err := s.SendOTPCode(ctx, "u"); err != nil {
		t.Fatalf("SendOTPCode: %v", err)
	}
	if err := s.VerifyOTPCode(ctx, "u", sender.lastCode()); err != nil {
		t.Fatalf("VerifyOTPCode: %v", err)
	}
	if e := rec.last(); e.Status != auditdomain.StatusSuccess || e.Method != auditdomain.MethodSMS {
		t.Errorf("audit event = %+v, want sms SUCCESS", e)
	}
	// Single use.
	if err := s.VerifyOTPCode(ctx, "u", sender.lastCode()); mfa.ReasonOf(err) != mfa.ReasonOTPNotSent {
		t.Errorf("replay reason = %q, want OTP_NOT_SENT", mfa.ReasonOf(err))
	}
}

func TestVerifyOTP_Expired(t *testing.T) {
	s, sender, _ := newSmsTestService(t)
	ctx := context.Background()
	enrollVerified(t, s, sender, "u")
	base := time.Unix(1700000000, 0).UTC()
	s.nowF = func() time.Time { return base }
	if err := s.SendOTPCode(ctx, "u"); err != nil {
		t.Fatalf("SendOTPCode: %v", err)
	}
	// Two steps later the code is outside the skew window.
	s.nowF = func() time.Time { return base.Add(2 * OTPStep) }
	if err := s.VerifyOTPCode(ctx, "u", sender.lastCode()); mfa.ReasonOf(err) != mfa.ReasonExpiredCode {
		t.Errorf("reason = %q, want EXPIRED_CODE", mfa.ReasonOf(err))
	}
}

func TestSendOTP_Bounded(t *testing.T) {
	s, sender, _ := newSmsTestService(t)
	ctx := context.Background()
	enrollVerified(t, s, sender, "u")
	base := time.Unix(1700000000, 0).UTC()
	s.nowF = func() time.Time { return base }
	for i := 0; i < 5; i++ {
		if err := s.SendOTPCode(ctx, "u"); err != nil {
			t.Fatalf("send %d: %v", i+1, err)
		}
	}
	if err := s.SendOTPCode(ctx, "u"); mfa.ReasonOf(err) != mfa.ReasonRateLimited {
		t.Errorf("6th send reason = %q, want RATE_LIMITED", mfa.ReasonOf(err))
	}
	// A fresh window allows sends again.
	s.nowF = func() time.Time { return base.Add(sendWindow) }
	if err := s.SendOTPCode(ctx, "u"); err != nil {
		t.Errorf("send in new window: %v", err)
	}
}

func TestDeliver_RetriesProviderFailures(t *testing.T) {
	s, sender, _ := newSmsTestService(t)
	ctx := context.Background()
	sender.failFor = 2
	if err := s.EnrollPhoneNumber(ctx, "u", testPhone); err != nil {
		t.Fatalf("EnrollPhoneNumber with flaky gateway: %v", err)
	}
	if err := s.VerifyEnrollmentCode(ctx, "u", sender.lastCode()); err != nil {
		t.Fatalf("VerifyEnrollmentCode: %v", err)
	}
}

func TestDisableSms(t *testing.T) {
	s, sender, _ := newSmsTestService(t)
	ctx := context.Background()
	if err := s.Disable(ctx, "u"); !errors.Is(err, ErrNotEnrolled) {
		t.Errorf("disable without enrollment = %v, want ErrNotEnrolled", err)
	}
	enrollVerified(t, s, sender, "u")
	if err := s.Disable(ctx, "u"); err != nil {
		t.Fatalf("Disable: %v", err)
	}
	if err := s.SendOTPCode(ctx, "u"); !errors.Is(err, ErrNotEnrolled) {
		t.Errorf("send after disable = %v, want ErrNotEnrolled", err)
	}
}
