package webauthn

import (
	"bytes"
	"context"
	"errors"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	auditdomain "enterprise-mfa/backend/internal/audit/domain"
	"enterprise-mfa/backend/internal/authz"
	"enterprise-mfa/backend/internal/mfa"
	"enterprise-mfa/backend/internal/webauthn/challenge"
	"enterprise-mfa/backend/internal/webauthn/domain"
)

type memWaRepo struct {
	mu    sync.Mutex
	creds []domain.Credential
}

func (r *memWaRepo) ListByUser(ctx context.Context, userID string) ([]domain.Credential, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Credential
	for _, c := range r.creds {
		if c.UserID == userID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (r *memWaRepo) GetByCredentialID(ctx context.Context, credentialID []byte) (*domain.Credential, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.creds {
		if bytes.Equal(r.creds[i].CredentialID, credentialID) {
			cp := r.creds[i]
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *memWaRepo) Create(ctx context.Context, c *domain.Credential) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.creds = append(r.creds, *c)
	return nil
}

func (r *memWaRepo) UpdateUsage(ctx context.Context, credentialID []byte, signCount uint32) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.creds {
		if bytes.Equal(r.creds[i].CredentialID, credentialID) {
			r.creds[i].SignCount = signCount
			now := time.Now().UTC()
			r.creds[i].LastUsedAt = &now
		}
	}
	return nil
}

func (r *memWaRepo) Delete(ctx context.Context, credentialID []byte, userID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.creds {
		if bytes.Equal(r.creds[i].CredentialID, credentialID) && r.creds[i].UserID == userID {
			r.creds = append(r.creds[:i], r.creds[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func (r *memWaRepo) DeleteByUser(ctx context.Context, userID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var kept []domain.Credential
	var n int64
	for _, c := range r.creds {
		if c.UserID == userID {
			n++
			continue
		}
		kept = append(kept, c)
	}
	r.creds = kept
	return n, nil
}

func (r *memWaRepo) DeleteAll(ctx context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := int64(len(r.creds))
	r.creds = nil
	return n, nil
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

func newWaTestService(t *testing.T) (*Service, *memWaRepo, *memRecorder) {
	t.Helper()
	ev, err := authz.NewEvaluator("")
	if err != nil {
		t.Fatalf("NewEvaluator: %v", err)
	}
	repo := &memWaRepo{}
	rec := &memRecorder{}
	s, err := NewService(Config{
		RPID:          "example.com",
		RPDisplayName: "Example",
		RPOrigins:     []string{"https://example.com"},
	}, repo, challenge.NewMemoryStore(), ev, rec)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return s, repo, rec
}

func seedCredential(r *memWaRepo, userID string, id []byte, signCount uint32) {
	r.creds = append(r.creds, domain.Credential{
		CredentialID: id,
		UserID:       userID,
		PublicKey:    []byte("pk"),
		SignCount:    signCount,
		Nickname:     "yubikey",
		CreatedAt:    time.Now().UTC(),
	})
}

func TestSignCounterPolicy(t *testing.T) {
	cases := []struct {
		stored, reported uint32
		want             bool
	}{
		{0, 0, true},   // authenticator without a counter
		{0, 1, true},   // counter starts advancing
		{5, 6, true},   // normal advance
		{5, 100, true}, // gaps are fine
		{5, 5, false},  // stuck counter
		{5, 4, false},  // regression
		{5, 0, false},  // reset
	}
	for _, c := range cases {
		if got := signCounterOK(c.stored, c.reported); got != c.want {
			t.Errorf("signCounterOK(%d, %d) = %v, want %v", c.stored, c.reported, got, c.want)
		}
	}
}

func TestStartRegistration_IssuesSingleUseSession(t *testing.T) {
	s, _, rec := newWaTestService(t)
	ctx := context.Background()

	creation, sessionID, err := s.StartRegistration(ctx, "u1", "alice", "Alice")
	if err != nil {
		t.Fatalf("StartRegistration: %v", err)
	}
	if creation == nil || creation.Response.Challenge.String() == "" {
		t.Fatal("creation options missing challenge")
	}
	if sessionID == "" {
		t.Fatal("empty session ID")
	}

	// A malformed finish consumes the session and fails verification.
	req := httptest.NewRequest("POST", "/mfa/webauthn/register/finish", bytes.NewReader([]byte("{}")))
	if _, err := s.FinishRegistration(ctx, "u1", sessionID, "key", req); mfa.ReasonOf(err) != mfa.ReasonInvalidCode {
		t.Errorf("malformed finish reason = %q, want INVALID_CODE", mfa.ReasonOf(err))
	}
	// The session is gone; retrying reports an expired challenge.
	req2 := httptest.NewRequest("POST", "/mfa/webauthn/register/finish", bytes.NewReader([]byte("{}")))
	if _, err := s.FinishRegistration(ctx, "u1", sessionID, "key", req2); mfa.ReasonOf(err) != mfa.ReasonExpiredCode {
		t.Errorf("replayed session reason = %q, want EXPIRED_CODE", mfa.ReasonOf(err))
	}
	if e := rec.last(); e.Status != auditdomain.StatusFailure {
		t.Errorf("audit status = %q, want FAILURE", e.Status)
	}
}

func TestFinishRegistration_UnknownSession(t *testing.T) {
	s, _, _ := newWaTestService(t)
	req := httptest.NewRequest("POST", "/", bytes.NewReader(nil))
	_, err := s.FinishRegistration(context.Background(), "u", "no-such-session", "key", req)
	if mfa.ReasonOf(err) != mfa.ReasonExpiredCode {
		t.Errorf("reason = %q, want EXPIRED_CODE", mfa.ReasonOf(err))
	}
}

func TestStartAuthentication_RequiresEnrollment(t *testing.T) {
	s, repo, _ := newWaTestService(t)
	ctx := context.Background()

	if _, _, err := s.StartAuthentication(ctx, "u1"); mfa.ReasonOf(err) != mfa.ReasonNoEnrollmentPending {
		t.Errorf("reason = %q, want NO_ENROLLMENT_PENDING", mfa.ReasonOf(err))
	}

	seedCredential(repo, "u1", []byte("cred-1"), 3)
	assertion, sessionID, err := s.StartAuthentication(ctx, "u1")
	if err != nil {
		t.Fatalf("StartAuthentication: %v", err)
	}
	if len(assertion.Response.AllowedCredentials) != 1 {
		t.Errorf("allow-list size = %d, want 1", len(assertion.Response.AllowedCredentials))
	}
	if sessionID == "" {
		t.Error("empty session ID")
	}
}

func TestStartAuthentication_Discoverable(t *testing.T) {
	s, _, _ := newWaTestService(t)
	assertion, sessionID, err := s.StartAuthentication(context.Background(), "")
	if err != nil {
		t.Fatalf("discoverable start: %v", err)
	}
	if len(assertion.Response.AllowedCredentials) != 0 {
		t.Error("discoverable ceremony should carry no allow-list")
	}
	if sessionID == "" {
		t.Error("empty session ID")
	}
}

func TestDeleteCredential_OwnershipAndAdmin(t *testing.T) {
	s, repo, rec := newWaTestService(t)
	ctx := context.Background()
	seedCredential(repo, "u1", []byte("cred-1"), 0)
	seedCredential(repo, "u1", []byte("cred-2"), 0)

	// Owner deletes their own without any capability.
	owner := authz.Actor{ID: "u1"}
	if err := s.DeleteCredential(ctx, owner, "u1", []byte("cred-1"), ""); err != nil {
		t.Fatalf("owner delete: %v", err)
	}

	// A non-admin actor cannot delete someone else's credential.
	stranger := authz.Actor{ID: "u2", Roles: []string{"member"}}
	err := s.DeleteCredential(ctx, stranger, "u1", []byte("cred-2"), "cleanup")
	if !errors.Is(err, authz.ErrNotAuthorized) {
		t.Fatalf("stranger delete = %v, want ErrNotAuthorized", err)
	}
	if e := rec.last(); e.AdminID != "u2" || e.Status != auditdomain.StatusFailure {
		t.Errorf("unauthorized attempt audit = %+v, want FAILURE with AdminID u2", e)
	}

	// Admin path needs a reason.
	admin := authz.Actor{ID: "ops-1", Roles: []string{"admin"}}
	if err := s.DeleteCredential(ctx, admin, "u1", []byte("cred-2"), ""); !errors.Is(err, ErrReasonRequired) {
		t.Fatalf("admin delete without reason = %v, want ErrReasonRequired", err)
	}
	if err := s.DeleteCredential(ctx, admin, "u1", []byte("cred-2"), "compromised key"); err != nil {
		t.Fatalf("admin delete: %v", err)
	}
	if e := rec.last(); e.AdminID != "ops-1" || e.Reason != "compromised key" {
		t.Errorf("admin delete audit = %+v, want AdminID ops-1 with reason", e)
	}

	if err := s.DeleteCredential(ctx, owner, "u1", []byte("cred-1"), ""); !errors.Is(err, ErrCredentialNotFound) {
		t.Errorf("deleting missing credential = %v, want ErrCredentialNotFound", err)
	}
}

func TestDisableWebAuthn(t *testing.T) {
	s, repo, _ := newWaTestService(t)
	ctx := context.Background()
	if err := s.Disable(ctx, "u1"); !errors.Is(err, ErrNotEnrolled) {
		t.Errorf("disable without credentials = %v, want ErrNotEnrolled", err)
	}
	seedCredential(repo, "u1", []byte("a"), 0)
	seedCredential(repo, "u1", []byte("b"), 0)
	seedCredential(repo, "u2", []byte("c"), 0)
	if err := s.Disable(ctx, "u1"); err != nil {
		t.Fatalf("Disable: %v", err)
	}
	left, _ := s.ListCredentials(ctx, "u1")
	if len(left) != 0 {
		t.Errorf("u1 credentials left = %d, want 0", len(left))
	}
	other, _ := s.ListCredentials(ctx, "u2")
	if len(other) != 1 {
		t.Errorf("u2 credentials = %d, want untouched 1", len(other))
	}
}

func TestAdminDisableAllUsers(t *testing.T) {
	s, repo, rec := newWaTestService(t)
	ctx := context.Background()
	seedCredential(repo, "u1", []byte("a"), 0)
	seedCredential(repo, "u2", []byte("b"), 0)
	super := authz.Actor{ID: "root-1", Roles: []string{"superadmin"}}

	if _, err := s.AdminDisableAllUsers(ctx, super, false, "incident"); !errors.Is(err, ErrConfirmationRequired) {
		t.Errorf("unconfirmed = %v, want ErrConfirmationRequired", err)
	}
	if _, err := s.AdminDisableAllUsers(ctx, super, true, ""); !errors.Is(err, ErrReasonRequired) {
		t.Errorf("no reason = %v, want ErrReasonRequired", err)
	}
	// A plain admin lacks the global-disable capability.
	admin := authz.Actor{ID: "ops-1", Roles: []string{"admin"}}
	if _, err := s.AdminDisableAllUsers(ctx, admin, true, "incident"); !errors.Is(err, authz.ErrNotAuthorized) {
		t.Errorf("admin actor = %v, want ErrNotAuthorized", err)
	}
	if e := rec.last(); e.Status != auditdomain.StatusFailure || e.AdminID != "ops-1" {
		t.Errorf("refusal audit = %+v, want FAILURE with AdminID", e)
	}

	n, err := s.AdminDisableAllUsers(ctx, super, true, "fleet compromise")
	if err != nil {
		t.Fatalf("AdminDisableAllUsers: %v", err)
	}
	if n != 2 {
		t.Errorf("removed = %d, want 2", n)
	}
	if e := rec.last(); e.Status != auditdomain.StatusSuccess || e.Reason != "fleet compromise" {
		t.Errorf("success audit = %+v", e)
	}
}
