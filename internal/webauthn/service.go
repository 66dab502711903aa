// Package webauthn implements FIDO2 credential registration and assertion
// verification. Ceremony validation (client data, origin, attestation,
// signatures) is delegated to go-webauthn; this package owns challenge
// lifecycle, persistence, sign-counter policy, and auditing.
package webauthn

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/google/uuid"

	"enterprise-mfa/backend/internal/audit"
	auditdomain "enterprise-mfa/backend/internal/audit/domain"
	"enterprise-mfa/backend/internal/authz"
	"enterprise-mfa/backend/internal/mfa"
	"enterprise-mfa/backend/internal/webauthn/challenge"
	"enterprise-mfa/backend/internal/webauthn/domain"
	warepo "enterprise-mfa/backend/internal/webauthn/repository"
)

// defaultChallengeTTL bounds a ceremony when the library session carries no
// expiry of its own.
const defaultChallengeTTL = 5 * time.Minute

// Sentinel errors.
var (
	ErrNotEnrolled          = errors.New("webauthn: user has no registered credentials")
	ErrCredentialNotFound   = errors.New("webauthn: credential not found for user")
	ErrReasonRequired       = errors.New("webauthn: admin operation requires a reason")
	ErrConfirmationRequired = errors.New("webauthn: global disable requires explicit confirmation")
)

// Config carries the relying-party identity used for ceremony validation.
type Config struct {
	RPID          string
	RPDisplayName string
	RPOrigins     []string
}

// Service implements WebAuthn MFA.
type Service struct {
	wa       *webauthn.WebAuthn
	repo     warepo.Repository
	sessions challenge.Store
	authz    *authz.Evaluator
	auditor  audit.Recorder
	nowF     func() time.Time
}

// NewService returns a WebAuthn service for the given relying party.
func NewService(cfg Config, repo warepo.Repository, sessions challenge.Store, evaluator *authz.Evaluator, auditor audit.Recorder) (*Service, error) {
	wa, err := webauthn.New(&webauthn.Config{
		RPID:          cfg.RPID,
		RPDisplayName: cfg.RPDisplayName,
		RPOrigins:     cfg.RPOrigins,
	})
	if err != nil {
		return nil, fmt.Errorf("webauthn: relying party config: %w", err)
	}
	return &Service{
		wa:       wa,
		repo:     repo,
		sessions: sessions,
		authz:    evaluator,
		auditor:  auditor,
		nowF:     time.Now,
	}, nil
}

// ceremonyUser adapts a user ID plus stored credentials to the library's
// user interface. The user handle is the user ID itself.
type ceremonyUser struct {
	id          string
	name        string
	displayName string
	creds       []webauthn.Credential
}

func (u *ceremonyUser) WebAuthnID() []byte                         { return []byte(u.id) }
func (u *ceremonyUser) WebAuthnName() string                       { return u.name }
func (u *ceremonyUser) WebAuthnDisplayName() string                { return u.displayName }
func (u *ceremonyUser) WebAuthnCredentials() []webauthn.Credential { return u.creds }

func (s *Service) loadUser(ctx context.Context, userID string) (*ceremonyUser, []domain.Credential, error) {
	stored, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	creds := make([]webauthn.Credential, 0, len(stored))
	for i := range stored {
		creds = append(creds, stored[i].Library())
	}
	return &ceremonyUser{id: userID, name: userID, displayName: userID, creds: creds}, stored, nil
}

// StartRegistration begins a registration ceremony and returns the options
// the client passes to navigator.credentials.create plus an opaque session ID
// the caller must echo on finish. The challenge is single use and expires
// with the ceremony timeout.
func (s *Service) StartRegistration(ctx context.Context, userID, username, displayName string) (*protocol.CredentialCreation, string, error) {
	user, stored, err := s.loadUser(ctx, userID)
	if err != nil {
		return nil, "", err
	}
	if username != "" {
		user.name = username
	}
	if displayName != "" {
		user.displayName = displayName
	}
	exclusions := make([]protocol.CredentialDescriptor, 0, len(stored))
	for i := range stored {
		exclusions = append(exclusions, protocol.CredentialDescriptor{
			Type:         protocol.PublicKeyCredentialType,
			CredentialID: stored[i].CredentialID,
		})
	}
	creation, session, err := s.wa.BeginRegistration(user, webauthn.WithExclusions(exclusions))
	if err != nil {
		return nil, "", fmt.Errorf("webauthn: begin registration: %w", err)
	}
	sessionID := s.storeSession(ctx, *session)
	return creation, sessionID, nil
}

// FinishRegistration verifies the authenticator's attestation response and
// persists the new credential under the given nickname.
func (s *Service) FinishRegistration(ctx context.Context, userID, sessionID, nickname string, r *http.Request) (*domain.Credential, error) {
	session, ok := s.sessions.Take(ctx, sessionID)
	if !ok {
		s.record(ctx, userID, "REGISTER", auditdomain.StatusFailure, string(mfa.ReasonExpiredCode))
		return nil, mfa.Failed(auditdomain.MethodWebAuthn, mfa.ReasonExpiredCode)
	}
	if !bytes.Equal(session.UserID, []byte(userID)) {
		s.record(ctx, userID, "REGISTER", auditdomain.StatusFailure, "session user mismatch")
		return nil, mfa.Failed(auditdomain.MethodWebAuthn, mfa.ReasonInvalidCode)
	}
	user, _, err := s.loadUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	cred, err := s.wa.FinishRegistration(user, session, r)
	if err != nil {
		s.record(ctx, userID, "REGISTER", auditdomain.StatusFailure, string(mfa.ReasonInvalidCode))
		return nil, mfa.Failed(auditdomain.MethodWebAuthn, mfa.ReasonInvalidCode)
	}
	dc := domain.FromLibrary(userID, nickname, cred, s.nowF().UTC())
	if err := s.repo.Create(ctx, dc); err != nil {
		return nil, fmt.Errorf("webauthn: persist credential: %w", err)
	}
	s.record(ctx, userID, "REGISTER", auditdomain.StatusSuccess, "")
	return dc, nil
}

// StartAuthentication begins an assertion ceremony. With a user ID the
// allow-list is the user's registered credentials; with an empty user ID a
// discoverable (passkey) ceremony is started and identity is resolved from
// the credential's user handle on finish.
func (s *Service) StartAuthentication(ctx context.Context, userID string) (*protocol.CredentialAssertion, string, error) {
	if userID == "" {
		assertion, session, err := s.wa.BeginDiscoverableLogin()
		if err != nil {
			return nil, "", fmt.Errorf("webauthn: begin discoverable login: %w", err)
		}
		return assertion, s.storeSession(ctx, *session), nil
	}
	user, stored, err := s.loadUser(ctx, userID)
	if err != nil {
		return nil, "", err
	}
	if len(stored) == 0 {
		s.record(ctx, userID, "AUTH", auditdomain.StatusFailure, string(mfa.ReasonNoEnrollmentPending))
		return nil, "", mfa.Failed(auditdomain.MethodWebAuthn, mfa.ReasonNoEnrollmentPending)
	}
	assertion, session, err := s.wa.BeginLogin(user)
	if err != nil {
		return nil, "", fmt.Errorf("webauthn: begin login: %w", err)
	}
	return assertion, s.storeSession(ctx, *session), nil
}

// FinishAuthentication verifies the assertion and returns the authenticated
// user ID. A sign counter that fails to advance past a non-zero stored value
// indicates a possible cloned authenticator; the assertion is rejected and
// the event audited.
func (s *Service) FinishAuthentication(ctx context.Context, sessionID string, r *http.Request) (string, error) {
	session, ok := s.sessions.Take(ctx, sessionID)
	if !ok {
		s.record(ctx, "", "AUTH", auditdomain.StatusFailure, string(mfa.ReasonExpiredCode))
		return "", mfa.Failed(auditdomain.MethodWebAuthn, mfa.ReasonExpiredCode)
	}
	var cred *webauthn.Credential
	var userID string
	var err error
	if len(session.UserID) > 0 {
		userID = string(session.UserID)
		var user *ceremonyUser
		user, _, err = s.loadUser(ctx, userID)
		if err != nil {
			return "", err
		}
		cred, err = s.wa.FinishLogin(user, session, r)
	} else {
		handler := func(rawID, userHandle []byte) (webauthn.User, error) {
			userID = string(userHandle)
			user, _, lerr := s.loadUser(ctx, userID)
			if lerr != nil {
				return nil, lerr
			}
			return user, nil
		}
		cred, err = s.wa.FinishDiscoverableLogin(handler, session, r)
	}
	if err != nil {
		s.record(ctx, userID, "AUTH", auditdomain.StatusFailure, string(mfa.ReasonInvalidCode))
		return "", mfa.Failed(auditdomain.MethodWebAuthn, mfa.ReasonInvalidCode)
	}
	stored, err := s.repo.GetByCredentialID(ctx, cred.ID)
	if err != nil {
		return "", err
	}
	if stored == nil || stored.UserID != userID {
		s.record(ctx, userID, "AUTH", auditdomain.StatusFailure, "unknown credential")
		return "", mfa.Failed(auditdomain.MethodWebAuthn, mfa.ReasonInvalidCode)
	}
	if cred.Authenticator.CloneWarning || !signCounterOK(stored.SignCount, cred.Authenticator.SignCount) {
		s.record(ctx, userID, "AUTH_COUNTER_REGRESSION", auditdomain.StatusFailure, "sign counter did not advance")
		return "", mfa.Failed(auditdomain.MethodWebAuthn, mfa.ReasonInvalidCode)
	}
	if err := s.repo.UpdateUsage(ctx, cred.ID, cred.Authenticator.SignCount); err != nil {
		return "", fmt.Errorf("webauthn: update credential usage: %w", err)
	}
	s.record(ctx, userID, "AUTH", auditdomain.StatusSuccess, "")
	return userID, nil
}

// signCounterOK implements the counter policy: authenticators that never
// report a counter (both sides zero) pass; otherwise the reported value must
// strictly advance.
func signCounterOK(stored, reported uint32) bool {
	if stored == 0 && reported == 0 {
		return true
	}
	return reported > stored
}

// ListCredentials returns the user's registered credentials, oldest first.
func (s *Service) ListCredentials(ctx context.Context, userID string) ([]domain.Credential, error) {
	return s.repo.ListByUser(ctx, userID)
}

// DeleteCredential removes one credential. A user may delete their own; any
// other actor needs the admin-delete capability and a reason, and the
// operation is audited whether or not it is authorized.
func (s *Service) DeleteCredential(ctx context.Context, actor authz.Actor, userID string, credentialID []byte, reason string) error {
	admin := actor.ID != userID
	if admin {
		if reason == "" {
			return ErrReasonRequired
		}
		if err := s.authz.Require(ctx, actor, authz.ActionWebAuthnAdminDelete); err != nil {
			s.recordAdmin(ctx, actor.ID, userID, "ADMIN_DELETE_CREDENTIAL", auditdomain.StatusFailure, "not authorized")
			return err
		}
	}
	ok, err := s.repo.Delete(ctx, credentialID, userID)
	if err != nil {
		return fmt.Errorf("webauthn: delete credential: %w", err)
	}
	if !ok {
		if admin {
			s.recordAdmin(ctx, actor.ID, userID, "ADMIN_DELETE_CREDENTIAL", auditdomain.StatusFailure, "credential not found")
		}
		return ErrCredentialNotFound
	}
	if admin {
		s.recordAdmin(ctx, actor.ID, userID, "ADMIN_DELETE_CREDENTIAL", auditdomain.StatusSuccess, reason)
	} else {
		s.record(ctx, userID, "DELETE_CREDENTIAL", auditdomain.StatusSuccess, "")
	}
	return nil
}

// Disable removes all of the user's credentials.
func (s *Service) Disable(ctx context.Context, userID string) error {
	n, err := s.repo.DeleteByUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("webauthn: delete credentials: %w", err)
	}
	if n == 0 {
		s.record(ctx, userID, "DISABLE", auditdomain.StatusFailure, "not enrolled")
		return ErrNotEnrolled
	}
	s.record(ctx, userID, "DISABLE", auditdomain.StatusSuccess, "")
	return nil
}

// AdminDisableAllUsers removes every registered credential platform-wide.
// Requires the global-disable capability, an explicit confirm flag, and a
// reason; the attempt is audited on every path, refusals included.
func (s *Service) AdminDisableAllUsers(ctx context.Context, actor authz.Actor, confirm bool, reason string) (int64, error) {
	if !confirm {
		s.recordAdmin(ctx, actor.ID, "", "ADMIN_GLOBAL_DISABLE", auditdomain.StatusFailure, "not confirmed")
		return 0, ErrConfirmationRequired
	}
	if reason == "" {
		s.recordAdmin(ctx, actor.ID, "", "ADMIN_GLOBAL_DISABLE", auditdomain.StatusFailure, "no reason given")
		return 0, ErrReasonRequired
	}
	if err := s.authz.Require(ctx, actor, authz.ActionWebAuthnGlobalDisable); err != nil {
		s.recordAdmin(ctx, actor.ID, "", "ADMIN_GLOBAL_DISABLE", auditdomain.StatusFailure, "not authorized")
		return 0, err
	}
	n, err := s.repo.DeleteAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("webauthn: global disable: %w", err)
	}
	s.recordAdmin(ctx, actor.ID, "", "ADMIN_GLOBAL_DISABLE", auditdomain.StatusSuccess, reason)
	return n, nil
}

func (s *Service) storeSession(ctx context.Context, session webauthn.SessionData) string {
	sessionID := uuid.New().String()
	expires := session.Expires
	if expires.IsZero() {
		expires = s.nowF().UTC().Add(defaultChallengeTTL)
	}
	s.sessions.Put(ctx, sessionID, session, expires)
	return sessionID
}

func (s *Service) record(ctx context.Context, userID, eventType string, status auditdomain.Status, reason string) {
	s.auditor.Record(ctx, auditdomain.Event{
		UserID:    userID,
		EventType: eventType,
		Method:    auditdomain.MethodWebAuthn,
		Status:    status,
		Reason:    reason,
	})
}

func (s *Service) recordAdmin(ctx context.Context, adminID, userID, eventType string, status auditdomain.Status, reason string) {
	s.auditor.Record(ctx, auditdomain.Event{
		UserID:    userID,
		AdminID:   adminID,
		EventType: eventType,
		Method:    auditdomain.MethodWebAuthn,
		Status:    status,
		Reason:    reason,
	})
}
