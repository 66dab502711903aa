// Package backupcode implements single-use recovery codes: generation rotates
// the whole set atomically, consumption is a conditional update, and every
// attempt is audited.
package backupcode

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"enterprise-mfa/backend/internal/audit"
	auditdomain "enterprise-mfa/backend/internal/audit/domain"
	"enterprise-mfa/backend/internal/authz"
	"enterprise-mfa/backend/internal/backupcode/domain"
	bcrepo "enterprise-mfa/backend/internal/backupcode/repository"
	"enterprise-mfa/backend/internal/mfa"
	"enterprise-mfa/backend/internal/platform/ratelimit"
	"enterprise-mfa/backend/internal/platform/userlock"
	"enterprise-mfa/backend/internal/security"
)

// SetSize is the number of codes in a generated set.
const SetSize = 10

const (
	groupLen  = 4
	numGroups = 3

	maxVerifyFailures   = 5
	verifyFailureWindow = 15 * time.Minute
)

// codeAlphabet omits 0/O and 1/I so codes survive being read aloud or
// transcribed. 32 symbols keeps modulo sampling unbiased.
const codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// ErrRotationFailed reports that persisting a new set failed; the previous
// set remains active.
var ErrRotationFailed = errors.New("backupcode: rotation failed, previous set still active")

// Service implements backup code generation and consumption. Rotation and
// consumption for one user are serialized through the lock registry.
type Service struct {
	repo    bcrepo.Repository
	hasher  *security.Hasher
	locks   *userlock.Registry
	limiter *ratelimit.Limiter
	authz   *authz.Evaluator
	auditor audit.Recorder
	nowF    func() time.Time
}

// NewService returns a backup code service.
func NewService(repo bcrepo.Repository, hasher *security.Hasher, locks *userlock.Registry, evaluator *authz.Evaluator, auditor audit.Recorder) *Service {
	return &Service{
		repo:    repo,
		hasher:  hasher,
		locks:   locks,
		limiter: ratelimit.NewLimiter(maxVerifyFailures, verifyFailureWindow),
		authz:   evaluator,
		auditor: auditor,
		nowF:    time.Now,
	}
}

// Generate creates a fresh set of codes for the user, replacing any existing
// set atomically. The plaintext codes are returned exactly once. Each call
// that completes yields a distinct set.
func (s *Service) Generate(ctx context.Context, userID string) ([]string, error) {
	return s.rotate(ctx, userID, "GENERATE")
}

// Regenerate rotates the set. Identical to Generate; the separate audit event
// type preserves the caller's intent.
func (s *Service) Regenerate(ctx context.Context, userID string) ([]string, error) {
	return s.rotate(ctx, userID, "REGENERATE")
}

func (s *Service) rotate(ctx context.Context, userID, eventType string) ([]string, error) {
	unlock := s.locks.Lock(userID)
	defer unlock()

	plaintexts := make([]string, 0, SetSize)
	codes := make([]domain.Code, 0, SetSize)
	now := s.nowF().UTC()
	for i := 0; i < SetSize; i++ {
		plain, err := newCode()
		if err != nil {
			return nil, err
		}
		hash, err := s.hasher.Hash([]byte(normalize(plain)))
		if err != nil {
			return nil, fmt.Errorf("backupcode: hash code: %w", err)
		}
		plaintexts = append(plaintexts, plain)
		codes = append(codes, domain.Code{
			ID:          uuid.New().String(),
			UserID:      userID,
			CodeHash:    hash,
			Position:    i + 1,
			GeneratedAt: now,
		})
	}
	if err := s.repo.ReplaceSet(ctx, userID, codes); err != nil {
		s.record(ctx, userID, eventType, auditdomain.StatusFailure, "rotation not persisted")
		return nil, fmt.Errorf("%w: %v", ErrRotationFailed, err)
	}
	s.record(ctx, userID, eventType, auditdomain.StatusSuccess, "")
	return plaintexts, nil
}

// Verify consumes the code if it matches an unused one. Consumption is single
// use: the conditional mark-used update is the compare-and-swap, so a code
// can never be accepted twice. Hyphens, spaces, and case are ignored.
func (s *Service) Verify(ctx context.Context, userID, code string) (bool, error) {
	unlock := s.locks.Lock(userID)
	defer unlock()

	if s.limiter.Exceeded(userID) {
		s.record(ctx, userID, "VERIFY", auditdomain.StatusFailure, string(mfa.ReasonRateLimited))
		return false, mfa.Failed(auditdomain.MethodBackupCode, mfa.ReasonRateLimited)
	}
	unused, err := s.repo.ListUnused(ctx, userID)
	if err != nil {
		return false, err
	}
	normalized := []byte(normalize(code))
	for i := range unused {
		if s.hasher.Compare(unused[i].CodeHash, normalized) != nil {
			continue
		}
		ok, err := s.repo.MarkUsed(ctx, unused[i].ID)
		if err != nil {
			return false, fmt.Errorf("backupcode: consume code: %w", err)
		}
		if !ok {
			// Lost the race to a concurrent consumer; the code is spent.
			break
		}
		s.limiter.Reset(userID)
		s.record(ctx, userID, "VERIFY", auditdomain.StatusSuccess, "")
		return true, nil
	}
	s.limiter.Record(userID)
	s.record(ctx, userID, "VERIFY", auditdomain.StatusFailure, string(mfa.ReasonInvalidCode))
	return false, mfa.Failed(auditdomain.MethodBackupCode, mfa.ReasonInvalidCode)
}

// RemainingCount reports how many unused codes the user has left.
func (s *Service) RemainingCount(ctx context.Context, userID string) (int, error) {
	return s.repo.CountUnused(ctx, userID)
}

// AdminConsume burns the user's oldest unused code on their behalf. Requires
// the override capability; returns false when no codes remain. Every outcome
// is audited, unauthorized attempts included.
func (s *Service) AdminConsume(ctx context.Context, actor authz.Actor, userID string) (bool, error) {
	if err := s.authz.Require(ctx, actor, authz.ActionBackupCodeOverride); err != nil {
		s.recordAdmin(ctx, actor.ID, userID, auditdomain.StatusFailure, "not authorized")
		return false, err
	}
	unlock := s.locks.Lock(userID)
	defer unlock()

	unused, err := s.repo.ListUnused(ctx, userID)
	if err != nil {
		return false, err
	}
	for i := range unused {
		ok, err := s.repo.MarkUsed(ctx, unused[i].ID)
		if err != nil {
			return false, fmt.Errorf("backupcode: admin consume: %w", err)
		}
		if ok {
			s.recordAdmin(ctx, actor.ID, userID, auditdomain.StatusSuccess, "")
			return true, nil
		}
	}
	s.recordAdmin(ctx, actor.ID, userID, auditdomain.StatusFailure, "no codes remain")
	return false, nil
}

// newCode samples a XXXX-XXXX-XXXX code from the transcription-safe alphabet.
func newCode() (string, error) {
	raw := make([]byte, groupLen*numGroups)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	var b strings.Builder
	for i, c := range raw {
		if i > 0 && i%groupLen == 0 {
			b.WriteByte('-')
		}
		b.WriteByte(codeAlphabet[int(c)%len(codeAlphabet)])
	}
	return b.String(), nil
}

// normalize strips separators and upcases so user input matches the stored
// form regardless of transcription.
func normalize(code string) string {
	code = strings.ToUpper(code)
	code = strings.ReplaceAll(code, "-", "")
	return strings.ReplaceAll(code, " ", "")
}

func (s *Service) record(ctx context.Context, userID, eventType string, status auditdomain.Status, reason string) {
	s.auditor.Record(ctx, auditdomain.Event{
		UserID:    userID,
		EventType: eventType,
		Method:    auditdomain.MethodBackupCode,
		Status:    status,
		Reason:    reason,
	})
}

func (s *Service) recordAdmin(ctx context.Context, adminID, userID string, status auditdomain.Status, reason string) {
	s.auditor.Record(ctx, auditdomain.Event{
		UserID:    userID,
		AdminID:   adminID,
		EventType: "ADMIN_CONSUME",
		Method:    auditdomain.MethodBackupCode,
		Status:    status,
		Reason:    reason,
	})
}
