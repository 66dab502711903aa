// Package audit records every MFA attempt, success or failure, to an
// append-only sink.
package audit

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"enterprise-mfa/backend/internal/audit/domain"
	auditrepo "enterprise-mfa/backend/internal/audit/repository"
)

// IPExtractor returns the client IP from the request context (set by the
// transport layer).
type IPExtractor func(context.Context) string

// Recorder writes a single MFA audit event. Record is best-effort: failures
// are logged and do not affect the caller; a failed audit write must never
// turn a successful verification into an error.
type Recorder interface {
	Record(ctx context.Context, e domain.Event)
}

// AttemptCounter observes one audited attempt, e.g. for metrics.
type AttemptCounter interface {
	CountAttempt(ctx context.Context, method string, status domain.Status)
}

// Logger implements Recorder using the audit repository, an optional IP
// extractor, and an optional attempt counter.
type Logger struct {
	repo        auditrepo.Repository
	ipExtractor IPExtractor
	counter     AttemptCounter
}

// NewLogger returns a Recorder that persists to repo. ipExtractor and counter
// may be nil; then IP is recorded as "unknown" and no metrics are emitted.
func NewLogger(repo auditrepo.Repository, ipExtractor IPExtractor, counter AttemptCounter) *Logger {
	return &Logger{repo: repo, ipExtractor: ipExtractor, counter: counter}
}

// Record writes one audit event. Best-effort: errors are logged, not returned.
func (l *Logger) Record(ctx context.Context, e domain.Event) {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	if e.ClientIP == "" {
		e.ClientIP = "unknown"
		if l.ipExtractor != nil {
			if ip := l.ipExtractor(ctx); ip != "" {
				e.ClientIP = ip
			}
		}
	}
	if l.counter != nil {
		l.counter.CountAttempt(ctx, e.Method, e.Status)
	}
	if l.repo == nil {
		return
	}
	if err := l.repo.Create(ctx, &e); err != nil {
		log.Printf("audit: failed to record %s/%s for user %s: %v", e.Method, e.EventType, e.UserID, err)
	}
}

// Fanout duplicates each event to every recorder (e.g. Postgres plus Kafka).
type Fanout []Recorder

// Record sends e to all recorders.
func (f Fanout) Record(ctx context.Context, e domain.Event) {
	for _, r := range f {
		r.Record(ctx, e)
	}
}
