// Package server exposes the MFA services over a thin HTTP surface. Handlers
// decode requests, call the services, and map outcomes to JSON; they never
// decide business outcomes themselves.
package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"enterprise-mfa/backend/internal/authz"
	"enterprise-mfa/backend/internal/backupcode"
	"enterprise-mfa/backend/internal/mfa"
	"enterprise-mfa/backend/internal/security"
	"enterprise-mfa/backend/internal/sms"
	"enterprise-mfa/backend/internal/totp"
	"enterprise-mfa/backend/internal/webauthn"
)

// Deps holds the services the HTTP surface fronts.
type Deps struct {
	TOTP        *totp.Service
	SMS         *sms.Service
	WebAuthn    *webauthn.Service
	BackupCodes *backupcode.Service
	// StepUp issues short-lived tokens on successful verification. Optional.
	StepUp *security.StepUpProvider
	// TOTPIssuer is the issuer label embedded in otpauth URIs.
	TOTPIssuer string
	// DB is pinged by /healthz. Optional.
	DB *sql.DB
}

// Server routes MFA operations.
type Server struct {
	deps Deps
}

// New returns a Server over the given dependencies.
func New(deps Deps) *Server {
	return &Server{deps: deps}
}

// Handler builds the full route table, instrumented with otelhttp and the
// client-IP middleware.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)

	r.HandleFunc("/mfa/totp/enroll", s.handleTOTPEnroll).Methods(http.MethodPost)
	r.HandleFunc("/mfa/totp/confirm", s.handleTOTPConfirm).Methods(http.MethodPost)
	r.HandleFunc("/mfa/totp/verify", s.handleTOTPVerify).Methods(http.MethodPost)
	r.HandleFunc("/mfa/totp", s.handleTOTPDisable).Methods(http.MethodDelete)
	r.HandleFunc("/mfa/totp/enabled", s.handleTOTPEnabled).Methods(http.MethodGet)

	r.HandleFunc("/mfa/sms/enroll", s.handleSMSEnroll).Methods(http.MethodPost)
	r.HandleFunc("/mfa/sms/enroll/verify", s.handleSMSEnrollVerify).Methods(http.MethodPost)
	r.HandleFunc("/mfa/sms/send", s.handleSMSSend).Methods(http.MethodPost)
	r.HandleFunc("/mfa/sms/verify", s.handleSMSVerify).Methods(http.MethodPost)
	r.HandleFunc("/mfa/sms", s.handleSMSDisable).Methods(http.MethodDelete)
	r.HandleFunc("/mfa/sms/phone", s.handleSMSPhone).Methods(http.MethodGet)

	r.HandleFunc("/mfa/webauthn/register/start", s.handleWebAuthnRegisterStart).Methods(http.MethodPost)
	r.HandleFunc("/mfa/webauthn/register/finish", s.handleWebAuthnRegisterFinish).Methods(http.MethodPost)
	r.HandleFunc("/mfa/webauthn/auth/start", s.handleWebAuthnAuthStart).Methods(http.MethodPost)
	r.HandleFunc("/mfa/webauthn/auth/finish", s.handleWebAuthnAuthFinish).Methods(http.MethodPost)
	r.HandleFunc("/mfa/webauthn/credentials", s.handleWebAuthnList).Methods(http.MethodGet)
	r.HandleFunc("/mfa/webauthn/credentials", s.handleWebAuthnDeleteCredential).Methods(http.MethodDelete)
	r.HandleFunc("/mfa/webauthn", s.handleWebAuthnDisable).Methods(http.MethodDelete)
	r.HandleFunc("/admin/webauthn/disable-all", s.handleWebAuthnGlobalDisable).Methods(http.MethodPost)

	r.HandleFunc("/mfa/backup/generate", s.handleBackupGenerate).Methods(http.MethodPost)
	r.HandleFunc("/mfa/backup/verify", s.handleBackupVerify).Methods(http.MethodPost)
	r.HandleFunc("/mfa/backup/remaining", s.handleBackupRemaining).Methods(http.MethodGet)
	r.HandleFunc("/admin/backup/consume", s.handleBackupAdminConsume).Methods(http.MethodPost)

	return otelhttp.NewHandler(withClientIP(r), "mfa-server")
}

type ctxKeyClientIP struct{}

// withClientIP stores the remote address on the context so the audit layer
// can attach it to events.
func withClientIP(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := r.Header.Get("X-Forwarded-For")
		if i := strings.IndexByte(ip, ','); i >= 0 {
			ip = strings.TrimSpace(ip[:i])
		}
		if ip == "" {
			ip, _, _ = net.SplitHostPort(r.RemoteAddr)
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKeyClientIP{}, ip)))
	})
}

// ClientIP extracts the client IP stored by the middleware. Satisfies
// audit.IPExtractor.
func ClientIP(ctx context.Context) string {
	ip, _ := ctx.Value(ctxKeyClientIP{}).(string)
	return ip
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if s.deps.DB != nil {
		if err := s.deps.DB.PingContext(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "db unreachable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// actorFrom reads the acting principal the orchestrator forwards on admin
// routes.
func actorFrom(r *http.Request) authz.Actor {
	a := authz.Actor{ID: r.Header.Get("X-Actor-ID")}
	if roles := r.Header.Get("X-Actor-Roles"); roles != "" {
		for _, role := range strings.Split(roles, ",") {
			if t := strings.TrimSpace(role); t != "" {
				a.Roles = append(a.Roles, t)
			}
		}
	}
	return a
}

func decode(r *http.Request, dst interface{}) error {
	return json.NewDecoder(r.Body).Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// verifyResult is the body for all verification endpoints. On success a
// step-up token is attached when the provider is configured.
type verifyResult struct {
	Verified        bool   `json:"verified"`
	Reason          string `json:"reason,omitempty"`
	StepUpToken     string `json:"step_up_token,omitempty"`
	StepUpExpires   string `json:"step_up_expires,omitempty"`
	AuthenticatedAs string `json:"authenticated_as,omitempty"`
}

// writeVerifyOutcome maps a verification outcome to JSON. Reason-coded
// failures are a normal 200 response; the orchestrator owns the decision.
func (s *Server) writeVerifyOutcome(w http.ResponseWriter, method, userID string, err error) {
	if err == nil {
		res := verifyResult{Verified: true}
		if s.deps.StepUp != nil {
			token, expires, terr := s.deps.StepUp.Issue(userID, method)
			if terr == nil {
				res.StepUpToken = token
				res.StepUpExpires = expires.UTC().Format("2006-01-02T15:04:05Z07:00")
			}
		}
		writeJSON(w, http.StatusOK, res)
		return
	}
	if reason := mfa.ReasonOf(err); reason != "" {
		writeJSON(w, http.StatusOK, verifyResult{Verified: false, Reason: string(reason)})
		return
	}
	s.writeError(w, err)
}

// writeError maps non-verification errors to HTTP status codes.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, authz.ErrNotAuthorized):
		status = http.StatusForbidden
	case errors.Is(err, totp.ErrAlreadyEnrolled):
		status = http.StatusConflict
	case errors.Is(err, totp.ErrNotEnrolled),
		errors.Is(err, sms.ErrNotEnrolled),
		errors.Is(err, webauthn.ErrNotEnrolled),
		errors.Is(err, webauthn.ErrCredentialNotFound):
		status = http.StatusNotFound
	case errors.Is(err, totp.ErrNoPendingEnrollment),
		errors.Is(err, totp.ErrSecretMismatch),
		errors.Is(err, mfa.ErrInvalidPhoneNumber),
		errors.Is(err, webauthn.ErrReasonRequired),
		errors.Is(err, webauthn.ErrConfirmationRequired):
		status = http.StatusBadRequest
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
