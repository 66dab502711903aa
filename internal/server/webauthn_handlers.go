package server

import (
	"encoding/base64"
	"net/http"

	auditdomain "enterprise-mfa/backend/internal/audit/domain"
)

func (s *Server) handleWebAuthnRegisterStart(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID      string `json:"user_id"`
		Username    string `json:"username"`
		DisplayName string `json:"display_name"`
	}
	if err := decode(r, &req); err != nil || req.UserID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "user_id is required"})
		return
	}
	creation, sessionID, err := s.deps.WebAuthn.StartRegistration(r.Context(), req.UserID, req.Username, req.DisplayName)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"session_id": sessionID,
		"options":    creation,
	})
}

// handleWebAuthnRegisterFinish expects the raw credential creation response
// as the request body; user_id, session_id, and nickname ride on the query.
func (s *Server) handleWebAuthnRegisterFinish(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	userID, sessionID := q.Get("user_id"), q.Get("session_id")
	if userID == "" || sessionID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "user_id and session_id are required"})
		return
	}
	cred, err := s.deps.WebAuthn.FinishRegistration(r.Context(), userID, sessionID, q.Get("nickname"), r)
	if err != nil {
		s.writeVerifyOutcome(w, auditdomain.MethodWebAuthn, userID, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"registered":    true,
		"credential_id": base64.RawURLEncoding.EncodeToString(cred.CredentialID),
		"nickname":      cred.Nickname,
	})
}

func (s *Server) handleWebAuthnAuthStart(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID string `json:"user_id"`
	}
	// Body is optional: an empty user ID starts a discoverable ceremony.
	_ = decode(r, &req)
	assertion, sessionID, err := s.deps.WebAuthn.StartAuthentication(r.Context(), req.UserID)
	if err != nil {
		s.writeVerifyOutcome(w, auditdomain.MethodWebAuthn, req.UserID, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"session_id": sessionID,
		"options":    assertion,
	})
}

func (s *Server) handleWebAuthnAuthFinish(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "session_id is required"})
		return
	}
	userID, err := s.deps.WebAuthn.FinishAuthentication(r.Context(), sessionID, r)
	if err != nil {
		s.writeVerifyOutcome(w, auditdomain.MethodWebAuthn, "", err)
		return
	}
	res := verifyResult{Verified: true, AuthenticatedAs: userID}
	if s.deps.StepUp != nil {
		token, expires, terr := s.deps.StepUp.Issue(userID, auditdomain.MethodWebAuthn)
		if terr == nil {
			res.StepUpToken = token
			res.StepUpExpires = expires.UTC().Format("2006-01-02T15:04:05Z07:00")
		}
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleWebAuthnList(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "user_id is required"})
		return
	}
	creds, err := s.deps.WebAuthn.ListCredentials(r.Context(), userID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	type credView struct {
		CredentialID string `json:"credential_id"`
		Nickname     string `json:"nickname"`
		CreatedAt    string `json:"created_at"`
		LastUsedAt   string `json:"last_used_at,omitempty"`
	}
	out := make([]credView, 0, len(creds))
	for _, c := range creds {
		v := credView{
			CredentialID: base64.RawURLEncoding.EncodeToString(c.CredentialID),
			Nickname:     c.Nickname,
			CreatedAt:    c.CreatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
		}
		if c.LastUsedAt != nil {
			v.LastUsedAt = c.LastUsedAt.UTC().Format("2006-01-02T15:04:05Z07:00")
		}
		out = append(out, v)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"credentials": out})
}

func (s *Server) handleWebAuthnDeleteCredential(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID       string `json:"user_id"`
		CredentialID string `json:"credential_id"`
		Reason       string `json:"reason"`
	}
	if err := decode(r, &req); err != nil || req.UserID == "" || req.CredentialID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "user_id and credential_id are required"})
		return
	}
	credID, err := base64.RawURLEncoding.DecodeString(req.CredentialID)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "credential_id must be base64url"})
		return
	}
	if err := s.deps.WebAuthn.DeleteCredential(r.Context(), actorFrom(r), req.UserID, credID, req.Reason); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

func (s *Server) handleWebAuthnDisable(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "user_id is required"})
		return
	}
	if err := s.deps.WebAuthn.Disable(r.Context(), userID); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"disabled": true})
}

func (s *Server) handleWebAuthnGlobalDisable(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Confirm bool   `json:"confirm"`
		Reason  string `json:"reason"`
	}
	if err := decode(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid body"})
		return
	}
	n, err := s.deps.WebAuthn.AdminDisableAllUsers(r.Context(), actorFrom(r), req.Confirm, req.Reason)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"credentials_removed": n})
}
