package server

import (
	"net/http"

	auditdomain "enterprise-mfa/backend/internal/audit/domain"
)

func (s *Server) handleBackupGenerate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID string `json:"user_id"`
	}
	if err := decode(r, &req); err != nil || req.UserID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "user_id is required"})
		return
	}
	codes, err := s.deps.BackupCodes.Generate(r.Context(), req.UserID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	// The only time plaintext codes cross the wire.
	writeJSON(w, http.StatusOK, map[string]interface{}{"codes": codes})
}

func (s *Server) handleBackupVerify(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID string `json:"user_id"`
		Code   string `json:"code"`
	}
	if err := decode(r, &req); err != nil || req.UserID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "user_id is required"})
		return
	}
	_, err := s.deps.BackupCodes.Verify(r.Context(), req.UserID, req.Code)
	s.writeVerifyOutcome(w, auditdomain.MethodBackupCode, req.UserID, err)
}

func (s *Server) handleBackupRemaining(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "user_id is required"})
		return
	}
	n, err := s.deps.BackupCodes.RemainingCount(r.Context(), userID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"remaining": n})
}

func (s *Server) handleBackupAdminConsume(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID string `json:"user_id"`
	}
	if err := decode(r, &req); err != nil || req.UserID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "user_id is required"})
		return
	}
	consumed, err := s.deps.BackupCodes.AdminConsume(r.Context(), actorFrom(r), req.UserID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"consumed": consumed})
}
