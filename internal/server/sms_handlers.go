package server

import (
	"net/http"

	auditdomain "enterprise-mfa/backend/internal/audit/domain"
)

func (s *Server) handleSMSEnroll(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID string `json:"user_id"`
		Phone  string `json:"phone"`
	}
	if err := decode(r, &req); err != nil || req.UserID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "user_id is required"})
		return
	}
	if err := s.deps.SMS.EnrollPhoneNumber(r.Context(), req.UserID, req.Phone); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"sent": true})
}

func (s *Server) handleSMSEnrollVerify(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID string `json:"user_id"`
		Code   string `json:"code"`
	}
	if err := decode(r, &req); err != nil || req.UserID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "user_id is required"})
		return
	}
	err := s.deps.SMS.VerifyEnrollmentCode(r.Context(), req.UserID, req.Code)
	s.writeVerifyOutcome(w, auditdomain.MethodSMS, req.UserID, err)
}

func (s *Server) handleSMSSend(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID string `json:"user_id"`
	}
	if err := decode(r, &req); err != nil || req.UserID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "user_id is required"})
		return
	}
	if err := s.deps.SMS.SendOTPCode(r.Context(), req.UserID); err != nil {
		s.writeVerifyOutcome(w, auditdomain.MethodSMS, req.UserID, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"sent": true})
}

func (s *Server) handleSMSVerify(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID string `json:"user_id"`
		Code   string `json:"code"`
	}
	if err := decode(r, &req); err != nil || req.UserID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "user_id is required"})
		return
	}
	err := s.deps.SMS.VerifyOTPCode(r.Context(), req.UserID, req.Code)
	s.writeVerifyOutcome(w, auditdomain.MethodSMS, req.UserID, err)
}

func (s *Server) handleSMSDisable(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "user_id is required"})
		return
	}
	if err := s.deps.SMS.Disable(r.Context(), userID); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"disabled": true})
}

func (s *Server) handleSMSPhone(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "user_id is required"})
		return
	}
	masked, err := s.deps.SMS.EnrolledPhoneNumber(r.Context(), userID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"phone": masked})
}
