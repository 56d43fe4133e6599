package apifake

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/identkit/identcli/api"
)

func decode[T any](r *http.Request) (T, bool) {
	var value T
	if err := json.NewDecoder(r.Body).Decode(&value); err != nil {
		return value, false
	}
	return value, true
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	req, ok := decode[api.RegisterRequest](r)
	if !ok || req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "email and password are required")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.usersByEmail[req.Email]; exists {
		writeError(w, http.StatusConflict, "email already registered")
		return
	}
	now := s.now().UTC().Format(time.RFC3339)
	record := &userRecord{
		user: api.User{
			ID:        uuid.New().String(),
			Email:     req.Email,
			Status:    api.UserStatusPendingVerification,
			CreatedAt: now,
			UpdatedAt: now,
		},
		password: req.Password,
	}
	s.usersByEmail[req.Email] = record
	s.usersByID[record.user.ID] = record
	writeOK(w, "verification email sent")
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	req, ok := decode[api.LoginRequest](r)
	if !ok {
		writeError(w, http.StatusBadRequest, "malformed request")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	record, exists := s.usersByEmail[req.Email]
	if !exists || record.password != req.Password {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	if record.user.TwoFactorEnabled {
		if req.Code != TOTPCode && !consumeBackupCode(record, req.BackupCode) {
			writeError(w, http.StatusUnauthorized, "two-factor code required")
			return
		}
	}
	writeData(w, api.LoginResult{User: record.user, Tokens: s.issueLocked(record)})
}

func consumeBackupCode(record *userRecord, code string) bool {
	if code == "" {
		return false
	}
	for i, candidate := range record.backupCodes {
		if candidate == code {
			record.backupCodes = append(record.backupCodes[:i], record.backupCodes[i+1:]...)
			return true
		}
	}
	return false
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	req, ok := decode[map[string]string](r)
	if !ok {
		writeError(w, http.StatusBadRequest, "malformed request")
		return
	}
	s.mu.Lock()
	delay := s.refreshDelay
	s.mu.Unlock()
	if delay > 0 {
		time.Sleep(delay)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.refreshStatus != 0 {
		writeError(w, s.refreshStatus, s.refreshMessage)
		return
	}
	userID, exists := s.refreshTokens[req["refresh_token"]]
	if !exists {
		writeError(w, http.StatusUnauthorized, "refresh token not found")
		return
	}
	record := s.usersByID[userID]
	delete(s.refreshTokens, req["refresh_token"]) // single use, rotated
	writeData(w, map[string]any{"tokens": s.issueLocked(record)})
}

func (s *Server) handleLogout(w http.ResponseWriter, _ *http.Request, _ *userRecord) {
	writeOK(w, "logged out")
}

func (s *Server) handleVerifyEmail(w http.ResponseWriter, r *http.Request) {
	req, ok := decode[api.VerifyEmailRequest](r)
	if !ok {
		writeError(w, http.StatusBadRequest, "malformed request")
		return
	}
	// The fake treats the verification token as the account email.
	s.mu.Lock()
	defer s.mu.Unlock()
	record, exists := s.usersByEmail[req.Token]
	if !exists {
		writeError(w, http.StatusBadRequest, "invalid verification token")
		return
	}
	record.user.EmailVerified = true
	record.user.Status = api.UserStatusActive
	writeOK(w, "email verified")
}

func (s *Server) handleAccepted(w http.ResponseWriter, _ *http.Request) {
	writeOK(w, "accepted")
}

func (s *Server) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	req, ok := decode[api.ResetPasswordRequest](r)
	if !ok {
		writeError(w, http.StatusBadRequest, "malformed request")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	record, exists := s.usersByEmail[req.Token] // token doubles as email in the fake
	if !exists {
		writeError(w, http.StatusBadRequest, "invalid reset token")
		return
	}
	record.password = req.NewPassword
	writeOK(w, "password reset")
}

func (s *Server) handleChangePassword(w http.ResponseWriter, r *http.Request, record *userRecord) {
	req, ok := decode[api.ChangePasswordRequest](r)
	if !ok {
		writeError(w, http.StatusBadRequest, "malformed request")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if record.password != req.CurrentPassword {
		// Deliberately a 401: the current password was wrong. The
		// client must not treat this as an expired session.
		writeError(w, http.StatusUnauthorized, "current password incorrect")
		return
	}
	record.password = req.NewPassword
	writeOK(w, "password changed")
}

func (s *Server) handleProfile(w http.ResponseWriter, _ *http.Request, record *userRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	writeData(w, record.user)
}

func (s *Server) handleUpdateProfile(w http.ResponseWriter, r *http.Request, record *userRecord) {
	req, ok := decode[api.UpdateProfileRequest](r)
	if !ok {
		writeError(w, http.StatusBadRequest, "malformed request")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	apply := func(dst *string, src *string) {
		if src != nil {
			*dst = *src
		}
	}
	apply(&record.user.FirstName, req.FirstName)
	apply(&record.user.LastName, req.LastName)
	apply(&record.user.DisplayName, req.DisplayName)
	apply(&record.user.AvatarURL, req.AvatarURL)
	apply(&record.user.Phone, req.Phone)
	apply(&record.user.DateOfBirth, req.DateOfBirth)
	apply(&record.user.Gender, req.Gender)
	apply(&record.user.Locale, req.Locale)
	apply(&record.user.Timezone, req.Timezone)
	record.user.UpdatedAt = s.now().UTC().Format(time.RFC3339)
	writeData(w, record.user)
}

func (s *Server) handleDeleteAccount(w http.ResponseWriter, _ *http.Request, record *userRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.usersByEmail, record.user.Email)
	delete(s.usersByID, record.user.ID)
	writeOK(w, "account deleted")
}

func (s *Server) handleSessions(w http.ResponseWriter, _ *http.Request, record *userRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sessions := s.sessions[record.user.ID]
	if sessions == nil {
		sessions = []api.UserSession{}
	}
	writeData(w, sessions)
}

func (s *Server) handleRevokeSession(w http.ResponseWriter, r *http.Request, record *userRecord) {
	id := mux.Vars(r)["id"]
	s.mu.Lock()
	defer s.mu.Unlock()
	sessions := s.sessions[record.user.ID]
	for i, session := range sessions {
		if session.ID == id {
			s.sessions[record.user.ID] = append(sessions[:i], sessions[i+1:]...)
			writeOK(w, "session revoked")
			return
		}
	}
	writeError(w, http.StatusNotFound, "session not found")
}

func (s *Server) handleRevokeAllSessions(w http.ResponseWriter, _ *http.Request, record *userRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.sessions[record.user.ID][:0]
	for _, session := range s.sessions[record.user.ID] {
		if session.IsCurrent {
			kept = append(kept, session)
		}
	}
	s.sessions[record.user.ID] = kept
	writeOK(w, "sessions revoked")
}

func (s *Server) handleSecurityInfo(w http.ResponseWriter, _ *http.Request, record *userRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	writeData(w, api.SecurityInfo{
		TwoFactorEnabled: record.user.TwoFactorEnabled,
		PhoneVerified:    record.user.PhoneVerified,
		EmailVerified:    record.user.EmailVerified,
	})
}

func (s *Server) handleOAuthAccounts(w http.ResponseWriter, _ *http.Request, record *userRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	accounts := s.oauthAccounts[record.user.ID]
	if accounts == nil {
		accounts = []api.OAuthAccount{}
	}
	writeData(w, accounts)
}

func (s *Server) handleLinkOAuth(w http.ResponseWriter, r *http.Request, record *userRecord) {
	req, ok := decode[api.LinkOAuthRequest](r)
	if !ok || req.Provider == "" || req.ProviderID == "" {
		writeError(w, http.StatusBadRequest, "provider and provider_id are required")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.oauthAccounts[record.user.ID] = append(s.oauthAccounts[record.user.ID], api.OAuthAccount{
		ID:            uuid.New().String(),
		Provider:      req.Provider,
		ProviderID:    req.ProviderID,
		ProviderEmail: req.ProviderEmail,
		LinkedAt:      s.now().UTC().Format(time.RFC3339),
	})
	writeOK(w, "account linked")
}

func (s *Server) handleUnlinkOAuth(w http.ResponseWriter, r *http.Request, record *userRecord) {
	id := mux.Vars(r)["id"]
	s.mu.Lock()
	defer s.mu.Unlock()
	accounts := s.oauthAccounts[record.user.ID]
	for i, account := range accounts {
		if account.ID == id {
			s.oauthAccounts[record.user.ID] = append(accounts[:i], accounts[i+1:]...)
			writeOK(w, "account unlinked")
			return
		}
	}
	writeError(w, http.StatusNotFound, "oauth account not found")
}

func (s *Server) handleEnable2FA(w http.ResponseWriter, _ *http.Request, record *userRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record.pending2FA = true
	record.backupCodes = []string{"backup-one", "backup-two"}
	writeData(w, api.Enable2FAResult{
		Secret:      "FAKESECRET",
		OtpauthURL:  "otpauth://totp/identcli:" + record.user.Email + "?secret=FAKESECRET",
		BackupCodes: record.backupCodes,
	})
}

func (s *Server) handleVerify2FA(w http.ResponseWriter, r *http.Request, record *userRecord) {
	req, ok := decode[map[string]string](r)
	if !ok || req["code"] != TOTPCode {
		writeError(w, http.StatusBadRequest, "invalid code")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !record.pending2FA {
		writeError(w, http.StatusBadRequest, "enrolment not started")
		return
	}
	record.pending2FA = false
	record.user.TwoFactorEnabled = true
	writeOK(w, "two-factor enabled")
}

func (s *Server) handleDisable2FA(w http.ResponseWriter, _ *http.Request, record *userRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record.user.TwoFactorEnabled = false
	record.backupCodes = nil
	writeOK(w, "two-factor disabled")
}

func (s *Server) handleBackupCodes(w http.ResponseWriter, _ *http.Request, record *userRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record.backupCodes = []string{uuid.New().String()[:8], uuid.New().String()[:8]}
	writeData(w, api.BackupCodesResult{Codes: record.backupCodes})
}
