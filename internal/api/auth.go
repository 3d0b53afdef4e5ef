package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/hallgate/access-core/internal/identity"
	"github.com/hallgate/access-core/internal/token"
)

// minPasswordLength is the minimum accepted password length.
const minPasswordLength = 8

// ─── Request/Response Types ────────────────────────────────────────

type registerRequest struct {
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
	Email       string `json:"email,omitempty"`
	Password    string `json:"password"`
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

// ─── Handlers ──────────────────────────────────────────────────────

// handleRegister creates a new account and returns its first credential pair.
// Self-registration always produces a standard user; elevated roles are
// granted through the identity management endpoints.
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	if req.Username == "" || req.Password == "" || req.DisplayName == "" {
		writeBadRequest(w, "username, password, and display_name are required")
		return
	}
	if len(req.Password) < minPasswordLength {
		writeBadRequest(w, "password must be at least 8 characters")
		return
	}

	rec, pair, err := s.accounts.Register(r.Context(), req.Username, req.DisplayName, req.Email, req.Password, identity.RoleUser)
	if err != nil {
		switch {
		case errors.Is(err, identity.ErrUsernameExists):
			writeConflict(w, "username already exists")
		case errors.Is(err, identity.ErrInvalidUsername):
			writeBadRequest(w, "username must be 3-32 characters: letters, digits, dot, dash, underscore")
		default:
			s.logger.Error("register failed", "error", err)
			writeInternalError(w, "failed to register")
		}
		return
	}

	s.logger.Info("account registered", "subject_id", rec.ID, "username", rec.Username)
	if s.metrics != nil {
		s.metrics.WriteAuthDecision("register", "ok")
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"user":   rec,
		"tokens": pair,
	})
}

// handleLogin verifies a username/password pair and returns fresh
// credentials. Invalid username and invalid password produce the same
// response so the endpoint cannot be used to enumerate accounts.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Username == "" || req.Password == "" {
		writeBadRequest(w, "username and password are required")
		return
	}

	pair, err := s.accounts.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		outcome := "invalid_credentials"
		switch {
		case errors.Is(err, identity.ErrInactive):
			outcome = "inactive"
			writeError(w, http.StatusUnauthorized, ErrCodeAccountInactive, "account is inactive")
		case errors.Is(err, identity.ErrInvalidCredentials):
			writeUnauthorized(w, "invalid credentials")
		default:
			outcome = "error"
			s.logger.Error("login failed", "error", err)
			writeInternalError(w, "failed to log in")
		}
		if s.metrics != nil {
			s.metrics.WriteAuthDecision("login", outcome)
		}
		return
	}

	if s.metrics != nil {
		s.metrics.WriteAuthDecision("login", "ok")
	}
	writeJSON(w, http.StatusOK, pair)
}

// handleRefresh exchanges a refresh token for a new credential pair.
// The spent token is superseded atomically; replaying it fails with
// token_revoked.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.RefreshToken == "" {
		writeBadRequest(w, "refresh_token is required")
		return
	}

	pair, err := s.accounts.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		if s.metrics != nil {
			s.metrics.WriteAuthDecision("refresh", outcomeFor(err))
		}
		writeCredentialError(w, err)
		return
	}

	if s.metrics != nil {
		s.metrics.WriteAuthDecision("refresh", "ok")
	}
	writeJSON(w, http.StatusOK, pair)
}

// handleLogout revokes the caller's refresh token. The access token used
// to authenticate this request stays valid until its short TTL expires.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	id := identityFromContext(r.Context())

	if err := s.accounts.Logout(r.Context(), id.SubjectID); err != nil {
		s.logger.Error("logout failed", "subject_id", id.SubjectID, "error", err)
		writeInternalError(w, "failed to log out")
		return
	}

	s.logger.Info("logged out", "subject_id", id.SubjectID)
	writeJSON(w, http.StatusOK, map[string]string{"status": "logged_out"})
}

// handleChangePassword rotates the caller's password. Every credential
// issued before this call becomes permanently invalid; the client must
// log in again.
func (s *Server) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	id := identityFromContext(r.Context())

	var req changePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.CurrentPassword == "" || req.NewPassword == "" {
		writeBadRequest(w, "current_password and new_password are required")
		return
	}
	if len(req.NewPassword) < minPasswordLength {
		writeBadRequest(w, "password must be at least 8 characters")
		return
	}

	if err := s.accounts.ChangePassword(r.Context(), id.SubjectID, req.CurrentPassword, req.NewPassword); err != nil {
		if errors.Is(err, identity.ErrInvalidCredentials) {
			writeUnauthorized(w, "current password is incorrect")
			return
		}
		s.logger.Error("change password failed", "subject_id", id.SubjectID, "error", err)
		writeInternalError(w, "failed to change password")
		return
	}

	s.logger.Info("password changed", "subject_id", id.SubjectID)
	writeJSON(w, http.StatusOK, map[string]string{"status": "password_changed"})
}

// handleMe returns the caller's own identity record.
func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	id := identityFromContext(r.Context())

	rec, err := s.accounts.Get(r.Context(), id.SubjectID)
	if err != nil {
		if errors.Is(err, identity.ErrNotFound) {
			// Account deleted after the token was issued.
			writeCredentialError(w, token.ErrCredentialRevoked)
			return
		}
		s.logger.Error("get own record failed", "subject_id", id.SubjectID, "error", err)
		writeInternalError(w, "failed to load account")
		return
	}

	writeJSON(w, http.StatusOK, rec)
}
