package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hallgate/access-core/internal/identity"
	"github.com/hallgate/access-core/internal/policy"
)

// ─── Request/Response Types ────────────────────────────────────────

type createUserRequest struct {
	Username    string        `json:"username"`
	DisplayName string        `json:"display_name"`
	Email       string        `json:"email,omitempty"`
	Password    string        `json:"password"`
	Role        identity.Role `json:"role"`
}

type updateUserRequest struct {
	DisplayName *string        `json:"display_name,omitempty"`
	Email       *string        `json:"email,omitempty"`
	Role        *identity.Role `json:"role,omitempty"`
}

// ─── Handlers ──────────────────────────────────────────────────────

// handleListUsers returns identity records. Deactivated accounts are
// included only when ?include_inactive=true.
func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	includeInactive := r.URL.Query().Get("include_inactive") == "true"

	users, err := s.accounts.List(r.Context(), includeInactive)
	if err != nil {
		s.logger.Error("list users failed", "error", err)
		writeInternalError(w, "failed to list users")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"users": users,
		"count": len(users),
	})
}

// handleCreateUser provisions a new account without issuing credentials.
func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
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
	if req.Role == "" {
		req.Role = identity.RoleUser
	}
	if !identity.IsValidRole(req.Role) {
		writeBadRequest(w, "invalid role: must be user, moderator, or admin")
		return
	}

	caller := identityFromContext(r.Context())

	rec, err := s.accounts.Create(r.Context(), req.Username, req.DisplayName, req.Email, req.Password, req.Role)
	if err != nil {
		switch {
		case errors.Is(err, identity.ErrUsernameExists):
			writeConflict(w, "username already exists")
		case errors.Is(err, identity.ErrInvalidUsername):
			writeBadRequest(w, "username must be 3-32 characters: letters, digits, dot, dash, underscore")
		default:
			s.logger.Error("create user failed", "error", err)
			writeInternalError(w, "failed to create user")
		}
		return
	}

	s.logger.Info("user created", "subject_id", rec.ID, "username", rec.Username, "role", rec.Role, "created_by", caller.SubjectID)
	writeJSON(w, http.StatusCreated, rec)
}

// handleGetUser returns a single identity by ID. Callers may read their
// own record; reading anyone else's requires the account:read permission.
func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	caller := identityFromContext(r.Context())

	if caller.SubjectID != id && !policy.HasPermission(caller.Role, policy.PermAccountRead) {
		writeForbidden(w, "cannot read another account")
		return
	}

	rec, err := s.accounts.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, identity.ErrNotFound) {
			writeNotFound(w, "user not found")
			return
		}
		s.logger.Error("get user failed", "error", err)
		writeInternalError(w, "failed to get user")
		return
	}

	writeJSON(w, http.StatusOK, rec)
}

// handleUpdateUser modifies an identity's mutable fields. Callers may
// edit their own profile; editing anyone else's requires admin. Role
// changes always require admin, and never on the caller's own account.
func (s *Server) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	caller := identityFromContext(r.Context())

	if err := policy.AuthorizeOwnerOrRole(caller, id, identity.RoleAdmin); err != nil {
		writeForbidden(w, "cannot modify another account")
		return
	}

	var req updateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	if req.Role != nil {
		if !policy.HasPermission(caller.Role, policy.PermAccountManage) {
			writeForbidden(w, "only admins can change roles")
			return
		}
		if id == caller.SubjectID {
			writeForbidden(w, "cannot change your own role")
			return
		}
		if !identity.IsValidRole(*req.Role) {
			writeBadRequest(w, "invalid role: must be user, moderator, or admin")
			return
		}
	}

	rec, err := s.accounts.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, identity.ErrNotFound) {
			writeNotFound(w, "user not found")
			return
		}
		s.logger.Error("get user for update failed", "error", err)
		writeInternalError(w, "failed to update user")
		return
	}

	// Apply patches
	if req.DisplayName != nil {
		rec.DisplayName = *req.DisplayName
	}
	if req.Email != nil {
		rec.Email = *req.Email
	}
	if req.Role != nil {
		rec.Role = *req.Role
	}

	if err := s.accounts.Update(r.Context(), rec); err != nil {
		s.logger.Error("update user failed", "error", err)
		writeInternalError(w, "failed to update user")
		return
	}

	s.logger.Info("user updated", "subject_id", id, "updated_by", caller.SubjectID)
	writeJSON(w, http.StatusOK, rec)
}

// handleDeleteUser removes an account entirely. Outstanding credentials
// for the subject fail verification from this point on.
func (s *Server) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	caller := identityFromContext(r.Context())

	if id == caller.SubjectID {
		writeForbidden(w, "cannot delete your own account")
		return
	}

	if err := s.accounts.Delete(r.Context(), id); err != nil {
		if errors.Is(err, identity.ErrNotFound) {
			writeNotFound(w, "user not found")
			return
		}
		s.logger.Error("delete user failed", "error", err)
		writeInternalError(w, "failed to delete user")
		return
	}

	s.logger.Info("user deleted", "subject_id", id, "deleted_by", caller.SubjectID)
	w.WriteHeader(http.StatusNoContent)
}

// handleDeactivateUser disables an account and revokes its refresh token.
func (s *Server) handleDeactivateUser(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	caller := identityFromContext(r.Context())

	if id == caller.SubjectID {
		writeForbidden(w, "cannot deactivate your own account")
		return
	}

	if err := s.accounts.Deactivate(r.Context(), id); err != nil {
		if errors.Is(err, identity.ErrNotFound) {
			writeNotFound(w, "user not found")
			return
		}
		s.logger.Error("deactivate user failed", "error", err)
		writeInternalError(w, "failed to deactivate user")
		return
	}

	s.logger.Info("user deactivated", "subject_id", id, "deactivated_by", caller.SubjectID)
	writeJSON(w, http.StatusOK, map[string]string{"status": "deactivated"})
}

// handleRestoreUser re-activates a deactivated account. The subject logs
// in again to obtain fresh credentials; the refresh token was revoked at
// deactivation.
func (s *Server) handleRestoreUser(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	caller := identityFromContext(r.Context())

	if err := s.accounts.Restore(r.Context(), id); err != nil {
		if errors.Is(err, identity.ErrNotFound) {
			writeNotFound(w, "user not found")
			return
		}
		s.logger.Error("restore user failed", "error", err)
		writeInternalError(w, "failed to restore user")
		return
	}

	s.logger.Info("user restored", "subject_id", id, "restored_by", caller.SubjectID)
	writeJSON(w, http.StatusOK, map[string]string{"status": "restored"})
}
