package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gallery-core/internal/auth"
)

// ─── Request/Response Types ────────────────────────────────────────

type createUserRequest struct {
	Username    string    `json:"username"`
	Password    string    `json:"password"`
	Role        auth.Role `json:"role"`
	DisplayName string    `json:"displayName"`
}

type resetPasswordRequest struct {
	NewPassword string `json:"newPassword"`
}

// ─── Handlers ──────────────────────────────────────────────────────

// handleListUsers returns all user accounts.
func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.gallery.ListUsers(r.Context(), sessionFromContext(r.Context()))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"users": users,
		"count": len(users),
	})
}

// handleCreateUser creates a new user account. The role defaults to user.
func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, r, "invalid JSON body")
		return
	}
	if req.Role == "" {
		req.Role = auth.RoleUser
	}

	user, err := s.gallery.CreateUser(r.Context(), sessionFromContext(r.Context()), auth.NewUser{
		Username:    req.Username,
		Password:    req.Password,
		Role:        req.Role,
		DisplayName: req.DisplayName,
	})
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, user)
}

// handleUpdateUser applies a partial update. Only allow-listed fields are
// accepted; anything else is rejected before the store is touched.
func (s *Server) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	var raw map[string]json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		writeBadRequest(w, r, "invalid JSON body")
		return
	}
	patch, err := auth.ParseUserPatch(raw)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	user, err := s.gallery.UpdateUser(r.Context(), sessionFromContext(r.Context()), chi.URLParam(r, "id"), patch)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, user)
}

// handleDeleteUser soft-deletes a user.
func (s *Server) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	if err := s.gallery.DeleteUser(r.Context(), sessionFromContext(r.Context()), chi.URLParam(r, "id")); err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// handleResetPassword sets a user's password without the old one.
func (s *Server) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, r, "invalid JSON body")
		return
	}

	if err := s.gallery.ResetPassword(r.Context(), sessionFromContext(r.Context()), chi.URLParam(r, "id"), req.NewPassword); err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}
