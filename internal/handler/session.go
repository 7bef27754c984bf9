package handler

import (
	"net/http"

	"github.com/zamadev/sandbox/internal/model"
	"github.com/zamadev/sandbox/internal/service"
)

// SessionHandler exposes the mock sign-in flow of the profile.
type SessionHandler struct {
	auth *service.AuthService
}

// NewSessionHandler creates a new SessionHandler.
func NewSessionHandler(auth *service.AuthService) *SessionHandler {
	return &SessionHandler{auth: auth}
}

// Login signs in with email and password.
// POST /api/v1/session
func (h *SessionHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req model.LoginInput
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	sess, err := h.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeServiceError(w, err, "Login failed")
		return
	}
	writeJSON(w, http.StatusCreated, sess)
}

// Guest starts a session as the shared guest user.
// POST /api/v1/session/guest
func (h *SessionHandler) Guest(w http.ResponseWriter, r *http.Request) {
	sess, err := h.auth.ContinueAsGuest(r.Context())
	if err != nil {
		writeServiceError(w, err, "Guest sign-in failed")
		return
	}
	writeJSON(w, http.StatusCreated, sess)
}

// Current returns the signed-in user. An expired session is cleared and
// reported as 401.
// GET /api/v1/session
func (h *SessionHandler) Current(w http.ResponseWriter, r *http.Request) {
	u, err := h.auth.CurrentUser(r.Context())
	if err != nil {
		writeServiceError(w, err, "Failed to read session")
		return
	}
	if u == nil {
		writeError(w, http.StatusUnauthorized, "Not signed in")
		return
	}
	writeJSON(w, http.StatusOK, u)
}

// Logout clears the stored session.
// DELETE /api/v1/session
func (h *SessionHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.auth.Logout(r.Context()); err != nil {
		writeServiceError(w, err, "Logout failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Refresh replaces the stored token with a fresh one.
// POST /api/v1/session/refresh
func (h *SessionHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	tok, err := h.auth.RefreshToken(r.Context())
	if err != nil {
		writeServiceError(w, err, "Refresh failed")
		return
	}
	writeJSON(w, http.StatusOK, tok)
}
