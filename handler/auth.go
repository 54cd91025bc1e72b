package handler

import (
	"net/http"
)

// signup serves both POST /signup and POST /user.
func (h *Handler) signup(w http.ResponseWriter, r *http.Request) {
	var req credentials
	if !decode(w, r, credentialsSchema, &req) {
		return
	}
	if _, err := h.users.Create(r.Context(), req.Email, req.Password); err != nil {
		h.fail(w, r, err)
		return
	}
	writeResult(w, http.StatusCreated, UserCreated)
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req credentials
	if !decode(w, r, credentialsSchema, &req) {
		return
	}
	user, err := h.users.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		// A failed attempt also ends any session the client still holds.
		h.sessions.Destroy(r.Context(), w, r)
		h.logger.Info("failed login attempt", "email", req.Email)
		h.fail(w, r, err)
		return
	}
	if _, err := h.sessions.Create(r.Context(), w, user.ID(), user["email"]); err != nil {
		h.fail(w, r, err)
		return
	}
	h.logger.Info("user logged in", "id", user.ID())
	writeResult(w, http.StatusOK, UserLoggedIn)
}

func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	if sess, ok := h.sessions.Destroy(r.Context(), w, r); ok {
		h.logger.Info("user logged out", "id", sess.UserID)
	} else {
		h.logger.Debug("logout without a session")
	}
	writeJSON(w, http.StatusOK, "OK")
}
