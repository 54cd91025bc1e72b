package handler

import (
	"net/http"

	"github.com/stevemurr/grocery-chat-server/record"
	"github.com/stevemurr/grocery-chat-server/schema"
)

func (h *Handler) listUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.users.List(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if users == nil {
		users = []record.Record{}
	}
	writeJSON(w, http.StatusOK, users)
}

func (h *Handler) getUser(w http.ResponseWriter, r *http.Request) {
	user, err := h.users.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (h *Handler) getUserByEmail(w http.ResponseWriter, r *http.Request) {
	email := r.PathValue("email")
	if err := schema.Validate(emailSchema, email); err != nil {
		writeInvalid(w, err.(schema.Errors))
		return
	}
	user, err := h.users.GetByEmail(r.Context(), email)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// deleteUser signs the user out everywhere, then deletes the user and
// everything they own.
func (h *Handler) deleteUser(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := h.sessions.DestroyUser(r.Context(), id); err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.users.Delete(r.Context(), id); err != nil {
		h.fail(w, r, err)
		return
	}
	h.sessions.Destroy(r.Context(), w, r)
	writeResult(w, http.StatusOK, UserUpdated)
}

func (h *Handler) setUserProfile(w http.ResponseWriter, r *http.Request) {
	var req profileRef
	if !decode(w, r, profileRefSchema, &req) {
		return
	}
	if err := h.users.SetProfile(r.Context(), r.PathValue("id"), req.ProfileID); err != nil {
		h.fail(w, r, err)
		return
	}
	writeResult(w, http.StatusOK, UserUpdated)
}

// getUserRelation serves GET /user/{id}/profile and /user/{id}/preferences.
func (h *Handler) getUserRelation(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	switch r.PathValue("rel") {
	case "profile":
		profile, err := h.users.Profile(r.Context(), id)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		// A user without a current profile gets null.
		writeJSON(w, http.StatusOK, profile)
	case "preferences":
		prefs, err := h.users.Preferences(r.Context(), id)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, prefs)
	default:
		http.NotFound(w, r)
	}
}
