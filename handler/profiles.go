package handler

import (
	"net/http"

	"github.com/stevemurr/grocery-chat-server/record"
	"github.com/stevemurr/grocery-chat-server/service"
)

func (h *Handler) createProfile(w http.ResponseWriter, r *http.Request) {
	var req newProfile
	if !decode(w, r, newProfileSchema, &req) {
		return
	}
	profile, err := h.profiles.Create(r.Context(), session(r).UserID, req.ProfileName)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, profile)
}

func (h *Handler) listProfiles(w http.ResponseWriter, r *http.Request) {
	profiles, err := h.profiles.List(r.Context(), session(r).UserID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if profiles == nil {
		profiles = []record.Record{}
	}
	writeJSON(w, http.StatusOK, profiles)
}

func (h *Handler) getProfile(w http.ResponseWriter, r *http.Request) {
	profile, err := h.profiles.Get(r.Context(), session(r).UserID, r.PathValue("id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

func (h *Handler) deleteProfile(w http.ResponseWriter, r *http.Request) {
	if err := h.profiles.Delete(r.Context(), session(r).UserID, r.PathValue("id")); err != nil {
		h.fail(w, r, err)
		return
	}
	writeResult(w, http.StatusOK, ProfileUpdated)
}

func (h *Handler) setPreferences(w http.ResponseWriter, r *http.Request) {
	var prefs service.Preferences
	if !decode(w, r, preferencesSchema, &prefs) {
		return
	}
	if err := h.profiles.SetPreferences(r.Context(), session(r).UserID, r.PathValue("id"), prefs); err != nil {
		h.fail(w, r, err)
		return
	}
	writeResult(w, http.StatusOK, ProfileUpdated)
}

func (h *Handler) getPreferences(w http.ResponseWriter, r *http.Request) {
	prefs, err := h.profiles.Preferences(r.Context(), session(r).UserID, r.PathValue("id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, prefs)
}
