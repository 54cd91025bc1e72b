// Package handler provides the HTTP handlers for the grocery chat server.
package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/stevemurr/grocery-chat-server/service"
)

// Deps are the collaborators of a Handler.
type Deps struct {
	Users    *service.UserService
	Profiles *service.ProfileService
	Chats    *service.ChatService
	Sessions *Sessions
	// Limiter gates POST /chat/{id} and POST /message/sample. Nil disables
	// rate limiting.
	Limiter *RateLimiter
	// Metrics is served at /metrics when set.
	Metrics http.Handler
	Logger  *slog.Logger
}

// Handler holds the server dependencies and registers routes.
type Handler struct {
	users    *service.UserService
	profiles *service.ProfileService
	chats    *service.ChatService
	sessions *Sessions
	limiter  *RateLimiter
	metrics  http.Handler
	logger   *slog.Logger
	mux      *http.ServeMux
}

// New creates a Handler and wires up all routes.
func New(d Deps) *Handler {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	h := &Handler{
		users:    d.Users,
		profiles: d.Profiles,
		chats:    d.Chats,
		sessions: d.Sessions,
		limiter:  d.Limiter,
		metrics:  d.Metrics,
		logger:   d.Logger,
		mux:      http.NewServeMux(),
	}
	h.routes()
	return h
}

// ServeHTTP makes Handler an http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

func (h *Handler) routes() {
	// Health / status
	h.mux.HandleFunc("GET /", h.root)
	h.mux.HandleFunc("GET /health", h.health)
	if h.metrics != nil {
		h.mux.Handle("GET /metrics", h.metrics)
	}

	// --- Auth ---
	h.mux.HandleFunc("POST /signup", h.signup)
	h.mux.HandleFunc("POST /login", h.login)
	h.mux.HandleFunc("DELETE /logout", h.logout)

	// --- Users ---
	h.mux.HandleFunc("POST /user", h.signup)
	h.mux.HandleFunc("GET /user", h.authenticated(h.listUsers))
	h.mux.HandleFunc("GET /user/{id}", h.authenticated(h.getUser))
	h.mux.HandleFunc("DELETE /user/{id}", h.authenticated(h.self(h.deleteUser)))
	h.mux.HandleFunc("PUT /user/{id}/profile", h.authenticated(h.self(h.setUserProfile)))
	// One pattern for profile and preferences, so /user/email/{email}
	// stays the more specific match.
	h.mux.HandleFunc("GET /user/{id}/{rel}", h.authenticated(h.getUserRelation))
	h.mux.HandleFunc("GET /user/email/{email}", h.authenticated(h.getUserByEmail))

	// --- Profiles ---
	h.mux.HandleFunc("POST /profile", h.authenticated(h.createProfile))
	h.mux.HandleFunc("GET /profile", h.authenticated(h.listProfiles))
	h.mux.HandleFunc("GET /profile/{id}", h.authenticated(h.getProfile))
	h.mux.HandleFunc("DELETE /profile/{id}", h.authenticated(h.deleteProfile))
	h.mux.HandleFunc("PUT /profile/{id}/preferences", h.authenticated(h.setPreferences))
	h.mux.HandleFunc("GET /profile/{id}/preferences", h.authenticated(h.getPreferences))

	// --- Chats ---
	h.mux.HandleFunc("POST /chat", h.authenticated(h.createChat))
	h.mux.HandleFunc("GET /chat", h.authenticated(h.listChats))
	h.mux.HandleFunc("DELETE /chat", h.authenticated(h.deleteChats))
	h.mux.HandleFunc("GET /chat/{id}", h.authenticated(h.getChat))
	h.mux.HandleFunc("POST /chat/{id}", h.authenticated(h.limited(h.replyChat)))
	h.mux.HandleFunc("DELETE /chat/{id}", h.authenticated(h.deleteChat))
	h.mux.HandleFunc("PUT /chat/{id}/share", h.authenticated(h.shareChat))
	h.mux.HandleFunc("GET /chat/{id}/share", h.sharedChat)

	// --- Sample ---
	h.mux.HandleFunc("POST /message/sample", h.limited(h.sampleMessage))
}

// ---------- helpers ----------

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// session returns the caller's session. Only valid behind authenticated.
func session(r *http.Request) Session {
	sess, _ := SessionFrom(r.Context())
	return sess
}

// self restricts a /user/{id} route to the user {id}.
func (h *Handler) self(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if session(r).UserID != r.PathValue("id") {
			writeError(w, http.StatusBadRequest, InvalidCredentials)
			return
		}
		next(w, r)
	}
}

// ---------- status endpoints ----------

func (h *Handler) root(w http.ResponseWriter, r *http.Request) {
	// Only match exact root path
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"service": "Grocery Chat Server",
	})
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}
