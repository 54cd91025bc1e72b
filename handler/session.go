package handler

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/stevemurr/grocery-chat-server/record"
)

// sessionCollection holds one record per login: "sess:<id>".
const sessionCollection = "sess"

// ErrNoSession means the request carries no valid session.
var ErrNoSession = errors.New("no valid session")

// Session is a logged-in user.
type Session struct {
	ID        string
	UserID    string
	Email     string
	ExpiresAt time.Time
}

// SessionConfig configures Sessions.
type SessionConfig struct {
	Secret     string
	CookieName string
	TTL        time.Duration
	CacheSize  int
	Secure     bool
}

// Sessions issues and checks session cookies. The cookie carries the
// session id and its HMAC-SHA256 signature; the session itself is a record
// in the store, with an LRU cache in front.
type Sessions struct {
	engine *record.Engine
	secret []byte
	cfg    SessionConfig
	cache  *lru.Cache[string, Session]
	now    func() time.Time
	logger *slog.Logger
}

func NewSessions(e *record.Engine, cfg SessionConfig, logger *slog.Logger) (*Sessions, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Secret == "" {
		return nil, errors.New("session secret is required")
	}
	if cfg.CookieName == "" {
		cfg.CookieName = "grocery_session"
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 24 * time.Hour
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = 1024
	}
	cache, err := lru.New[string, Session](cfg.CacheSize)
	if err != nil {
		return nil, err
	}
	return &Sessions{
		engine: e,
		secret: []byte(cfg.Secret),
		cfg:    cfg,
		cache:  cache,
		now:    time.Now,
		logger: logger,
	}, nil
}

func (s *Sessions) sign(id string) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(id))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

// verify returns the session id in a cookie value "<id>.<signature>".
func (s *Sessions) verify(value string) (string, bool) {
	id, sig, ok := strings.Cut(value, ".")
	if !ok || id == "" {
		return "", false
	}
	return id, hmac.Equal([]byte(sig), []byte(s.sign(id)))
}

// Create stores a new session for the user and sets its cookie on w.
func (s *Sessions) Create(ctx context.Context, w http.ResponseWriter, userID, email string) (Session, error) {
	sess := Session{
		ID:        uuid.NewString(),
		UserID:    userID,
		Email:     email,
		ExpiresAt: s.now().Add(s.cfg.TTL).UTC(),
	}
	_, err := s.engine.Set(ctx, sessionCollection, sess.ID, map[string]string{
		"userId":    sess.UserID,
		"email":     sess.Email,
		"expiresAt": sess.ExpiresAt.Format(time.RFC3339Nano),
	})
	if err != nil {
		return Session{}, err
	}
	s.cache.Add(sess.ID, sess)
	http.SetCookie(w, &http.Cookie{
		Name:     s.cfg.CookieName,
		Value:    sess.ID + "." + s.sign(sess.ID),
		Path:     "/",
		Expires:  sess.ExpiresAt,
		HttpOnly: true,
		Secure:   s.cfg.Secure,
		SameSite: http.SameSiteLaxMode,
	})
	return sess, nil
}

// Load returns the session of r, or ErrNoSession.
func (s *Sessions) Load(ctx context.Context, r *http.Request) (Session, error) {
	c, err := r.Cookie(s.cfg.CookieName)
	if err != nil {
		return Session{}, ErrNoSession
	}
	id, ok := s.verify(c.Value)
	if !ok {
		return Session{}, ErrNoSession
	}

	sess, ok := s.cache.Get(id)
	if !ok {
		rec, err := s.engine.Get(ctx, sessionCollection, id)
		if errors.Is(err, record.ErrNotFound) {
			return Session{}, ErrNoSession
		}
		if err != nil {
			return Session{}, err
		}
		expires, err := time.Parse(time.RFC3339Nano, rec["expiresAt"])
		if err != nil {
			return Session{}, fmt.Errorf("session %s: %w", id, err)
		}
		sess = Session{ID: id, UserID: rec["userId"], Email: rec["email"], ExpiresAt: expires}
		s.cache.Add(id, sess)
	}

	if !s.now().Before(sess.ExpiresAt) {
		s.cache.Remove(id)
		if err := s.engine.Delete(ctx, sessionCollection, id); err != nil && !errors.Is(err, record.ErrNotFound) {
			s.logger.Warn("failed to delete expired session", "id", id, "error", err)
		}
		return Session{}, ErrNoSession
	}
	return sess, nil
}

// Destroy deletes the session of r, if any, and clears the cookie.
func (s *Sessions) Destroy(ctx context.Context, w http.ResponseWriter, r *http.Request) (Session, bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.cfg.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.cfg.Secure,
	})
	sess, err := s.Load(ctx, r)
	if err != nil {
		return Session{}, false
	}
	s.cache.Remove(sess.ID)
	if err := s.engine.Delete(ctx, sessionCollection, sess.ID); err != nil && !errors.Is(err, record.ErrNotFound) {
		s.logger.Warn("failed to delete session", "id", sess.ID, "error", err)
	}
	return sess, true
}

// DestroyUser deletes every session of userID and returns how many there
// were.
func (s *Sessions) DestroyUser(ctx context.Context, userID string) (int, error) {
	recs, err := s.engine.Scan(ctx, sessionCollection)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, rec := range recs {
		if rec["userId"] != userID {
			continue
		}
		s.cache.Remove(rec.ID())
		if err := s.engine.Delete(ctx, sessionCollection, rec.ID()); err != nil && !errors.Is(err, record.ErrNotFound) {
			return n, err
		}
		n++
	}
	return n, nil
}

type sessionKey struct{}

func withSession(ctx context.Context, sess Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, sess)
}

// SessionFrom returns the session stored in ctx by the authentication
// middleware.
func SessionFrom(ctx context.Context) (Session, bool) {
	sess, ok := ctx.Value(sessionKey{}).(Session)
	return sess, ok
}
