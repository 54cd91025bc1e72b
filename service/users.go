package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/stevemurr/grocery-chat-server/record"
	"github.com/stevemurr/grocery-chat-server/search"
)

// UserIndex is the search index over user records.
var UserIndex = search.NewIndex(Users,
	search.Field{Name: "email", Type: search.TypeTag},
	search.Field{Name: "username", Type: search.TypeText},
)

// sensitiveFields are never returned by UserService.
var sensitiveFields = []string{"password"}

// NewUser is one entry of a bulk import.
type NewUser struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Username string `json:"username,omitempty"`
}

// UserService manages user accounts. Deleting a user deletes everything
// the user owns.
type UserService struct {
	engine   *record.Engine
	profiles *ProfileService
	hasher   Hasher
	logger   *slog.Logger
}

func NewUserService(e *record.Engine, profiles *ProfileService, hasher Hasher, logger *slog.Logger) *UserService {
	if logger == nil {
		logger = slog.Default()
	}
	return &UserService{engine: e, profiles: profiles, hasher: hasher, logger: logger}
}

// EnsureIndex declares UserIndex on the store.
func (u *UserService) EnsureIndex(ctx context.Context) error {
	return u.engine.Store().CreateIndex(ctx, UserIndex)
}

// Create registers a user. Emails are unique, compared case-insensitively.
func (u *UserService) Create(ctx context.Context, email, password string) (record.Record, error) {
	email = strings.TrimSpace(email)
	if _, err := u.findByEmail(ctx, email); err == nil {
		return nil, ErrEmailInUse
	} else if !errors.Is(err, record.ErrNotFound) {
		return nil, err
	}
	digest, err := u.hasher.Hash(password)
	if err != nil {
		return nil, err
	}
	rec, err := u.engine.Create(ctx, Users, map[string]string{"email": email, "password": digest})
	if err != nil {
		return nil, err
	}
	u.logger.Info("user created", "id", rec.ID())
	return redact(rec), nil
}

// CreateMany imports users in one batch, skipping emails already in use.
func (u *UserService) CreateMany(ctx context.Context, users []NewUser) ([]record.Record, error) {
	seen := make(map[string]bool)
	var items []map[string]string
	for _, nu := range users {
		email := strings.TrimSpace(nu.Email)
		key := strings.ToLower(email)
		if seen[key] {
			continue
		}
		seen[key] = true
		if _, err := u.findByEmail(ctx, email); err == nil {
			u.logger.Info("skipping existing user", "email", email)
			continue
		} else if !errors.Is(err, record.ErrNotFound) {
			return nil, err
		}
		digest, err := u.hasher.Hash(nu.Password)
		if err != nil {
			return nil, err
		}
		fields := map[string]string{"email": email, "password": digest}
		if nu.Username != "" {
			fields["username"] = nu.Username
		}
		items = append(items, fields)
	}
	recs, err := u.engine.CreateMany(ctx, Users, items)
	for i := range recs {
		recs[i] = redact(recs[i])
	}
	return recs, err
}

// Authenticate returns the user if password matches.
func (u *UserService) Authenticate(ctx context.Context, email, password string) (record.Record, error) {
	rec, err := u.findByEmail(ctx, strings.TrimSpace(email))
	if errors.Is(err, record.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if !u.hasher.Verify(password, rec["password"]) {
		return nil, ErrInvalidCredentials
	}
	return redact(rec), nil
}

func (u *UserService) List(ctx context.Context) ([]record.Record, error) {
	recs, err := u.engine.Scan(ctx, Users)
	if err != nil {
		return nil, err
	}
	for i := range recs {
		recs[i] = redact(recs[i])
	}
	return recs, nil
}

func (u *UserService) Get(ctx context.Context, id string) (record.Record, error) {
	rec, err := u.engine.Get(ctx, Users, id)
	if err != nil {
		return nil, err
	}
	return redact(rec), nil
}

func (u *UserService) GetByEmail(ctx context.Context, email string) (record.Record, error) {
	rec, err := u.findByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	return redact(rec), nil
}

func (u *UserService) findByEmail(ctx context.Context, email string) (record.Record, error) {
	docs, err := u.engine.Store().Search(ctx, UserIndex, search.Tag("email", email))
	if err != nil {
		return nil, err
	}
	for _, doc := range docs {
		if doc[record.FieldID] != "" && strings.EqualFold(doc["email"], email) {
			return record.Record(doc), nil
		}
	}
	return nil, record.ErrNotFound
}

// Delete removes the user, then the user's profiles, preferences and chats.
func (u *UserService) Delete(ctx context.Context, id string) error {
	if err := u.engine.Delete(ctx, Users, id); err != nil {
		return err
	}
	if err := u.profiles.DeleteAll(ctx, id); err != nil {
		return err
	}
	n, err := u.engine.DeleteAllOwned(ctx, Chats, id)
	if err != nil {
		return err
	}
	u.logger.Info("user deleted", "id", id, "chats", n)
	return nil
}

// SetProfile makes profileID the user's current profile. The profile must
// belong to the user.
func (u *UserService) SetProfile(ctx context.Context, userID, profileID string) error {
	if _, err := u.engine.Get(ctx, Users, userID); err != nil {
		return err
	}
	if _, err := u.profiles.Get(ctx, userID, profileID); err != nil {
		return err
	}
	_, err := u.engine.Update(ctx, Users, userID, map[string]string{"profileId": profileID})
	return err
}

// Profile returns the user's current profile, or nil if none is set or it
// no longer exists.
func (u *UserService) Profile(ctx context.Context, userID string) (record.Record, error) {
	user, err := u.engine.Get(ctx, Users, userID)
	if err != nil {
		return nil, err
	}
	profileID := user["profileId"]
	if profileID == "" {
		return nil, nil
	}
	prof, err := u.profiles.Get(ctx, userID, profileID)
	if errors.Is(err, record.ErrNotFound) || errors.Is(err, record.ErrUnauthorized) {
		return nil, nil
	}
	return prof, err
}

// Preferences returns the preferences of the user's current profile, or
// empty ones if there is no current profile. A user without a record has
// no current profile.
func (u *UserService) Preferences(ctx context.Context, userID string) (Preferences, error) {
	prof, err := u.Profile(ctx, userID)
	if errors.Is(err, record.ErrNotFound) || errors.Is(err, record.ErrUnauthorized) {
		return Preferences{}, nil
	}
	if err != nil || prof == nil {
		return Preferences{}, err
	}
	return loadPreferences(ctx, u.engine, prof.ID())
}

func redact(rec record.Record) record.Record {
	out := make(record.Record, len(rec))
	for k, v := range rec {
		out[k] = v
	}
	for _, f := range sensitiveFields {
		delete(out, f)
	}
	return out
}
