// Package service implements users, profiles and chats on top of the record
// engine.
package service

import (
	"errors"

	"golang.org/x/crypto/bcrypt"

	"github.com/stevemurr/grocery-chat-server/keys"
)

// Collection names.
const (
	Users    = "users"
	Profiles = "profiles"
	Chats    = "chats"
)

// preferencesCollection holds one preferences record per profile, keyed by
// profile id: "profiles:preferences:<profileId>".
var preferencesCollection = keys.Build(Profiles, "preferences")

var (
	ErrEmailInUse         = errors.New("email already in use")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrEmptyChat          = errors.New("chat needs at least one message")
)

// Hasher hashes and verifies passwords.
type Hasher interface {
	Hash(secret string) (string, error)
	Verify(secret, digest string) bool
}

// BcryptHasher is a Hasher using bcrypt. A zero Cost means bcrypt.DefaultCost.
type BcryptHasher struct {
	Cost int
}

func (h BcryptHasher) Hash(secret string) (string, error) {
	cost := h.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	b, err := bcrypt.GenerateFromPassword([]byte(secret), cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (h BcryptHasher) Verify(secret, digest string) bool {
	return bcrypt.CompareHashAndPassword([]byte(digest), []byte(secret)) == nil
}
