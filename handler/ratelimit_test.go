package handler

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stevemurr/grocery-chat-server/record"
	"github.com/stevemurr/grocery-chat-server/store"
)

func TestRateLimiterDailyReset(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	l := NewRateLimiter(record.New(s, nil), 2)
	now := time.Date(2024, 5, 1, 23, 59, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	for i := 0; i < 2; i++ {
		ok, err := l.Allow(ctx, "10.0.0.1")
		require.NoError(t, err)
		assert.True(t, ok)
	}
	ok, err := l.Allow(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.False(t, ok)

	// Other clients have their own counter.
	ok, err = l.Allow(ctx, "10.0.0.2")
	require.NoError(t, err)
	assert.True(t, ok)

	now = now.Add(2 * time.Minute)
	ok, err = l.Allow(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.True(t, ok)

	rec, err := s.GetAll(ctx, "ratelimit:10.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, "2024-05-02", rec["day"])
	assert.Equal(t, "1", rec["count"])
}

func TestRateLimiterIPv6(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	l := NewRateLimiter(record.New(s, nil), 1)

	ok, err := l.Allow(ctx, "2001:db8::1")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = l.Allow(ctx, "2001:db8::1")
	require.NoError(t, err)
	assert.False(t, ok)

	rec, err := s.GetAll(ctx, "ratelimit:2001-db8--1")
	require.NoError(t, err)
	assert.Equal(t, "1", rec["count"])
}

func TestRateLimiterStoreDown(t *testing.T) {
	s := store.NewMemoryStore()
	l := NewRateLimiter(record.New(s, nil), 2)
	require.NoError(t, s.Close())

	ok, err := l.Allow(context.Background(), "10.0.0.1")
	assert.False(t, ok)
	assert.ErrorIs(t, err, record.ErrStoreUnavailable)
}

func TestClientIP(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "192.0.2.1:4321"
	assert.Equal(t, "192.0.2.1", clientIP(r))

	r.Header.Set("CF-Connecting-IP", "198.51.100.7")
	assert.Equal(t, "198.51.100.7", clientIP(r))

	r.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	assert.Equal(t, "203.0.113.9", clientIP(r))
}

func TestSessionSignature(t *testing.T) {
	sessions, err := NewSessions(record.New(store.NewMemoryStore(), nil), SessionConfig{Secret: "0123456789abcdef"}, nil)
	require.NoError(t, err)

	value := "abc." + sessions.sign("abc")
	id, ok := sessions.verify(value)
	assert.True(t, ok)
	assert.Equal(t, "abc", id)

	_, ok = sessions.verify("abd." + sessions.sign("abc"))
	assert.False(t, ok)
	_, ok = sessions.verify("abc")
	assert.False(t, ok)

	other, err := NewSessions(record.New(store.NewMemoryStore(), nil), SessionConfig{Secret: "another-secret-0000"}, nil)
	require.NoError(t, err)
	_, ok = other.verify(value)
	assert.False(t, ok)

	_, err = NewSessions(nil, SessionConfig{}, nil)
	assert.Error(t, err)
}

func TestSessionLoadFromStore(t *testing.T) {
	ctx := context.Background()
	e := record.New(store.NewMemoryStore(), nil)
	sessions, err := NewSessions(e, SessionConfig{Secret: "0123456789abcdef", TTL: time.Hour}, nil)
	require.NoError(t, err)
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	sessions.now = func() time.Time { return now }

	w := httptest.NewRecorder()
	created, err := sessions.Create(ctx, w, "u1", "user@test.com")
	require.NoError(t, err)
	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)

	// Drop the cache so the store copy is read.
	sessions.cache.Purge()
	r := httptest.NewRequest("GET", "/", nil)
	r.AddCookie(cookies[0])
	got, err := sessions.Load(ctx, r)
	require.NoError(t, err)
	assert.Equal(t, created.UserID, got.UserID)
	assert.Equal(t, "user@test.com", got.Email)
	assert.True(t, created.ExpiresAt.Equal(got.ExpiresAt))

	now = now.Add(2 * time.Hour)
	_, err = sessions.Load(ctx, r)
	assert.ErrorIs(t, err, ErrNoSession)
	_, err = e.Get(ctx, sessionCollection, created.ID)
	assert.ErrorIs(t, err, record.ErrNotFound)
}
