package record_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stevemurr/grocery-chat-server/index"
	"github.com/stevemurr/grocery-chat-server/record"
	"github.com/stevemurr/grocery-chat-server/store"
)

var errBoom = errors.New("boom")

// flakyStore fails chosen calls of the wrapped store.
type flakyStore struct {
	store.Store
	failPut     func(key string) bool
	failZAdd    bool
	failDeleteK string
}

func (f *flakyStore) Put(ctx context.Context, key string, fields map[string]string) error {
	if f.failPut != nil && f.failPut(key) {
		return errBoom
	}
	return f.Store.Put(ctx, key, fields)
}

func (f *flakyStore) ZAdd(ctx context.Context, key, member string, score float64) error {
	if f.failZAdd {
		return errBoom
	}
	return f.Store.ZAdd(ctx, key, member, score)
}

func (f *flakyStore) Batch(ctx context.Context, ops []store.Op) ([]store.Result, error) {
	results := make([]store.Result, len(ops))
	for i, op := range ops {
		if op.Verb == store.OpDelete && op.Key == f.failDeleteK {
			results[i] = store.Result{Err: errBoom}
			continue
		}
		r, err := f.Store.Batch(ctx, []store.Op{op})
		if err != nil {
			return nil, err
		}
		results[i] = r[0]
	}
	return results, nil
}

// frozenClock always returns the same instant, so ordering relies on the
// engine's strictly increasing scores.
func frozenClock() time.Time {
	return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
}

func sequentialIDs() func() string {
	var (
		mu sync.Mutex
		n  int
	)
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("r%d", n)
	}
}

func newEngine(t *testing.T, s store.Store) *record.Engine {
	t.Helper()
	if s == nil {
		s = store.NewMemoryStore()
	}
	return record.New(s, nil, record.WithClock(frozenClock), record.WithIDGenerator(sequentialIDs()))
}

func ids(recs []record.Record) []string {
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = r.ID()
	}
	return out
}

func TestCreateThenFetch(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t, nil)

	created, err := e.CreateOwned(ctx, "chats", "u1", map[string]string{"title": "Apple"})
	require.NoError(t, err)
	assert.Equal(t, "r1", created.ID())
	assert.Equal(t, "u1", created.Owner())
	assert.Equal(t, "Apple", created["title"])

	fetched, err := e.FetchOwned(ctx, "chats", "u1", created.ID())
	require.NoError(t, err)
	assert.Equal(t, created, fetched)
}

func TestCreateIgnoresReservedFields(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t, nil)

	created, err := e.CreateOwned(ctx, "chats", "u1", map[string]string{
		"id":     "chosen",
		"userId": "u2",
		"title":  "Apple",
	})
	require.NoError(t, err)
	assert.Equal(t, "r1", created.ID())
	assert.Equal(t, "u1", created.Owner())

	_, err = e.FetchOwned(ctx, "chats", "u2", "r1")
	assert.ErrorIs(t, err, record.ErrUnauthorized)
}

func TestOwnershipIsolation(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t, nil)

	rec, err := e.CreateOwned(ctx, "profiles", "alice", map[string]string{"name": "Home"})
	require.NoError(t, err)

	got, err := e.FetchOwned(ctx, "profiles", "bob", rec.ID())
	assert.ErrorIs(t, err, record.ErrUnauthorized)
	assert.Nil(t, got)

	_, err = e.UpdateOwned(ctx, "profiles", "bob", rec.ID(), map[string]string{"name": "Mine"})
	assert.ErrorIs(t, err, record.ErrUnauthorized)

	assert.ErrorIs(t, e.DeleteOwned(ctx, "profiles", "bob", rec.ID()), record.ErrUnauthorized)

	// Alice's record is untouched.
	got, err = e.FetchOwned(ctx, "profiles", "alice", rec.ID())
	require.NoError(t, err)
	assert.Equal(t, "Home", got["name"])

	list, err := e.ListOwned(ctx, "profiles", "bob")
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestFetchMissing(t *testing.T) {
	e := newEngine(t, nil)
	_, err := e.FetchOwned(context.Background(), "chats", "u1", "nope")
	assert.ErrorIs(t, err, record.ErrNotFound)
}

func TestListOrder(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t, nil)

	for _, title := range []string{"one", "two", "three"} {
		_, err := e.CreateOwned(ctx, "chats", "u1", map[string]string{"title": title})
		require.NoError(t, err)
	}

	list, err := e.ListOwned(ctx, "chats", "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"r3", "r2", "r1"}, ids(list))
	assert.Equal(t, "three", list[0]["title"])
}

func TestUpdateMovesToFront(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t, nil)

	r1, err := e.CreateOwned(ctx, "chats", "u1", map[string]string{"title": "first"})
	require.NoError(t, err)
	_, err = e.CreateOwned(ctx, "chats", "u1", map[string]string{"title": "second"})
	require.NoError(t, err)

	updated, err := e.UpdateOwned(ctx, "chats", "u1", r1.ID(), map[string]string{
		"title":  "renamed",
		"userId": "u2",
	})
	require.NoError(t, err)
	assert.Equal(t, "renamed", updated["title"])
	assert.Equal(t, "u1", updated.Owner())

	list, err := e.ListOwned(ctx, "chats", "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"r1", "r2"}, ids(list))
	assert.Equal(t, "renamed", list[0]["title"])
}

func TestDeleteOwned(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	e := newEngine(t, s)

	rec, err := e.CreateOwned(ctx, "chats", "u1", map[string]string{"title": "Apple"})
	require.NoError(t, err)
	require.NoError(t, e.DeleteOwned(ctx, "chats", "u1", rec.ID()))

	_, err = e.FetchOwned(ctx, "chats", "u1", rec.ID())
	assert.ErrorIs(t, err, record.ErrNotFound)

	list, err := e.ListOwned(ctx, "chats", "u1")
	require.NoError(t, err)
	assert.Empty(t, list)

	members, err := s.ZRange(ctx, index.Key("chats", "u1"))
	require.NoError(t, err)
	assert.Empty(t, members)

	assert.ErrorIs(t, e.DeleteOwned(ctx, "chats", "u1", rec.ID()), record.ErrNotFound)
}

func TestDeleteAllOwned(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t, nil)

	var created []record.Record
	for i := 0; i < 4; i++ {
		rec, err := e.CreateOwned(ctx, "chats", "u1", map[string]string{"n": fmt.Sprint(i)})
		require.NoError(t, err)
		created = append(created, rec)
	}
	other, err := e.CreateOwned(ctx, "chats", "u2", map[string]string{"n": "x"})
	require.NoError(t, err)

	n, err := e.DeleteAllOwned(ctx, "chats", "u1")
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	list, err := e.ListOwned(ctx, "chats", "u1")
	require.NoError(t, err)
	assert.Empty(t, list)
	for _, rec := range created {
		_, err := e.FetchOwned(ctx, "chats", "u1", rec.ID())
		assert.ErrorIs(t, err, record.ErrNotFound)
	}

	_, err = e.FetchOwned(ctx, "chats", "u2", other.ID())
	require.NoError(t, err)

	n, err = e.DeleteAllOwned(ctx, "chats", "u1")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestDeleteAllOwnedPartialFailure(t *testing.T) {
	ctx := context.Background()
	s := &flakyStore{Store: store.NewMemoryStore(), failDeleteK: "chats:r1"}
	e := newEngine(t, s)

	for i := 0; i < 3; i++ {
		_, err := e.CreateOwned(ctx, "chats", "u1", nil)
		require.NoError(t, err)
	}

	n, err := e.DeleteAllOwned(ctx, "chats", "u1")
	assert.ErrorIs(t, err, record.ErrStoreUnavailable)
	assert.ErrorIs(t, err, errBoom)
	assert.Equal(t, 2, n)

	// The index is drained even though one record leaked.
	list, err := e.ListOwned(ctx, "chats", "u1")
	require.NoError(t, err)
	assert.Empty(t, list)
	_, err = e.Get(ctx, "chats", "r1")
	require.NoError(t, err)
}

func TestDanglingEntriesSkipped(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	e := newEngine(t, s)

	r1, err := e.CreateOwned(ctx, "chats", "u1", map[string]string{"title": "a"})
	require.NoError(t, err)
	r2, err := e.CreateOwned(ctx, "chats", "u1", map[string]string{"title": "b"})
	require.NoError(t, err)
	foreign, err := e.CreateOwned(ctx, "chats", "u2", map[string]string{"title": "c"})
	require.NoError(t, err)

	before := testutil.ToFloat64(record.DanglingEntries.WithLabelValues("chats"))

	// A record removed behind the engine's back, and an entry pointing at
	// another owner's record.
	_, err = s.Delete(ctx, "chats:"+r1.ID())
	require.NoError(t, err)
	require.NoError(t, s.ZAdd(ctx, index.Key("chats", "u1"), "chats:"+foreign.ID(), 1))

	list, err := e.ListOwned(ctx, "chats", "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{r2.ID()}, ids(list))

	after := testutil.ToFloat64(record.DanglingEntries.WithLabelValues("chats"))
	assert.Equal(t, 2.0, after-before)

	// Listing does not repair the index.
	members, err := s.ZRange(ctx, index.Key("chats", "u1"))
	require.NoError(t, err)
	assert.Len(t, members, 3)
}

func TestScenarioAppleBanana(t *testing.T) {
	ctx := context.Background()
	e := record.New(store.NewMemoryStore(), nil)

	apple, err := e.CreateOwned(ctx, "chats", "U1", map[string]string{"title": "Apple"})
	require.NoError(t, err)
	require.NotEmpty(t, apple.ID())
	assert.Equal(t, "Apple", apple["title"])

	banana, err := e.CreateOwned(ctx, "chats", "U1", map[string]string{"title": "Banana"})
	require.NoError(t, err)
	assert.NotEqual(t, apple.ID(), banana.ID())

	list, err := e.ListOwned(ctx, "chats", "U1")
	require.NoError(t, err)
	assert.Equal(t, []record.Record{banana, apple}, list)

	require.NoError(t, e.DeleteOwned(ctx, "chats", "U1", apple.ID()))

	list, err = e.ListOwned(ctx, "chats", "U1")
	require.NoError(t, err)
	assert.Equal(t, []record.Record{banana}, list)
}

func TestCreatePutFailureLeavesIndexAlone(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemoryStore()
	s := &flakyStore{Store: mem, failPut: func(string) bool { return true }}
	e := newEngine(t, s)

	_, err := e.CreateOwned(ctx, "chats", "u1", map[string]string{"title": "a"})
	assert.ErrorIs(t, err, record.ErrStoreUnavailable)
	assert.ErrorIs(t, err, errBoom)

	members, err := mem.ZRange(ctx, index.Key("chats", "u1"))
	require.NoError(t, err)
	assert.Empty(t, members)
}

func TestCreateIndexFailureKeepsRecordFetchable(t *testing.T) {
	ctx := context.Background()
	s := &flakyStore{Store: store.NewMemoryStore(), failZAdd: true}
	e := newEngine(t, s)

	_, err := e.CreateOwned(ctx, "chats", "u1", map[string]string{"title": "a"})
	assert.ErrorIs(t, err, record.ErrStoreUnavailable)

	// Unindexed but reachable by id.
	rec, err := e.FetchOwned(ctx, "chats", "u1", "r1")
	require.NoError(t, err)
	assert.Equal(t, "a", rec["title"])
	list, err := e.ListOwned(ctx, "chats", "u1")
	require.NoError(t, err)
	assert.Empty(t, list)
	require.NoError(t, e.DeleteOwned(ctx, "chats", "u1", "r1"))
}

func TestStoreUnavailable(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	e := newEngine(t, s)
	require.NoError(t, s.Close())

	_, err := e.FetchOwned(ctx, "chats", "u1", "r1")
	assert.ErrorIs(t, err, record.ErrStoreUnavailable)
	assert.ErrorIs(t, err, store.ErrClosed)

	_, err = e.ListOwned(ctx, "chats", "u1")
	assert.ErrorIs(t, err, record.ErrStoreUnavailable)

	_, err = e.DeleteAllOwned(ctx, "chats", "u1")
	assert.ErrorIs(t, err, record.ErrStoreUnavailable)
}

func TestScoresStrictlyIncrease(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	e := newEngine(t, s)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.CreateOwned(ctx, "chats", "u1", nil)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	members, err := s.ZRange(ctx, index.Key("chats", "u1"))
	require.NoError(t, err)
	require.Len(t, members, 50)
	seen := make(map[float64]bool)
	for _, m := range members {
		assert.False(t, seen[m.Score], "duplicate score %v", m.Score)
		seen[m.Score] = true
	}
}

func TestUnownedRecords(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t, nil)

	user, err := e.Create(ctx, "users", map[string]string{"email": "a@b.c", "id": "forced"})
	require.NoError(t, err)
	assert.Equal(t, "r1", user.ID())

	got, err := e.Get(ctx, "users", user.ID())
	require.NoError(t, err)
	assert.Equal(t, "a@b.c", got["email"])

	got, err = e.Update(ctx, "users", user.ID(), map[string]string{"currentProfile": "p1", "id": "x"})
	require.NoError(t, err)
	assert.Equal(t, "p1", got["currentProfile"])
	assert.Equal(t, user.ID(), got.ID())

	_, err = e.Update(ctx, "users", "missing", map[string]string{"a": "b"})
	assert.ErrorIs(t, err, record.ErrNotFound)

	prefs, err := e.Set(ctx, "profiles:preferences", "p1", map[string]string{"lifestyle": "vegan"})
	require.NoError(t, err)
	assert.Equal(t, "p1", prefs.ID())

	require.NoError(t, e.Delete(ctx, "users", user.ID()))
	assert.ErrorIs(t, e.Delete(ctx, "users", user.ID()), record.ErrNotFound)
}

func TestCreateMany(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t, nil)

	recs, err := e.CreateMany(ctx, "users", []map[string]string{
		{"email": "a@b.c"},
		{"email": "d@e.f"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"r1", "r2"}, ids(recs))

	all, err := e.Scan(ctx, "users")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	recs, err = e.CreateMany(ctx, "users", nil)
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestScanSkipsNonRecords(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t, nil)

	_, err := e.Create(ctx, "users", map[string]string{"email": "a@b.c"})
	require.NoError(t, err)
	_, err = e.Create(ctx, "users", map[string]string{"email": "d@e.f"})
	require.NoError(t, err)
	// Owner indexes live under "users:" too.
	_, err = e.CreateOwned(ctx, "chats", "r1", nil)
	require.NoError(t, err)

	users, err := e.Scan(ctx, "users")
	require.NoError(t, err)
	assert.Equal(t, []string{"r1", "r2"}, ids(users))
	for _, u := range users {
		assert.False(t, strings.Contains(u.ID(), ":"))
	}
}
