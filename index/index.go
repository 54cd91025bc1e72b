// Package index maintains per-owner sorted sets of record keys, one set per
// owner and collection, stored at "users:<collection>:<ownerId>".
//
// Scores are last-modified times. List returns the most recent first; equal
// scores are ordered by ascending member key.
package index

import (
	"context"
	"sort"

	"github.com/stevemurr/grocery-chat-server/keys"
	"github.com/stevemurr/grocery-chat-server/store"
)

// Namespace is the first segment of every owner index key.
const Namespace = "users"

// Index is the owner index over a Store.
type Index struct {
	store store.Store
}

func New(s store.Store) *Index {
	return &Index{store: s}
}

// Key returns the store key of owner's index for collection.
func Key(collection, owner string) string {
	return keys.Build(Namespace, collection, owner)
}

// ParseKey is the inverse of Key.
func ParseKey(key string) (collection, owner string, ok bool) {
	parts := keys.Split(key)
	if len(parts) != 3 || parts[0] != Namespace || parts[1] == "" || parts[2] == "" {
		return "", "", false
	}
	return parts[1], parts[2], true
}

// Add inserts member or moves it to score.
func (ix *Index) Add(ctx context.Context, owner, collection, member string, score float64) error {
	return ix.store.ZAdd(ctx, Key(collection, owner), member, score)
}

// Remove deletes member. Removing an absent member is not an error.
func (ix *Index) Remove(ctx context.Context, owner, collection, member string) error {
	_, err := ix.store.ZRem(ctx, Key(collection, owner), member)
	return err
}

// List returns the members of owner's index, most recent first.
func (ix *Index) List(ctx context.Context, owner, collection string) ([]string, error) {
	entries, err := ix.Entries(ctx, owner, collection)
	if err != nil {
		return nil, err
	}
	return memberKeys(entries), nil
}

// Entries is List with scores.
func (ix *Index) Entries(ctx context.Context, owner, collection string) ([]store.Member, error) {
	members, err := ix.store.ZRange(ctx, Key(collection, owner))
	if err != nil {
		return nil, err
	}
	sortDescending(members)
	return members, nil
}

// Clear atomically empties owner's index and returns what it held, most
// recent first.
func (ix *Index) Clear(ctx context.Context, owner, collection string) ([]string, error) {
	members, err := ix.store.ZDrain(ctx, Key(collection, owner))
	if err != nil {
		return nil, err
	}
	sortDescending(members)
	return memberKeys(members), nil
}

// Owners returns every owner that has an index for collection.
func (ix *Index) Owners(ctx context.Context, collection string) ([]string, error) {
	ks, err := ix.store.Keys(ctx, keys.Prefix(Namespace, collection))
	if err != nil {
		return nil, err
	}
	var owners []string
	for _, k := range ks {
		if c, owner, ok := ParseKey(k); ok && c == collection {
			owners = append(owners, owner)
		}
	}
	return owners, nil
}

func sortDescending(members []store.Member) {
	sort.SliceStable(members, func(i, j int) bool {
		if members[i].Score != members[j].Score {
			return members[i].Score > members[j].Score
		}
		return members[i].Member < members[j].Member
	})
}

func memberKeys(members []store.Member) []string {
	out := make([]string, len(members))
	for i, m := range members {
		out[i] = m.Member
	}
	return out
}
