package record_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stevemurr/grocery-chat-server/index"
	"github.com/stevemurr/grocery-chat-server/record"
	"github.com/stevemurr/grocery-chat-server/store"
)

func TestRepair(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	e := newEngine(t, s)

	kept, err := e.CreateOwned(ctx, "chats", "u1", map[string]string{"title": "kept"})
	require.NoError(t, err)
	gone, err := e.CreateOwned(ctx, "chats", "u1", nil)
	require.NoError(t, err)
	stolen, err := e.CreateOwned(ctx, "chats", "u2", nil)
	require.NoError(t, err)

	// Dangling entry, foreign entry, and two unindexed records.
	_, err = s.Delete(ctx, "chats:"+gone.ID())
	require.NoError(t, err)
	require.NoError(t, s.ZAdd(ctx, index.Key("chats", "u1"), "chats:"+stolen.ID(), 1))
	old := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.Put(ctx, "chats:orphan", map[string]string{
		"id": "orphan", "userId": "u1", "updatedAt": old.Format(time.RFC3339Nano),
	}))
	require.NoError(t, s.Put(ctx, "chats:undated", map[string]string{"id": "undated", "userId": "u3"}))
	// Records without an owner are not indexed.
	require.NoError(t, s.Put(ctx, "chats:ownerless", map[string]string{"id": "ownerless"}))

	report, err := e.Repair(ctx, "chats")
	require.NoError(t, err)
	assert.Equal(t, record.RepairReport{Added: 2, Removed: 2}, report)

	list, err := e.ListOwned(ctx, "chats", "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{kept.ID(), "orphan"}, ids(list))

	members, err := s.ZRange(ctx, index.Key("chats", "u1"))
	require.NoError(t, err)
	require.Len(t, members, 2)
	assert.Equal(t, float64(old.UnixMicro()), members[0].Score)

	list, err = e.ListOwned(ctx, "chats", "u3")
	require.NoError(t, err)
	assert.Equal(t, []string{"undated"}, ids(list))

	list, err = e.ListOwned(ctx, "chats", "u2")
	require.NoError(t, err)
	assert.Equal(t, []string{stolen.ID()}, ids(list))

	// A second pass finds nothing to do.
	report, err = e.Repair(ctx, "chats")
	require.NoError(t, err)
	assert.Equal(t, record.RepairReport{}, report)
}

func TestRepairEmpty(t *testing.T) {
	e := newEngine(t, nil)
	report, err := e.Repair(context.Background(), "profiles")
	require.NoError(t, err)
	assert.Zero(t, report)
}
