// Package store defines the backing store interface and implementations.
//
// A Store holds two kinds of values under flat string keys: hashes (a map of
// field -> value, used for records) and sorted sets (member -> score, used for
// owner indexes). Every operation is atomic on its own key; nothing is atomic
// across keys except ZDrain, which reads and removes one sorted set.
package store

import (
	"context"
	"errors"

	"github.com/stevemurr/grocery-chat-server/search"
)

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("store: closed")

// Store is the interface that all backing stores must implement.
type Store interface {
	// Put writes every supplied field of the hash at key, creating it if needed.
	Put(ctx context.Context, key string, fields map[string]string) error

	// GetAll returns every field of the hash at key. A missing key yields an
	// empty map and no error.
	GetAll(ctx context.Context, key string) (map[string]string, error)

	// Delete removes key of any kind and returns the number of keys removed.
	Delete(ctx context.Context, key string) (int64, error)

	// Batch executes ops in a single round trip. The returned slice has one
	// Result per op; each op succeeds or fails on its own. The error return is
	// reserved for failures of the round trip itself.
	Batch(ctx context.Context, ops []Op) ([]Result, error)

	// Keys returns every key, hash or sorted set, that starts with prefix.
	Keys(ctx context.Context, prefix string) ([]string, error)

	// ZAdd inserts member into the sorted set at key or updates its score.
	ZAdd(ctx context.Context, key, member string, score float64) error

	// ZRem removes member from the sorted set at key and returns the number
	// of members removed.
	ZRem(ctx context.Context, key, member string) (int64, error)

	// ZRange returns every member of the sorted set at key in ascending
	// score order. Ties are ordered by member.
	ZRange(ctx context.Context, key string) ([]Member, error)

	// ZDrain atomically returns every member of the sorted set at key and
	// deletes the set.
	ZDrain(ctx context.Context, key string) ([]Member, error)

	// CreateIndex declares a search index. Declaring an existing index is a no-op.
	CreateIndex(ctx context.Context, ix search.Index) error

	// Search returns up to search.MaxResults hashes under ix.Prefix matching expr.
	Search(ctx context.Context, ix search.Index, expr string) ([]map[string]string, error)

	// Close releases the store's resources.
	Close() error
}

// Member is one entry of a sorted set.
type Member struct {
	Member string
	Score  float64
}

// Verb names a batched operation.
type Verb int

const (
	OpGetAll Verb = iota
	OpPut
	OpDelete
	OpZAdd
	OpZRem
)

func (v Verb) String() string {
	switch v {
	case OpGetAll:
		return "getall"
	case OpPut:
		return "put"
	case OpDelete:
		return "delete"
	case OpZAdd:
		return "zadd"
	case OpZRem:
		return "zrem"
	default:
		return "unknown"
	}
}

// Op is one operation of a Batch.
type Op struct {
	Verb   Verb
	Key    string
	Fields map[string]string // OpPut
	Member string            // OpZAdd, OpZRem
	Score  float64           // OpZAdd
}

// Result is the outcome of one Op. Fields is set for OpGetAll (empty for a
// missing key) and Count for OpDelete and OpZRem.
type Result struct {
	Fields map[string]string
	Count  int64
	Err    error
}

// GetAllOp returns an OpGetAll for key.
func GetAllOp(key string) Op { return Op{Verb: OpGetAll, Key: key} }

// PutOp returns an OpPut for key.
func PutOp(key string, fields map[string]string) Op {
	return Op{Verb: OpPut, Key: key, Fields: fields}
}

// DeleteOp returns an OpDelete for key.
func DeleteOp(key string) Op { return Op{Verb: OpDelete, Key: key} }

// ZAddOp returns an OpZAdd.
func ZAddOp(key, member string, score float64) Op {
	return Op{Verb: OpZAdd, Key: key, Member: member, Score: score}
}

// ZRemOp returns an OpZRem.
func ZRemOp(key, member string) Op {
	return Op{Verb: OpZRem, Key: key, Member: member}
}

// runBatch executes ops one by one against s. Backends without a native
// pipeline use it.
func runBatch(ctx context.Context, s Store, ops []Op) []Result {
	results := make([]Result, len(ops))
	for i, op := range ops {
		var r Result
		switch op.Verb {
		case OpGetAll:
			r.Fields, r.Err = s.GetAll(ctx, op.Key)
		case OpPut:
			r.Err = s.Put(ctx, op.Key, op.Fields)
		case OpDelete:
			r.Count, r.Err = s.Delete(ctx, op.Key)
		case OpZAdd:
			r.Err = s.ZAdd(ctx, op.Key, op.Member, op.Score)
		case OpZRem:
			r.Count, r.Err = s.ZRem(ctx, op.Key, op.Member)
		default:
			r.Err = errors.New("store: unknown batch verb " + op.Verb.String())
		}
		results[i] = r
	}
	return results
}

func copyFields(src map[string]string) map[string]string {
	dst := make(map[string]string, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
