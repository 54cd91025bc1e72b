package store

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sort"
	"sync"

	"github.com/cockroachdb/pebble"

	"github.com/stevemurr/grocery-chat-server/search"
)

// Key kinds. A hash lives at kindHash+key, a sorted set at kindZset+key.
const (
	kindHash = "h\x00"
	kindZset = "z\x00"
)

// PebbleStore keeps hashes and sorted sets in an embedded Pebble database.
// Each hash or sorted set is one JSON-encoded value; read-modify-write
// sequences are serialized by mu.
type PebbleStore struct {
	mu sync.Mutex
	db *pebble.DB
}

// rw is a *pebble.DB or an indexed *pebble.Batch.
type rw interface {
	Get(key []byte) ([]byte, io.Closer, error)
	Set(key, value []byte, opts *pebble.WriteOptions) error
	Delete(key []byte, opts *pebble.WriteOptions) error
}

// pebbleTx applies operations to w. Writes use opts, which is ignored
// inside a batch.
type pebbleTx struct {
	w    rw
	opts *pebble.WriteOptions
}

func NewPebbleStore(dir string) (*PebbleStore, error) {
	opts := pebble.Options{}
	db, err := pebble.Open(dir, &opts)
	if err != nil {
		return nil, err
	}
	return &PebbleStore{db: db}, nil
}

// DB exposes the underlying database for metrics collection.
func (p *PebbleStore) DB() *pebble.DB { return p.db }

func (p *PebbleStore) Close() error {
	return p.db.Close()
}

func (p *PebbleStore) direct() pebbleTx { return pebbleTx{w: p.db, opts: pebble.Sync} }

func (t pebbleTx) load(key string, v any) (bool, error) {
	val, clo, err := t.w.Get([]byte(key))
	if errors.Is(err, pebble.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	defer clo.Close()
	return true, json.Unmarshal(val, v)
}

func (t pebbleTx) save(key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return t.w.Set([]byte(key), b, t.opts)
}

func (t pebbleTx) hash(key string) (map[string]string, error) {
	h := make(map[string]string)
	if _, err := t.load(kindHash+key, &h); err != nil {
		return nil, err
	}
	return h, nil
}

func (t pebbleTx) zset(key string) (map[string]float64, error) {
	z := make(map[string]float64)
	if _, err := t.load(kindZset+key, &z); err != nil {
		return nil, err
	}
	return z, nil
}

func (t pebbleTx) put(key string, fields map[string]string) error {
	h, err := t.hash(key)
	if err != nil {
		return err
	}
	for k, v := range fields {
		h[k] = v
	}
	return t.save(kindHash+key, h)
}

func (t pebbleTx) delete(key string) (int64, error) {
	var n int64
	for _, k := range []string{kindHash + key, kindZset + key} {
		_, clo, err := t.w.Get([]byte(k))
		if errors.Is(err, pebble.ErrNotFound) {
			continue
		}
		if err != nil {
			return 0, err
		}
		clo.Close()
		if err := t.w.Delete([]byte(k), t.opts); err != nil {
			return 0, err
		}
		n = 1
	}
	return n, nil
}

func (t pebbleTx) zadd(key, member string, score float64) error {
	z, err := t.zset(key)
	if err != nil {
		return err
	}
	z[member] = score
	return t.save(kindZset+key, z)
}

func (t pebbleTx) zrem(key, member string) (int64, error) {
	z, err := t.zset(key)
	if err != nil {
		return 0, err
	}
	if _, ok := z[member]; !ok {
		return 0, nil
	}
	delete(z, member)
	if len(z) == 0 {
		return 1, t.w.Delete([]byte(kindZset+key), t.opts)
	}
	return 1, t.save(kindZset+key, z)
}

func (p *PebbleStore) Put(_ context.Context, key string, fields map[string]string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.direct().put(key, fields)
}

func (p *PebbleStore) GetAll(_ context.Context, key string) (map[string]string, error) {
	return p.direct().hash(key)
}

func (p *PebbleStore) Delete(_ context.Context, key string) (int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.direct().delete(key)
}

// Batch applies ops to one indexed batch, so later ops read the writes of
// earlier ones, and commits it with a single synced write.
func (p *PebbleStore) Batch(ctx context.Context, ops []Op) ([]Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	b := p.db.NewIndexedBatch()
	defer b.Close()
	t := pebbleTx{w: b}

	results := make([]Result, len(ops))
	for i, op := range ops {
		var r Result
		switch op.Verb {
		case OpGetAll:
			r.Fields, r.Err = t.hash(op.Key)
		case OpPut:
			r.Err = t.put(op.Key, op.Fields)
		case OpDelete:
			r.Count, r.Err = t.delete(op.Key)
		case OpZAdd:
			r.Err = t.zadd(op.Key, op.Member, op.Score)
		case OpZRem:
			r.Count, r.Err = t.zrem(op.Key, op.Member)
		default:
			r.Err = errors.New("store: unknown batch verb " + op.Verb.String())
		}
		results[i] = r
	}
	if b.Empty() {
		return results, nil
	}
	if err := b.Commit(pebble.Sync); err != nil {
		return nil, err
	}
	return results, nil
}

func (p *PebbleStore) Keys(_ context.Context, prefix string) ([]string, error) {
	var out []string
	for _, kind := range []string{kindHash, kindZset} {
		lower := []byte(kind + prefix)
		it, err := p.db.NewIter(&pebble.IterOptions{
			LowerBound: lower,
			UpperBound: upperBound(lower),
		})
		if err != nil {
			return nil, err
		}
		for it.First(); it.Valid(); it.Next() {
			out = append(out, string(it.Key()[len(kind):]))
		}
		if err := it.Close(); err != nil {
			return nil, err
		}
	}
	sort.Strings(out)
	return dedupSorted(out), nil
}

func (p *PebbleStore) ZAdd(_ context.Context, key, member string, score float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.direct().zadd(key, member, score)
}

func (p *PebbleStore) ZRem(_ context.Context, key, member string) (int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.direct().zrem(key, member)
}

func (p *PebbleStore) ZRange(_ context.Context, key string) ([]Member, error) {
	z, err := p.direct().zset(key)
	if err != nil {
		return nil, err
	}
	return sortedMembers(z), nil
}

func (p *PebbleStore) ZDrain(_ context.Context, key string) ([]Member, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	z, err := p.direct().zset(key)
	if err != nil {
		return nil, err
	}
	if len(z) == 0 {
		return []Member{}, nil
	}
	if err := p.db.Delete([]byte(kindZset+key), pebble.Sync); err != nil {
		return nil, err
	}
	return sortedMembers(z), nil
}

// CreateIndex is a no-op: Search scans the key space.
func (p *PebbleStore) CreateIndex(context.Context, search.Index) error { return nil }

func (p *PebbleStore) Search(ctx context.Context, ix search.Index, expr string) ([]map[string]string, error) {
	return scanSearch(ctx, p, ix, expr)
}

// upperBound returns the smallest key greater than every key with prefix b.
func upperBound(b []byte) []byte {
	end := make([]byte, len(b))
	copy(end, b)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}

func dedupSorted(ss []string) []string {
	if len(ss) < 2 {
		return ss
	}
	out := ss[:1]
	for _, s := range ss[1:] {
		if s != out[len(out)-1] {
			out = append(out, s)
		}
	}
	return out
}
