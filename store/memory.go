package store

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/stevemurr/grocery-chat-server/search"
)

// MemoryStore keeps everything in memory. Data is lost on restart.
// Safe for concurrent use.
type MemoryStore struct {
	mu     sync.RWMutex
	hashes map[string]map[string]string
	zsets  map[string]map[string]float64
	closed bool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		hashes: make(map[string]map[string]string),
		zsets:  make(map[string]map[string]float64),
	}
}

func (m *MemoryStore) Put(_ context.Context, key string, fields map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	h, ok := m.hashes[key]
	if !ok {
		h = make(map[string]string, len(fields))
		m.hashes[key] = h
	}
	for k, v := range fields {
		h[k] = v
	}
	return nil
}

func (m *MemoryStore) GetAll(_ context.Context, key string) (map[string]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	return copyFields(m.hashes[key]), nil
}

func (m *MemoryStore) Delete(_ context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, ErrClosed
	}
	var n int64
	if _, ok := m.hashes[key]; ok {
		delete(m.hashes, key)
		n = 1
	}
	if _, ok := m.zsets[key]; ok {
		delete(m.zsets, key)
		n = 1
	}
	return n, nil
}

func (m *MemoryStore) Batch(ctx context.Context, ops []Op) ([]Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return runBatch(ctx, m, ops), nil
}

func (m *MemoryStore) Keys(_ context.Context, prefix string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	var out []string
	for k := range m.hashes {
		if strings.HasPrefix(k, prefix) {
			out = append(out, k)
		}
	}
	for k := range m.zsets {
		if strings.HasPrefix(k, prefix) {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return dedupSorted(out), nil
}

func (m *MemoryStore) ZAdd(_ context.Context, key, member string, score float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	z, ok := m.zsets[key]
	if !ok {
		z = make(map[string]float64)
		m.zsets[key] = z
	}
	z[member] = score
	return nil
}

func (m *MemoryStore) ZRem(_ context.Context, key, member string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, ErrClosed
	}
	z, ok := m.zsets[key]
	if !ok {
		return 0, nil
	}
	if _, ok := z[member]; !ok {
		return 0, nil
	}
	delete(z, member)
	if len(z) == 0 {
		delete(m.zsets, key)
	}
	return 1, nil
}

func (m *MemoryStore) ZRange(_ context.Context, key string) ([]Member, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	return sortedMembers(m.zsets[key]), nil
}

func (m *MemoryStore) ZDrain(_ context.Context, key string) ([]Member, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}
	members := sortedMembers(m.zsets[key])
	delete(m.zsets, key)
	return members, nil
}

// CreateIndex is a no-op: Search scans the key space.
func (m *MemoryStore) CreateIndex(context.Context, search.Index) error { return nil }

func (m *MemoryStore) Search(ctx context.Context, ix search.Index, expr string) ([]map[string]string, error) {
	return scanSearch(ctx, m, ix, expr)
}

func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// memorySnapshot is the serialized form of a MemoryStore.
type memorySnapshot struct {
	Hashes map[string]map[string]string  `json:"hashes"`
	Zsets  map[string]map[string]float64 `json:"zsets"`
}

func (m *MemoryStore) snapshot() memorySnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	snap := memorySnapshot{
		Hashes: make(map[string]map[string]string, len(m.hashes)),
		Zsets:  make(map[string]map[string]float64, len(m.zsets)),
	}
	for k, h := range m.hashes {
		snap.Hashes[k] = copyFields(h)
	}
	for k, z := range m.zsets {
		cz := make(map[string]float64, len(z))
		for member, score := range z {
			cz[member] = score
		}
		snap.Zsets[k] = cz
	}
	return snap
}

func (m *MemoryStore) restore(snap memorySnapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if snap.Hashes != nil {
		m.hashes = snap.Hashes
	}
	if snap.Zsets != nil {
		m.zsets = snap.Zsets
	}
}

func sortedMembers(z map[string]float64) []Member {
	members := make([]Member, 0, len(z))
	for member, score := range z {
		members = append(members, Member{Member: member, Score: score})
	}
	sortMembers(members)
	return members
}

// sortMembers orders by ascending score, then member, matching the order a
// Redis sorted set uses.
func sortMembers(members []Member) {
	sort.Slice(members, func(i, j int) bool {
		if members[i].Score != members[j].Score {
			return members[i].Score < members[j].Score
		}
		return members[i].Member < members[j].Member
	})
}

// scanSearch evaluates expr against every hash under ix.Prefix. Backends
// without a search engine use it.
func scanSearch(ctx context.Context, s Store, ix search.Index, expr string) ([]map[string]string, error) {
	q, err := search.Parse(expr)
	if err != nil {
		return nil, err
	}
	ks, err := s.Keys(ctx, ix.Prefix)
	if err != nil {
		return nil, err
	}
	ops := make([]Op, len(ks))
	for i, k := range ks {
		ops[i] = GetAllOp(k)
	}
	results, err := s.Batch(ctx, ops)
	if err != nil {
		return nil, err
	}
	var docs []map[string]string
	for _, r := range results {
		if r.Err != nil {
			return nil, r.Err
		}
		if len(r.Fields) == 0 || !q.Match(r.Fields) {
			continue
		}
		docs = append(docs, r.Fields)
		if len(docs) == search.MaxResults {
			break
		}
	}
	return docs, nil
}
