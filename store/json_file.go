package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// JsonFileStore is a MemoryStore that writes a full snapshot to disk after
// every mutation and reloads it on open.
//
// Layout:
//
//	data_dir/
//	  store.json   # {"hashes": {...}, "zsets": {...}}
type JsonFileStore struct {
	*MemoryStore
	saveMu sync.Mutex
	path   string
}

func NewJsonFileStore(dir string) (*JsonFileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	s := &JsonFileStore{MemoryStore: NewMemoryStore(), path: filepath.Join(dir, "store.json")}
	data, err := os.ReadFile(s.path)
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	if len(data) > 0 {
		var snap memorySnapshot
		if err := json.Unmarshal(data, &snap); err != nil {
			return nil, fmt.Errorf("decode %s: %w", s.path, err)
		}
		s.restore(snap)
	}
	return s, nil
}

// save writes the snapshot to a temporary file and renames it over the old one.
func (s *JsonFileStore) save() error {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()
	b, err := json.MarshalIndent(s.snapshot(), "", "  ")
	if err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

func (s *JsonFileStore) Put(ctx context.Context, key string, fields map[string]string) error {
	if err := s.MemoryStore.Put(ctx, key, fields); err != nil {
		return err
	}
	return s.save()
}

func (s *JsonFileStore) Delete(ctx context.Context, key string) (int64, error) {
	n, err := s.MemoryStore.Delete(ctx, key)
	if err != nil || n == 0 {
		return n, err
	}
	return n, s.save()
}

func (s *JsonFileStore) Batch(ctx context.Context, ops []Op) ([]Result, error) {
	results, err := s.MemoryStore.Batch(ctx, ops)
	if err != nil {
		return nil, err
	}
	for _, op := range ops {
		if op.Verb != OpGetAll {
			return results, s.save()
		}
	}
	return results, nil
}

func (s *JsonFileStore) ZAdd(ctx context.Context, key, member string, score float64) error {
	if err := s.MemoryStore.ZAdd(ctx, key, member, score); err != nil {
		return err
	}
	return s.save()
}

func (s *JsonFileStore) ZRem(ctx context.Context, key, member string) (int64, error) {
	n, err := s.MemoryStore.ZRem(ctx, key, member)
	if err != nil || n == 0 {
		return n, err
	}
	return n, s.save()
}

func (s *JsonFileStore) ZDrain(ctx context.Context, key string) ([]Member, error) {
	members, err := s.MemoryStore.ZDrain(ctx, key)
	if err != nil || len(members) == 0 {
		return members, err
	}
	return members, s.save()
}
