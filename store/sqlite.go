package store

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"sync"

	"github.com/stevemurr/grocery-chat-server/search"
)

// SqliteStore stores hashes and sorted sets in a single SQLite database.
//
// Tables:
//
//	hashes(key, field, value)  PRIMARY KEY (key, field)
//	zsets(key, member, score)  PRIMARY KEY (key, member)
type SqliteStore struct {
	mu sync.RWMutex
	db *sql.DB
}

func NewSqliteStore(dbPath string) (*SqliteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS hashes (
		key TEXT NOT NULL,
		field TEXT NOT NULL,
		value TEXT NOT NULL,
		PRIMARY KEY (key, field)
	)`); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS zsets (
		key TEXT NOT NULL,
		member TEXT NOT NULL,
		score REAL NOT NULL,
		PRIMARY KEY (key, member)
	)`); err != nil {
		db.Close()
		return nil, err
	}
	return &SqliteStore{db: db}, nil
}

func (s *SqliteStore) Close() error {
	return s.db.Close()
}

func (s *SqliteStore) Put(ctx context.Context, key string, fields map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := putFields(ctx, tx, key, fields); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SqliteStore) GetAll(ctx context.Context, key string) (map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getFields(ctx, s.db, key)
}

func (s *SqliteStore) Delete(ctx context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()
	removed, err := deleteKey(ctx, tx, key)
	if err != nil {
		return 0, err
	}
	return removed, tx.Commit()
}

// Batch runs ops in one transaction. A failed op is reported in its Result
// and does not undo the others.
func (s *SqliteStore) Batch(ctx context.Context, ops []Op) ([]Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	results := make([]Result, len(ops))
	for i, op := range ops {
		var r Result
		switch op.Verb {
		case OpGetAll:
			r.Fields, r.Err = getFields(ctx, tx, op.Key)
		case OpPut:
			r.Err = putFields(ctx, tx, op.Key, op.Fields)
		case OpDelete:
			r.Count, r.Err = deleteKey(ctx, tx, op.Key)
		case OpZAdd:
			r.Err = zadd(ctx, tx, op.Key, op.Member, op.Score)
		case OpZRem:
			r.Count, r.Err = zrem(ctx, tx, op.Key, op.Member)
		default:
			r.Err = errors.New("store: unknown batch verb " + op.Verb.String())
		}
		results[i] = r
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return results, nil
}

func (s *SqliteStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.QueryContext(ctx,
		`SELECT key FROM hashes WHERE substr(key, 1, length(?1)) = ?1
		 UNION
		 SELECT key FROM zsets WHERE substr(key, 1, length(?1)) = ?1
		 ORDER BY key`,
		prefix,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		out = append(out, key)
	}
	return out, rows.Err()
}

func (s *SqliteStore) ZAdd(ctx context.Context, key, member string, score float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return zadd(ctx, s.db, key, member, score)
}

func (s *SqliteStore) ZRem(ctx context.Context, key, member string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return zrem(ctx, s.db, key, member)
}

func (s *SqliteStore) ZRange(ctx context.Context, key string) ([]Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return queryMembers(ctx, s.db, key)
}

func (s *SqliteStore) ZDrain(ctx context.Context, key string) ([]Member, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()
	members, err := queryMembers(ctx, tx, key)
	if err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM zsets WHERE key = ?", key); err != nil {
		return nil, err
	}
	return members, tx.Commit()
}

// CreateIndex is a no-op: Search scans the key space.
func (s *SqliteStore) CreateIndex(context.Context, search.Index) error { return nil }

func (s *SqliteStore) Search(ctx context.Context, ix search.Index, expr string) ([]map[string]string, error) {
	return scanSearch(ctx, s, ix, expr)
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// conn is a *sql.DB or a *sql.Tx.
type conn interface {
	querier
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func putFields(ctx context.Context, c conn, key string, fields map[string]string) error {
	for field, value := range fields {
		if _, err := c.ExecContext(ctx,
			`INSERT INTO hashes (key, field, value) VALUES (?, ?, ?)
			 ON CONFLICT(key, field) DO UPDATE SET value = excluded.value`,
			key, field, value,
		); err != nil {
			return err
		}
	}
	return nil
}

func getFields(ctx context.Context, q querier, key string) (map[string]string, error) {
	rows, err := q.QueryContext(ctx, "SELECT field, value FROM hashes WHERE key = ?", key)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	result := make(map[string]string)
	for rows.Next() {
		var field, value string
		if err := rows.Scan(&field, &value); err != nil {
			return nil, err
		}
		result[field] = value
	}
	return result, rows.Err()
}

func deleteKey(ctx context.Context, c conn, key string) (int64, error) {
	var removed int64
	for _, stmt := range []string{
		"DELETE FROM hashes WHERE key = ?",
		"DELETE FROM zsets WHERE key = ?",
	} {
		res, err := c.ExecContext(ctx, stmt, key)
		if err != nil {
			return 0, err
		}
		if n, _ := res.RowsAffected(); n > 0 {
			removed = 1
		}
	}
	return removed, nil
}

func zadd(ctx context.Context, c conn, key, member string, score float64) error {
	_, err := c.ExecContext(ctx,
		`INSERT INTO zsets (key, member, score) VALUES (?, ?, ?)
		 ON CONFLICT(key, member) DO UPDATE SET score = excluded.score`,
		key, member, score,
	)
	return err
}

func zrem(ctx context.Context, c conn, key, member string) (int64, error) {
	res, err := c.ExecContext(ctx, "DELETE FROM zsets WHERE key = ? AND member = ?", key, member)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func queryMembers(ctx context.Context, q querier, key string) ([]Member, error) {
	rows, err := q.QueryContext(ctx,
		"SELECT member, score FROM zsets WHERE key = ? ORDER BY score, member", key)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var members []Member
	for rows.Next() {
		var m Member
		if err := rows.Scan(&m.Member, &m.Score); err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	return members, rows.Err()
}
