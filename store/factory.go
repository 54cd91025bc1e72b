package store

import (
	"context"
	"fmt"
	"path/filepath"
)

// Config selects and configures a backend.
type Config struct {
	Backend string
	DataDir string
	Redis   RedisConfig
}

// New creates a Store based on cfg.Backend.
//
// Supported backends:
//
//	"json"   - snapshot file at DataDir/store.json (default)
//	"sqlite" - SQLite database at DataDir/grocery.db
//	"pebble" - Pebble database in DataDir/pebble
//	"redis"  - Redis server at Redis.Addr (RediSearch needed for Search)
//	"memory" - In-memory (ephemeral, for testing)
func New(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Backend {
	case "json", "":
		return NewJsonFileStore(cfg.DataDir)
	case "sqlite":
		return NewSqliteStore(filepath.Join(cfg.DataDir, "grocery.db"))
	case "pebble":
		return NewPebbleStore(filepath.Join(cfg.DataDir, "pebble"))
	case "redis":
		return NewRedisStore(ctx, cfg.Redis)
	case "memory":
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown store backend: %q (supported: json, sqlite, pebble, redis, memory)", cfg.Backend)
	}
}
