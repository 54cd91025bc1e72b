package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stevemurr/grocery-chat-server/config"
)

func envMap(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func TestDefaults(t *testing.T) {
	cfg := config.DefaultConfig()
	assert.Equal(t, "0.0.0.0:8080", cfg.Server.Addr())
	assert.Equal(t, "json", cfg.Store.Backend)
	assert.Equal(t, "localhost:6379", cfg.Store.Redis.Addr())
	assert.Equal(t, 24*time.Hour, cfg.Session.TTL)
	assert.Equal(t, 5, cfg.RateLimit.MaxPerDay)

	// No secret by default.
	assert.Error(t, cfg.Validate())
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: "9090"
store:
  backend: redis
  redis:
    host: cache
    db: 2
session:
  secret: 0123456789abcdef
  ttl: 2h
rate_limit:
  enabled: true
`), 0o644))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, "redis", cfg.Store.Backend)
	assert.Equal(t, "cache:6379", cfg.Store.Redis.Addr())
	assert.Equal(t, 2, cfg.Store.Redis.DB)
	assert.Equal(t, 2*time.Hour, cfg.Session.TTL)
	assert.True(t, cfg.RateLimit.Enabled)
	assert.Equal(t, 5, cfg.RateLimit.MaxPerDay)
	assert.NoError(t, cfg.Validate())
}

func TestLoadMissingFile(t *testing.T) {
	cfg, err := config.Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, config.DefaultConfig(), cfg)
}

func TestLoadInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [unterminated"), 0o644))
	_, err := config.Load(path)
	assert.Error(t, err)
}

func TestApplyEnv(t *testing.T) {
	cfg := config.DefaultConfig()
	err := cfg.ApplyEnv(envMap(map[string]string{
		"PORT":            "3000",
		"ALLOWED_ORIGINS": "https://a.example, https://b.example,",
		"STORE_BACKEND":   "sqlite",
		"REDIS_DB":        "3",
		"AUTH_SECRET":     "a-very-long-secret",
		"LLM_BASE_URL":    "http://llm.local/v1",
		"LOG_JSON":        "true",
		"LOG_LEVEL":       "",
	}))
	require.NoError(t, err)
	assert.Equal(t, "3000", cfg.Server.Port)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, "sqlite", cfg.Store.Backend)
	assert.Equal(t, 3, cfg.Store.Redis.DB)
	assert.Equal(t, "http://llm.local/v1", cfg.Assistant.BaseURL)
	assert.True(t, cfg.Log.JSON)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.NoError(t, cfg.Validate())
}

func TestApplyEnvBadValues(t *testing.T) {
	cfg := config.DefaultConfig()
	err := cfg.ApplyEnv(envMap(map[string]string{
		"REDIS_DB": "two",
		"LOG_JSON": "maybe",
	}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "REDIS_DB")
	assert.Contains(t, err.Error(), "LOG_JSON")
}

func TestValidate(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Server.Port = "http"
	cfg.Store.Backend = "mongo"
	cfg.Session.Secret = "short"
	cfg.RateLimit.Enabled = true
	cfg.RateLimit.MaxPerDay = 0
	cfg.Log.Level = "loud"

	err := cfg.Validate()
	require.Error(t, err)
	for _, want := range []string{"server.port", "store.backend", "session.secret", "max_per_day", "log.level"} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestValidateStore(t *testing.T) {
	cfg := config.DefaultConfig()
	// The missing secret only matters to the server.
	assert.NoError(t, cfg.ValidateStore())

	cfg.Store.DataDir = ""
	assert.Error(t, cfg.ValidateStore())
	cfg.Store.Backend = "memory"
	assert.NoError(t, cfg.ValidateStore())
}
