/*
Package config loads the server configuration.

Sources, highest precedence first:
 1. Command-line flags (applied by main)
 2. Environment variables
 3. YAML configuration file
 4. Defaults

Example configuration file:

	server:
	  host: 0.0.0.0
	  port: "8080"
	  allowed_origins: ["*"]
	store:
	  backend: redis
	  data_dir: ./data
	  redis:
	    host: localhost
	    port: "6379"
	session:
	  secret: change-me
	  ttl: 24h
	rate_limit:
	  enabled: true
	  max_per_day: 5
	assistant:
	  base_url: https://api.openai.com/v1
	  model: gpt-4o-mini
	log:
	  level: info
	  json: false

Environment variables:
  - HOST, PORT, ALLOWED_ORIGINS (comma separated)
  - DATA_DIR, STORE_BACKEND
  - REDIS_HOST, REDIS_PORT, REDIS_USERNAME, REDIS_PASSWORD, REDIS_DB
  - AUTH_SECRET
  - RATE_LIMIT_ENABLED, RATE_LIMIT_MAX_PER_DAY
  - LLM_BASE_URL, LLM_MODEL, LLM_API_KEY
  - LOG_LEVEL, LOG_JSON
  - CONFIG_FILE: path to the YAML file
*/
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Store     StoreConfig     `yaml:"store"`
	Session   SessionConfig   `yaml:"session"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Assistant AssistantConfig `yaml:"assistant"`
	Log       LogConfig       `yaml:"log"`
}

type ServerConfig struct {
	Host           string   `yaml:"host"`
	Port           string   `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// Addr returns host:port.
func (s ServerConfig) Addr() string {
	return net.JoinHostPort(s.Host, s.Port)
}

type StoreConfig struct {
	Backend string      `yaml:"backend"`
	DataDir string      `yaml:"data_dir"`
	Redis   RedisConfig `yaml:"redis"`
}

type RedisConfig struct {
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// Addr returns host:port.
func (r RedisConfig) Addr() string {
	return net.JoinHostPort(r.Host, r.Port)
}

type SessionConfig struct {
	Secret     string        `yaml:"secret"`
	CookieName string        `yaml:"cookie_name"`
	TTL        time.Duration `yaml:"ttl"`
	CacheSize  int           `yaml:"cache_size"`
	Secure     bool          `yaml:"secure"`
}

type RateLimitConfig struct {
	Enabled   bool `yaml:"enabled"`
	MaxPerDay int  `yaml:"max_per_day"`
}

// AssistantConfig configures the language model. An empty BaseURL disables
// replies.
type AssistantConfig struct {
	BaseURL string        `yaml:"base_url"`
	Model   string        `yaml:"model"`
	APIKey  string        `yaml:"api_key"`
	Timeout time.Duration `yaml:"timeout"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// DefaultConfig returns the configuration used when nothing is set.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:           "0.0.0.0",
			Port:           "8080",
			AllowedOrigins: []string{"*"},
		},
		Store: StoreConfig{
			Backend: "json",
			DataDir: "./data",
			Redis:   RedisConfig{Host: "localhost", Port: "6379"},
		},
		Session: SessionConfig{
			CookieName: "grocery_session",
			TTL:        24 * time.Hour,
			CacheSize:  1024,
		},
		RateLimit: RateLimitConfig{
			Enabled:   false,
			MaxPerDay: 5,
		},
		Assistant: AssistantConfig{
			Model:   "gpt-4o-mini",
			Timeout: 60 * time.Second,
		},
		Log: LogConfig{Level: "info"},
	}
}

// Load reads path on top of the defaults. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// ApplyEnv overrides fields from environment variables looked up with
// lookup, typically os.LookupEnv.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	var errs []error
	boolean := func(key string, dst *bool) {
		if v, ok := lookup(key); ok && v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = b
		}
	}
	integer := func(key string, dst *int) {
		if v, ok := lookup(key); ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}

	str("HOST", &c.Server.Host)
	str("PORT", &c.Server.Port)
	if v, ok := lookup("ALLOWED_ORIGINS"); ok && v != "" {
		c.Server.AllowedOrigins = splitList(v)
	}
	str("DATA_DIR", &c.Store.DataDir)
	str("STORE_BACKEND", &c.Store.Backend)
	str("REDIS_HOST", &c.Store.Redis.Host)
	str("REDIS_PORT", &c.Store.Redis.Port)
	str("REDIS_USERNAME", &c.Store.Redis.Username)
	str("REDIS_PASSWORD", &c.Store.Redis.Password)
	integer("REDIS_DB", &c.Store.Redis.DB)
	str("AUTH_SECRET", &c.Session.Secret)
	boolean("RATE_LIMIT_ENABLED", &c.RateLimit.Enabled)
	integer("RATE_LIMIT_MAX_PER_DAY", &c.RateLimit.MaxPerDay)
	str("LLM_BASE_URL", &c.Assistant.BaseURL)
	str("LLM_MODEL", &c.Assistant.Model)
	str("LLM_API_KEY", &c.Assistant.APIKey)
	str("LOG_LEVEL", &c.Log.Level)
	boolean("LOG_JSON", &c.Log.JSON)
	return errors.Join(errs...)
}

var backends = map[string]bool{"json": true, "sqlite": true, "pebble": true, "redis": true, "memory": true}

// ValidateStore reports invalid store settings only. Commands that do not
// serve HTTP need nothing else.
func (c *Config) ValidateStore() error {
	var errs []error
	if !backends[c.Store.Backend] {
		errs = append(errs, fmt.Errorf("store.backend %q is not one of json, sqlite, pebble, redis, memory", c.Store.Backend))
	}
	if c.Store.Backend != "memory" && c.Store.Backend != "redis" && c.Store.DataDir == "" {
		errs = append(errs, errors.New("store.data_dir is required"))
	}
	return errors.Join(errs...)
}

// Validate reports every invalid setting.
func (c *Config) Validate() error {
	errs := []error{c.ValidateStore()}
	if c.Server.Port == "" {
		errs = append(errs, errors.New("server.port is required"))
	} else if p, err := strconv.Atoi(c.Server.Port); err != nil || p < 0 || p > 65535 {
		errs = append(errs, fmt.Errorf("server.port %q is not a port number", c.Server.Port))
	}
	if len(c.Session.Secret) < 16 {
		errs = append(errs, errors.New("session.secret must be at least 16 characters (AUTH_SECRET)"))
	}
	if c.Session.TTL <= 0 {
		errs = append(errs, errors.New("session.ttl must be positive"))
	}
	if c.RateLimit.Enabled && c.RateLimit.MaxPerDay <= 0 {
		errs = append(errs, errors.New("rate_limit.max_per_day must be positive"))
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level %q is not one of debug, info, warn, error", c.Log.Level))
	}
	return errors.Join(errs...)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
