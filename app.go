package main

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/crypto/bcrypt"

	"github.com/stevemurr/grocery-chat-server/assistant"
	"github.com/stevemurr/grocery-chat-server/config"
	"github.com/stevemurr/grocery-chat-server/handler"
	"github.com/stevemurr/grocery-chat-server/record"
	"github.com/stevemurr/grocery-chat-server/service"
	"github.com/stevemurr/grocery-chat-server/store"
)

// app is everything the commands share.
type app struct {
	store    store.Store
	engine   *record.Engine
	users    *service.UserService
	profiles *service.ProfileService
	chats    *service.ChatService
	registry *prometheus.Registry
	logger   *slog.Logger

	closeOnce sync.Once
	closeErr  error
}

func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	raw, err := store.New(ctx, store.Config{
		Backend: cfg.Store.Backend,
		DataDir: cfg.Store.DataDir,
		Redis: store.RedisConfig{
			Addr:     cfg.Store.Redis.Addr(),
			Username: cfg.Store.Redis.Username,
			Password: cfg.Store.Redis.Password,
			DB:       cfg.Store.Redis.DB,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("open store (backend=%s): %w", cfg.Store.Backend, err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	store.RegisterMetrics(reg)
	record.RegisterMetrics(reg)
	handler.RegisterMetrics(reg)
	if ps, ok := raw.(*store.PebbleStore); ok {
		reg.MustRegister(store.NewPebbleCollector(ps.DB()))
	}

	s := store.WithMetrics(raw, cfg.Store.Backend)
	e := record.New(s, logger)

	var a assistant.Assistant = assistant.Disabled{}
	if cfg.Assistant.BaseURL != "" {
		a = assistant.NewOpenAI(cfg.Assistant.APIKey, cfg.Assistant.BaseURL, cfg.Assistant.Model, cfg.Assistant.Timeout, logger)
	} else {
		logger.Warn("no assistant configured, chat replies are disabled")
	}

	profiles := service.NewProfileService(e, logger)
	users := service.NewUserService(e, profiles, service.BcryptHasher{Cost: bcrypt.DefaultCost}, logger)
	chats := service.NewChatService(e, users, a, logger)

	if err := users.EnsureIndex(ctx); err != nil {
		s.Close()
		return nil, fmt.Errorf("create user index: %w", err)
	}

	return &app{
		store:    s,
		engine:   e,
		users:    users,
		profiles: profiles,
		chats:    chats,
		registry: reg,
		logger:   logger,
	}, nil
}

// Close closes the store. It is safe to call more than once.
func (a *app) Close() error {
	a.closeOnce.Do(func() { a.closeErr = a.store.Close() })
	return a.closeErr
}
