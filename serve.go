package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	flag "github.com/spf13/pflag"

	"github.com/stevemurr/grocery-chat-server/handler"
)

// runServe starts the HTTP server and blocks until SIGINT or SIGTERM.
func runServe(args []string, globals GlobalFlags) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	host := fs.String("host", "", "Listen host (overrides HOST)")
	port := fs.StringP("port", "p", "", "Listen port (overrides PORT)")
	backend := fs.String("backend", "", "Store backend: json, sqlite, pebble, redis, memory")
	dataDir := fs.String("data-dir", "", "Directory for file-based backends")
	rateLimit := fs.Bool("rate-limit", false, "Enable the daily chat rate limit")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: grocery-chat-server serve [options]

Description:
  Serve the grocery chat API. Settings come from the configuration file,
  then the environment, then these flags.

Options:
`)
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
Examples:
  grocery-chat-server serve --backend redis
  AUTH_SECRET=... grocery-chat-server serve -p 3000

`)
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(ExitUsage)
	}

	cfg := loadConfig(globals)
	if *host != "" {
		cfg.Server.Host = *host
	}
	if *port != "" {
		cfg.Server.Port = *port
	}
	if *backend != "" {
		cfg.Store.Backend = *backend
	}
	if *dataDir != "" {
		cfg.Store.DataDir = *dataDir
	}
	if fs.Changed("rate-limit") {
		cfg.RateLimit.Enabled = *rateLimit
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: invalid configuration:\n%v\n", err)
		os.Exit(ExitConfig)
	}

	logger := newLogger(cfg.Log, globals.Quiet)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(ExitStore)
	}
	defer a.Close()

	sessions, err := handler.NewSessions(a.engine, handler.SessionConfig{
		Secret:     cfg.Session.Secret,
		CookieName: cfg.Session.CookieName,
		TTL:        cfg.Session.TTL,
		CacheSize:  cfg.Session.CacheSize,
		Secure:     cfg.Session.Secure,
	}, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(ExitConfig)
	}
	deps := handler.Deps{
		Users:    a.users,
		Profiles: a.profiles,
		Chats:    a.chats,
		Sessions: sessions,
		Metrics:  promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}),
		Logger:   logger,
	}
	if cfg.RateLimit.Enabled {
		deps.Limiter = handler.NewRateLimiter(a.engine, cfg.RateLimit.MaxPerDay)
	}

	h := handler.New(deps)
	srv := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           handler.CORS(handler.LogRequests(h, logger), cfg.Server.AllowedOrigins),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		logger.Info("grocery chat server starting",
			"addr", srv.Addr,
			"store", cfg.Store.Backend,
			"data", cfg.Store.DataDir,
			"rate_limit", cfg.RateLimit.Enabled,
		)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			a.Close()
			os.Exit(ExitServer)
		}
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown", "error", err)
		}
	}
}
