package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	flag "github.com/spf13/pflag"

	"github.com/stevemurr/grocery-chat-server/config"
)

// Exit codes.
const (
	ExitOK     = 0
	ExitUsage  = 1
	ExitConfig = 2
	ExitStore  = 3
	ExitServer = 4
)

// GlobalFlags are accepted before the subcommand.
type GlobalFlags struct {
	ConfigPath string
	Quiet      bool
}

func env(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	fs := flag.NewFlagSet("grocery-chat-server", flag.ExitOnError)
	fs.SetInterspersed(false)
	var globals GlobalFlags
	fs.StringVarP(&globals.ConfigPath, "config", "c", env("CONFIG_FILE", "config.yaml"), "Path to the YAML configuration file")
	fs.BoolVarP(&globals.Quiet, "quiet", "q", false, "Only print errors")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: grocery-chat-server [global options] <command> [options]

Commands:
  serve     Run the HTTP server (default)
  repair    Reconcile owner indexes with the records they point to
  seed      Import users from a JSON file

Global options:
`)
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
Run 'grocery-chat-server <command> --help' for command options.
`)
	}

	if err := fs.Parse(os.Args[1:]); err != nil {
		os.Exit(ExitUsage)
	}

	cmd, args := "serve", fs.Args()
	if len(args) > 0 {
		cmd, args = args[0], args[1:]
	}

	switch cmd {
	case "serve":
		runServe(args, globals)
	case "repair":
		runRepair(args, globals)
	case "seed":
		runSeed(args, globals)
	case "help":
		fs.Usage()
	default:
		fmt.Fprintf(os.Stderr, "Error: unknown command %q\n\n", cmd)
		fs.Usage()
		os.Exit(ExitUsage)
	}
}

// loadConfig reads the configuration file and applies the environment.
// Flags are applied by each command afterwards.
func loadConfig(globals GlobalFlags) *config.Config {
	cfg, err := config.Load(globals.ConfigPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(ExitConfig)
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		fmt.Fprintf(os.Stderr, "Error: invalid environment: %v\n", err)
		os.Exit(ExitConfig)
	}
	return cfg
}

func newLogger(cfg config.LogConfig, quiet bool) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	if quiet {
		level = slog.LevelError
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.JSON {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}
