package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	flag "github.com/spf13/pflag"

	"github.com/stevemurr/grocery-chat-server/service"
)

// runSeed imports users from a JSON array of {"email", "password",
// "username"} objects. Existing emails are skipped.
func runSeed(args []string, globals GlobalFlags) {
	fs := flag.NewFlagSet("seed", flag.ExitOnError)
	file := fs.StringP("file", "f", "", "JSON file with the users to import (required)")
	backend := fs.String("backend", "", "Store backend: json, sqlite, pebble, redis, memory")
	dataDir := fs.String("data-dir", "", "Directory for file-based backends")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: grocery-chat-server seed --file <users.json> [options]

Description:
  Create users in bulk. Passwords are hashed before they are stored.

Options:
`)
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
Example users.json:
  [{"email": "user@test.com", "password": "password", "username": "user"}]

`)
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(ExitUsage)
	}
	if *file == "" {
		fs.Usage()
		os.Exit(ExitUsage)
	}

	data, err := os.ReadFile(*file)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(ExitUsage)
	}
	var users []service.NewUser
	if err := json.Unmarshal(data, &users); err != nil {
		fmt.Fprintf(os.Stderr, "Error: parse %s: %v\n", *file, err)
		os.Exit(ExitUsage)
	}

	cfg := loadConfig(globals)
	if *backend != "" {
		cfg.Store.Backend = *backend
	}
	if *dataDir != "" {
		cfg.Store.DataDir = *dataDir
	}
	if err := cfg.ValidateStore(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: invalid configuration:\n%v\n", err)
		os.Exit(ExitConfig)
	}

	ctx := context.Background()
	a, err := newApp(ctx, cfg, newLogger(cfg.Log, globals.Quiet))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(ExitStore)
	}
	defer a.Close()

	created, err := a.users.CreateMany(ctx, users)
	if !globals.Quiet {
		fmt.Printf("Created %d of %d users.\n", len(created), len(users))
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		a.Close()
		os.Exit(ExitStore)
	}
}
