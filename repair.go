package main

import (
	"context"
	"fmt"
	"os"

	flag "github.com/spf13/pflag"

	"github.com/stevemurr/grocery-chat-server/service"
)

// runRepair drops dangling owner-index entries and re-indexes owned records
// that are missing from their owner's index.
func runRepair(args []string, globals GlobalFlags) {
	fs := flag.NewFlagSet("repair", flag.ExitOnError)
	collections := fs.StringSlice("collection", []string{service.Chats, service.Profiles}, "Owned collection to repair (repeatable)")
	backend := fs.String("backend", "", "Store backend: json, sqlite, pebble, redis, memory")
	dataDir := fs.String("data-dir", "", "Directory for file-based backends")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: grocery-chat-server repair [options]

Description:
  Reconcile the per-user indexes with the records they point to. Entries
  whose record is gone or owned by someone else are removed; records that
  are not in their owner's index are added back.

  Run it while the server is stopped, or accept that concurrent writes may
  be reported as repairs.

Options:
`)
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
Examples:
  grocery-chat-server repair
  grocery-chat-server repair --collection chats

`)
	}

	if err := fs.Parse(args); err != nil {
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

	failed := false
	for _, c := range *collections {
		report, err := a.engine.Repair(ctx, c)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: repair %s: %v\n", c, err)
			failed = true
			continue
		}
		if !globals.Quiet {
			fmt.Printf("%s: removed %d dangling entries, added %d missing entries\n", c, report.Removed, report.Added)
		}
	}
	if failed {
		a.Close()
		os.Exit(ExitStore)
	}
}
