// Package main is the entry point for the Amplify ledger migration tool.
// It applies the embedded schema migrations to the configured database.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/prn-tf/amplify-storage/internal/config"
	"github.com/prn-tf/amplify-storage/internal/repository/store"
)

// Version information (set at build time)
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	fs := flag.NewFlagSet("amplify-migrate", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config file")
	fs.Usage = printUsage
	_ = fs.Parse(os.Args[1:])

	if fs.NArg() < 1 {
		printUsage()
		os.Exit(1)
	}

	command := fs.Arg(0)

	switch command {
	case "version":
		fmt.Printf("Amplify Storage Migration Tool\n")
		fmt.Printf("Version: %s\n", Version)
		fmt.Printf("Build Time: %s\n", BuildTime)
		fmt.Printf("Git Commit: %s\n", GitCommit)

	case "up":
		if err := withStore(*configPath, func(ctx context.Context, st *store.Store) error {
			if err := st.Database.Migrate(ctx); err != nil {
				return err
			}
			v, err := st.Database.Version(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("Migrations applied. Current version: %d\n", v)
			return nil
		}); err != nil {
			fail(err)
		}

	case "status":
		if err := withStore(*configPath, func(ctx context.Context, st *store.Store) error {
			v, err := st.Database.Version(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("Driver: %s\n", st.Driver)
			fmt.Printf("Current version: %d\n", v)
			return nil
		}); err != nil {
			fail(err)
		}

	case "help", "-h", "--help":
		printUsage()

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}
}

func withStore(configPath string, fn func(ctx context.Context, st *store.Store) error) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		Level(zerolog.WarnLevel).With().Timestamp().Logger()

	st, err := store.Open(ctx, cfg.Database, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	return fn(ctx, st)
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

func printUsage() {
	fmt.Println(`Amplify Storage Migration Tool

Usage:
  amplify-migrate [-config path] <command>

Commands:
  up          Apply all pending migrations
  status      Show the current migration version
  version     Print version information
  help        Show this help message

Environment Variables:
  AMPLIFY_DATABASE_DRIVER     postgres or sqlite
  AMPLIFY_DATABASE_HOST       PostgreSQL host
  AMPLIFY_DATABASE_PATH       SQLite database file`)
}
