// gallery-admin is the operator tool for a gallery installation.
//
// Usage:
//
//	gallery-admin setup [-config path | -db path]
//	gallery-admin hash-password
//	gallery-admin migrate [-config path | -db path] status|up|down
//
// setup and migrate work on the database directly and can run while the
// server is stopped, which is how the first admin is created on a fresh
// install without going through the seeded account.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/nerrad567/gallery-core/migrations"

	"github.com/nerrad567/gallery-core/internal/infrastructure/config"
	"github.com/nerrad567/gallery-core/internal/infrastructure/database"
)

var version = "dev"

const defaultConfigPath = "configs/config.yaml"

var errUsage = errors.New("usage")

const usage = `usage: gallery-admin <command> [flags]

commands:
  setup          create an admin account interactively
  hash-password  print the argon2id hash of a password
  migrate        status|up|down

flags for setup and migrate:
  -config path   configuration file (default $GALLERY_CONFIG or configs/config.yaml)
  -db path       database file, overrides the configured path
`

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:], os.Stdin, os.Stdout); err != nil {
		if errors.Is(err, errUsage) {
			fmt.Fprint(os.Stderr, usage)
			os.Exit(2)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout io.Writer) error {
	if len(args) == 0 {
		return errUsage
	}

	cmd, rest := args[0], args[1:]
	switch cmd {
	case "setup":
		db, _, err := openDatabase(ctx, cmd, rest)
		if err != nil {
			return err
		}
		defer db.Close()
		return setup(ctx, db, newPrompter(stdin, stdout))

	case "hash-password":
		return hashPassword(newPrompter(stdin, stdout))

	case "migrate":
		db, fs, err := openDatabase(ctx, cmd, rest)
		if err != nil {
			return err
		}
		defer db.Close()
		return migrate(ctx, db, fs.Args(), stdout)

	case "help", "-h", "--help":
		fmt.Fprint(stdout, usage)
		return nil
	}

	return fmt.Errorf("%w: unknown command %q", errUsage, cmd)
}

// openDatabase parses the -config and -db flags and opens the database
// they point at. Only the database section of the config file is used, so
// the CLI does not need the session secret.
func openDatabase(ctx context.Context, name string, args []string) (*database.DB, *flag.FlagSet, error) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	configPath := fs.String("config", getConfigPath(), "configuration file")
	dbPath := fs.String("db", "", "database file")
	if err := fs.Parse(args); err != nil {
		return nil, nil, fmt.Errorf("%w: %w", errUsage, err)
	}

	dbCfg := database.Config{Path: *dbPath, WALMode: true, BusyTimeout: 5}
	if *dbPath == "" {
		cfg, err := config.LoadDatabase(*configPath)
		if err != nil {
			return nil, nil, fmt.Errorf("loading config: %w", err)
		}
		dbCfg = database.Config{
			Path:        cfg.Path,
			WALMode:     cfg.WALMode,
			BusyTimeout: cfg.BusyTimeout,
		}
	}

	db, err := database.Open(dbCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.HealthCheck(ctx); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("checking database: %w", err)
	}
	return db, fs, nil
}

func getConfigPath() string {
	if path := os.Getenv("GALLERY_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}
