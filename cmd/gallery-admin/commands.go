package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/nerrad567/gallery-core/internal/auth"
	"github.com/nerrad567/gallery-core/internal/infrastructure/config"
	"github.com/nerrad567/gallery-core/internal/infrastructure/database"
	"github.com/nerrad567/gallery-core/internal/infrastructure/logging"
)

// hasherParams is swapped for cheaper parameters in tests.
var hasherParams = auth.DefaultArgon2Params

func newLogger() *logging.Logger {
	return logging.New(config.LoggingConfig{Level: "warn", Format: "text", Output: "stderr"}, version)
}

// setup creates an admin account. When active admins already exist the
// operator has to confirm first.
func setup(ctx context.Context, db *database.DB, p *prompter) error {
	if err := db.Migrate(ctx); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	store := auth.NewStore(auth.StoreDeps{
		DB:     db.DB,
		Hasher: auth.NewPasswordHasher(hasherParams),
		Logger: newLogger().Logger,
	})

	admins, err := store.CountActiveByRole(ctx, auth.RoleAdmin)
	if err != nil {
		return fmt.Errorf("counting admins: %w", err)
	}
	if admins > 0 {
		fmt.Fprintf(p.out, "Warning: %d active admin account(s) already exist.\n", admins)
		ok, confirmErr := p.confirm("Create another admin?")
		if confirmErr != nil {
			return confirmErr
		}
		if !ok {
			fmt.Fprintln(p.out, "Aborted.")
			return nil
		}
	}

	username, err := p.line("Username: ")
	if err != nil {
		return err
	}
	displayName, err := p.line("Display name (empty for username): ")
	if err != nil {
		return err
	}
	password, err := p.newPassword()
	if err != nil {
		return err
	}

	u, err := store.CreateUser(ctx, auth.NewUser{
		Username:    username,
		Password:    password,
		Role:        auth.RoleAdmin,
		DisplayName: displayName,
	}, auth.SetupActor)
	if err != nil {
		return fmt.Errorf("creating admin: %w", err)
	}

	fmt.Fprintf(p.out, "Admin %q created (id %s).\n", u.Username, u.ID)
	return nil
}

// hashPassword prints the hash the server would store for a password.
func hashPassword(p *prompter) error {
	password, err := p.newPassword()
	if err != nil {
		return err
	}
	if err := auth.ValidatePassword(password); err != nil {
		return err
	}

	hash, err := auth.NewPasswordHasher(hasherParams).Hash(password)
	if err != nil {
		return fmt.Errorf("hashing password: %w", err)
	}
	fmt.Fprintln(p.out, hash)
	return nil
}

func migrate(ctx context.Context, db *database.DB, args []string, out io.Writer) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: migrate needs one of status, up, down", errUsage)
	}

	switch args[0] {
	case "up":
		if err := db.Migrate(ctx); err != nil {
			return err
		}
		fmt.Fprintln(out, "migrations applied")
		return nil

	case "down":
		if err := db.MigrateDown(ctx); err != nil {
			return err
		}
		fmt.Fprintln(out, "latest migration rolled back")
		return nil

	case "status":
		applied, pending, err := db.GetMigrationStatus(ctx)
		if err != nil {
			return err
		}
		for _, m := range applied {
			fmt.Fprintf(out, "applied  %s  %s\n", m.Version, m.AppliedAt.Format(time.RFC3339))
		}
		for _, m := range pending {
			fmt.Fprintf(out, "pending  %s  %s\n", m.Version, m.Name)
		}
		if len(applied) == 0 && len(pending) == 0 {
			fmt.Fprintln(out, "no migrations")
		}
		return nil
	}

	return fmt.Errorf("%w: unknown migrate action %q", errUsage, args[0])
}
