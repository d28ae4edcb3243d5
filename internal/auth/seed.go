package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
)

// seedPasswordBytes is the number of random bytes for the seed admin password.
const seedPasswordBytes = 16

// SeedUsername is the account created on first boot.
const SeedUsername = "admin"

// SeedAdmin creates the initial admin account on first boot if no users
// exist. The generated password is logged once at warn level and must be
// changed immediately. Returns the password, or "" if seeding was skipped.
func SeedAdmin(ctx context.Context, store *Store, logger *slog.Logger) (string, error) {
	count, err := store.CountUsers(ctx)
	if err != nil {
		return "", fmt.Errorf("checking user count: %w", err)
	}

	if count > 0 {
		logger.Info("users exist, skipping admin seed")
		return "", nil
	}

	passwordBytes := make([]byte, seedPasswordBytes)
	if _, err := rand.Read(passwordBytes); err != nil { //nolint:govet // shadow: err re-declared in nested scope
		return "", fmt.Errorf("generating seed password: %w", err)
	}
	password := hex.EncodeToString(passwordBytes)

	if _, err := store.CreateUser(ctx, NewUser{
		Username:    SeedUsername,
		Password:    password,
		Role:        RoleAdmin,
		DisplayName: "Administrator",
	}, SystemActor); err != nil {
		return "", fmt.Errorf("creating seed admin: %w", err)
	}

	logger.Warn("seed admin account created",
		"username", SeedUsername,
		"password", password,
		"action_required", "change this password immediately",
	)

	return password, nil
}
