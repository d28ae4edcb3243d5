package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nerrad567/gallery-core/internal/infrastructure/database"
)

const testSecret = "test-secret-for-development-only-0123456789"

// freePort asks the kernel for an unused TCP port.
func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("finding free port: %v", err)
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

// TestRun_InvalidConfig verifies run fails with invalid config path.
func TestRun_InvalidConfig(t *testing.T) {
	t.Setenv("GALLERY_CONFIG", "/nonexistent/path/config.yaml")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := run(ctx); err == nil {
		t.Fatal("run() should fail with invalid config path")
	}
}

// TestRun_MissingDatabasePath verifies run fails when database path is empty.
func TestRun_MissingDatabasePath(t *testing.T) {
	t.Setenv("GALLERY_CONFIG", writeConfig(t, fmt.Sprintf(`
database:
  path: ""
session:
  secret: %q
`, testSecret)))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := run(ctx); err == nil {
		t.Fatal("run() should fail with empty database path")
	}
}

// TestRun_RedisStoreRequiresRedis verifies the config cross-check is enforced at startup.
func TestRun_RedisStoreRequiresRedis(t *testing.T) {
	t.Setenv("GALLERY_CONFIG", writeConfig(t, fmt.Sprintf(`
session:
  secret: %q
  store: redis
redis:
  enabled: false
`, testSecret)))

	if err := run(context.Background()); err == nil {
		t.Fatal("run() should fail when the redis session store has no redis")
	}
}

// TestRun_StartsAndStops boots the server with every integration disabled,
// waits for /health and then shuts down through context cancellation.
func TestRun_StartsAndStops(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "gallery.db")
	port := freePort(t)

	t.Setenv("GALLERY_CONFIG", writeConfig(t, fmt.Sprintf(`
database:
  path: %q
media:
  root: %q
api:
  host: 127.0.0.1
  port: %d
session:
  secret: %q
logging:
  level: error
  format: text
`, dbPath, filepath.Join(dir, "media"), port, testSecret)))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- run(ctx) }()

	url := fmt.Sprintf("http://127.0.0.1:%d/health", port)
	deadline := time.Now().Add(10 * time.Second)
	for {
		resp, err := http.Get(url) //nolint:gosec,noctx // test-local URL
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				t.Fatalf("health status = %d, want 200", resp.StatusCode)
			}
			break
		}
		select {
		case runErr := <-errCh:
			t.Fatalf("run() exited early: %v", runErr)
		default:
		}
		if time.Now().After(deadline) {
			t.Fatalf("server did not become healthy: %v", err)
		}
		time.Sleep(50 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("run() = %v, want nil on shutdown", err)
		}
	case <-time.After(15 * time.Second):
		t.Fatal("run() did not return after cancellation")
	}

	if _, err := os.Stat(filepath.Join(dir, "media")); err != nil {
		t.Errorf("media root not created: %v", err)
	}

	db, err := database.Open(database.Config{Path: dbPath, BusyTimeout: 5})
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	var admins int
	if err := db.QueryRow(`SELECT COUNT(*) FROM users WHERE role = 'admin'`).Scan(&admins); err != nil {
		t.Fatal(err)
	}
	if admins != 1 {
		t.Errorf("admins after first boot = %d, want 1 (seeded)", admins)
	}
}

// TestGetConfigPath_Default verifies default config path.
func TestGetConfigPath_Default(t *testing.T) {
	t.Setenv("GALLERY_CONFIG", "")

	if path := getConfigPath(); path != defaultConfigPath {
		t.Errorf("getConfigPath() = %q, want %q", path, defaultConfigPath)
	}
}

// TestGetConfigPath_EnvOverride verifies environment variable override.
func TestGetConfigPath_EnvOverride(t *testing.T) {
	expected := "/custom/path/config.yaml"
	t.Setenv("GALLERY_CONFIG", expected)

	if path := getConfigPath(); path != expected {
		t.Errorf("getConfigPath() = %q, want %q", path, expected)
	}
}
