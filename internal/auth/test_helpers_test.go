package auth

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/gallery-core/internal/audit"
	"github.com/nerrad567/gallery-core/internal/infrastructure/database"
	_ "github.com/nerrad567/gallery-core/migrations" // registers the schema
)

const testPassword = "password123"

var testSecret = []byte("test-secret-key-that-is-32-bytes!")

// testDB creates a temporary SQLite database with the schema applied.
func testDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := database.Open(database.Config{
		Path:        filepath.Join(t.TempDir(), "auth.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup

	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("migrating test db: %v", err)
	}
	return db.DB
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// recordingSink collects published audit entries.
type recordingSink struct {
	mu      sync.Mutex
	entries []audit.Entry
}

func (s *recordingSink) Publish(_ context.Context, e audit.Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, e)
}

func (s *recordingSink) actions() []audit.Action {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]audit.Action, len(s.entries))
	for i, e := range s.entries {
		out[i] = e.Action
	}
	return out
}

type testEnv struct {
	db    *sql.DB
	store *Store
	sink  *recordingSink
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := testDB(t)
	sink := &recordingSink{}
	return &testEnv{
		db:   db,
		sink: sink,
		store: NewStore(StoreDeps{
			DB:     db,
			Hasher: NewPasswordHasher(cheapParams),
			Sink:   sink,
			Logger: discardLogger(),
		}),
	}
}

// createUser creates an active user with testPassword.
func (e *testEnv) createUser(t *testing.T, username string, role Role) *User {
	t.Helper()
	u, err := e.store.CreateUser(context.Background(), NewUser{
		Username: username,
		Password: testPassword,
		Role:     role,
	}, SystemActor)
	if err != nil {
		t.Fatalf("creating %s: %v", username, err)
	}
	return u
}

// fakeSleeper records requested delays instead of sleeping.
type fakeSleeper struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (f *fakeSleeper) sleep(_ context.Context, d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.delays = append(f.delays, d)
}

type countingRecorder struct {
	mu       sync.Mutex
	outcomes []string
}

func (c *countingRecorder) RecordLoginAttempt(outcome string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.outcomes = append(c.outcomes, outcome)
}

func (e *testEnv) newManager(t *testing.T) (*Manager, *fakeSleeper, *countingRecorder) {
	t.Helper()
	sleeper := &fakeSleeper{}
	rec := &countingRecorder{}
	m := NewManager(ManagerConfig{
		Users:        e.store,
		Sessions:     NewMemoryStore(),
		Tokens:       NewTokenCodec(testSecret),
		MaxAge:       time.Hour,
		FailureDelay: time.Second,
		Logger:       discardLogger(),
		Telemetry:    rec,
	})
	m.sleep = sleeper.sleep
	return m, sleeper, rec
}

func ptr[T any](v T) *T { return &v }
