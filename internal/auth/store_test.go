package auth

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/gallery-core/internal/audit"
)

func TestCreateUser(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	u, err := env.store.CreateUser(ctx, NewUser{Username: "Alice", Password: testPassword, Role: RoleAdmin}, "setup-script")
	if err != nil {
		t.Fatalf("CreateUser() error = %v", err)
	}

	if u.Username != "alice" {
		t.Errorf("Username = %q, want lowercased alice", u.Username)
	}
	if u.DisplayName != "alice" {
		t.Errorf("DisplayName = %q, want default alice", u.DisplayName)
	}
	if !u.IsActive || u.Role != RoleAdmin || u.CreatedBy != "setup-script" {
		t.Errorf("unexpected user: %+v", u)
	}
	if !strings.HasPrefix(u.ID, "usr-") {
		t.Errorf("ID = %q, want usr- prefix", u.ID)
	}

	got := env.sink.actions()
	if len(got) != 1 || got[0] != audit.ActionUserCreated {
		t.Errorf("audit actions = %v, want [user_created]", got)
	}

	var hash string
	if err := env.db.QueryRow(`SELECT password_hash FROM users WHERE id = ?`, u.ID).Scan(&hash); err != nil {
		t.Fatalf("reading hash: %v", err)
	}
	if !strings.HasPrefix(hash, "$argon2id$") {
		t.Errorf("stored hash = %q, want argon2id", hash)
	}
}

func TestCreateUser_Validation(t *testing.T) {
	env := newTestEnv(t)
	env.createUser(t, "taken", RoleUser)

	tests := []struct {
		name     string
		in       NewUser
		wantCode string
	}{
		{"short username", NewUser{Username: "ab", Password: testPassword, Role: RoleUser}, CodeUsernameLength},
		{"long username", NewUser{Username: strings.Repeat("a", 31), Password: testPassword, Role: RoleUser}, CodeUsernameLength},
		{"bad charset", NewUser{Username: "bob/smith", Password: testPassword, Role: RoleUser}, CodeUsernameCharset},
		{"short password", NewUser{Username: "bob", Password: "short", Role: RoleUser}, CodePasswordLength},
		{"short multi-byte password", NewUser{Username: "bob", Password: "äöüß", Role: RoleUser}, CodePasswordLength},
		{"long password", NewUser{Username: "bob", Password: strings.Repeat("a", 1025), Role: RoleUser}, CodePasswordLength},
		{"bad role", NewUser{Username: "bob", Password: testPassword, Role: "owner"}, CodeRoleInvalid},
		{"taken exact", NewUser{Username: "taken", Password: testPassword, Role: RoleUser}, CodeUsernameTaken},
		{"taken other case", NewUser{Username: "TaKeN", Password: testPassword, Role: RoleUser}, CodeUsernameTaken},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.store.CreateUser(context.Background(), tt.in, SystemActor)
			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("error = %v, want ValidationError", err)
			}
			if ve.Code != tt.wantCode {
				t.Errorf("Code = %q, want %q", ve.Code, tt.wantCode)
			}
			if !errors.Is(err, ErrValidation) {
				t.Error("error should match ErrValidation")
			}
		})
	}
}

func TestGetByUsername_CaseInsensitive(t *testing.T) {
	env := newTestEnv(t)
	created := env.createUser(t, "Mixed.Case", RoleUser)
	ctx := context.Background()

	for _, name := range []string{"mixed.case", "MIXED.CASE", "Mixed.Case", " mixed.CASE "} {
		u, err := env.store.GetByUsername(ctx, name)
		if err != nil {
			t.Fatalf("GetByUsername(%q) error = %v", name, err)
		}
		if u.ID != created.ID {
			t.Errorf("GetByUsername(%q) = %s, want %s", name, u.ID, created.ID)
		}
	}

	if _, err := env.store.GetByUsername(ctx, "nobody"); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("unknown username error = %v, want ErrUserNotFound", err)
	}
	if _, err := env.store.GetByID(ctx, "usr-missing"); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("unknown id error = %v, want ErrUserNotFound", err)
	}
}

func TestUpdateUser_RenameUniqueness(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.createUser(t, "alice", RoleAdmin)
	bob := env.createUser(t, "bob", RoleUser)

	_, err := env.store.UpdateUser(ctx, bob.ID, UserPatch{Username: ptr("ALICE")}, SystemActor)
	var ve *ValidationError
	if !errors.As(err, &ve) || ve.Code != CodeUsernameTaken {
		t.Fatalf("rename to existing name error = %v, want username_taken", err)
	}

	// Renaming to a case variant of one's own name is a no-op.
	u, err := env.store.UpdateUser(ctx, bob.ID, UserPatch{Username: ptr("BOB")}, SystemActor)
	if err != nil {
		t.Fatalf("UpdateUser() error = %v", err)
	}
	if u.Username != "bob" {
		t.Errorf("Username = %q", u.Username)
	}

	u, err = env.store.UpdateUser(ctx, bob.ID, UserPatch{Username: ptr("Robert")}, SystemActor)
	if err != nil {
		t.Fatalf("UpdateUser() error = %v", err)
	}
	if u.Username != "robert" {
		t.Errorf("Username = %q, want robert", u.Username)
	}
	if _, err := env.store.GetByUsername(ctx, "ROBERT"); err != nil {
		t.Errorf("renamed user not found case-insensitively: %v", err)
	}
}

func TestUpdateUser_DiffAudit(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	admin := env.createUser(t, "alice", RoleAdmin)
	bob := env.createUser(t, "bob", RoleUser)

	_, err := env.store.UpdateUser(ctx, bob.ID, UserPatch{Role: ptr(RoleUploader), DisplayName: ptr("Bob B")}, admin.ID)
	if err != nil {
		t.Fatalf("UpdateUser() error = %v", err)
	}

	entries, err := audit.NewRepository(env.db, nil).Query(ctx, 1)
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(entries) != 1 || entries[0].Action != audit.ActionUserUpdated {
		t.Fatalf("latest audit entry = %+v", entries)
	}
	if entries[0].ActingUsername != "alice" || entries[0].TargetUsername != "bob" {
		t.Errorf("entry actor/target = %q/%q", entries[0].ActingUsername, entries[0].TargetUsername)
	}

	var diff map[string]struct {
		From any `json:"from"`
		To   any `json:"to"`
	}
	if err := json.Unmarshal([]byte(entries[0].Details), &diff); err != nil {
		t.Fatalf("details not JSON: %v", err)
	}
	if diff["role"].From != "user" || diff["role"].To != "uploader" {
		t.Errorf("role diff = %+v", diff["role"])
	}
	if _, ok := diff["displayName"]; !ok {
		t.Error("displayName missing from diff")
	}

	// Unchanged values produce no write and no audit entry.
	before := len(env.sink.actions())
	if _, err := env.store.UpdateUser(ctx, bob.ID, UserPatch{Role: ptr(RoleUploader)}, admin.ID); err != nil {
		t.Fatalf("UpdateUser() error = %v", err)
	}
	if after := len(env.sink.actions()); after != before {
		t.Errorf("no-op update added %d audit entries", after-before)
	}
}

func TestUpdateUser_NotFound(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	for _, patch := range []UserPatch{{IsActive: ptr(false)}, {}} {
		_, err := env.store.UpdateUser(ctx, "usr-missing", patch, SystemActor)
		if !errors.Is(err, ErrUserNotFound) {
			t.Errorf("UpdateUser(%+v) error = %v, want ErrUserNotFound", patch, err)
		}
	}

	bob := env.createUser(t, "bob", RoleUser)
	_, err := env.store.UpdateUser(ctx, bob.ID, UserPatch{}, SystemActor)
	var ve *ValidationError
	if !errors.As(err, &ve) || ve.Code != CodeEmptyPatch {
		t.Errorf("empty patch on existing user error = %v, want %s", err, CodeEmptyPatch)
	}
}

func TestLastAdmin_Guards(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.createUser(t, "alice", RoleAdmin)

	tests := []struct {
		name string
		run  func() error
	}{
		{"demote", func() error {
			_, err := env.store.UpdateUser(ctx, alice.ID, UserPatch{Role: ptr(RoleUser)}, SystemActor)
			return err
		}},
		{"deactivate", func() error {
			_, err := env.store.UpdateUser(ctx, alice.ID, UserPatch{IsActive: ptr(false)}, SystemActor)
			return err
		}},
		{"demote via combined patch", func() error {
			_, err := env.store.UpdateUser(ctx, alice.ID, UserPatch{Username: ptr("alicia"), Role: ptr(RoleUploader)}, SystemActor)
			return err
		}},
		{"delete", func() error {
			return env.store.DeleteUser(ctx, alice.ID, SystemActor)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.run()
			if !errors.Is(err, ErrLastAdmin) {
				t.Fatalf("error = %v, want ErrLastAdmin", err)
			}
			var ie *InvariantError
			if !errors.As(err, &ie) || ie.Code != CodeLastAdmin {
				t.Errorf("error = %v, want InvariantError", err)
			}
		})
	}

	u, err := env.store.GetByID(ctx, alice.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if !u.IsActiveAdmin() || u.Username != "alice" {
		t.Errorf("rejected mutations changed alice: %+v", u)
	}

	// An inactive admin does not count.
	bob := env.createUser(t, "bob", RoleAdmin)
	if err := env.store.DeleteUser(ctx, bob.ID, SystemActor); err != nil {
		t.Fatalf("DeleteUser(bob) error = %v", err)
	}
	if _, err := env.store.UpdateUser(ctx, alice.ID, UserPatch{Role: ptr(RoleUser)}, SystemActor); !errors.Is(err, ErrLastAdmin) {
		t.Errorf("demote with only inactive other admin error = %v, want ErrLastAdmin", err)
	}

	// A second active admin unlocks the demotion.
	env.createUser(t, "carol", RoleAdmin)
	if _, err := env.store.UpdateUser(ctx, alice.ID, UserPatch{Role: ptr(RoleUser)}, SystemActor); err != nil {
		t.Errorf("demote with another admin error = %v", err)
	}
}

func TestLastAdmin_ConcurrentDemotions(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.createUser(t, "alice", RoleAdmin)
	carol := env.createUser(t, "carol", RoleAdmin)

	results := make([]error, 2)
	var g errgroup.Group
	for i, id := range []string{alice.ID, carol.ID} {
		g.Go(func() error {
			_, results[i] = env.store.UpdateUser(ctx, id, UserPatch{Role: ptr(RoleUser)}, SystemActor)
			return nil
		})
	}
	g.Wait() //nolint:errcheck // goroutines never return errors

	succeeded, rejected := 0, 0
	for _, err := range results {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, ErrLastAdmin):
			rejected++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if succeeded != 1 || rejected != 1 {
		t.Errorf("succeeded=%d rejected=%d, want 1 and 1", succeeded, rejected)
	}

	n, err := env.store.CountActiveByRole(ctx, RoleAdmin)
	if err != nil {
		t.Fatalf("CountActiveByRole() error = %v", err)
	}
	if n != 1 {
		t.Errorf("active admins = %d, want 1", n)
	}
}

func TestLastAdmin_ConcurrentSoleAdmin(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.createUser(t, "alice", RoleAdmin)

	var g errgroup.Group
	for range 2 {
		g.Go(func() error {
			_, err := env.store.UpdateUser(ctx, alice.ID, UserPatch{Role: ptr(RoleUser)}, SystemActor)
			return err
		})
	}
	if err := g.Wait(); !errors.Is(err, ErrLastAdmin) {
		t.Errorf("error = %v, want ErrLastAdmin", err)
	}

	n, err := env.store.CountActiveByRole(ctx, RoleAdmin)
	if err != nil {
		t.Fatalf("CountActiveByRole() error = %v", err)
	}
	if n != 1 {
		t.Errorf("active admins = %d, want 1", n)
	}
}

func TestResetPassword(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	bob := env.createUser(t, "bob", RoleUser)

	if err := env.store.ResetPassword(ctx, bob.ID, "new-password-1", SystemActor); err != nil {
		t.Fatalf("ResetPassword() error = %v", err)
	}
	if _, err := env.store.Authenticate(ctx, "bob", testPassword); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("old password error = %v, want ErrInvalidCredentials", err)
	}
	if _, err := env.store.Authenticate(ctx, "bob", "new-password-1"); err != nil {
		t.Errorf("new password error = %v", err)
	}

	err := env.store.ResetPassword(ctx, bob.ID, "short", SystemActor)
	if !errors.Is(err, ErrValidation) {
		t.Errorf("short password error = %v, want ErrValidation", err)
	}

	err = env.store.ResetPassword(ctx, "usr-missing", "new-password-1", SystemActor)
	if !errors.Is(err, ErrValidation) || !errors.Is(err, ErrUserNotFound) {
		t.Errorf("unknown user error = %v, want ValidationError wrapping ErrUserNotFound", err)
	}

	got := env.sink.actions()
	if got[len(got)-1] != audit.ActionPasswordReset {
		t.Errorf("last audit action = %v, want password_reset", got[len(got)-1])
	}
}

func TestChangePassword(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	bob := env.createUser(t, "bob", RoleUser)

	if err := env.store.ChangePassword(ctx, bob.ID, "wrong-password", "new-password-1"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("wrong current password error = %v, want ErrInvalidCredentials", err)
	}
	if err := env.store.ChangePassword(ctx, bob.ID, testPassword, "short"); !errors.Is(err, ErrValidation) {
		t.Errorf("short new password error = %v, want ErrValidation", err)
	}
	if err := env.store.ChangePassword(ctx, bob.ID, testPassword, "new-password-1"); err != nil {
		t.Fatalf("ChangePassword() error = %v", err)
	}

	got := env.sink.actions()
	if got[len(got)-1] != audit.ActionPasswordChanged {
		t.Errorf("last audit action = %v, want password_changed", got[len(got)-1])
	}
	if _, err := env.store.Authenticate(ctx, "bob", "new-password-1"); err != nil {
		t.Errorf("Authenticate with new password error = %v", err)
	}
}

func TestDeleteUser_Soft(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.createUser(t, "alice", RoleAdmin)
	bob := env.createUser(t, "bob", RoleUploader)

	if err := env.store.DeleteUser(ctx, bob.ID, SystemActor); err != nil {
		t.Fatalf("DeleteUser() error = %v", err)
	}

	u, err := env.store.GetByID(ctx, bob.ID)
	if err != nil {
		t.Fatalf("soft-deleted user should still exist: %v", err)
	}
	if u.IsActive {
		t.Error("deleted user should be inactive")
	}

	// Second delete is a no-op without a new audit entry.
	before := len(env.sink.actions())
	if err := env.store.DeleteUser(ctx, bob.ID, SystemActor); err != nil {
		t.Errorf("second DeleteUser() error = %v", err)
	}
	if len(env.sink.actions()) != before {
		t.Error("second delete should not be audited")
	}

	if err := env.store.DeleteUser(ctx, "usr-missing", SystemActor); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("unknown id error = %v, want ErrUserNotFound", err)
	}
}

func TestListAll_NewestFirst(t *testing.T) {
	env := newTestEnv(t)
	for _, name := range []string{"first", "second", "third"} {
		env.createUser(t, name, RoleUser)
	}

	users, err := env.store.ListAll(context.Background())
	if err != nil {
		t.Fatalf("ListAll() error = %v", err)
	}
	if len(users) != 3 {
		t.Fatalf("len = %d, want 3", len(users))
	}
	if users[0].Username != "third" || users[2].Username != "first" {
		t.Errorf("order = %s, %s, %s", users[0].Username, users[1].Username, users[2].Username)
	}

	data, err := json.Marshal(users[0])
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if strings.Contains(strings.ToLower(string(data)), "hash") || strings.Contains(string(data), "$argon2id$") {
		t.Errorf("serialised user leaks hash: %s", data)
	}
}

func TestListAll_Empty(t *testing.T) {
	env := newTestEnv(t)
	users, err := env.store.ListAll(context.Background())
	if err != nil {
		t.Fatalf("ListAll() error = %v", err)
	}
	if users == nil || len(users) != 0 {
		t.Errorf("ListAll() = %v, want empty non-nil", users)
	}
}

func TestAuthenticate_UniformFailures(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.createUser(t, "alice", RoleAdmin)
	bob := env.createUser(t, "bob", RoleUser)
	if err := env.store.DeleteUser(ctx, bob.ID, SystemActor); err != nil {
		t.Fatalf("DeleteUser() error = %v", err)
	}

	cases := map[string][2]string{
		"unknown user":            {"nobody", testPassword},
		"wrong password":          {"alice", "wrong-password"},
		"inactive, good password": {"bob", testPassword},
	}
	for name, c := range cases {
		_, err := env.store.Authenticate(ctx, c[0], c[1])
		if err != ErrInvalidCredentials { //nolint:errorlint // identical sentinel, not merely wrapped
			t.Errorf("%s: error = %v, want exactly ErrInvalidCredentials", name, err)
		}
	}

	u, err := env.store.Authenticate(ctx, "ALICE", testPassword)
	if err != nil {
		t.Fatalf("Authenticate() error = %v", err)
	}
	if u.Username != "alice" {
		t.Errorf("Username = %q", u.Username)
	}
}

func TestAuthenticate_UpgradesLegacyHash(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	bob := env.createUser(t, "bob", RoleUser)

	legacy, err := bcrypt.GenerateFromPassword([]byte(testPassword), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	if _, err := env.db.Exec(`UPDATE users SET password_hash = ? WHERE id = ?`, string(legacy), bob.ID); err != nil {
		t.Fatalf("seeding legacy hash: %v", err)
	}

	if _, err := env.store.Authenticate(ctx, "bob", testPassword); err != nil {
		t.Fatalf("Authenticate() with bcrypt hash error = %v", err)
	}

	var hash string
	if err := env.db.QueryRow(`SELECT password_hash FROM users WHERE id = ?`, bob.ID).Scan(&hash); err != nil {
		t.Fatalf("reading hash: %v", err)
	}
	if !strings.HasPrefix(hash, "$argon2id$") {
		t.Errorf("hash after login = %q, want upgraded argon2id", hash)
	}
}

func TestRecordLogin(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	bob := env.createUser(t, "bob", RoleUser)
	if bob.LastLogin != nil {
		t.Error("new user should have no lastLogin")
	}

	at, err := env.store.RecordLogin(ctx, bob.ID)
	if err != nil {
		t.Fatalf("RecordLogin() error = %v", err)
	}
	u, err := env.store.GetByID(ctx, bob.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if u.LastLogin == nil || !u.LastLogin.Equal(at) {
		t.Errorf("LastLogin = %v, want %v", u.LastLogin, at)
	}

	if _, err := env.store.RecordLogin(ctx, "usr-missing"); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("unknown id error = %v, want ErrUserNotFound", err)
	}
}

func TestAuditRowCommittedWithMutation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.createUser(t, "alice", RoleAdmin)

	// A rejected mutation leaves no audit row.
	_ = env.store.DeleteUser(ctx, alice.ID, alice.ID)

	var n int
	if err := env.db.QueryRow(`SELECT COUNT(*) FROM audit_log`).Scan(&n); err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 1 {
		t.Errorf("audit rows = %d, want 1 (user_created only)", n)
	}
}
