package auth

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/gallery-core/internal/audit"
)

// StoreDeps are the collaborators of a Store.
type StoreDeps struct {
	DB     *sql.DB
	Hasher Hasher       // defaults to argon2id with DefaultArgon2Params
	Sink   audit.Sink   // optional, receives committed audit entries
	Logger *slog.Logger // optional
}

// Store is the credential store: user rows, password hashes and the
// last-admin invariant. Each mutation and its audit row commit in one
// transaction.
//
// The connection must open transactions with BEGIN IMMEDIATE (see
// database.DSN); the last-admin check reads the admin count inside the
// same transaction that writes, and relies on holding the write lock.
type Store struct {
	db     *sql.DB
	hasher Hasher
	sink   audit.Sink
	logger *slog.Logger
	now    func() time.Time

	dummyOnce sync.Once
	dummy     string
}

// NewStore creates a credential store.
func NewStore(deps StoreDeps) *Store {
	s := &Store{
		db:     deps.DB,
		hasher: deps.Hasher,
		sink:   deps.Sink,
		logger: deps.Logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
	if s.hasher == nil {
		s.hasher = NewPasswordHasher(DefaultArgon2Params)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// credential pairs a user with the hash that never leaves the store.
type credential struct {
	user User
	hash string
}

const userColumns = `id, username, password_hash, role, display_name, is_active,
	created_at, created_by, updated_at, last_login`

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// CreateUser validates, hashes and inserts a new active account.
func (s *Store) CreateUser(ctx context.Context, in NewUser, createdBy string) (*User, error) {
	username := NormalizeUsername(in.Username)
	if err := ValidateUsername(username); err != nil {
		return nil, err
	}
	if err := ValidatePassword(in.Password); err != nil {
		return nil, err
	}
	if err := ValidateRole(in.Role); err != nil {
		return nil, err
	}
	displayName := strings.TrimSpace(in.DisplayName)
	if displayName == "" {
		displayName = username
	}
	if len(displayName) > maxDisplayNameLength {
		return nil, &ValidationError{Field: "displayName", Code: CodeFieldType, Message: "display name is too long"}
	}
	if createdBy == "" {
		createdBy = SystemActor
	}

	// Hash outside the transaction so the write lock is not held for it.
	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("hashing password: %w", err)
	}

	now := s.now()
	u := User{
		ID:          "usr-" + uuid.NewString(),
		Username:    username,
		DisplayName: displayName,
		Role:        in.Role,
		IsActive:    true,
		CreatedBy:   createdBy,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	err = s.mutate(ctx, func(tx *sql.Tx) (*audit.Entry, error) {
		if err := checkUsernameFree(ctx, tx, username, ""); err != nil {
			return nil, err
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO users (`+userColumns+`) VALUES (?, ?, ?, ?, ?, 1, ?, ?, ?, NULL)`,
			u.ID, u.Username, hash, string(u.Role), u.DisplayName,
			formatTime(now), u.CreatedBy, formatTime(now),
		)
		if err != nil {
			if isUniqueViolation(err) {
				return nil, errUsernameTaken()
			}
			return nil, fmt.Errorf("creating user: %w", err)
		}
		return &audit.Entry{
			ActingUserID:   createdBy,
			Action:         audit.ActionUserCreated,
			TargetUsername: username,
			Details:        "role=" + string(u.Role),
		}, nil
	})
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// GetByUsername looks a user up case-insensitively.
func (s *Store) GetByUsername(ctx context.Context, username string) (*User, error) {
	c, err := getCredential(ctx, s.db, "username = ?", NormalizeUsername(username))
	if err != nil {
		return nil, err
	}
	return &c.user, nil
}

// GetByID looks a user up by id.
func (s *Store) GetByID(ctx context.Context, id string) (*User, error) {
	c, err := getCredential(ctx, s.db, "id = ?", id)
	if err != nil {
		return nil, err
	}
	return &c.user, nil
}

// fieldChange is one entry of the user_updated diff.
type fieldChange struct {
	From any `json:"from"`
	To   any `json:"to"`
}

// UpdateUser applies patch to the user with id. The last-admin rule is
// checked against the state the patch produces, whatever combination of
// fields it names. A patch that changes nothing is not written or audited.
func (s *Store) UpdateUser(ctx context.Context, id string, patch UserPatch, updatedBy string) (*User, error) {
	var result User
	err := s.mutate(ctx, func(tx *sql.Tx) (*audit.Entry, error) {
		cur, err := getCredential(ctx, tx, "id = ?", id)
		if err != nil {
			return nil, err
		}
		if patch.IsEmpty() {
			return nil, &ValidationError{Code: CodeEmptyPatch, Message: "no fields to update"}
		}

		next := cur.user
		diff := map[string]fieldChange{}

		if patch.Username != nil {
			name := NormalizeUsername(*patch.Username)
			if err := ValidateUsername(name); err != nil {
				return nil, err
			}
			if name != next.Username {
				if err := checkUsernameFree(ctx, tx, name, id); err != nil {
					return nil, err
				}
				diff["username"] = fieldChange{next.Username, name}
				next.Username = name
			}
		}
		if patch.DisplayName != nil {
			name := strings.TrimSpace(*patch.DisplayName)
			if name == "" {
				name = next.Username
			}
			if name != next.DisplayName {
				diff["displayName"] = fieldChange{next.DisplayName, name}
				next.DisplayName = name
			}
		}
		if patch.Role != nil {
			if err := ValidateRole(*patch.Role); err != nil {
				return nil, err
			}
			if *patch.Role != next.Role {
				diff["role"] = fieldChange{next.Role, *patch.Role}
				next.Role = *patch.Role
			}
		}
		if patch.IsActive != nil && *patch.IsActive != next.IsActive {
			diff["isActive"] = fieldChange{next.IsActive, *patch.IsActive}
			next.IsActive = *patch.IsActive
		}

		if len(diff) == 0 {
			result = cur.user
			return nil, nil
		}

		if err := s.checkLastAdmin(ctx, tx, &cur.user, &next); err != nil {
			return nil, err
		}

		next.UpdatedAt = s.now()
		_, err = tx.ExecContext(ctx,
			`UPDATE users SET username = ?, display_name = ?, role = ?, is_active = ?, updated_at = ? WHERE id = ?`,
			next.Username, next.DisplayName, string(next.Role), boolToInt(next.IsActive),
			formatTime(next.UpdatedAt), id,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return nil, errUsernameTaken()
			}
			return nil, fmt.Errorf("updating user: %w", err)
		}

		details, err := json.Marshal(diff)
		if err != nil {
			return nil, fmt.Errorf("encoding update diff: %w", err)
		}
		result = next
		return &audit.Entry{
			ActingUserID:   updatedBy,
			Action:         audit.ActionUserUpdated,
			TargetUsername: next.Username,
			Details:        string(details),
		}, nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// ResetPassword overwrites the password of the user with id. An unknown id
// is reported as a ValidationError wrapping ErrUserNotFound.
func (s *Store) ResetPassword(ctx context.Context, id, newPassword, resetBy string) error {
	return s.setPassword(ctx, id, newPassword, resetBy, audit.ActionPasswordReset)
}

// ChangePassword is the self-service variant of ResetPassword: the current
// password must verify first.
func (s *Store) ChangePassword(ctx context.Context, id, currentPassword, newPassword string) error {
	if err := ValidatePassword(newPassword); err != nil {
		return err
	}

	cur, err := getCredential(ctx, s.db, "id = ?", id)
	if err != nil {
		return err
	}
	ok, err := s.hasher.Verify(currentPassword, cur.hash)
	if err != nil || !ok {
		return ErrInvalidCredentials
	}

	return s.setPassword(ctx, id, newPassword, id, audit.ActionPasswordChanged)
}

func (s *Store) setPassword(ctx context.Context, id, password, actor string, action audit.Action) error {
	if err := ValidatePassword(password); err != nil {
		return err
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return fmt.Errorf("hashing password: %w", err)
	}

	return s.mutate(ctx, func(tx *sql.Tx) (*audit.Entry, error) {
		cur, err := getCredential(ctx, tx, "id = ?", id)
		if errors.Is(err, ErrUserNotFound) {
			return nil, &ValidationError{Field: "id", Code: CodeNotFound, Message: "user not found", Err: ErrUserNotFound}
		}
		if err != nil {
			return nil, err
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE users SET password_hash = ?, updated_at = ? WHERE id = ?`,
			hash, formatTime(s.now()), id,
		); err != nil {
			return nil, fmt.Errorf("updating password: %w", err)
		}
		return &audit.Entry{
			ActingUserID:   actor,
			Action:         action,
			TargetUsername: cur.user.Username,
		}, nil
	})
}

// DeleteUser soft-deletes the user with id. Deleting an inactive user is a
// no-op.
func (s *Store) DeleteUser(ctx context.Context, id, deletedBy string) error {
	return s.mutate(ctx, func(tx *sql.Tx) (*audit.Entry, error) {
		cur, err := getCredential(ctx, tx, "id = ?", id)
		if err != nil {
			return nil, err
		}
		if !cur.user.IsActive {
			return nil, nil
		}

		next := cur.user
		next.IsActive = false
		if err := s.checkLastAdmin(ctx, tx, &cur.user, &next); err != nil {
			return nil, err
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE users SET is_active = 0, updated_at = ? WHERE id = ?`,
			formatTime(s.now()), id,
		); err != nil {
			return nil, fmt.Errorf("deleting user: %w", err)
		}
		return &audit.Entry{
			ActingUserID:   deletedBy,
			Action:         audit.ActionUserDeleted,
			TargetUsername: cur.user.Username,
		}, nil
	})
}

// checkLastAdmin rejects a transition that takes an active admin out of the
// active-admin set when no other active admin exists.
func (s *Store) checkLastAdmin(ctx context.Context, tx *sql.Tx, before, after *User) error {
	if !before.IsActiveAdmin() || after.IsActiveAdmin() {
		return nil
	}

	var others int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM users WHERE role = 'admin' AND is_active = 1 AND id != ?`,
		before.ID,
	).Scan(&others); err != nil {
		return fmt.Errorf("counting admins: %w", err)
	}
	if others == 0 {
		s.logger.Warn("rejected last-admin removal", "user_id", before.ID, "username", before.Username)
		return errLastAdmin()
	}
	return nil
}

// CountActiveByRole counts active users with role.
func (s *Store) CountActiveByRole(ctx context.Context, role Role) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM users WHERE role = ? AND is_active = 1`, string(role),
	).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting users by role: %w", err)
	}
	return n, nil
}

// CountUsers counts all accounts, active or not.
func (s *Store) CountUsers(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM users").Scan(&n); err != nil {
		return 0, fmt.Errorf("counting users: %w", err)
	}
	return n, nil
}

// ListAll returns every account, newest first.
func (s *Store) ListAll(ctx context.Context) ([]User, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users ORDER BY created_at DESC, rowid DESC`)
	if err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}
	defer rows.Close()

	users := []User{}
	for rows.Next() {
		c, err := scanCredential(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, c.user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating users: %w", err)
	}
	return users, nil
}

// Authenticate checks a username and password. Unknown users, inactive
// users and wrong passwords all return ErrInvalidCredentials after one
// hash verification each. Hashes with outdated parameters are replaced.
func (s *Store) Authenticate(ctx context.Context, username, password string) (*User, error) {
	c, err := getCredential(ctx, s.db, "username = ?", NormalizeUsername(username))
	if errors.Is(err, ErrUserNotFound) {
		s.hasher.Verify(password, s.dummyHash()) //nolint:errcheck // equalises timing only
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}

	ok, err := s.hasher.Verify(password, c.hash)
	if err != nil {
		s.logger.Warn("unreadable password hash", "user_id", c.user.ID, "error", err)
		return nil, ErrInvalidCredentials
	}
	if !ok || !c.user.IsActive {
		return nil, ErrInvalidCredentials
	}

	if s.hasher.NeedsRehash(c.hash) {
		s.rehash(ctx, c.user.ID, password)
	}
	return &c.user, nil
}

func (s *Store) rehash(ctx context.Context, id, password string) {
	hash, err := s.hasher.Hash(password)
	if err == nil {
		_, err = s.db.ExecContext(ctx, `UPDATE users SET password_hash = ? WHERE id = ?`, hash, id)
	}
	if err != nil {
		s.logger.Warn("password rehash failed", "user_id", id, "error", err)
		return
	}
	s.logger.Info("password hash upgraded", "user_id", id)
}

// RecordLogin sets lastLogin to now and returns it.
func (s *Store) RecordLogin(ctx context.Context, id string) (time.Time, error) {
	now := s.now()
	res, err := s.db.ExecContext(ctx, `UPDATE users SET last_login = ? WHERE id = ?`, formatTime(now), id)
	if err != nil {
		return time.Time{}, fmt.Errorf("recording login: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 { //nolint:errcheck // always succeeds on SQLite
		return time.Time{}, ErrUserNotFound
	}
	return now, nil
}

// mutate runs fn in a transaction, inserts the audit entry it returns in the
// same transaction, and publishes the entry once committed.
func (s *Store) mutate(ctx context.Context, fn func(tx *sql.Tx) (*audit.Entry, error)) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	entry, err := fn(tx)
	if err != nil {
		return err
	}
	if entry != nil {
		if err := audit.Insert(ctx, tx, entry); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	if entry != nil && s.sink != nil {
		s.sink.Publish(ctx, *entry)
	}
	return nil
}

func (s *Store) dummyHash() string {
	s.dummyOnce.Do(func() {
		h, err := s.hasher.Hash(uuid.NewString())
		if err != nil {
			s.logger.Error("generating dummy hash", "error", err)
			return
		}
		s.dummy = h
	})
	return s.dummy
}

func checkUsernameFree(ctx context.Context, q queryRower, username, exceptID string) error {
	var id string
	err := q.QueryRowContext(ctx, `SELECT id FROM users WHERE username = ? AND id != ?`, username, exceptID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("checking username: %w", err)
	}
	return errUsernameTaken()
}

func errUsernameTaken() error {
	return &ValidationError{Field: "username", Code: CodeUsernameTaken, Message: "username is already taken"}
}

func getCredential(ctx context.Context, q queryRower, where string, arg any) (*credential, error) {
	row := q.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE `+where, arg) //nolint:gosec // where is a constant from this file
	return scanCredential(row)
}

// scanner is satisfied by sql.Row and sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanCredential(sc scanner) (*credential, error) {
	var c credential
	var role string
	var isActive int
	var createdAt, updatedAt string
	var lastLogin sql.NullString

	err := sc.Scan(&c.user.ID, &c.user.Username, &c.hash, &role, &c.user.DisplayName,
		&isActive, &createdAt, &c.user.CreatedBy, &updatedAt, &lastLogin)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("scanning user: %w", err)
	}

	c.user.Role = Role(role)
	c.user.IsActive = isActive != 0
	c.user.CreatedAt = parseTime(createdAt)
	c.user.UpdatedAt = parseTime(updatedAt)
	if lastLogin.Valid {
		t := parseTime(lastLogin.String)
		c.user.LastLogin = &t
	}
	return &c, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// parseTime accepts the store's layout and plain RFC 3339 for rows written
// by other tools.
func parseTime(s string) time.Time {
	if t, err := time.Parse(timeLayout, s); err == nil {
		return t
	}
	t, _ := time.Parse(time.RFC3339, s) //nolint:errcheck // zero time for unparseable values
	return t
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// isUniqueViolation checks if a SQLite error is a UNIQUE constraint violation.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
