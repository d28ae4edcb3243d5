package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Login outcomes reported to a LoginRecorder.
const (
	LoginOutcomeSuccess = "success"
	LoginOutcomeFailure = "failure"
)

// UserSource is the part of Store the Manager needs.
type UserSource interface {
	Authenticate(ctx context.Context, username, password string) (*User, error)
	GetByID(ctx context.Context, id string) (*User, error)
	RecordLogin(ctx context.Context, id string) (time.Time, error)
	ChangePassword(ctx context.Context, id, currentPassword, newPassword string) error
}

// LoginRecorder receives one outcome per login attempt. Satisfied by
// *influxdb.Client.
type LoginRecorder interface {
	RecordLoginAttempt(outcome string)
}

// ManagerConfig holds the Manager's collaborators and policy.
type ManagerConfig struct {
	Users        UserSource
	Sessions     SessionStore
	Tokens       *TokenCodec
	MaxAge       time.Duration // absolute session lifetime
	FailureDelay time.Duration // applied to every failed login
	Logger       *slog.Logger
	Telemetry    LoginRecorder // optional
}

// Manager turns credentials into sessions and re-validates sessions
// against the current user record.
type Manager struct {
	users        UserSource
	sessions     SessionStore
	tokens       *TokenCodec
	maxAge       time.Duration
	failureDelay time.Duration
	logger       *slog.Logger
	telemetry    LoginRecorder
	now          func() time.Time
	sleep        func(ctx context.Context, d time.Duration)
}

// NewManager creates a Manager.
func NewManager(cfg ManagerConfig) *Manager {
	m := &Manager{
		users:        cfg.Users,
		sessions:     cfg.Sessions,
		tokens:       cfg.Tokens,
		maxAge:       cfg.MaxAge,
		failureDelay: cfg.FailureDelay,
		logger:       cfg.Logger,
		telemetry:    cfg.Telemetry,
		now:          time.Now,
		sleep:        sleepContext,
	}
	if m.sessions == nil {
		m.sessions = NewMemoryStore()
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	return m
}

// LoginResult is returned by a successful Login.
type LoginResult struct {
	Session *Session
	Token   string
	User    *User
}

// Login authenticates username and password and opens a new session.
//
// Any session bound to priorToken is destroyed first, so the caller always
// receives a fresh identifier. Unknown user, inactive user and wrong
// password all return ErrInvalidCredentials after the same delay.
func (m *Manager) Login(ctx context.Context, username, password, priorToken string) (*LoginResult, error) {
	if priorToken != "" {
		m.LogoutToken(ctx, priorToken) //nolint:errcheck // a stale prior session must not block login
	}

	user, err := m.users.Authenticate(ctx, username, password)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			m.logger.Info("login failed", "username", NormalizeUsername(username))
			m.recordOutcome(LoginOutcomeFailure)
			m.sleep(ctx, m.failureDelay)
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("authenticating: %w", err)
	}

	id, err := newSessionID()
	if err != nil {
		return nil, err
	}
	now := m.now()
	sess := &Session{
		ID:        id,
		UserID:    user.ID,
		Username:  user.Username,
		Role:      user.Role,
		CreatedAt: now,
		ExpiresAt: now.Add(m.maxAge),
	}
	if err := m.sessions.Save(ctx, sess); err != nil {
		return nil, fmt.Errorf("saving session: %w", err)
	}

	token, err := m.tokens.Encode(sess.ID, sess.ExpiresAt)
	if err != nil {
		m.sessions.Delete(ctx, sess.ID) //nolint:errcheck // best effort cleanup of an unusable session
		return nil, err
	}

	if at, err := m.users.RecordLogin(ctx, user.ID); err != nil {
		m.logger.Warn("recording last login", "user_id", user.ID, "error", err)
	} else {
		user.LastLogin = &at
	}

	m.recordOutcome(LoginOutcomeSuccess)
	m.logger.Info("login succeeded", "username", user.Username, "role", user.Role)

	return &LoginResult{Session: sess, Token: token, User: user}, nil
}

// Session resolves a token to its stored session. Any failure, including
// a malformed or expired token, is ErrUnauthorized.
func (m *Manager) Session(ctx context.Context, token string) (*Session, error) {
	if token == "" {
		return nil, ErrUnauthorized
	}
	id, err := m.tokens.Decode(token)
	if err != nil {
		return nil, ErrUnauthorized
	}

	sess, err := m.sessions.Get(ctx, id)
	if errors.Is(err, ErrSessionNotFound) {
		return nil, ErrUnauthorized
	}
	if err != nil {
		return nil, fmt.Errorf("loading session: %w", err)
	}
	if sess.Expired(m.now()) {
		m.sessions.Delete(ctx, id) //nolint:errcheck // expired either way
		return nil, ErrUnauthorized
	}
	return sess, nil
}

// CheckSession re-reads the session's user. A user that no longer exists
// or has been deactivated ends the session immediately. Role and username
// changes made since login are copied into the session.
func (m *Manager) CheckSession(ctx context.Context, sess *Session) (*User, error) {
	if sess == nil {
		return nil, ErrUnauthorized
	}
	if sess.Expired(m.now()) {
		m.sessions.Delete(ctx, sess.ID) //nolint:errcheck // expired either way
		return nil, ErrUnauthorized
	}

	user, err := m.users.GetByID(ctx, sess.UserID)
	if errors.Is(err, ErrUserNotFound) || (err == nil && !user.IsActive) {
		m.logger.Info("session ended for inactive user", "user_id", sess.UserID)
		m.sessions.Delete(ctx, sess.ID) //nolint:errcheck // session is rejected regardless
		return nil, ErrUnauthorized
	}
	if err != nil {
		return nil, fmt.Errorf("loading session user: %w", err)
	}

	if user.Role != sess.Role || user.Username != sess.Username {
		sess.Role = user.Role
		sess.Username = user.Username
		err := m.sessions.Update(ctx, sess)
		if errors.Is(err, ErrSessionNotFound) {
			// Logged out or expired while this request was in flight.
			return nil, ErrUnauthorized
		}
		if err != nil {
			m.logger.Warn("refreshing session snapshot", "session_user", sess.UserID, "error", err)
		}
	}
	return user, nil
}

// UserView is the part of a user shown to its own session.
type UserView struct {
	Username    string `json:"username"`
	DisplayName string `json:"displayName"`
	Role        Role   `json:"role"`
}

// Status is the result of checking a session.
type Status struct {
	Authenticated bool      `json:"authenticated"`
	User          *UserView `json:"user,omitempty"`
}

// Status reports whether token belongs to a valid session of an active user.
func (m *Manager) Status(ctx context.Context, token string) (Status, error) {
	sess, err := m.Session(ctx, token)
	if errors.Is(err, ErrUnauthorized) {
		return Status{}, nil
	}
	if err != nil {
		return Status{}, err
	}

	user, err := m.CheckSession(ctx, sess)
	if errors.Is(err, ErrUnauthorized) {
		return Status{}, nil
	}
	if err != nil {
		return Status{}, err
	}

	return Status{
		Authenticated: true,
		User: &UserView{
			Username:    user.Username,
			DisplayName: user.DisplayName,
			Role:        user.Role,
		},
	}, nil
}

// Logout destroys sess. Logging out twice, or without a session, is fine.
func (m *Manager) Logout(ctx context.Context, sess *Session) error {
	if sess == nil {
		return nil
	}
	if err := m.sessions.Delete(ctx, sess.ID); err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}
	return nil
}

// LogoutToken destroys the session behind token, if any.
func (m *Manager) LogoutToken(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	id, err := m.tokens.Decode(token)
	if err != nil {
		return nil
	}
	if err := m.sessions.Delete(ctx, id); err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}
	return nil
}

// Authorize re-checks sess and then gate. It returns the current user.
func (m *Manager) Authorize(ctx context.Context, sess *Session, gate Gate) (*User, error) {
	user, err := m.CheckSession(ctx, sess)
	if err != nil {
		return nil, err
	}
	if !gate.Allows(user.Role) {
		m.logger.Info("access denied", "user_id", user.ID, "role", user.Role, "gate", gate.Name())
		return nil, ErrForbidden
	}
	return user, nil
}

// ChangePassword lets the session's user replace their own password after
// re-entering the current one.
func (m *Manager) ChangePassword(ctx context.Context, sess *Session, currentPassword, newPassword string) error {
	user, err := m.Authorize(ctx, sess, RequireAuthenticated)
	if err != nil {
		return err
	}
	return m.users.ChangePassword(ctx, user.ID, currentPassword, newPassword)
}

func (m *Manager) recordOutcome(outcome string) {
	if m.telemetry != nil {
		m.telemetry.RecordLoginAttempt(outcome)
	}
}

// sleepContext waits for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
