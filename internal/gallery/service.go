// Package gallery is the session-aware entry point to the auth and media
// core. Every operation takes the caller's session explicitly, re-validates
// it against the current user record and applies the operation's role gate
// before doing anything else.
package gallery

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/nerrad567/gallery-core/internal/audit"
	"github.com/nerrad567/gallery-core/internal/auth"
	"github.com/nerrad567/gallery-core/internal/media"
)

// AuditLog is the part of audit.Repository the service needs.
type AuditLog interface {
	Append(ctx context.Context, e *audit.Entry) error
	Query(ctx context.Context, limit int) ([]audit.Entry, error)
}

// Deps are the service's collaborators.
type Deps struct {
	Auth           *auth.Manager
	Users          *auth.Store
	Media          *media.Resolver
	Audit          AuditLog
	Logger         *slog.Logger
	MaxUploadBytes int64
}

// Service exposes the gallery operations.
type Service struct {
	auth      *auth.Manager
	users     *auth.Store
	media     *media.Resolver
	audit     AuditLog
	logger    *slog.Logger
	maxUpload int64
}

// New creates a Service.
func New(d Deps) *Service {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		auth:      d.Auth,
		users:     d.Users,
		media:     d.Media,
		audit:     d.Audit,
		logger:    logger,
		maxUpload: d.MaxUploadBytes,
	}
}

// ─── Session ────────────────────────────────────────────────────────

// Login authenticates and opens a session, replacing the one behind priorToken.
func (s *Service) Login(ctx context.Context, username, password, priorToken string) (*auth.LoginResult, error) {
	return s.auth.Login(ctx, username, password, priorToken)
}

// Session resolves a token. It does not re-check the user; operations do.
func (s *Service) Session(ctx context.Context, token string) (*auth.Session, error) {
	return s.auth.Session(ctx, token)
}

// Logout ends sess.
func (s *Service) Logout(ctx context.Context, sess *auth.Session) error {
	return s.auth.Logout(ctx, sess)
}

// CheckSession reports the authentication state behind token.
func (s *Service) CheckSession(ctx context.Context, token string) (auth.Status, error) {
	return s.auth.Status(ctx, token)
}

// ChangePassword is self-service and requires the current password.
func (s *Service) ChangePassword(ctx context.Context, sess *auth.Session, currentPassword, newPassword string) error {
	return s.auth.ChangePassword(ctx, sess, currentPassword, newPassword)
}

// ─── User administration (admin) ────────────────────────────────────

// ListUsers returns all accounts, newest first.
func (s *Service) ListUsers(ctx context.Context, sess *auth.Session) ([]auth.User, error) {
	if _, err := s.auth.Authorize(ctx, sess, auth.RequireAdmin); err != nil {
		return nil, err
	}
	return s.users.ListAll(ctx)
}

// CreateUser creates an account on behalf of the session's admin.
func (s *Service) CreateUser(ctx context.Context, sess *auth.Session, in auth.NewUser) (*auth.User, error) {
	actor, err := s.auth.Authorize(ctx, sess, auth.RequireAdmin)
	if err != nil {
		return nil, err
	}
	return s.users.CreateUser(ctx, in, actor.ID)
}

// UpdateUser applies patch to id. An admin may not demote or deactivate
// themselves.
func (s *Service) UpdateUser(ctx context.Context, sess *auth.Session, id string, patch auth.UserPatch) (*auth.User, error) {
	actor, err := s.auth.Authorize(ctx, sess, auth.RequireAdmin)
	if err != nil {
		return nil, err
	}
	if err := auth.CheckSelfUpdate(actor.ID, id, patch); err != nil {
		return nil, err
	}
	return s.users.UpdateUser(ctx, id, patch, actor.ID)
}

// ResetPassword sets a new password for id without the old one.
func (s *Service) ResetPassword(ctx context.Context, sess *auth.Session, id, newPassword string) error {
	actor, err := s.auth.Authorize(ctx, sess, auth.RequireAdmin)
	if err != nil {
		return err
	}
	return s.users.ResetPassword(ctx, id, newPassword, actor.ID)
}

// DeleteUser soft-deletes id. An admin may not delete themselves.
func (s *Service) DeleteUser(ctx context.Context, sess *auth.Session, id string) error {
	actor, err := s.auth.Authorize(ctx, sess, auth.RequireAdmin)
	if err != nil {
		return err
	}
	if err := auth.CheckSelfDelete(actor.ID, id); err != nil {
		return err
	}
	return s.users.DeleteUser(ctx, id, actor.ID)
}

// AuditLog returns the newest limit audit entries.
func (s *Service) AuditLog(ctx context.Context, sess *auth.Session, limit int) ([]audit.Entry, error) {
	if _, err := s.auth.Authorize(ctx, sess, auth.RequireAdmin); err != nil {
		return nil, err
	}
	return s.audit.Query(ctx, limit)
}

// ─── Media ──────────────────────────────────────────────────────────

// Browse lists a directory under the media root.
func (s *Service) Browse(ctx context.Context, sess *auth.Session, rel string) (*media.Listing, error) {
	if _, err := s.auth.Authorize(ctx, sess, auth.RequireAuthenticated); err != nil {
		return nil, err
	}
	return s.media.Browse(ctx, rel)
}

// ResolveMediaFile returns the absolute path of a media file to stream.
func (s *Service) ResolveMediaFile(ctx context.Context, sess *auth.Session, rel string) (string, error) {
	if _, err := s.auth.Authorize(ctx, sess, auth.RequireAuthenticated); err != nil {
		return "", err
	}
	return s.media.ResolveMediaFile(rel)
}

// ResolveUploadTarget returns the absolute directory an upload may go to.
func (s *Service) ResolveUploadTarget(ctx context.Context, sess *auth.Session, rel string) (string, error) {
	if _, err := s.auth.Authorize(ctx, sess, auth.RequireUploader); err != nil {
		return "", err
	}
	return s.media.ResolveUploadTarget(rel)
}

// MediaResult is the outcome of a media mutation. The filesystem change is
// committed when a result is returned; AuditWarning is set when recording
// it in the audit log failed.
type MediaResult struct {
	Entry        media.Entry `json:"entry"`
	AuditWarning string      `json:"auditWarning,omitempty"`
}

// CreateFolder creates name inside parent.
func (s *Service) CreateFolder(ctx context.Context, sess *auth.Session, parent, name string) (*MediaResult, error) {
	actor, err := s.auth.Authorize(ctx, sess, auth.RequireUploader)
	if err != nil {
		return nil, err
	}
	entry, err := s.media.CreateFolder(parent, name)
	if err != nil {
		return nil, err
	}
	return s.recordMedia(ctx, actor, audit.ActionFolderCreated, entry), nil
}

// Upload stores one file in dir.
func (s *Service) Upload(ctx context.Context, sess *auth.Session, dir, filename string, src io.Reader) (*MediaResult, error) {
	actor, err := s.auth.Authorize(ctx, sess, auth.RequireUploader)
	if err != nil {
		return nil, err
	}
	entry, err := s.media.SaveUpload(ctx, dir, filename, src, s.maxUpload)
	if err != nil {
		return nil, err
	}
	return s.recordMedia(ctx, actor, audit.ActionMediaUploaded, entry), nil
}

// recordMedia appends the audit entry for a committed media change. A
// failure is reported on the result instead of failing the request.
func (s *Service) recordMedia(ctx context.Context, actor *auth.User, action audit.Action, entry media.Entry) *MediaResult {
	res := &MediaResult{Entry: entry}
	err := s.audit.Append(ctx, &audit.Entry{
		ActingUserID: actor.ID,
		Action:       action,
		Details:      entry.RelativePath,
	})
	if err != nil {
		s.logger.Error("audit write failed after media change",
			"action", action, "path", entry.RelativePath, "user_id", actor.ID, "error", err)
		res.AuditWarning = fmt.Sprintf("%s succeeded but was not recorded in the audit log", action)
	}
	return res
}
