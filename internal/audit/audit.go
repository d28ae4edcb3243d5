// Package audit records security-relevant mutations in the append-only
// audit_log table and fans committed entries out to optional sinks.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Action identifies the kind of mutation an entry records.
type Action string

// Recorded actions.
const (
	ActionUserCreated     Action = "user_created"
	ActionUserUpdated     Action = "user_updated"
	ActionPasswordReset   Action = "password_reset"
	ActionPasswordChanged Action = "password_changed"
	ActionUserDeleted     Action = "user_deleted"
	ActionFolderCreated   Action = "folder_created"
	ActionMediaUploaded   Action = "media_uploaded"
)

// Actions lists every recorded action.
var Actions = []Action{
	ActionUserCreated,
	ActionUserUpdated,
	ActionPasswordReset,
	ActionPasswordChanged,
	ActionUserDeleted,
	ActionFolderCreated,
	ActionMediaUploaded,
}

// timeLayout sorts lexically in the TEXT column.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Entry is one row of the audit trail.
type Entry struct {
	ID             int64     `json:"id"`
	Timestamp      time.Time `json:"timestamp"`
	ActingUserID   string    `json:"actingUserId"`
	ActingUsername string    `json:"actingUsername,omitempty"`
	Action         Action    `json:"action"`
	TargetUsername string    `json:"targetUsername,omitempty"`
	Details        string    `json:"details,omitempty"`
}

// Execer is satisfied by *sql.DB and *sql.Tx, so an entry can be written
// inside the transaction of the mutation it records.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Insert writes e using exec and fills in its ID and Timestamp.
func Insert(ctx context.Context, exec Execer, e *Entry) error {
	if e.Action == "" {
		return fmt.Errorf("inserting audit entry: empty action")
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}

	res, err := exec.ExecContext(ctx,
		`INSERT INTO audit_log (created_at, user_id, action, target_username, details)
		 VALUES (?, ?, ?, ?, ?)`,
		e.Timestamp.UTC().Format(timeLayout),
		nullableString(e.ActingUserID),
		string(e.Action),
		nullableString(e.TargetUsername),
		nullableString(e.Details),
	)
	if err != nil {
		return fmt.Errorf("inserting audit entry: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading audit entry id: %w", err)
	}
	e.ID = id
	return nil
}

// nullableString returns nil for empty strings so nullable TEXT columns stay NULL.
func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
