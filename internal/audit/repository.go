package audit

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

const (
	defaultQueryLimit = 100
	maxQueryLimit     = 1000
)

// Filter controls which entries List returns.
type Filter struct {
	Action Action // optional
	UserID string // optional: acting user
	Limit  int    // default 100, max 1000
	Offset int
}

// ListResult is one page of entries.
type ListResult struct {
	Entries []Entry `json:"entries"`
	Total   int     `json:"total"`
	Limit   int     `json:"limit"`
	Offset  int     `json:"offset"`
}

// Repository appends to and reads from audit_log. Entries are never
// updated or deleted; the schema's triggers reject both.
type Repository struct {
	db   *sql.DB
	sink Sink
}

// NewRepository creates a repository. sink may be nil.
func NewRepository(db *sql.DB, sink Sink) *Repository {
	return &Repository{db: db, sink: sink}
}

// Append writes a standalone entry and, once committed, hands it to the sink.
// Mutations that have their own transaction use Insert instead.
func (r *Repository) Append(ctx context.Context, e *Entry) error {
	if err := Insert(ctx, r.db, e); err != nil {
		return err
	}
	if r.sink != nil {
		r.sink.Publish(ctx, *e)
	}
	return nil
}

// Query returns the newest limit entries joined with the acting username.
func (r *Repository) Query(ctx context.Context, limit int) ([]Entry, error) {
	res, err := r.List(ctx, Filter{Limit: limit})
	if err != nil {
		return nil, err
	}
	return res.Entries, nil
}

// List returns entries matching filter, newest first.
func (r *Repository) List(ctx context.Context, filter Filter) (*ListResult, error) {
	if filter.Limit <= 0 {
		filter.Limit = defaultQueryLimit
	}
	if filter.Limit > maxQueryLimit {
		filter.Limit = maxQueryLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	var conditions []string
	var args []any
	if filter.Action != "" {
		conditions = append(conditions, "a.action = ?")
		args = append(args, string(filter.Action))
	}
	if filter.UserID != "" {
		conditions = append(conditions, "a.user_id = ?")
		args = append(args, filter.UserID)
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM audit_log a %s", where) //nolint:gosec // WHERE built from parameterised conditions, not user input
	var total int
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("counting audit entries: %w", err)
	}

	query := fmt.Sprintf( //nolint:gosec // WHERE built from parameterised conditions, not user input
		`SELECT a.id, a.created_at, COALESCE(a.user_id, ''), COALESCE(u.username, a.user_id, ''),
		        a.action, COALESCE(a.target_username, ''), COALESCE(a.details, '')
		 FROM audit_log a
		 LEFT JOIN users u ON u.id = a.user_id
		 %s
		 ORDER BY a.id DESC
		 LIMIT ? OFFSET ?`,
		where,
	)
	rows, err := r.db.QueryContext(ctx, query, append(args, filter.Limit, filter.Offset)...)
	if err != nil {
		return nil, fmt.Errorf("querying audit entries: %w", err)
	}
	defer rows.Close()

	entries := make([]Entry, 0)
	for rows.Next() {
		var e Entry
		var createdAt, action string
		if err := rows.Scan(&e.ID, &createdAt, &e.ActingUserID, &e.ActingUsername,
			&action, &e.TargetUsername, &e.Details); err != nil {
			return nil, fmt.Errorf("scanning audit entry: %w", err)
		}
		e.Action = Action(action)
		if ts, err := time.Parse(timeLayout, createdAt); err == nil {
			e.Timestamp = ts
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating audit entries: %w", err)
	}

	return &ListResult{
		Entries: entries,
		Total:   total,
		Limit:   filter.Limit,
		Offset:  filter.Offset,
	}, nil
}
