package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	// Registers the "postgres" database/sql driver.
	_ "github.com/lib/pq"
)

const schema = `
CREATE TABLE IF NOT EXISTS notifications (
	id         UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	message    TEXT NOT NULL,
	type       TEXT NOT NULL,
	for_role   TEXT NOT NULL DEFAULT '',
	user_id    TEXT NOT NULL DEFAULT '',
	event_id   TEXT NOT NULL DEFAULT '',
	read       BOOLEAN NOT NULL DEFAULT FALSE,
	status     TEXT NOT NULL DEFAULT 'unread',
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_notifications_user_id ON notifications (user_id);
CREATE INDEX IF NOT EXISTS idx_notifications_for_role ON notifications (for_role);
`

const selectColumns = "id, message, type, for_role, user_id, event_id, read, status, created_at"

// Postgres is the production Store backed by database/sql + lib/pq.
type Postgres struct {
	db *sql.DB
}

// OpenPostgres connects to dsn and verifies the connection.
func OpenPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Postgres{db: db}, nil
}

// NewPostgres wraps an existing database handle. Used by tests.
func NewPostgres(db *sql.DB) *Postgres { return &Postgres{db: db} }

// EnsureSchema creates the notifications table and indexes if missing.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// Close releases the underlying pool.
func (p *Postgres) Close() error { return p.db.Close() }

// DB exposes the handle so collaborators (the user directory) can share
// the same pool.
func (p *Postgres) DB() *sql.DB { return p.db }

// recipientClause builds "(user_id = $n OR for_role = $m ...)" for the
// recipient set, appending bind arguments to args.
func recipientClause(rcpts []Recipient, args *[]any) string {
	conds := make([]string, 0, len(rcpts))
	for _, r := range rcpts {
		*args = append(*args, r.Ident)
		switch r.Kind {
		case KindUser:
			conds = append(conds, fmt.Sprintf("user_id = $%d", len(*args)))
		case KindRole:
			conds = append(conds, fmt.Sprintf("for_role = $%d", len(*args)))
		}
	}
	if len(conds) == 0 {
		// No recipients can never match; keeps callers honest without
		// turning a bug into a full-table read.
		return "FALSE"
	}
	return "(" + strings.Join(conds, " OR ") + ")"
}

func filterClause(f Filter) string {
	switch f {
	case FilterUnread:
		return " AND status = 'unread'"
	case FilterEvent:
		return " AND type IN ('event_request', 'event_response', 'event_update')"
	case FilterSystem:
		return " AND type = 'system_notification'"
	case FilterProfile:
		return " AND type = 'profile_update'"
	}
	return ""
}

func scanNotification(row interface{ Scan(...any) error }) (*Notification, error) {
	n := &Notification{}
	err := row.Scan(&n.ID, &n.Message, &n.Type, &n.ForRole, &n.UserID,
		&n.EventID, &n.Read, &n.Status, &n.CreatedAt)
	if err != nil {
		return nil, err
	}
	return n, nil
}

func (p *Postgres) Create(ctx context.Context, n *Notification) (*Notification, error) {
	if err := n.Validate(); err != nil {
		return nil, err
	}
	if n.Status == "" {
		n.Status = StatusUnread
	}
	err := p.db.QueryRowContext(ctx,
		`INSERT INTO notifications (message, type, for_role, user_id, event_id, read, status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id, created_at`,
		n.Message, n.Type, n.ForRole, n.UserID, n.EventID, n.Read, n.Status,
	).Scan(&n.ID, &n.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert notification: %w", err)
	}
	return n, nil
}

func (p *Postgres) List(ctx context.Context, rcpts []Recipient, q ListQuery) (*Page, error) {
	q = q.normalized()

	var args []any
	where := "WHERE " + recipientClause(rcpts, &args) + filterClause(q.Filter)

	var total int64
	err := p.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM notifications "+where, args...).Scan(&total)
	if err != nil {
		return nil, fmt.Errorf("count notifications: %w", err)
	}

	args = append(args, q.Limit, (q.Page-1)*q.Limit)
	rows, err := p.db.QueryContext(ctx,
		fmt.Sprintf("SELECT %s FROM notifications %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d",
			selectColumns, where, len(args)-1, len(args)),
		args...)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	items := make([]*Notification, 0, q.Limit)
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		items = append(items, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}

	totalPages := int((total + int64(q.Limit) - 1) / int64(q.Limit))
	return &Page{
		Items:      items,
		Page:       q.Page,
		TotalPages: totalPages,
		Total:      total,
		Limit:      q.Limit,
	}, nil
}

func (p *Postgres) MarkRead(ctx context.Context, id string, rcpts []Recipient) (*Notification, error) {
	args := []any{id}
	clause := recipientClause(rcpts, &args)
	row := p.db.QueryRowContext(ctx,
		fmt.Sprintf(`UPDATE notifications SET read = TRUE, status = 'read'
			WHERE id = $1 AND %s RETURNING %s`, clause, selectColumns),
		args...)
	n, err := scanNotification(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("mark notification read: %w", err)
	}
	return n, nil
}

func (p *Postgres) MarkAllRead(ctx context.Context, rcpts []Recipient) (int64, error) {
	var args []any
	clause := recipientClause(rcpts, &args)
	res, err := p.db.ExecContext(ctx,
		fmt.Sprintf(`UPDATE notifications SET read = TRUE, status = 'read'
			WHERE status = 'unread' AND %s`, clause),
		args...)
	if err != nil {
		return 0, fmt.Errorf("mark all read: %w", err)
	}
	return res.RowsAffected()
}

func (p *Postgres) Delete(ctx context.Context, id string, rcpts []Recipient) error {
	args := []any{id}
	clause := recipientClause(rcpts, &args)
	res, err := p.db.ExecContext(ctx,
		"DELETE FROM notifications WHERE id = $1 AND "+clause, args...)
	if err != nil {
		return fmt.Errorf("delete notification: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) CountUnread(ctx context.Context, rcpts []Recipient) (int64, error) {
	var args []any
	clause := recipientClause(rcpts, &args)
	var count int64
	err := p.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM notifications WHERE status = 'unread' AND "+clause,
		args...).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count unread: %w", err)
	}
	return count, nil
}

func (p *Postgres) ListRequests(ctx context.Context, rcpts []Recipient) ([]*Notification, error) {
	var args []any
	clause := recipientClause(rcpts, &args)
	rows, err := p.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT %s FROM notifications
			WHERE type = 'event_request' AND status = 'unread' AND %s
			ORDER BY created_at DESC`, selectColumns, clause),
		args...)
	if err != nil {
		return nil, fmt.Errorf("list requests: %w", err)
	}
	defer rows.Close()

	var items []*Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		items = append(items, n)
	}
	return items, rows.Err()
}
