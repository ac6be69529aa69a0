package store

import (
	"context"
	"errors"
)

// ErrNotFound is returned when an id does not resolve to a notification
// visible to the given recipients.
var ErrNotFound = errors.New("notification not found")

// Filter narrows a listing. Values mirror the REST query parameter.
type Filter string

const (
	FilterAll     Filter = "all"
	FilterUnread  Filter = "unread"
	FilterEvent   Filter = "event"
	FilterSystem  Filter = "system"
	FilterProfile Filter = "profile"
)

// Valid reports whether f is a known filter value.
func (f Filter) Valid() bool {
	switch f {
	case FilterAll, FilterUnread, FilterEvent, FilterSystem, FilterProfile:
		return true
	}
	return false
}

// Match applies the filter to a single notification.
func (f Filter) Match(n *Notification) bool {
	switch f {
	case "", FilterAll:
		return true
	case FilterUnread:
		return n.Status == StatusUnread
	case FilterEvent:
		return n.Type.IsEventScoped()
	case FilterSystem:
		return n.Type == TypeSystemNotification
	case FilterProfile:
		return n.Type == TypeProfileUpdate
	}
	return false
}

// ListQuery is a paginated listing request. Page is 1-based.
type ListQuery struct {
	Page   int
	Limit  int
	Filter Filter
}

func (q ListQuery) normalized() ListQuery {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.Limit < 1 {
		q.Limit = 10
	}
	if q.Filter == "" {
		q.Filter = FilterAll
	}
	return q
}

// Page is one page of a listing, newest first.
type Page struct {
	Items      []*Notification `json:"notifications"`
	Page       int             `json:"page"`
	TotalPages int             `json:"totalPages"`
	Total      int64           `json:"total"`
	Limit      int             `json:"limit"`
}

// Store is the persisted notification collection. Both the WebSocket command
// handlers and the REST handlers converge on this interface; it is the
// system of record, while the push channel stays best-effort.
//
// Every recipient-scoped operation takes the caller's full recipient set
// (direct user id plus role identifiers) and matches any of them.
type Store interface {
	Create(ctx context.Context, n *Notification) (*Notification, error)
	List(ctx context.Context, rcpts []Recipient, q ListQuery) (*Page, error)
	MarkRead(ctx context.Context, id string, rcpts []Recipient) (*Notification, error)
	MarkAllRead(ctx context.Context, rcpts []Recipient) (int64, error)
	Delete(ctx context.Context, id string, rcpts []Recipient) error
	CountUnread(ctx context.Context, rcpts []Recipient) (int64, error)

	// ListRequests returns pending request-type notifications addressed to
	// the recipients, newest first. Used by the admin subscription command.
	ListRequests(ctx context.Context, rcpts []Recipient) ([]*Notification, error)
}
