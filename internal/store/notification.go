package store

import (
	"fmt"
	"time"
)

// Type classifies a notification. Event-scoped types require an EventID.
type Type string

const (
	TypeEventRequest       Type = "event_request"
	TypeEventResponse      Type = "event_response"
	TypeEventUpdate        Type = "event_update"
	TypeSystemNotification Type = "system_notification"
	TypeProfileUpdate      Type = "profile_update"
)

// IsEventScoped reports whether the type refers to a specific event record.
func (t Type) IsEventScoped() bool {
	switch t {
	case TypeEventRequest, TypeEventResponse, TypeEventUpdate:
		return true
	}
	return false
}

// Status is the lifecycle state of a persisted notification.
type Status string

const (
	StatusUnread   Status = "unread"
	StatusRead     Status = "read"
	StatusArchived Status = "archived"
)

// Notification is the persisted record. The WebSocket layer and the REST
// layer both read and write this through the same Store, so a client
// refreshing over REST sees socket-driven changes and vice versa.
type Notification struct {
	ID        string    `json:"id" db:"id"`
	Message   string    `json:"message" db:"message"`
	Type      Type      `json:"type" db:"type"`
	ForRole   string    `json:"forRole" db:"for_role"`
	UserID    string    `json:"userId,omitempty" db:"user_id"`
	EventID   string    `json:"eventId,omitempty" db:"event_id"`
	Read      bool      `json:"read" db:"read"`
	Status    Status    `json:"status" db:"status"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}

// Validate checks structural invariants before a create.
func (n *Notification) Validate() error {
	switch n.Type {
	case TypeEventRequest, TypeEventResponse, TypeEventUpdate,
		TypeSystemNotification, TypeProfileUpdate:
	default:
		return fmt.Errorf("unknown notification type %q", n.Type)
	}
	if n.Message == "" {
		return fmt.Errorf("notification message is required")
	}
	if n.Type.IsEventScoped() && n.EventID == "" {
		return fmt.Errorf("notification type %q requires an event id", n.Type)
	}
	if n.ForRole == "" && n.UserID == "" {
		return fmt.Errorf("notification needs a user or role recipient")
	}
	return nil
}

// RecipientKind tags a Recipient as a user or role address.
type RecipientKind int

const (
	KindUser RecipientKind = iota
	KindRole
)

// Recipient is the tagged address used by recipient predicates. A
// notification matches User(id) when its UserID equals id, and Role(ident)
// when its ForRole equals ident. Queries take a list of recipients and
// match any of them, which is how "my notifications" ORs the direct-user
// and role-cohort addressing together.
type Recipient struct {
	Kind  RecipientKind
	Ident string
}

// User addresses notifications sent directly to a user id.
func User(id string) Recipient { return Recipient{Kind: KindUser, Ident: id} }

// Role addresses notifications sent to a role cohort. The identifier may be
// a role id or a role name; the store matches it verbatim against ForRole.
func Role(ident string) Recipient { return Recipient{Kind: KindRole, Ident: ident} }

// Matches reports whether n is addressed to r.
func (r Recipient) Matches(n *Notification) bool {
	switch r.Kind {
	case KindUser:
		return n.UserID != "" && n.UserID == r.Ident
	case KindRole:
		return n.ForRole != "" && n.ForRole == r.Ident
	}
	return false
}

// MatchesAny reports whether n is addressed to any of rcpts.
func MatchesAny(n *Notification, rcpts []Recipient) bool {
	for _, r := range rcpts {
		if r.Matches(n) {
			return true
		}
	}
	return false
}
