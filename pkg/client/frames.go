// Package client is the connection-manager peer of the notification bus:
// socket lifecycle with linear-backoff reconnection, outbound queueing
// while disconnected, a local publish/subscribe registry, and notification
// state reconciliation against both REST pages and push events.
package client

import (
	"encoding/json"
	"time"
)

// Frame is one JSON message in either direction.
type Frame struct {
	Type           string          `json:"type"`
	Payload        json.RawMessage `json:"payload,omitempty"`
	NotificationID string          `json:"notificationId,omitempty"`
	Count          *int64          `json:"count,omitempty"`
	Message        string          `json:"message,omitempty"`
}

// Frame types, mirroring the server protocol.
const (
	EventNotification        = "notification"
	EventNotificationRead    = "notification_read"
	EventAllRead             = "all_notifications_read"
	EventNotificationDeleted = "notification_deleted"
	EventUnreadCount         = "unread_count_update"
	EventError               = "error"
	EventPong                = "pong"

	CommandReadNotification = "read_notification"
	CommandReadAll          = "read_all_notifications"
	CommandSubscribeAdmin   = "subscribe_admin_notifications"
	CommandSubscribeUnread  = "subscribe_unread_count"
	CommandPing             = "ping"
)

// Synthetic local events emitted by the manager itself, never received
// from the wire.
const (
	EventConnected      = "connected"
	EventDisconnected   = "disconnected"
	EventAuthFailed     = "auth_failed"
	EventConnectionLost = "connection_lost"
)

// Notification is the client-side view of a persisted notification.
type Notification struct {
	ID        string    `json:"id"`
	Message   string    `json:"message"`
	Type      string    `json:"type"`
	ForRole   string    `json:"forRole"`
	UserID    string    `json:"userId,omitempty"`
	EventID   string    `json:"eventId,omitempty"`
	Read      bool      `json:"read"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
}

// Page is one page of the REST listing.
type Page struct {
	Items      []Notification `json:"notifications"`
	Page       int            `json:"page"`
	TotalPages int            `json:"totalPages"`
	Total      int64          `json:"total"`
	Limit      int            `json:"limit"`
}

type notificationPayload struct {
	Notification Notification `json:"notification"`
}

type notificationIDPayload struct {
	NotificationID string `json:"notificationId"`
}
