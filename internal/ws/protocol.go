package ws

import (
	"encoding/json"

	"github.com/Sanishdngl/Event-sub000/internal/store"
)

// Client→server frame types.
const (
	TypeReadNotification = "read_notification"
	TypeReadAll          = "read_all_notifications"
	TypeSubscribeAdmin   = "subscribe_admin_notifications"
	TypeSubscribeUnread  = "subscribe_unread_count"
	TypePing             = "ping"
)

// Server→client frame types.
const (
	TypeNotification        = "notification"
	TypeNotificationRead    = "notification_read"
	TypeAllRead             = "all_notifications_read"
	TypeNotificationDeleted = "notification_deleted"
	TypeUnreadCount         = "unread_count_update"
	TypeError               = "error"
	TypePong                = "pong"
)

// ClientFrame is the envelope of an inbound command.
type ClientFrame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// ReadNotificationPayload is the payload of a read_notification command.
type ReadNotificationPayload struct {
	NotificationID string `json:"notificationId"`
}

// ServerFrame is the envelope of an outbound event. Field placement follows
// the wire protocol: notification and notification_deleted carry a payload
// object, notification_read and unread_count_update carry top-level fields.
type ServerFrame struct {
	Type           string `json:"type"`
	Payload        any    `json:"payload,omitempty"`
	NotificationID string `json:"notificationId,omitempty"`
	Count          *int64 `json:"count,omitempty"`
	Message        string `json:"message,omitempty"`
}

// Encode marshals the frame for the wire.
func (f ServerFrame) Encode() ([]byte, error) { return json.Marshal(f) }

type notificationPayload struct {
	Notification *store.Notification `json:"notification"`
}

type notificationIDPayload struct {
	NotificationID string `json:"notificationId"`
}

// NotificationFrame wraps a pushed notification.
func NotificationFrame(n *store.Notification) ServerFrame {
	return ServerFrame{Type: TypeNotification, Payload: notificationPayload{Notification: n}}
}

// NotificationReadFrame acknowledges a single mark-read.
func NotificationReadFrame(id string) ServerFrame {
	return ServerFrame{Type: TypeNotificationRead, NotificationID: id}
}

// AllReadFrame acknowledges a bulk mark-read.
func AllReadFrame() ServerFrame {
	return ServerFrame{Type: TypeAllRead}
}

// NotificationDeletedFrame announces a deletion.
func NotificationDeletedFrame(id string) ServerFrame {
	return ServerFrame{Type: TypeNotificationDeleted, Payload: notificationIDPayload{NotificationID: id}}
}

// UnreadCountFrame carries a fresh unread count.
func UnreadCountFrame(count int64) ServerFrame {
	return ServerFrame{Type: TypeUnreadCount, Count: &count}
}

// ErrorFrame reports a recoverable protocol or store error. The connection
// stays open; malformed commands are not fatal.
func ErrorFrame(message string) ServerFrame {
	return ServerFrame{Type: TypeError, Message: message}
}

// PongFrame answers an application-level ping command.
func PongFrame() ServerFrame {
	return ServerFrame{Type: TypePong}
}
