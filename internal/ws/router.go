package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/Sanishdngl/Event-sub000/internal/store"
)

// AdminRole is the role name allowed to subscribe to request-type
// notification feeds.
const AdminRole = "Admin"

// HandlerFunc processes one inbound command for one connection.
type HandlerFunc func(ctx context.Context, c *Connection, payload json.RawMessage)

// Router dispatches inbound client commands to handlers that mutate the
// notification store and produce outbound events. Malformed or unknown
// commands are recoverable: they are answered with an error frame and the
// connection stays open.
type Router struct {
	store    store.Store
	engine   *Engine
	logger   zerolog.Logger
	handlers map[string]HandlerFunc
}

// NewRouter wires the command handlers.
func NewRouter(st store.Store, engine *Engine, logger zerolog.Logger) *Router {
	r := &Router{store: st, engine: engine, logger: logger}
	r.handlers = map[string]HandlerFunc{
		TypeReadNotification: r.handleReadNotification,
		TypeReadAll:          r.handleReadAll,
		TypeSubscribeAdmin:   r.handleSubscribeAdmin,
		TypeSubscribeUnread:  r.handleSubscribeUnread,
		TypePing:             r.handlePing,
	}
	return r
}

// Dispatch parses raw and routes it to the matching handler.
func (r *Router) Dispatch(ctx context.Context, c *Connection, raw []byte) {
	var frame ClientFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		c.Send(ErrorFrame("invalid message: not a JSON frame"))
		return
	}

	handler, ok := r.handlers[frame.Type]
	if !ok {
		c.Send(ErrorFrame(fmt.Sprintf("unknown message type %q", frame.Type)))
		return
	}
	handler(ctx, c, frame.Payload)
}

func (r *Router) handleReadNotification(ctx context.Context, c *Connection, payload json.RawMessage) {
	var req ReadNotificationPayload
	if err := json.Unmarshal(payload, &req); err != nil || req.NotificationID == "" {
		c.Send(ErrorFrame("read_notification requires a notificationId"))
		return
	}

	n, err := r.store.MarkRead(ctx, req.NotificationID, c.Identity.Recipients())
	if errors.Is(err, store.ErrNotFound) {
		c.Send(ErrorFrame("notification not found"))
		return
	}
	if err != nil {
		r.logger.Error().Err(err).
			Str("connection_id", c.ID).
			Str("notification_id", req.NotificationID).
			Msg("mark read failed")
		c.Send(ErrorFrame("could not mark notification read"))
		return
	}

	// Acknowledge to every tab of this user, not just the commanding one,
	// so all of them converge on read state.
	r.engine.ToUser(c.Identity.UserID, NotificationReadFrame(n.ID))
}

func (r *Router) handleReadAll(ctx context.Context, c *Connection, _ json.RawMessage) {
	if _, err := r.store.MarkAllRead(ctx, c.Identity.Recipients()); err != nil {
		r.logger.Error().Err(err).
			Str("connection_id", c.ID).
			Msg("mark all read failed")
		c.Send(ErrorFrame("could not mark notifications read"))
		return
	}
	r.engine.ToUser(c.Identity.UserID, AllReadFrame())
}

func (r *Router) handleSubscribeAdmin(ctx context.Context, c *Connection, _ json.RawMessage) {
	if c.Identity.RoleName != AdminRole {
		c.Send(ErrorFrame("subscribe_admin_notifications requires the Admin role"))
		return
	}

	rcpts := []store.Recipient{store.Role(c.Identity.RoleID), store.Role(c.Identity.RoleName)}
	pending, err := r.store.ListRequests(ctx, rcpts)
	if err != nil {
		r.logger.Error().Err(err).
			Str("connection_id", c.ID).
			Msg("list admin requests failed")
		c.Send(ErrorFrame("could not load admin notifications"))
		return
	}

	for _, n := range pending {
		c.Send(NotificationFrame(n))
	}
}

func (r *Router) handleSubscribeUnread(ctx context.Context, c *Connection, _ json.RawMessage) {
	count, err := r.store.CountUnread(ctx, c.Identity.Recipients())
	if err != nil {
		r.logger.Error().Err(err).
			Str("connection_id", c.ID).
			Msg("count unread failed")
		c.Send(ErrorFrame("could not count unread notifications"))
		return
	}
	c.Send(UnreadCountFrame(count))
}

// handlePing answers the pull-driven client liveness check. No store access.
func (r *Router) handlePing(_ context.Context, c *Connection, _ json.RawMessage) {
	c.Send(PongFrame())
}
