// Package notify is the integration point request handlers use after a
// state change: persist the notification, then push a best-effort hint to
// the addressed connections. Event approval, new event requests and the
// like all go through Publish, which keeps the WS layer simultaneously a
// command channel and a fan-out channel.
package notify

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/Sanishdngl/Event-sub000/internal/store"
	"github.com/Sanishdngl/Event-sub000/internal/ws"
)

// Publisher writes notifications to the store and broadcasts them.
type Publisher struct {
	store  store.Store
	engine *ws.Engine
	logger zerolog.Logger
}

// NewPublisher wires a publisher over the store and broadcast engine.
func NewPublisher(st store.Store, engine *ws.Engine, logger zerolog.Logger) *Publisher {
	return &Publisher{store: st, engine: engine, logger: logger}
}

// Publish persists n, then pushes it to the addressed user when the
// notification carries one, and to the role cohort otherwise. The store
// write is authoritative; the push is fire-and-forget.
func (p *Publisher) Publish(ctx context.Context, n *store.Notification) (*store.Notification, error) {
	created, err := p.store.Create(ctx, n)
	if err != nil {
		return nil, err
	}

	frame := ws.NotificationFrame(created)
	var sent int
	if created.UserID != "" {
		sent = p.engine.ToUser(created.UserID, frame)
	} else {
		sent = p.engine.ToRole(created.ForRole, frame)
	}

	p.logger.Debug().
		Str("notification_id", created.ID).
		Str("type", string(created.Type)).
		Str("user_id", created.UserID).
		Str("for_role", created.ForRole).
		Int("delivered", sent).
		Msg("notification published")
	return created, nil
}

// PublishDeleted announces a deletion to the affected user's open tabs.
func (p *Publisher) PublishDeleted(userID, notificationID string) {
	if userID == "" {
		return
	}
	p.engine.ToUser(userID, ws.NotificationDeletedFrame(notificationID))
}
