package ws

import (
	"github.com/rs/zerolog"

	"github.com/Sanishdngl/Event-sub000/internal/auth"
	"github.com/Sanishdngl/Event-sub000/internal/metrics"
)

// Engine delivers addressed events: to every open connection of one user,
// or to every member of a role cohort. Delivery is best-effort and
// fire-and-forget: a target that is not open at send time is skipped and
// scheduled for eviction, never queued or retried. Durability belongs to
// the store behind the REST path; the socket is a low-latency hint channel.
type Engine struct {
	registry *Registry
	logger   zerolog.Logger
	metrics  *metrics.Registry
}

// NewEngine builds a broadcast engine over the registry.
func NewEngine(registry *Registry, logger zerolog.Logger, m *metrics.Registry) *Engine {
	return &Engine{registry: registry, logger: logger, metrics: m}
}

// ToUser sends frame to every live connection whose identity matches
// userID. Multiple tabs for the same account all receive it; the fan-out is
// intentional. Returns the number of deliveries.
func (e *Engine) ToUser(userID string, frame ServerFrame) int {
	return e.deliver(frame, func(id auth.Identity) bool {
		return id.UserID == userID
	})
}

// ToRole sends frame to every live connection whose role matches ident,
// which may be a role name or a role id.
func (e *Engine) ToRole(ident string, frame ServerFrame) int {
	return e.deliver(frame, func(id auth.Identity) bool {
		return id.RoleName == ident || id.RoleID == ident
	})
}

// deliver marshals once, iterates a stable snapshot, and applies evictions
// only after the pass completes so a dead target cannot corrupt the
// iteration.
func (e *Engine) deliver(frame ServerFrame, match func(auth.Identity) bool) int {
	payload, err := frame.Encode()
	if err != nil {
		e.logger.Error().Err(err).Str("type", frame.Type).Msg("failed to encode frame")
		return 0
	}

	var dead []*Connection
	sent := 0
	for _, c := range e.registry.Snapshot() {
		if !match(c.Identity) {
			continue
		}
		if c.trySend(payload) {
			sent++
			e.metrics.MessagesSent.Inc()
		} else {
			dead = append(dead, c)
		}
	}

	for _, c := range dead {
		e.metrics.BroadcastDropped.Inc()
		reason := EvictSlowClient
		if c.IsClosed() {
			reason = EvictDeadSend
		}
		e.registry.Evict(c.ID, reason)
	}

	if len(dead) > 0 {
		e.logger.Debug().
			Str("type", frame.Type).
			Int("sent", sent).
			Int("skipped", len(dead)).
			Msg("broadcast skipped non-open targets")
	}
	return sent
}
