package ws

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/Sanishdngl/Event-sub000/internal/auth"
	"github.com/Sanishdngl/Event-sub000/internal/metrics"
)

// ServerConfig tunes the transport handler.
type ServerConfig struct {
	MaxMessageSize int64
	// ReadTimeout is the read deadline window; it is refreshed on every
	// inbound frame and every pong. Zero derives it from the registry's
	// heartbeat settings.
	ReadTimeout time.Duration
}

// Server upgrades HTTP requests into authenticated notification-bus
// connections and runs their read/write pumps.
type Server struct {
	cfg      ServerConfig
	gate     *auth.Gate
	registry *Registry
	router   *Router
	logger   zerolog.Logger
	metrics  *metrics.Registry
	upgrader websocket.Upgrader
}

// NewServer wires the transport handler.
func NewServer(cfg ServerConfig, gate *auth.Gate, registry *Registry, router *Router, logger zerolog.Logger, m *metrics.Registry) *Server {
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = 4096
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 2 * (registry.cfg.PingInterval + registry.cfg.PongTimeout)
	}
	return &Server{
		cfg:      cfg,
		gate:     gate,
		registry: registry,
		router:   router,
		logger:   logger,
		metrics:  m,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// The credential gate is the real admission check; origin
			// enforcement belongs to the fronting proxy.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// ServeHTTP handles the /ws endpoint. The credential travels as a query
// parameter; the handshake is completed first so the rejection can be
// delivered as a distinct close code the client maps to "retry" or "stop".
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}

	identity, err := s.gate.Resolve(r.Context(), token)
	if err != nil {
		reason := auth.ReasonInternal
		var authErr *auth.Error
		if errors.As(err, &authErr) {
			reason = authErr.Reason
		}
		s.metrics.HandshakeRejections.WithLabelValues(string(reason)).Inc()
		s.logger.Warn().
			Str("reason", string(reason)).
			Str("remote", r.RemoteAddr).
			Msg("handshake rejected")

		deadline := time.Now().Add(writeWait)
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(reason.CloseCode(), string(reason)), deadline)
		conn.Close()
		return
	}

	c := s.registry.Admit(identity, conn)
	if c == nil {
		conn.Close()
		return
	}

	go s.writePump(c)
	s.readPump(r.Context(), c)
}

// readPump processes inbound frames in arrival order, preserving the
// per-socket ordering guarantee. It exits on any read error, which evicts
// the connection.
func (s *Server) readPump(ctx context.Context, c *Connection) {
	defer s.registry.Evict(c.ID, EvictReadError)

	c.conn.SetReadLimit(s.cfg.MaxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
	c.conn.SetPongHandler(func(string) error {
		c.markPong()
		return c.conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Debug().Err(err).Str("connection_id", c.ID).Msg("read error")
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
		s.metrics.MessagesReceived.Inc()

		// Flood protection: drop the frame, tell the client, keep the
		// connection. Rate violations are recoverable.
		if !c.limiter.Allow() {
			c.Send(ErrorFrame("rate limit exceeded, please slow down"))
			continue
		}

		s.router.Dispatch(ctx, c, raw)
	}
}

// writePump drains the send channel onto the socket. A write failure evicts
// the connection; the reader and heartbeat monitor race to the same
// idempotent eviction.
func (s *Server) writePump(c *Connection) {
	defer s.registry.Evict(c.ID, EvictWriteError)

	for {
		select {
		case <-c.done:
			return
		case payload := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				s.logger.Debug().Err(err).Str("connection_id", c.ID).Msg("write error")
				return
			}
		}
	}
}
