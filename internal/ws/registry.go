package ws

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/Sanishdngl/Event-sub000/internal/auth"
	"github.com/Sanishdngl/Event-sub000/internal/metrics"
)

// Eviction reasons, recorded in metrics and logs.
const (
	EvictReadError        = "read_error"
	EvictWriteError       = "write_error"
	EvictHeartbeatTimeout = "heartbeat_timeout"
	EvictDeadSend         = "dead_send"
	EvictSlowClient       = "slow_client"
	EvictShutdown         = "shutdown"
)

// RegistryConfig tunes connection admission and heartbeat behaviour.
type RegistryConfig struct {
	PingInterval time.Duration // liveness probe period
	PongTimeout  time.Duration // window after a probe to observe the ack
	SendBuffer   int           // outbound channel capacity per connection
	MessageRate  float64       // sustained inbound frames per second
	MessageBurst int           // inbound burst allowance
}

func (c RegistryConfig) withDefaults() RegistryConfig {
	if c.PingInterval <= 0 {
		c.PingInterval = 30 * time.Second
	}
	if c.PongTimeout <= 0 {
		c.PongTimeout = 5 * time.Second
	}
	if c.SendBuffer <= 0 {
		c.SendBuffer = 256
	}
	if c.MessageRate <= 0 {
		c.MessageRate = 10
	}
	if c.MessageBurst <= 0 {
		c.MessageBurst = 100
	}
	return c
}

// Registry is the process-wide table of live authenticated connections. It
// owns their lifecycle: Admit and Evict are the only mutation points, and
// every reader works from a Snapshot so an eviction during a broadcast pass
// cannot invalidate the iteration.
type Registry struct {
	cfg     RegistryConfig
	logger  zerolog.Logger
	metrics *metrics.Registry

	mu    sync.RWMutex
	conns map[string]*Connection

	wg     sync.WaitGroup
	closed bool
}

// NewRegistry builds an empty registry. It is an injectable component with
// a bounded lifecycle, not a package global; tests construct their own.
func NewRegistry(cfg RegistryConfig, logger zerolog.Logger, m *metrics.Registry) *Registry {
	return &Registry{
		cfg:     cfg.withDefaults(),
		logger:  logger,
		metrics: m,
		conns:   make(map[string]*Connection),
	}
}

// Admit registers an authenticated socket and starts its heartbeat monitor.
// Returns nil when the registry is already shut down.
func (r *Registry) Admit(identity auth.Identity, conn *websocket.Conn) *Connection {
	limiter := rate.NewLimiter(rate.Limit(r.cfg.MessageRate), r.cfg.MessageBurst)
	c := newConnection(uuid.NewString(), identity, conn, r.cfg.SendBuffer, limiter)

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		c.close()
		return nil
	}
	r.conns[c.ID] = c
	count := len(r.conns)
	r.wg.Add(1)
	r.mu.Unlock()

	r.metrics.ActiveConnections.Inc()
	r.metrics.ConnectionsTotal.Inc()
	r.logger.Info().
		Str("connection_id", c.ID).
		Str("user_id", identity.UserID).
		Str("role", identity.RoleName).
		Int("connections", count).
		Msg("connection admitted")

	go func() {
		defer r.wg.Done()
		r.heartbeat(c)
	}()
	return c
}

// Evict removes the connection from the table, stops its heartbeat and
// closes the socket. Idempotent: evicting an already-evicted connection is
// a no-op, because the socket close event and a heartbeat timeout can race
// to evict the same connection.
func (r *Registry) Evict(id, reason string) bool {
	r.mu.Lock()
	c, ok := r.conns[id]
	if ok {
		delete(r.conns, id)
	}
	count := len(r.conns)
	r.mu.Unlock()

	if !ok {
		return false
	}

	c.close()
	r.metrics.ActiveConnections.Dec()
	r.metrics.Evictions.WithLabelValues(reason).Inc()
	r.logger.Info().
		Str("connection_id", id).
		Str("user_id", c.Identity.UserID).
		Str("reason", reason).
		Int("connections", count).
		Msg("connection evicted")
	return true
}

// Snapshot returns a stable copy of the live connections. Broadcast passes
// iterate the snapshot and apply any resulting evictions afterward.
func (r *Registry) Snapshot() []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Connection, 0, len(r.conns))
	for _, c := range r.conns {
		out = append(out, c)
	}
	return out
}

// Len returns the number of live connections.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// Close evicts every connection and waits for their heartbeat monitors to
// stop. The registry refuses admissions afterwards.
func (r *Registry) Close() {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()

	for _, c := range r.Snapshot() {
		r.Evict(c.ID, EvictShutdown)
	}
	r.wg.Wait()
}
