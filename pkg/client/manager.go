package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// State is the connection lifecycle state.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateOpen
	StateClosing
	// StateAuthFailed is terminal: the server rejected the credential, so
	// auto-reconnecting is pointless until the user re-authenticates.
	StateAuthFailed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateAuthFailed:
		return "auth_failed"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// Handshake rejection close codes (4001–4006) mirror the server's
// authentication taxonomy; any of them means "stop retrying".
const (
	closeAuthMin = 4001
	closeAuthMax = 4006
)

const (
	defaultBaseBackoff  = 1 * time.Second
	defaultMaxAttempts  = 5
	defaultPingInterval = 30 * time.Second
	defaultPongTimeout  = 40 * time.Second
	clientWriteWait     = 10 * time.Second
)

// Options configures a Manager.
type Options struct {
	URL   string // ws:// or wss:// endpoint
	Token string // bearer credential, sent as the token query parameter

	BaseBackoff  time.Duration // reconnect delay unit (delay = base × attempt)
	MaxAttempts  int           // reconnect attempts before giving up
	PingInterval time.Duration // client-side liveness probe period
	PongTimeout  time.Duration // silence window before force-closing

	Logger zerolog.Logger
	Dialer *websocket.Dialer
}

func (o Options) withDefaults() Options {
	if o.BaseBackoff <= 0 {
		o.BaseBackoff = defaultBaseBackoff
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = defaultMaxAttempts
	}
	if o.PingInterval <= 0 {
		o.PingInterval = defaultPingInterval
	}
	if o.PongTimeout <= 0 {
		o.PongTimeout = defaultPongTimeout
	}
	if o.Dialer == nil {
		o.Dialer = &websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	}
	return o
}

// Manager owns the client socket lifecycle: dialing, linear-backoff
// reconnection, outbound queueing while disconnected, liveness probing and
// the local publish/subscribe registry.
type Manager struct {
	opts   Options
	events *pubsub

	mu      sync.Mutex
	state   State
	conn    *websocket.Conn
	session chan struct{} // closed when the current connection dies
	queue   [][]byte      // FIFO outbound queue while not OPEN
	closed  bool

	writeMu  sync.Mutex
	lastPong atomic.Int64
}

// NewManager builds a manager; call Connect to start it.
func NewManager(opts Options) *Manager {
	return &Manager{
		opts:   opts.withDefaults(),
		events: newPubsub(),
		state:  StateDisconnected,
	}
}

// On subscribes handler to an event type (wire frame types plus the
// synthetic connected/disconnected/auth_failed/connection_lost events).
func (m *Manager) On(event string, h Handler) { m.events.on(event, h) }

// Off removes handler from an event type. A nil handler removes every
// handler for that event.
func (m *Manager) Off(event string, h Handler) { m.events.off(event, h) }

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// SetToken replaces the credential and clears a terminal auth failure, so
// a following Connect retries with the fresh token.
func (m *Manager) SetToken(token string) {
	m.mu.Lock()
	m.opts.Token = token
	if m.state == StateAuthFailed {
		m.state = StateDisconnected
	}
	m.mu.Unlock()
}

// Connect starts the connection attempt cycle in the background. No-op
// while already connecting or open, and while auth has terminally failed.
func (m *Manager) Connect() {
	m.mu.Lock()
	if m.closed || m.state == StateConnecting || m.state == StateOpen || m.state == StateAuthFailed {
		m.mu.Unlock()
		return
	}
	m.state = StateConnecting
	m.mu.Unlock()

	go m.dialLoop()
}

// Send queues frame while not OPEN and writes it directly otherwise.
// Queued frames are flushed in issue order as soon as the socket opens.
func (m *Manager) Send(f Frame) error {
	payload, err := json.Marshal(f)
	if err != nil {
		return err
	}

	m.mu.Lock()
	if m.state != StateOpen || m.conn == nil {
		m.queue = append(m.queue, payload)
		m.mu.Unlock()
		return nil
	}
	conn := m.conn
	m.mu.Unlock()

	return m.write(conn, payload)
}

// Close tears the connection down intentionally and stops reconnecting.
func (m *Manager) Close() {
	m.mu.Lock()
	m.closed = true
	conn := m.conn
	if conn != nil {
		m.state = StateClosing
	}
	m.mu.Unlock()

	if conn != nil {
		deadline := time.Now().Add(clientWriteWait)
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		conn.Close()
	}

	m.mu.Lock()
	m.state = StateDisconnected
	m.mu.Unlock()
}

// dialLoop attempts to connect with linear backoff: delay = base × attempt,
// at most MaxAttempts attempts. On exhaustion it emits connection_lost and
// gives up rather than retrying forever.
func (m *Manager) dialLoop() {
	for attempt := 1; ; attempt++ {
		if m.isClosed() {
			return
		}
		m.setState(StateConnecting)

		conn, err := m.dial()
		if err == nil {
			m.onOpen(conn, attempt)
			return
		}

		m.setState(StateDisconnected)
		m.opts.Logger.Warn().Err(err).
			Int("attempt", attempt).
			Int("max_attempts", m.opts.MaxAttempts).
			Msg("connect attempt failed")

		if attempt >= m.opts.MaxAttempts {
			m.opts.Logger.Error().Msg("giving up reconnecting")
			m.events.emit(EventConnectionLost, Frame{Type: EventConnectionLost})
			return
		}
		time.Sleep(m.opts.BaseBackoff * time.Duration(attempt))
	}
}

func (m *Manager) dial() (*websocket.Conn, error) {
	u, err := url.Parse(m.opts.URL)
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}
	q := u.Query()
	m.mu.Lock()
	q.Set("token", m.opts.Token)
	m.mu.Unlock()
	u.RawQuery = q.Encode()

	conn, resp, err := m.opts.Dialer.Dial(u.String(), nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, err
	}
	return conn, nil
}

func (m *Manager) onOpen(conn *websocket.Conn, attempt int) {
	session := make(chan struct{})

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		conn.Close()
		return
	}
	m.conn = conn
	m.session = session
	m.state = StateOpen
	pending := m.queue
	m.queue = nil
	m.mu.Unlock()

	m.lastPong.Store(time.Now().UnixNano())
	m.opts.Logger.Info().Int("attempt", attempt).Msg("connected")
	m.events.emit(EventConnected, Frame{Type: EventConnected})

	// Flush the queue in the exact order the frames were issued.
	for i, payload := range pending {
		if err := m.write(conn, payload); err != nil {
			remaining := append([][]byte{}, pending[i:]...)
			m.mu.Lock()
			m.queue = append(remaining, m.queue...)
			m.mu.Unlock()
			break
		}
	}

	go m.readLoop(conn)
	go m.pingLoop(conn, session)
}

func (m *Manager) readLoop(conn *websocket.Conn) {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			m.onDisconnect(conn, err)
			return
		}

		var frame Frame
		if jsonErr := json.Unmarshal(raw, &frame); jsonErr != nil {
			m.opts.Logger.Debug().Err(jsonErr).Msg("dropping unparseable frame")
			continue
		}
		if frame.Type == EventPong {
			m.lastPong.Store(time.Now().UnixNano())
		}
		m.events.emit(frame.Type, frame)
	}
}

// pingLoop is the client half of the symmetric liveness check: send an
// application-level ping every PingInterval, and force-close when no pong
// has been observed within PongTimeout, so a half-open connection is
// detected from this side even when the transport stays silent.
func (m *Manager) pingLoop(conn *websocket.Conn, session chan struct{}) {
	ticker := time.NewTicker(m.opts.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-session:
			return
		case <-ticker.C:
			last := time.Unix(0, m.lastPong.Load())
			if time.Since(last) > m.opts.PongTimeout {
				m.opts.Logger.Warn().Msg("liveness timeout, forcing reconnect")
				conn.Close() // read loop observes the error and reconnects
				return
			}
			if err := m.Send(Frame{Type: CommandPing}); err != nil {
				return
			}
		}
	}
}

func (m *Manager) onDisconnect(conn *websocket.Conn, err error) {
	m.mu.Lock()
	if m.conn != conn {
		// A newer session already superseded this one.
		m.mu.Unlock()
		return
	}
	m.conn = nil
	close(m.session)
	m.session = nil
	intentional := m.closed

	authFailed := false
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) && closeErr.Code >= closeAuthMin && closeErr.Code <= closeAuthMax {
		authFailed = true
		m.state = StateAuthFailed
	} else {
		m.state = StateDisconnected
	}
	m.mu.Unlock()

	conn.Close()

	if authFailed {
		m.opts.Logger.Error().Err(err).Msg("authentication rejected, not reconnecting")
		m.events.emit(EventAuthFailed, Frame{Type: EventAuthFailed, Message: err.Error()})
		return
	}

	m.events.emit(EventDisconnected, Frame{Type: EventDisconnected})
	if intentional {
		return
	}

	m.opts.Logger.Info().Err(err).Msg("connection dropped, reconnecting")
	go m.dialLoop()
}

func (m *Manager) write(conn *websocket.Conn, payload []byte) error {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(clientWriteWait))
	return conn.WriteMessage(websocket.TextMessage, payload)
}

func (m *Manager) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func (m *Manager) setState(s State) {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()
}
