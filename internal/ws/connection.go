package ws

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/Sanishdngl/Event-sub000/internal/auth"
)

const (
	// Time allowed to write a frame to the peer.
	writeWait = 10 * time.Second
)

// Connection is one live, authenticated socket session. The identity is set
// at admission and never changes. Connections are owned exclusively by the
// Registry: admission and eviction are the only mutation points, everything
// else reads through snapshots.
type Connection struct {
	ID       string
	Identity auth.Identity

	conn      *websocket.Conn
	send      chan []byte
	done      chan struct{}
	closed    atomic.Bool
	lastPong  atomic.Int64 // unix nanos of the last liveness ack
	limiter   *rate.Limiter
	closeOnce sync.Once
}

func newConnection(id string, identity auth.Identity, conn *websocket.Conn, sendBuffer int, limiter *rate.Limiter) *Connection {
	c := &Connection{
		ID:       id,
		Identity: identity,
		conn:     conn,
		send:     make(chan []byte, sendBuffer),
		done:     make(chan struct{}),
		limiter:  limiter,
	}
	c.lastPong.Store(time.Now().UnixNano())
	return c
}

// markPong records a liveness acknowledgement from the peer.
func (c *Connection) markPong() {
	c.lastPong.Store(time.Now().UnixNano())
}

// LastPong returns the time of the most recent liveness acknowledgement.
func (c *Connection) LastPong() time.Time {
	return time.Unix(0, c.lastPong.Load())
}

// IsClosed reports whether the connection has been torn down.
func (c *Connection) IsClosed() bool { return c.closed.Load() }

// trySend queues payload without blocking. Returns false when the
// connection is closed or its buffer is full; the caller decides whether
// that schedules an eviction. The send channel is never closed, so a racing
// trySend against an eviction is safe.
func (c *Connection) trySend(payload []byte) bool {
	if c.closed.Load() {
		return false
	}
	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

// Send encodes frame and queues it best-effort.
func (c *Connection) Send(frame ServerFrame) bool {
	payload, err := frame.Encode()
	if err != nil {
		return false
	}
	return c.trySend(payload)
}

// close tears down the socket. Idempotent; both the read pump's exit and a
// heartbeat timeout can race to get here.
func (c *Connection) close() {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		close(c.done)
		c.conn.Close()
	})
}

// closeWithCode writes a close frame before tearing down, so the peer can
// map the code to a retry decision.
func (c *Connection) closeWithCode(code int, reason string) {
	deadline := time.Now().Add(writeWait)
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason), deadline)
	c.close()
}
