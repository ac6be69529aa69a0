package ws

import (
	"time"

	"github.com/gorilla/websocket"
)

// heartbeat is the push-driven liveness monitor for one connection: every
// PingInterval send a protocol ping and record the probe time; if no pong
// is observed within PongTimeout after the probe, evict. This is
// independent from the application-level "ping" command a client may send
// proactively; either side needs to detect the other's silence.
func (r *Registry) heartbeat(c *Connection) {
	ticker := time.NewTicker(r.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			// Socket already torn down when the interval fires: evict
			// immediately rather than waiting for a probe round-trip.
			if c.IsClosed() {
				r.Evict(c.ID, EvictHeartbeatTimeout)
				return
			}

			probe := time.Now()
			err := c.conn.WriteControl(websocket.PingMessage, nil, probe.Add(writeWait))
			if err != nil {
				r.Evict(c.ID, EvictHeartbeatTimeout)
				return
			}

			select {
			case <-c.done:
				return
			case <-time.After(r.cfg.PongTimeout):
				// Read pump records pongs; anything recorded before the
				// probe means the peer went silent.
				if c.LastPong().Before(probe) {
					r.Evict(c.ID, EvictHeartbeatTimeout)
					return
				}
			}
		}
	}
}
