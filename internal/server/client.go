// Package server manages individual broadcast clients: a buffered outbound
// queue with byte-accounted backpressure, a read pump that drains and
// discards inbound frames, and a write pump with keepalive pings.
package server

import (
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// client is one subscribed connection. The loop goroutine hands frames to
// trySend; the write pump drains them onto the socket.
type client struct {
	conn *websocket.Conn
	srv  *BroadcastServer
	addr string

	send chan []byte
	quit chan struct{}

	// buffered counts bytes queued or in flight but not yet written to the
	// socket; it backs the backpressure threshold check.
	buffered atomic.Int64
	dropped  atomic.Int64

	closeOnce sync.Once
	throttle  *logThrottle
}

func newClient(conn *websocket.Conn, srv *BroadcastServer, addr string) *client {
	conn.SetReadLimit(srv.cfg.MaxMessageSize)
	return &client{
		conn: conn,
		srv:  srv,
		addr: addr,
		send: make(chan []byte, srv.cfg.SendQueueSize),
		quit: make(chan struct{}),
		// One drop warning per interval; drops come in bursts.
		throttle: newLogThrottle(1, 5*time.Second),
	}
}

// close asks both pumps to wind down. Idempotent.
func (c *client) close() {
	c.closeOnce.Do(func() {
		close(c.quit)
	})
}

// trySend queues message for delivery. Runs on the loop goroutine. A client
// past its backpressure threshold, or with a full queue, has the message
// dropped; the connection stays open either way.
func (c *client) trySend(message []byte) bool {
	size := int64(len(message))
	if c.buffered.Load()+size > c.srv.cfg.MaxBackpressure {
		c.recordDrop("backpressure threshold exceeded")
		return false
	}

	select {
	case c.send <- message:
		c.buffered.Add(size)
		return true
	case <-c.quit:
		return false
	default:
		c.recordDrop("send queue full")
		return false
	}
}

func (c *client) recordDrop(reason string) {
	total := c.dropped.Add(1)
	c.srv.metrics.messageDropped(c.srv.port)
	if c.throttle.allow() {
		c.srv.logger.Warnf("dropping message to %s on port %d: %s (%d dropped, %d bytes buffered)",
			c.addr, c.srv.port, reason, total, c.buffered.Load())
	}
}

func (c *client) setupReadDeadline() {
	if err := c.conn.SetReadDeadline(time.Now().Add(c.srv.cfg.PongWait)); err != nil {
		c.srv.logger.Warnf("failed to set read deadline for %s: %v", c.addr, err)
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.srv.cfg.PongWait))
	})
}

// readPump drains the connection so close frames and pings are processed.
// Inbound frames carry no meaning for a broadcast-only server and are
// discarded.
func (c *client) readPump() {
	defer func() {
		c.close()
		_ = c.conn.Close()
		// Best-effort: if the loop has already stopped, the client set is
		// being torn down anyway.
		c.srv.Defer(func() { c.srv.unregister(c) })
	}()

	c.setupReadDeadline()

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			c.handleReadError(err)
			return
		}
	}
}

func (c *client) handleReadError(err error) {
	switch {
	case errors.Is(err, websocket.ErrReadLimit):
		c.srv.logger.Warnf("client %s exceeded the %d byte frame limit", c.addr, c.srv.cfg.MaxMessageSize)
	case websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure):
		c.srv.logger.Infof("client %s disconnected: %v", c.addr, err)
	case errors.Is(err, io.EOF) || isExpectedCloseError(err):
		c.srv.logger.Debugf("client %s connection closed: %v", c.addr, err)
	default:
		c.srv.logger.Warnf("read error from client %s: %v", c.addr, err)
	}
}

// writePump owns all writes to the connection: queued frames, keepalive
// pings, and the final close frame.
func (c *client) writePump() {
	ticker := time.NewTicker(c.srv.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message := <-c.send:
			if !c.writeMessage(message) {
				c.close()
				return
			}
		case <-ticker.C:
			if !c.writePing() {
				c.close()
				return
			}
		case <-c.quit:
			c.writeClose()
			return
		}
	}
}

func (c *client) writeMessage(message []byte) bool {
	defer c.buffered.Add(-int64(len(message)))

	if err := c.conn.SetWriteDeadline(time.Now().Add(c.srv.cfg.WriteTimeout)); err != nil {
		c.srv.logger.Warnf("failed to set write deadline for %s: %v", c.addr, err)
		return false
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
		if !isExpectedCloseError(err) {
			c.srv.logger.Warnf("write to client %s failed: %v", c.addr, err)
		}
		return false
	}
	return true
}

func (c *client) writePing() bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.srv.cfg.WriteTimeout)); err != nil {
		return false
	}
	if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
		if !isExpectedCloseError(err) {
			c.srv.logger.Debugf("ping to client %s failed: %v", c.addr, err)
		}
		return false
	}
	return true
}

func (c *client) writeClose() {
	_ = c.conn.SetWriteDeadline(time.Now().Add(c.srv.cfg.WriteTimeout))
	msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
	if err := c.conn.WriteMessage(websocket.CloseMessage, msg); err != nil {
		if !isExpectedCloseError(err) {
			c.srv.logger.Debugf("close message to client %s failed: %v", c.addr, err)
		}
	}
}
