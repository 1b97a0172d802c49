// Package server layers broadcast fan-out on top of the Server lifecycle:
// every connecting client joins one implicit topic and Broadcast publishes
// a text frame to all of them.
package server

import (
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// BroadcastServer is a Server whose only job is fanning text frames out to
// every connected client. Connections on any path are upgraded and
// subscribed; inbound frames are read and discarded.
//
// Broadcast is lossy per client by design: a slow client past its
// backpressure threshold has messages to it dropped while every other
// client keeps receiving. It is never lossy globally and never blocks the
// publisher.
type BroadcastServer struct {
	*Server

	upgrader websocket.Upgrader

	// clients and draining are owned by the run loop goroutine.
	clients  map[*client]struct{}
	draining bool

	clientCount atomic.Int64
	wg          sync.WaitGroup // client pump goroutines
}

// NewBroadcastServer creates a broadcast server for the given port. Call
// Start to bind it. A nil cfg or logger falls back to defaults.
func NewBroadcastServer(port int, cfg *Config, logger Logger, opts ...Option) *BroadcastServer {
	b := &BroadcastServer{
		Server:  NewServer(port, cfg, logger, opts...),
		clients: make(map[*client]struct{}),
	}
	origins := newOriginPolicy(b.cfg.AllowedOrigins, b.logger)
	b.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     origins.check,
	}
	b.shutdownHook = b.closeClients
	b.AddHandler("/", http.HandlerFunc(b.handleUpgrade))
	return b
}

// handleUpgrade turns an incoming request into a subscribed client.
func (b *BroadcastServer) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
		return
	}

	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.logger.Warnf("websocket upgrade failed for %s on port %d: %v", r.RemoteAddr, b.port, err)
		return
	}

	c := newClient(conn, b, r.RemoteAddr)
	if !b.Defer(func() { b.register(c) }) {
		b.logger.Warnf("server on port %d is not running; rejecting client %s", b.port, c.addr)
		_ = conn.Close()
	}
}

// register runs on the loop goroutine.
func (b *BroadcastServer) register(c *client) {
	if b.draining {
		_ = c.conn.Close()
		return
	}

	b.clients[c] = struct{}{}
	b.clientCount.Add(1)
	b.metrics.clientConnected(b.port)
	b.logger.Infof("client %s connected on port %d (%d clients)", c.addr, b.port, len(b.clients))

	b.wg.Add(2)
	go func() {
		defer b.wg.Done()
		c.writePump()
	}()
	go func() {
		defer b.wg.Done()
		c.readPump()
	}()
}

// unregister runs on the loop goroutine.
func (b *BroadcastServer) unregister(c *client) {
	if _, ok := b.clients[c]; !ok {
		return
	}
	delete(b.clients, c)
	b.clientCount.Add(-1)
	b.metrics.clientDisconnected(b.port)
	b.logger.Infof("client %s disconnected from port %d (%d clients)", c.addr, b.port, len(b.clients))
}

// closeClients runs on the loop goroutine as the first step of the
// deferred shutdown closure.
func (b *BroadcastServer) closeClients() {
	b.draining = true
	if len(b.clients) == 0 {
		return
	}

	b.logger.Infof("closing %d client connection(s) on port %d", len(b.clients), b.port)
	closeMsg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
	for c := range b.clients {
		// WriteControl and Close are safe concurrently with the pumps;
		// closing the socket also unsticks a pump blocked in a slow write.
		_ = c.conn.WriteControl(websocket.CloseMessage, closeMsg, time.Now().Add(250*time.Millisecond))
		c.close()
		_ = c.conn.Close()
		b.clientCount.Add(-1)
		b.metrics.clientDisconnected(b.port)
	}
	b.clients = make(map[*client]struct{})
}

// Broadcast publishes message to every connected client as one text frame.
// It is safe to call from any goroutine and never blocks the caller.
//
// When the server is not listening the call is a logged no-op, not an
// error: broadcasting to an absent audience is expected. The payload is
// copied so its lifetime outlives the call, and the publish runs on the
// loop goroutine, which re-checks liveness first and drops the message if
// the server has stopped since the call.
func (b *BroadcastServer) Broadcast(message string) {
	if !b.IsListening() {
		b.logger.Warnf("server on port %d is not listening; dropping broadcast", b.port)
		return
	}

	payload := []byte(message)
	ok := b.Defer(func() {
		if !b.IsListening() {
			b.logger.Debugf("server on port %d stopped before deferred broadcast could run", b.port)
			return
		}
		for c := range b.clients {
			c.trySend(payload)
		}
		b.metrics.broadcastSent(b.port)
	})
	if !ok {
		b.logger.Warnf("server on port %d could not accept broadcast; dropping it", b.port)
	}
}

// ClientCount reports the number of currently subscribed clients.
// Best-effort, safe from any goroutine.
func (b *BroadcastServer) ClientCount() int {
	return int(b.clientCount.Load())
}

// Stop shuts the server down and additionally waits for every client pump
// goroutine to exit.
func (b *BroadcastServer) Stop() {
	b.Server.Stop()
	b.wg.Wait()
}
