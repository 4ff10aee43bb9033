package relay

import (
	"errors"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/chatnow/chatnow-server/internal/presence"
)

const (
	// pongWait is the heartbeat timeout: a connection silent for longer is
	// considered dead and torn down by the transport.
	pongWait = 60 * time.Second

	// pingPeriod must be shorter than pongWait so pings keep the deadline fresh.
	pingPeriod = 54 * time.Second

	writeWait = 10 * time.Second
)

// Client represents one live WebSocket connection. Its handle is the opaque
// connection identifier the presence registry keys on; identity and rooms are
// owned by the hub loop and must not be touched elsewhere.
type Client struct {
	handle presence.Handle
	conn   *websocket.Conn
	send   chan []byte
	hub    *Hub
	addr   string
	closed bool

	identity string
	rooms    map[string]bool

	maxMessageSize int64
	rateLimiter    *rateLimiter
}

// NewClient wraps a WebSocket connection for the hub, assigning it a fresh
// handle and applying the hub's per-connection limits. Register the returned
// client with the hub to start its pumps.
func (h *Hub) NewClient(conn *websocket.Conn, addr string) *Client {
	if conn != nil {
		conn.SetReadLimit(h.opts.MaxMessageSize)
	}

	return &Client{
		handle:         uuid.New(),
		conn:           conn,
		send:           make(chan []byte, 256),
		hub:            h,
		addr:           addr,
		rooms:          make(map[string]bool),
		maxMessageSize: h.opts.MaxMessageSize,
		rateLimiter:    newRateLimiter(h.opts.RateLimitBurst, h.opts.RateLimitRefill),
	}
}

// Handle returns the connection's opaque identifier.
func (c *Client) Handle() presence.Handle {
	return c.handle
}

// setupReadConnection configures the read deadline and pong handler that
// implement the heartbeat timeout.
func (c *Client) setupReadConnection() {
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.hub.log.Warn("error setting initial read deadline", "addr", c.addr, "error", err)
	}
	c.conn.SetPongHandler(func(string) error {
		if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
			c.hub.log.Warn("error setting read deadline in pong handler", "addr", c.addr, "error", err)
		}
		return nil
	})
}

// handleReadError logs the error appropriately and reports whether the read
// loop should stop.
func (c *Client) handleReadError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, websocket.ErrReadLimit) {
		c.hub.log.Warn("message exceeded maximum size", "addr", c.addr, "max", c.maxMessageSize)
		return true
	}

	if websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure) {
		c.hub.log.Info("client closed connection", "addr", c.addr, "error", err)
		return true
	}

	if errors.Is(err, io.EOF) || isExpectedCloseError(err) {
		c.hub.log.Info("client connection closed", "addr", c.addr, "error", err)
		return true
	}

	if websocket.IsUnexpectedCloseError(err,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure,
		websocket.CloseMessageTooBig) {
		c.hub.log.Warn("unexpected websocket error", "addr", c.addr, "error", err)
		return true
	}

	c.hub.log.Warn("websocket read error", "addr", c.addr, "error", err)
	return true
}

// checkRateLimit reports whether the frame should be processed.
func (c *Client) checkRateLimit() bool {
	if c.rateLimiter != nil && !c.rateLimiter.allow() {
		c.hub.log.Warn("rate limit exceeded; discarding frame", "addr", c.addr)
		return false
	}
	return true
}

// readPump reads frames off the connection and feeds them to the hub's
// dispatch loop. Frames stay raw here: decoding and validation happen at the
// dispatch boundary where drops are logged with full context.
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.ctx.Done():
		}
		if err := c.conn.Close(); err != nil {
			if !isExpectedCloseError(err) {
				c.hub.log.Warn("error closing connection in readPump", "error", err)
			}
		}
	}()

	c.setupReadConnection()

	for {
		_, frame, err := c.conn.ReadMessage()
		if err != nil {
			if c.handleReadError(err) {
				break
			}
		}

		if !c.checkRateLimit() {
			continue
		}

		select {
		case c.hub.inbound <- inboundFrame{client: c, frame: frame}:
		case <-c.hub.ctx.Done():
			return
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.closeConnection()
	}()

	for c.processWriteEvent(ticker) {
	}
}

// processWriteEvent waits for the next write event and returns false when the
// pump should stop processing.
func (c *Client) processWriteEvent(ticker *time.Ticker) bool {
	select {
	case frame, ok := <-c.send:
		return c.handleFrame(frame, ok)
	case <-ticker.C:
		return c.handlePing()
	}
}

func (c *Client) closeConnection() {
	if err := c.conn.Close(); err != nil {
		if !isExpectedCloseError(err) {
			c.hub.log.Warn("error closing connection in writePump", "error", err)
		}
	}
}

// handleFrame writes an outbound frame and returns false if the connection
// should be closed.
func (c *Client) handleFrame(frame []byte, ok bool) bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.hub.log.Warn("error setting write deadline", "addr", c.addr, "error", err)
		return false
	}

	if !ok {
		return c.writeCloseMessage()
	}

	return c.writeTextMessage(frame)
}

func (c *Client) writeCloseMessage() bool {
	if err := c.conn.WriteMessage(websocket.CloseMessage, []byte{}); err != nil {
		if !isExpectedCloseError(err) {
			c.hub.log.Warn("error writing close message", "addr", c.addr, "error", err)
		}
	}
	return false
}

func (c *Client) writeTextMessage(frame []byte) bool {
	w, err := c.conn.NextWriter(websocket.TextMessage)
	if err != nil {
		c.hub.log.Warn("error creating writer", "addr", c.addr, "error", err)
		return false
	}

	if _, err := w.Write(frame); err != nil {
		c.hub.log.Warn("error writing frame", "addr", c.addr, "error", err)
		return false
	}

	// Flush any frames queued behind this one, newline separated.
	n := len(c.send)
	for i := 0; i < n; i++ {
		if _, err := w.Write([]byte{'\n'}); err != nil {
			c.hub.log.Warn("error writing frame separator", "addr", c.addr, "error", err)
			return false
		}
		if _, err := w.Write(<-c.send); err != nil {
			c.hub.log.Warn("error writing queued frame", "addr", c.addr, "error", err)
			return false
		}
	}

	if err := w.Close(); err != nil {
		c.hub.log.Warn("error closing writer", "addr", c.addr, "error", err)
		return false
	}
	return true
}

// handlePing sends a ping to keep the connection alive.
func (c *Client) handlePing() bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.hub.log.Warn("error setting write deadline for ping", "addr", c.addr, "error", err)
		return false
	}
	if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
		if !isExpectedCloseError(err) {
			c.hub.log.Warn("error writing ping", "addr", c.addr, "error", err)
		}
		return false
	}
	return true
}

// isExpectedCloseError checks if an error is expected during connection closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe")
}
