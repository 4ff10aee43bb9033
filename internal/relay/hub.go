// Package relay implements the real-time core of the Chat Now service: the
// hub that owns all live WebSocket connections, the per-connection state, and
// the event dispatch that fans inbound events out to rooms, identities, or
// every connection.
package relay

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/chatnow/chatnow-server/internal/event"
	"github.com/chatnow/chatnow-server/internal/presence"
)

// Options carries the per-connection limits the hub applies to every client
// it creates.
type Options struct {
	MaxMessageSize  int64
	RateLimitBurst  int
	RateLimitRefill time.Duration
}

// inboundFrame pairs a raw frame with the connection it arrived on.
type inboundFrame struct {
	client *Client
	frame  []byte
}

// Hub manages all live connections and dispatches every inbound event from a
// single loop. Rooms, per-client state, and the presence registry are owned
// exclusively by that loop; only the clients map is shared (with safeSend and
// shutdown) and guarded by the mutex.
type Hub struct {
	log      *slog.Logger
	registry *presence.Registry
	opts     Options

	clients map[*Client]bool
	rooms   map[string]map[*Client]bool

	register   chan *Client
	unregister chan *Client
	inbound    chan inboundFrame

	mutex  sync.RWMutex
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewHub creates a hub bound to the given presence registry. The registry
// must not be shared with any other dispatcher.
func NewHub(log *slog.Logger, registry *presence.Registry, opts Options) *Hub {
	if log == nil {
		log = slog.Default()
	}
	if opts.MaxMessageSize <= 0 {
		opts.MaxMessageSize = 4096
	}
	if opts.RateLimitBurst <= 0 {
		opts.RateLimitBurst = 10
	}
	if opts.RateLimitRefill <= 0 {
		opts.RateLimitRefill = time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		log:        log,
		registry:   registry,
		opts:       opts,
		clients:    make(map[*Client]bool),
		rooms:      make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		inbound:    make(chan inboundFrame),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
}

// Register hands a client to the hub loop, which starts its pumps.
func (h *Hub) Register(client *Client) {
	h.register <- client
}

// Run is the hub's event loop. One event is fully processed before the next
// begins, so handlers never race on rooms or the registry. Call it in its own
// goroutine; it returns only on shutdown.
func (h *Hub) Run() {
	defer close(h.done)

	for {
		select {
		case <-h.ctx.Done():
			h.shutdownClients()
			return

		case client := <-h.register:
			if client == nil {
				h.log.Warn("received nil client registration; skipping")
				continue
			}

			h.mutex.Lock()
			client.closed = false
			h.clients[client] = true
			clientCount := len(h.clients)
			h.mutex.Unlock()
			h.log.Info("client connected", "addr", client.addr, "handle", client.handle, "clients", clientCount)

			h.wg.Add(2)
			go func() {
				defer h.wg.Done()
				client.writePump()
			}()
			go func() {
				defer h.wg.Done()
				client.readPump()
			}()

		case client := <-h.unregister:
			h.dropClient(client)

		case in := <-h.inbound:
			h.dispatch(in.client, in.frame)
		}
	}
}

// safeSend attempts a non-blocking delivery to the client's send channel.
// It returns false when the client is gone or its buffer is full.
func (h *Hub) safeSend(client *Client, frame []byte) bool {
	defer func() {
		if r := recover(); r != nil {
			h.log.Warn("recovered from panic in safeSend", "panic", r)
		}
	}()

	h.mutex.RLock()
	defer h.mutex.RUnlock()

	_, exists := h.clients[client]
	if !exists || client.closed {
		return false
	}

	select {
	case client.send <- frame:
		return true
	default:
		return false
	}
}

// dropClient removes a client from the hub and performs the disconnect
// transition: room memberships are discarded and, if the registry still maps
// an identity to this connection's handle, the identity goes offline with a
// broadcast. A handle the registry no longer knows (never set up, or evicted
// by a newer setup for the same identity) is a silent no-op.
func (h *Hub) dropClient(client *Client) {
	h.mutex.Lock()
	if _, ok := h.clients[client]; !ok {
		h.mutex.Unlock()
		return
	}
	delete(h.clients, client)
	client.closed = true
	clientCount := len(h.clients)
	h.mutex.Unlock()

	// Close the channel after releasing the lock
	close(client.send)

	for room := range client.rooms {
		h.leaveRoom(client, room)
	}

	h.log.Info("client disconnected", "addr", client.addr, "handle", client.handle, "identity", client.identity, "clients", clientCount)

	identity, ok := h.registry.IdentityByHandle(client.handle)
	if !ok {
		return
	}
	h.registry.RemoveByIdentity(identity)
	h.broadcastEvent(event.UserOffline, identity)
}

// joinRoom adds the client to a room; repeated joins are idempotent.
func (h *Hub) joinRoom(client *Client, room string) {
	if client.rooms[room] {
		return
	}
	members, ok := h.rooms[room]
	if !ok {
		members = make(map[*Client]bool)
		h.rooms[room] = members
	}
	members[client] = true
	client.rooms[room] = true
}

func (h *Hub) leaveRoom(client *Client, room string) {
	delete(client.rooms, room)
	if members, ok := h.rooms[room]; ok {
		delete(members, client)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
}

// broadcastEvent marshals an outbound event and delivers it to every
// connected client, including the one that caused it.
func (h *Hub) broadcastEvent(name string, payload any) {
	frame, err := event.Marshal(name, payload)
	if err != nil {
		h.log.Error("failed to marshal broadcast", "event", name, "error", err)
		return
	}

	clients := h.clientSnapshot()
	var failed []*Client
	for _, client := range clients {
		if !h.safeSend(client, frame) {
			failed = append(failed, client)
		}
	}
	h.removeFailed(failed)
}

// emitToRoom delivers a frame to every member of a room except the sender.
func (h *Hub) emitToRoom(room string, frame []byte, sender *Client) {
	var failed []*Client
	for client := range h.rooms[room] {
		if client == sender {
			continue
		}
		if !h.safeSend(client, frame) {
			failed = append(failed, client)
		}
	}
	h.removeFailed(failed)
}

// sendEvent delivers an outbound event to a single client.
func (h *Hub) sendEvent(client *Client, name string, payload any) {
	frame, err := event.Marshal(name, payload)
	if err != nil {
		h.log.Error("failed to marshal event", "event", name, "error", err)
		return
	}
	if !h.safeSend(client, frame) {
		h.removeFailed([]*Client{client})
	}
}

// removeFailed drops clients whose send buffers were full. Dropping runs the
// full disconnect transition, so a wedged connection also goes offline in the
// registry instead of lingering as a ghost presence.
func (h *Hub) removeFailed(failed []*Client) {
	for _, client := range failed {
		h.log.Warn("dropping client with full send buffer", "addr", client.addr)
		h.dropClient(client)
	}
}

func (h *Hub) isRegistered(client *Client) bool {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return h.clients[client]
}

func (h *Hub) clientSnapshot() []*Client {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	return clients
}

// shutdownClients closes all active client connections.
func (h *Hub) shutdownClients() {
	h.log.Info("shutting down all client connections")

	clients := h.clientSnapshot()
	for _, client := range clients {
		if client.conn != nil {
			if err := client.conn.Close(); err != nil {
				if !isExpectedCloseError(err) {
					h.log.Warn("error closing client connection", "addr", client.addr, "error", err)
				}
			}
		}
	}

	h.log.Info("closed client connections", "count", len(clients))
}

// Shutdown initiates graceful shutdown of the hub and waits for all pump
// goroutines to complete, or until the timeout is reached.
func (h *Hub) Shutdown(timeout time.Duration) error {
	h.log.Info("initiating hub shutdown")

	h.cancel()
	<-h.done

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		h.log.Info("hub shutdown completed")
		return nil
	case <-time.After(timeout):
		h.log.Warn("hub shutdown timeout reached, some goroutines may still be running")
		return context.DeadlineExceeded
	}
}
