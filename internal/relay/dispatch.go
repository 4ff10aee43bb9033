package relay

import (
	"github.com/chatnow/chatnow-server/internal/event"
)

// Room keys are namespaced so a user identity can never collide with a chat
// identifier: identity-rooms carry the "user:" prefix, chat rooms "chat:".
// The wire protocol still carries bare IDs.
func userRoom(identity string) string { return "user:" + identity }
func chatRoom(id string) string       { return "chat:" + id }

// dispatch decodes one inbound frame and applies its event. Invalid frames
// are logged and dropped; nothing here ever propagates a failure back to the
// connection or kills the pump.
func (h *Hub) dispatch(client *Client, frame []byte) {
	env, err := event.Decode(frame)
	if err != nil {
		h.log.Warn("dropping invalid frame", "addr", client.addr, "error", err)
		return
	}

	switch env.Event {
	case event.Setup:
		h.handleSetup(client, env)
	case event.JoinChat:
		h.handleJoinChat(client, env)
	case event.Typing, event.StopTyping:
		h.handleTyping(client, env)
	case event.NewMessage:
		h.handleNewMessage(client, env)
	}
}

// handleSetup binds the connection to a user identity. The registry entry is
// replaced unconditionally (last setup wins) and the client joins its
// identity-room so direct-to-user sends route through the room mechanism.
func (h *Hub) handleSetup(client *Client, env event.Envelope) {
	identity, err := env.StringPayload()
	if err != nil {
		h.log.Warn("dropping setup", "addr", client.addr, "error", err)
		return
	}

	h.registry.SetOnline(identity, client.handle)
	client.identity = identity
	h.joinRoom(client, userRoom(identity))

	h.sendEvent(client, event.Connected, nil)
	if !h.isRegistered(client) {
		// The connection was dropped delivering "connected"; dropClient has
		// already taken the identity offline again.
		return
	}
	h.broadcastEvent(event.UserOnline, identity)
	h.log.Info("user online", "identity", identity, "handle", client.handle)
}

func (h *Hub) handleJoinChat(client *Client, env event.Envelope) {
	room, err := env.StringPayload()
	if err != nil {
		h.log.Warn("dropping join chat", "addr", client.addr, "error", err)
		return
	}
	h.joinRoom(client, chatRoom(room))
}

// handleTyping relays typing and stop-typing indicators to the chat room,
// excluding the sender. The outbound frame carries no payload.
func (h *Hub) handleTyping(client *Client, env event.Envelope) {
	room, err := env.StringPayload()
	if err != nil {
		h.log.Warn("dropping typing indicator", "addr", client.addr, "error", err)
		return
	}

	frame, err := event.Marshal(env.Event, nil)
	if err != nil {
		h.log.Error("failed to marshal typing indicator", "error", err)
		return
	}
	h.emitToRoom(chatRoom(room), frame, client)
}

// handleNewMessage fans a message out to each chat participant's
// identity-room, excluding the sender by identity. The original payload is
// relayed byte-for-byte. A payload without chat.users is dropped after a
// diagnostic.
func (h *Hub) handleNewMessage(client *Client, env event.Envelope) {
	payload, err := event.DecodeMessagePayload(env.Payload)
	if err != nil {
		h.log.Warn("dropping new message", "addr", client.addr, "error", err)
		return
	}

	frame, err := event.Marshal(event.MessageReceived, env.Payload)
	if err != nil {
		h.log.Error("failed to marshal message received", "error", err)
		return
	}

	for _, identity := range payload.Recipients() {
		h.emitToRoom(userRoom(identity), frame, client)
	}
}
