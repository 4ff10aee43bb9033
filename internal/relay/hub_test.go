package relay

import (
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/chatnow/chatnow-server/internal/event"
	"github.com/chatnow/chatnow-server/internal/presence"
)

func newTestHub() *Hub {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewHub(log, presence.NewRegistry(), Options{})
}

// newTestClient registers a connection-less client directly with the hub so
// dispatch can be driven synchronously and outbound frames captured from the
// send channel.
func newTestClient(h *Hub) *Client {
	c := &Client{
		handle: uuid.New(),
		send:   make(chan []byte, 64),
		hub:    h,
		addr:   "test",
		rooms:  make(map[string]bool),
	}
	h.clients[c] = true
	return c
}

func frame(t *testing.T, name string, payload any) []byte {
	t.Helper()
	f, err := event.Marshal(name, payload)
	require.NoError(t, err)
	return f
}

// drain empties the client's send channel into decoded envelopes.
func drain(t *testing.T, c *Client) []event.Envelope {
	t.Helper()
	var frames []event.Envelope
	for {
		select {
		case raw, ok := <-c.send:
			if !ok {
				return frames
			}
			var env event.Envelope
			require.NoError(t, json.Unmarshal(raw, &env))
			frames = append(frames, env)
		default:
			return frames
		}
	}
}

func Test_Setup_EmitsConnectedAndBroadcastsOnline(t *testing.T) {
	req := require.New(t)
	h := newTestHub()
	a := newTestClient(h)
	b := newTestClient(h)

	h.dispatch(a, frame(t, event.Setup, "u1"))

	aFrames := drain(t, a)
	req.Len(aFrames, 2)
	req.Equal(event.Connected, aFrames[0].Event)
	req.Equal(event.UserOnline, aFrames[1].Event)
	req.JSONEq(`"u1"`, string(aFrames[1].Payload))

	bFrames := drain(t, b)
	req.Len(bFrames, 1)
	req.Equal(event.UserOnline, bFrames[0].Event)

	req.True(h.registry.Online("u1"))
	handle, ok := h.registry.HandleByIdentity("u1")
	req.True(ok)
	req.Equal(a.handle, handle)
	req.True(a.rooms[userRoom("u1")])
}

func Test_NewMessage_DeliversToRecipientsOnly(t *testing.T) {
	req := require.New(t)
	h := newTestHub()
	a := newTestClient(h)
	b := newTestClient(h)

	h.dispatch(a, frame(t, event.Setup, "u1"))
	h.dispatch(b, frame(t, event.Setup, "u2"))
	drain(t, a)
	drain(t, b)

	payload := json.RawMessage(`{"chat":{"users":[{"_id":"u1"},{"_id":"u2"}]},"sender":{"_id":"u1"},"content":"hello"}`)
	h.dispatch(a, frame(t, event.NewMessage, payload))

	bFrames := drain(t, b)
	req.Len(bFrames, 1)
	req.Equal(event.MessageReceived, bFrames[0].Event)
	req.JSONEq(string(payload), string(bFrames[0].Payload))

	req.Empty(drain(t, a), "sender must not receive its own message")
}

func Test_NewMessage_ExclusionComparesIdentity(t *testing.T) {
	req := require.New(t)
	h := newTestHub()
	a := newTestClient(h)

	h.dispatch(a, frame(t, event.Setup, "u1"))
	drain(t, a)

	// A chat whose only participant is the sender yields no deliveries.
	payload := json.RawMessage(`{"chat":{"users":[{"_id":"u1"}]},"sender":{"_id":"u1"}}`)
	h.dispatch(a, frame(t, event.NewMessage, payload))

	req.Empty(drain(t, a))
}

func Test_NewMessage_DeliversToEveryDeviceOfRecipient(t *testing.T) {
	req := require.New(t)
	h := newTestHub()
	a := newTestClient(h)
	b1 := newTestClient(h)
	b2 := newTestClient(h)

	h.dispatch(a, frame(t, event.Setup, "u1"))
	h.dispatch(b1, frame(t, event.Setup, "u2"))
	h.dispatch(b2, frame(t, event.Setup, "u2"))
	drain(t, a)
	drain(t, b1)
	drain(t, b2)

	payload := json.RawMessage(`{"chat":{"users":[{"_id":"u1"},{"_id":"u2"}]},"sender":{"_id":"u1"}}`)
	h.dispatch(a, frame(t, event.NewMessage, payload))

	// Both of u2's connections joined the u2 identity-room at setup time.
	req.Len(drain(t, b1), 1)
	req.Len(drain(t, b2), 1)
}

func Test_NewMessage_DropsPayloadWithoutChatUsers(t *testing.T) {
	req := require.New(t)
	h := newTestHub()
	a := newTestClient(h)
	b := newTestClient(h)

	h.dispatch(a, frame(t, event.Setup, "u1"))
	h.dispatch(b, frame(t, event.Setup, "u2"))
	drain(t, a)
	drain(t, b)

	for _, payload := range []string{
		`{"sender":{"_id":"u1"}}`,
		`{"chat":{},"sender":{"_id":"u1"}}`,
		`{"chat":null,"sender":{"_id":"u1"}}`,
	} {
		h.dispatch(a, frame(t, event.NewMessage, json.RawMessage(payload)))
		req.Empty(drain(t, b), "payload %s must produce no deliveries", payload)
	}

	// The relay keeps working for subsequent events.
	good := json.RawMessage(`{"chat":{"users":[{"_id":"u1"},{"_id":"u2"}]},"sender":{"_id":"u1"}}`)
	h.dispatch(a, frame(t, event.NewMessage, good))
	req.Len(drain(t, b), 1)
}

func Test_Typing_RelayedToRoomExceptSender(t *testing.T) {
	req := require.New(t)
	h := newTestHub()
	a := newTestClient(h)
	b := newTestClient(h)
	c := newTestClient(h)

	h.dispatch(a, frame(t, event.JoinChat, "room1"))
	h.dispatch(b, frame(t, event.JoinChat, "room1"))
	// c never joins room1.

	h.dispatch(a, frame(t, event.Typing, "room1"))

	bFrames := drain(t, b)
	req.Len(bFrames, 1)
	req.Equal(event.Typing, bFrames[0].Event)
	req.Empty(bFrames[0].Payload)

	req.Empty(drain(t, a))
	req.Empty(drain(t, c))

	h.dispatch(a, frame(t, event.StopTyping, "room1"))
	stop := drain(t, b)
	req.Len(stop, 1)
	req.Equal(event.StopTyping, stop[0].Event)
}

func Test_JoinChat_IsIdempotent(t *testing.T) {
	req := require.New(t)
	h := newTestHub()
	a := newTestClient(h)
	b := newTestClient(h)

	h.dispatch(a, frame(t, event.JoinChat, "room1"))
	h.dispatch(b, frame(t, event.JoinChat, "room1"))
	h.dispatch(b, frame(t, event.JoinChat, "room1"))

	h.dispatch(a, frame(t, event.Typing, "room1"))

	req.Len(drain(t, b), 1, "duplicate join must not duplicate delivery")
}

func Test_Disconnect_BroadcastsOffline(t *testing.T) {
	req := require.New(t)
	h := newTestHub()
	a := newTestClient(h)
	b := newTestClient(h)

	h.dispatch(a, frame(t, event.Setup, "u1"))
	h.dispatch(b, frame(t, event.Setup, "u2"))
	drain(t, a)
	drain(t, b)

	h.dropClient(a)

	bFrames := drain(t, b)
	req.Len(bFrames, 1)
	req.Equal(event.UserOffline, bFrames[0].Event)
	req.JSONEq(`"u1"`, string(bFrames[0].Payload))

	req.False(h.registry.Online("u1"))
	_, ok := h.registry.IdentityByHandle(a.handle)
	req.False(ok)
}

func Test_Disconnect_UnknownHandleIsSilent(t *testing.T) {
	req := require.New(t)
	h := newTestHub()
	a := newTestClient(h)
	b := newTestClient(h)

	h.dispatch(b, frame(t, event.Setup, "u2"))
	drain(t, b)

	// a never completed setup; dropping it must not broadcast anything.
	h.dropClient(a)

	req.Empty(drain(t, b))
}

func Test_Hub_StaleHandleDisconnect(t *testing.T) {
	req := require.New(t)
	h := newTestHub()
	a1 := newTestClient(h)
	a2 := newTestClient(h)
	b := newTestClient(h)

	h.dispatch(a1, frame(t, event.Setup, "u1"))
	h.dispatch(a2, frame(t, event.Setup, "u1"))
	drain(t, a1)
	drain(t, a2)
	drain(t, b)

	// The first connection's handle was evicted by the second setup, so its
	// disconnect must not take u1 offline.
	h.dropClient(a1)

	req.Empty(drain(t, b))
	req.True(h.registry.Online("u1"))
	handle, ok := h.registry.HandleByIdentity("u1")
	req.True(ok)
	req.Equal(a2.handle, handle)
}

func Test_Dispatch_DropsInvalidFrames(t *testing.T) {
	req := require.New(t)
	h := newTestHub()
	a := newTestClient(h)
	b := newTestClient(h)

	h.dispatch(a, []byte(`not json`))
	h.dispatch(a, frame(t, "bogus event", "x"))
	h.dispatch(a, []byte(`{"event":"setup","payload":123}`))

	req.Empty(drain(t, a))
	req.Empty(drain(t, b))
	req.Zero(h.registry.Len())
}

func Test_Broadcast_DropsClientWithFullBuffer(t *testing.T) {
	req := require.New(t)
	h := newTestHub()
	a := newTestClient(h)
	b := newTestClient(h)

	h.dispatch(b, frame(t, event.Setup, "u2"))
	drain(t, a)
	drain(t, b)

	// Wedge b's send buffer.
	for len(b.send) < cap(b.send) {
		b.send <- []byte("filler")
	}

	h.broadcastEvent(event.UserOnline, "u3")

	h.mutex.RLock()
	_, stillThere := h.clients[b]
	h.mutex.RUnlock()
	req.False(stillThere, "client with full buffer must be dropped")
	req.False(h.registry.Online("u2"), "dropped client must also go offline")
}

func Test_RateLimiter_ExhaustsBurst(t *testing.T) {
	req := require.New(t)
	rl := newRateLimiter(2, time.Hour)

	req.True(rl.allow())
	req.True(rl.allow())
	req.False(rl.allow())
}

func Test_RateLimiter_RefillsOverTime(t *testing.T) {
	req := require.New(t)
	rl := newRateLimiter(1, time.Second)

	req.True(rl.allow())
	req.False(rl.allow())

	// Backdate the bucket instead of sleeping through a refill interval.
	rl.lastCheck = rl.lastCheck.Add(-2 * time.Second)
	req.True(rl.allow())
}
