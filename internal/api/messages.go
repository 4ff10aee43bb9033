package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/chatnow/chatnow-server/internal/store"
)

type sendMessageRequest struct {
	Chat    string `json:"chat" validate:"required"`
	Sender  string `json:"sender" validate:"required"`
	Content string `json:"content" validate:"required,max=2000"`
}

type messagePage struct {
	Messages []store.Message `json:"messages"`
	Next     *string         `json:"next,omitempty"`
}

// SendMessage appends a message to a chat. The sender must exist and be a
// participant of the chat.
func (h *Handler) SendMessage(w http.ResponseWriter, r *http.Request) {
	var req sendMessageRequest
	if !h.decode(w, r, &req) {
		return
	}

	if _, err := h.stores.Users.Get(req.Sender); err != nil {
		h.writeStoreError(w, err)
		return
	}
	chat, err := h.stores.Chats.Get(req.Chat)
	if err != nil {
		h.writeStoreError(w, err)
		return
	}
	if !chat.HasMember(req.Sender) {
		h.writeStoreError(w, store.ErrNotInChat)
		return
	}

	msg, err := h.stores.Messages.Append(req.Chat, req.Sender, req.Content)
	if err != nil {
		h.writeStoreError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, msg)
}

// ListMessages returns one page of a chat's history, newest first. The
// optional cursor query parameter resumes a previous page.
func (h *Handler) ListMessages(w http.ResponseWriter, r *http.Request) {
	chatID := mux.Vars(r)["chatID"]
	if _, err := h.stores.Chats.Get(chatID); err != nil {
		h.writeStoreError(w, err)
		return
	}

	var cursor *string
	if c := r.URL.Query().Get("cursor"); c != "" {
		cursor = &c
	}

	messages, next, err := h.stores.Messages.List(chatID, cursor)
	if err != nil {
		h.writeStoreError(w, err)
		return
	}
	if messages == nil {
		messages = []store.Message{}
	}
	h.writeJSON(w, http.StatusOK, messagePage{Messages: messages, Next: next})
}
